package storage

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/common"
	"github.com/ternarybob/gammawatch/internal/interfaces"
	"github.com/ternarybob/gammawatch/internal/storage/badger"
)

// NewRunStorage opens the run log. It returns nil, nil when no database
// path is configured.
func NewRunStorage(logger arbor.ILogger, config *common.Config) (interfaces.RunStorage, error) {
	if config.Storage.Badger.Path == "" {
		logger.Info().Msg("Run log disabled (storage.badger.path is empty)")
		return nil, nil
	}

	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}
	return badger.NewRunStorage(db, logger), nil
}
