package interfaces

import "github.com/ternarybob/gammawatch/internal/models"

// RecordStore is the persistent symbol -> date -> entry state.
// It is not safe for concurrent use.
type RecordStore interface {
	// Load reads durable state, migrating the legacy layout; never fails
	Load()

	// Save writes the full in-memory state to durable storage
	Save() error

	// RecordProcessed writes the chart or text half of the (symbol, date) entry and saves
	RecordProcessed(symbolKey, sourceFile string, outputs []string, date string, kind models.RecordKind, textData string) error

	// IsProcessed reports whether sourceFile is already recorded for (symbol, kind)
	IsProcessed(symbolKey, sourceFile string, kind models.RecordKind) bool

	// GetRecentRecords returns up to count non-empty dated entries, oldest first
	GetRecentRecords(symbolKey string, count int) []*models.DatedEntry
}
