package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/interfaces"
	"github.com/ternarybob/gammawatch/internal/models"
	"github.com/ternarybob/gammawatch/internal/services/classifier"
)

// Clock returns the current time; its calendar date is "today"
type Clock func() time.Time

// Scanner turns a directory listing into a queue of unprocessed work items
type Scanner struct {
	classifier *classifier.Classifier
	extension  string
	clock      Clock
	logger     arbor.ILogger
}

// NewScanner creates a scanner for files with the given extension.
// A nil clock uses time.Now.
func NewScanner(c *classifier.Classifier, extension string, clock Clock, logger arbor.ILogger) *Scanner {
	if clock == nil {
		clock = time.Now
	}
	ext := strings.ToLower(extension)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &Scanner{
		classifier: c,
		extension:  ext,
		clock:      clock,
		logger:     logger,
	}
}

// Today returns the scanner's current calendar date as YYYY-MM-DD
func (s *Scanner) Today() string {
	return s.clock().Format("2006-01-02")
}

// Scan lists dir and returns today's classified files not yet recorded in
// store, in directory listing order.
func (s *Scanner) Scan(dir string, symbols []models.SymbolConfig, store interfaces.RecordStore) ([]models.WorkItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read watch directory %s: %w", dir, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch directory %s: %w", dir, err)
	}

	today := s.Today()
	items := make([]models.WorkItem, 0)
	candidates := 0

	for _, entry := range entries {
		name := entry.Name()
		if !isRegularFile(absDir, entry) {
			continue
		}
		if s.extension != "" && strings.ToLower(filepath.Ext(name)) != s.extension {
			continue
		}
		candidates++

		match, reason, ok := s.classifier.Classify(name, symbols)
		if !ok {
			s.logger.Debug().Str("file", name).Str("reason", reason).Msg("Skipping file")
			continue
		}
		if match.Date != today {
			s.logger.Debug().Str("file", name).Str("date", match.Date).Str("today", today).Msg("Skipping file not dated today")
			continue
		}

		path := filepath.Join(absDir, name)
		key := match.SymbolKey()
		if store.IsProcessed(key, path, match.Kind) {
			s.logger.Debug().Str("file", name).Str("symbol", key).Str("kind", match.Kind.String()).Msg("Skipping already processed file")
			continue
		}

		items = append(items, models.WorkItem{
			FilePath:  path,
			Date:      match.Date,
			SymbolKey: key,
			Symbol:    match.Symbol,
			Kind:      match.Kind,
		})
	}

	s.logger.Debug().
		Str("dir", absDir).
		Str("today", today).
		Int("candidates", candidates).
		Int("queued", len(items)).
		Msg("Scan complete")

	return items, nil
}

// isRegularFile accepts regular files and symlinks that resolve to one
func isRegularFile(dir string, entry fs.DirEntry) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	return err == nil && info.Mode().IsRegular()
}
