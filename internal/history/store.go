// -----------------------------------------------------------------------
// History Store - Per-symbol, per-date record of processed snapshots
// -----------------------------------------------------------------------

package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/interfaces"
	"github.com/ternarybob/gammawatch/internal/models"
)

// Store is the JSON-file backed record store: symbol -> date -> entry.
// Not safe for concurrent use; a run owns it exclusively.
type Store struct {
	path    string
	logger  arbor.ILogger
	symbols map[string]map[string]*models.DatedEntry
	now     func() time.Time
}

var _ interfaces.RecordStore = (*Store)(nil)

// NewStore creates a store bound to path. Call Load before use.
func NewStore(path string, logger arbor.ILogger) *Store {
	return &Store{
		path:    path,
		logger:  logger,
		symbols: make(map[string]map[string]*models.DatedEntry),
		now:     time.Now,
	}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory state with the file contents.
// A missing or corrupt file yields an empty store.
func (s *Store) Load() {
	s.symbols = make(map[string]map[string]*models.DatedEntry)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("path", s.path).Msg("History file not found, starting empty")
		} else {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to read history file, starting empty")
		}
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("History file is corrupt, starting empty")
		return
	}

	migrated := 0
	for key, value := range raw {
		doc, err := decodeSymbol(value)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", key).Msg("Skipping unreadable history entry")
			continue
		}
		if doc.legacy {
			migrated++
		}
		s.symbols[key] = doc.entries
	}

	if migrated > 0 {
		s.logger.Info().Int("symbols", migrated).Msg("Migrated legacy history layout")
	}
	s.logger.Debug().Int("symbols", len(s.symbols)).Str("path", s.path).Msg("History loaded")
}

// Save writes the full state as indented JSON via temp file + rename
func (s *Store) Save() error {
	data, err := json.MarshalIndent(s.symbols, "", "  ")
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode history")
		return fmt.Errorf("failed to encode history: %w", err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("Failed to save history")
		return err
	}
	return nil
}

// RecordProcessed writes the chart or text half of the (symbolKey, date)
// entry, leaving the other half and other dates untouched, then saves.
func (s *Store) RecordProcessed(symbolKey, sourceFile string, outputs []string, date string, kind models.RecordKind, textData string) error {
	if !kind.IsValid() {
		return fmt.Errorf("unknown record kind %q", kind)
	}

	dates, ok := s.symbols[symbolKey]
	if !ok {
		dates = make(map[string]*models.DatedEntry)
		s.symbols[symbolKey] = dates
	}

	entry, ok := dates[date]
	if !ok {
		entry = &models.DatedEntry{Date: date}
		dates[date] = entry
	}

	switch kind {
	case models.RecordKindChart:
		paths := make([]string, len(outputs))
		copy(paths, outputs)
		entry.Chart = &models.ChartData{SourceFile: sourceFile, ImagePaths: paths}
	case models.RecordKindText:
		entry.Text = &models.TextData{SourceFile: sourceFile, Data: textData}
	}
	entry.RecordedAt = models.NewTimestamp(s.now())

	s.logger.Debug().
		Str("symbol", symbolKey).
		Str("date", date).
		Str("kind", kind.String()).
		Str("file", filepath.Base(sourceFile)).
		Msg("Recorded processed snapshot")

	return s.Save()
}

// IsProcessed reports whether sourceFile is already recorded for (symbolKey, kind)
func (s *Store) IsProcessed(symbolKey, sourceFile string, kind models.RecordKind) bool {
	target := normalizePath(sourceFile)
	for _, entry := range s.symbols[symbolKey] {
		var recorded string
		switch kind {
		case models.RecordKindChart:
			if entry.Chart == nil {
				continue
			}
			recorded = entry.Chart.SourceFile
		case models.RecordKindText:
			if entry.Text == nil {
				continue
			}
			recorded = entry.Text.SourceFile
		default:
			return false
		}
		if recorded != "" && normalizePath(recorded) == target {
			return true
		}
	}
	return false
}

// GetRecentRecords returns up to count non-empty entries, oldest first
func (s *Store) GetRecentRecords(symbolKey string, count int) []*models.DatedEntry {
	if count <= 0 {
		return []*models.DatedEntry{}
	}

	entries := s.Entries(symbolKey)
	if len(entries) > count {
		entries = entries[len(entries)-count:]
	}
	return entries
}

// Entries returns every non-empty entry for symbolKey, oldest first
func (s *Store) Entries(symbolKey string) []*models.DatedEntry {
	dates := s.symbols[symbolKey]
	keys := make([]string, 0, len(dates))
	for date, entry := range dates {
		if date == "" || entry.IsEmpty() {
			continue
		}
		keys = append(keys, date)
	}
	sort.Strings(keys)

	entries := make([]*models.DatedEntry, len(keys))
	for i, date := range keys {
		entries[i] = dates[date]
	}
	return entries
}

// Symbols returns the stored symbol keys, sorted
func (s *Store) Symbols() []string {
	keys := make([]string, 0, len(s.symbols))
	for key := range s.symbols {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Reset clears all state and writes an empty file.
// With backup, the current file is first copied to <path>.backup.
func (s *Store) Reset(backup bool) (string, error) {
	backupPath := ""
	if backup {
		data, err := os.ReadFile(s.path)
		switch {
		case err == nil:
			backupPath = s.path + ".backup"
			if err := writeFileAtomic(backupPath, data); err != nil {
				return "", fmt.Errorf("failed to back up history: %w", err)
			}
		case !os.IsNotExist(err):
			return "", fmt.Errorf("failed to read history for backup: %w", err)
		}
	}

	s.symbols = make(map[string]map[string]*models.DatedEntry)
	if err := s.Save(); err != nil {
		return backupPath, err
	}

	s.logger.Info().Str("path", s.path).Str("backup", backupPath).Msg("History reset")
	return backupPath, nil
}

// normalizePath makes paths comparable regardless of relative form
func normalizePath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
