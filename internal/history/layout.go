package history

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/gammawatch/internal/models"
)

// symbolDoc is one symbol's value after its on-disk shape has been decided
type symbolDoc struct {
	legacy  bool
	entries map[string]*models.DatedEntry
}

// decodeSymbol classifies a symbol's raw value once (list or map) and
// normalizes it to the dated-map shape.
func decodeSymbol(raw json.RawMessage) (symbolDoc, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return symbolDoc{entries: make(map[string]*models.DatedEntry)}, nil
	}

	switch trimmed[0] {
	case '[':
		var list []models.LegacyRecord
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return symbolDoc{}, fmt.Errorf("legacy list: %w", err)
		}
		return symbolDoc{legacy: true, entries: migrateLegacy(list)}, nil

	case '{':
		var dates map[string]*models.DatedEntry
		if err := json.Unmarshal(trimmed, &dates); err != nil {
			return symbolDoc{}, fmt.Errorf("dated map: %w", err)
		}
		for date, entry := range dates {
			if entry == nil {
				delete(dates, date)
				continue
			}
			if entry.Date == "" {
				entry.Date = date
			}
		}
		return symbolDoc{entries: dates}, nil
	}

	return symbolDoc{}, fmt.Errorf("unexpected JSON value starting with %q", trimmed[0])
}

// migrateLegacy turns a flat processed-file list into dated entries.
// Later records for the same date win.
func migrateLegacy(list []models.LegacyRecord) map[string]*models.DatedEntry {
	entries := make(map[string]*models.DatedEntry, len(list))
	for _, record := range list {
		if record.Date == "" {
			continue
		}

		entry := &models.DatedEntry{
			Date:       record.Date,
			RecordedAt: record.ProcessedAt,
		}
		if record.ImagePaths != nil {
			entry.Chart = &models.ChartData{
				SourceFile: record.HTMLFile,
				ImagePaths: record.ImagePaths,
			}
		}
		entries[record.Date] = entry
	}
	return entries
}
