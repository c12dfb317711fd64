package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// RecordKind identifies which half of a dated entry a snapshot file feeds
type RecordKind string

const (
	// RecordKindChart is a "gamma" chart snapshot rendered to images
	RecordKindChart RecordKind = "chart"
	// RecordKindText is a "tvcode" snapshot whose text is extracted directly
	RecordKindText RecordKind = "text"
)

// String returns the kind name used in logs
func (k RecordKind) String() string {
	return string(k)
}

// IsValid reports whether k is one of the known kinds
func (k RecordKind) IsValid() bool {
	return k == RecordKindChart || k == RecordKindText
}

// ChartData is the chart half of a dated entry.
// JSON names match the on-disk history format.
type ChartData struct {
	SourceFile string   `json:"htmlFile"`
	ImagePaths []string `json:"imagePaths"`
}

// TextData is the text half of a dated entry
type TextData struct {
	SourceFile string `json:"htmlFile"`
	Data       string `json:"data"`
}

// DatedEntry holds at most one chart result and one text result for a
// (symbol, date) pair.
type DatedEntry struct {
	Date       string     `json:"date"`
	Chart      *ChartData `json:"gamma"`
	Text       *TextData  `json:"tvcode"`
	RecordedAt Timestamp  `json:"processedAt"`
}

// IsEmpty returns true when neither half is populated
func (e *DatedEntry) IsEmpty() bool {
	return e == nil || (e.Chart == nil && e.Text == nil)
}

// HasChart reports whether the entry carries chart images to bundle
func (e *DatedEntry) HasChart() bool {
	return e != nil && e.Chart != nil && len(e.Chart.ImagePaths) > 0
}

// HasText reports whether the entry carries a text result. Sentinel and
// empty extractions still count.
func (e *DatedEntry) HasText() bool {
	return e != nil && e.Text != nil
}

// LegacyRecord is one element of the flat list-per-symbol history layout
// written before entries were keyed by date.
type LegacyRecord struct {
	Date        string    `json:"date"`
	HTMLFile    string    `json:"htmlFile"`
	ImagePaths  []string  `json:"imagePaths"`
	ProcessedAt Timestamp `json:"processedAt"`
}

// timestampLayouts are tried in order when a stored timestamp is a string
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/1/2 15:04:05",
	"1/2/2006, 3:04:05 PM",
	"2006-01-02",
}

// Timestamp is a processing time read from the history file. Values that
// do not parse decode to the zero time and are written back unchanged, so
// an odd timestamp never costs a record.
type Timestamp struct {
	time.Time
	raw json.RawMessage
}

// NewTimestamp wraps t
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// UnmarshalJSON accepts RFC3339 and common date-time strings, epoch
// milliseconds, null and anything else (kept raw, zero time).
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	*ts = Timestamp{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var text string
	if json.Unmarshal(trimmed, &text) == nil {
		if text == "" {
			return nil
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				ts.Time = t
				return nil
			}
		}
	} else if millis, err := strconv.ParseFloat(string(trimmed), 64); err == nil {
		ts.Time = time.UnixMilli(int64(millis)).UTC()
		return nil
	}

	ts.raw = append(json.RawMessage(nil), trimmed...)
	return nil
}

// MarshalJSON writes RFC3339, the unparsed value when one was kept, or null
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.Time.IsZero() {
		if len(ts.raw) > 0 {
			return ts.raw, nil
		}
		return []byte("null"), nil
	}
	return json.Marshal(ts.Time)
}
