// -----------------------------------------------------------------------
// Package classifier maps snapshot filenames to {date, symbol, kind}.
// Every function here is pure: same filename, same answer.
// -----------------------------------------------------------------------

package classifier

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ternarybob/gammawatch/internal/models"
)

// Default filename marker tokens
const (
	DefaultChartMarker = "gamma"
	DefaultTextMarker  = "tvcode"
)

var datePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)

// Match is a fully classified filename
type Match struct {
	Date   string
	Symbol models.SymbolConfig
	Kind   models.RecordKind
}

// SymbolKey returns the storage key of the matched symbol
func (m Match) SymbolKey() string {
	return m.Symbol.Key()
}

// Classifier holds the kind marker tokens (lower-cased)
type Classifier struct {
	chartMarker string
	textMarker  string
}

// NewClassifier creates a classifier; empty markers fall back to the defaults
func NewClassifier(chartMarker, textMarker string) *Classifier {
	if chartMarker == "" {
		chartMarker = DefaultChartMarker
	}
	if textMarker == "" {
		textMarker = DefaultTextMarker
	}
	return &Classifier{
		chartMarker: strings.ToLower(chartMarker),
		textMarker:  strings.ToLower(textMarker),
	}
}

// ExtractDate returns the leading YYYY-MM-DD of the file's base name
func ExtractDate(filename string) (string, bool) {
	m := datePrefix.FindStringSubmatch(filepath.Base(filename))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// MatchSymbol returns the first symbol (in declaration order) with any
// keyword contained in the file's base name, case-insensitively.
func MatchSymbol(filename string, symbols []models.SymbolConfig) (models.SymbolConfig, bool) {
	name := strings.ToLower(filepath.Base(filename))
	for _, sym := range symbols {
		for _, keyword := range sym.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(name, strings.ToLower(keyword)) {
				return sym, true
			}
		}
	}
	return models.SymbolConfig{}, false
}

// ClassifyKind checks the text marker first, then the chart marker
func (c *Classifier) ClassifyKind(filename string) (models.RecordKind, bool) {
	name := strings.ToLower(filepath.Base(filename))
	switch {
	case strings.Contains(name, c.textMarker):
		return models.RecordKindText, true
	case strings.Contains(name, c.chartMarker):
		return models.RecordKindChart, true
	}
	return "", false
}

// Classify combines the three checks. reason names the first failed check.
func (c *Classifier) Classify(filename string, symbols []models.SymbolConfig) (match Match, reason string, ok bool) {
	date, ok := ExtractDate(filename)
	if !ok {
		return Match{}, "no date prefix", false
	}
	sym, ok := MatchSymbol(filename, symbols)
	if !ok {
		return Match{}, "no symbol keyword", false
	}
	kind, ok := c.ClassifyKind(filename)
	if !ok {
		return Match{}, "unrecognized kind", false
	}
	return Match{Date: date, Symbol: sym, Kind: kind}, "", true
}
