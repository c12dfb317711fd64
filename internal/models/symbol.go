package models

import "strings"

// SymbolConfig describes one tracked instrument and where its output goes
type SymbolConfig struct {
	Name            string   `toml:"name" validate:"required"`
	Code            string   `toml:"code"`
	Keywords        []string `toml:"keywords" validate:"required,min=1,dive,required"`
	Channel         string   `toml:"channel" validate:"required"`
	AnalysisChannel string   `toml:"analysis_channel"` // Overrides [analysis].channel for this symbol
}

// Key returns the storage key: the first keyword, used verbatim
func (s SymbolConfig) Key() string {
	if len(s.Keywords) == 0 {
		return ""
	}
	return s.Keywords[0]
}

// DisplayCode returns Code, falling back to upper-cased Name
func (s SymbolConfig) DisplayCode() string {
	if s.Code != "" {
		return s.Code
	}
	return strings.ToUpper(s.Name)
}
