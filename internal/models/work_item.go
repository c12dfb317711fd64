package models

// WorkItem is one classified, not yet processed snapshot file
type WorkItem struct {
	FilePath  string // Absolute path
	Date      string // YYYY-MM-DD from the filename
	SymbolKey string
	Symbol    SymbolConfig
	Kind      RecordKind
}
