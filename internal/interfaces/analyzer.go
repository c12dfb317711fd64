package interfaces

import "context"

// SymbolDescriptor identifies the instrument in an analysis prompt
type SymbolDescriptor struct {
	Name string
	Code string
}

// DatedText is one text snapshot tagged with its date
type DatedText struct {
	Date string
	Data string
}

// AnalysisRequest is the multi-day bundle handed to the Analyzer
type AnalysisRequest struct {
	Symbol     SymbolDescriptor
	ImagePaths []string    // Ordered oldest to newest
	TimeLabels []string    // Dates of the bundled entries, oldest to newest
	Texts      []DatedText // Ordered oldest to newest
	Prompt     string      // Custom prompt template; empty uses the default
}

// Analyzer produces a single text report for a bundle.
// Request failures must be returned as errors.
type Analyzer interface {
	Analyze(ctx context.Context, request *AnalysisRequest) (string, error)
}
