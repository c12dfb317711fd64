package interfaces

import "context"

// TextExtractor returns best-effort plain text for an HTML snapshot.
// It never fails the pipeline: failures are reported as a sentinel string.
type TextExtractor interface {
	Extract(ctx context.Context, htmlPath string) string
}
