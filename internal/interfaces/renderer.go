// -----------------------------------------------------------------------
// Renderer Interface - Turn one HTML chart snapshot into image files
// -----------------------------------------------------------------------

package interfaces

import "context"

// Renderer converts a chart snapshot into zero or more image files.
// Partial success returns whatever succeeded; an empty slice means nothing
// usable was produced.
type Renderer interface {
	Render(ctx context.Context, htmlPath string, outputDir string) ([]string, error)
}
