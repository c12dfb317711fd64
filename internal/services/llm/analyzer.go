// -----------------------------------------------------------------------
// Analyzer - Sends a multi-day chart and text bundle to an LLM provider
// -----------------------------------------------------------------------

package llm

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/common"
	"github.com/ternarybob/gammawatch/internal/interfaces"
)

// Service implements interfaces.Analyzer
type Service struct {
	generator ContentGenerator
	model     string
	logger    arbor.ILogger
}

var _ interfaces.Analyzer = (*Service)(nil)

// NewService creates an analyzer over the given generator. model may be
// empty to use the default provider's model.
func NewService(generator ContentGenerator, model string, logger arbor.ILogger) *Service {
	return &Service{
		generator: generator,
		model:     model,
		logger:    logger,
	}
}

// NewAnalyzer wires the provider factory from configuration
func NewAnalyzer(config *common.Config, logger arbor.ILogger) (*Service, *ProviderFactory) {
	factory := NewProviderFactory(&config.Gemini, &config.Claude, &config.LLM, logger)
	return NewService(factory, config.LLM.Model, logger), factory
}

// Analyze builds the prompt, attaches the images and returns the report text
func (s *Service) Analyze(ctx context.Context, request *interfaces.AnalysisRequest) (string, error) {
	if request == nil {
		return "", fmt.Errorf("analysis request is nil")
	}

	images, err := loadImages(request.ImagePaths)
	if err != nil {
		return "", err
	}

	prompt := BuildPrompt(request)

	startTime := time.Now()
	resp, err := s.generator.GenerateContent(ctx, &ContentRequest{
		Prompt: prompt,
		Images: images,
		Model:  s.model,
	})
	if err != nil {
		return "", fmt.Errorf("analysis failed for %s: %w", request.Symbol.Name, err)
	}

	s.logger.Info().
		Str("symbol", request.Symbol.Name).
		Str("provider", string(resp.Provider)).
		Str("model", resp.Model).
		Int("images", len(images)).
		Int("texts", len(request.Texts)).
		Int("response_length", len(resp.Text)).
		Dur("duration", time.Since(startTime)).
		Msg("Analysis completed")

	return resp.Text, nil
}

func loadImages(paths []string) ([]Image, error) {
	images := make([]Image, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image %s: %w", path, err)
		}

		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "image/png"
		}

		images = append(images, Image{
			Name:     filepath.Base(path),
			MimeType: mimeType,
			Data:     data,
		})
	}
	return images, nil
}
