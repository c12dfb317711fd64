package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/gammawatch/internal/common"
	"google.golang.org/genai"
)

// buildGeminiContents puts the prompt first, followed by each image as inline data
func buildGeminiContents(request *ContentRequest) []*genai.Content {
	parts := make([]*genai.Part, 0, len(request.Images)+1)
	parts = append(parts, genai.NewPartFromText(request.Prompt))
	for _, img := range request.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
	}

	return []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: parts,
		},
	}
}

// generateWithGemini generates content using Gemini API
func (f *ProviderFactory) generateWithGemini(ctx context.Context, request *ContentRequest, model string) (*ContentResponse, error) {
	client, err := f.GetGeminiClient(ctx)
	if err != nil {
		return nil, err
	}

	timeout := common.ParseDuration(f.geminiConfig.Timeout, 5*time.Minute)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	temp := request.Temperature
	if temp <= 0 {
		temp = f.geminiConfig.Temperature
	}
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = f.geminiConfig.MaxOutputTokens
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}

	contents := buildGeminiContents(request)

	var resp *genai.GenerateContentResponse
	err = f.withRetry(ctx, ProviderGemini, func() error {
		var callErr error
		resp, callErr = client.Models.GenerateContent(ctx, model, contents, config)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	responseText := resp.Text()
	if responseText == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	return &ContentResponse{
		Text:     responseText,
		Provider: ProviderGemini,
		Model:    model,
	}, nil
}
