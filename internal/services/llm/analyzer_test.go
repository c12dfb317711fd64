package llm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/interfaces"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ContentResponse), args.Error(1)
}

func writeImages(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0644))
		paths = append(paths, path)
	}
	return paths
}

func TestAnalyze(t *testing.T) {
	gen := new(MockGenerator)
	svc := NewService(gen, "gemini-2.5-pro", arbor.NewLogger())

	paths := writeImages(t, "2025-06-01_gamma_a.png", "2025-06-02_gamma_a.png")
	req := &interfaces.AnalysisRequest{
		Symbol:     interfaces.SymbolDescriptor{Name: "SPX", Code: "SPX"},
		ImagePaths: paths,
		TimeLabels: []string{"2025-06-01", "2025-06-02"},
	}

	gen.On("GenerateContent", mock.Anything, mock.MatchedBy(func(r *ContentRequest) bool {
		return r.Model == "gemini-2.5-pro" &&
			len(r.Images) == 2 &&
			r.Images[0].MimeType == "image/png" &&
			string(r.Images[0].Data) == "2025-06-01_gamma_a.png" &&
			strings.Contains(r.Prompt, "**Time order**: 2025-06-01, 2025-06-02")
	})).Return(&ContentResponse{Text: "report", Provider: ProviderGemini, Model: "gemini-2.5-pro"}, nil)

	report, err := svc.Analyze(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "report", report)
	gen.AssertExpectations(t)
}

func TestAnalyze_ProviderError(t *testing.T) {
	gen := new(MockGenerator)
	svc := NewService(gen, "", arbor.NewLogger())

	gen.On("GenerateContent", mock.Anything, mock.Anything).Return(nil, errors.New("quota"))

	_, err := svc.Analyze(context.Background(), &interfaces.AnalysisRequest{
		Symbol:     interfaces.SymbolDescriptor{Name: "SPX"},
		TimeLabels: []string{"2025-06-01", "2025-06-02"},
	})

	assert.ErrorContains(t, err, "quota")
}

func TestAnalyze_MissingImage(t *testing.T) {
	gen := new(MockGenerator)
	svc := NewService(gen, "", arbor.NewLogger())

	_, err := svc.Analyze(context.Background(), &interfaces.AnalysisRequest{
		Symbol:     interfaces.SymbolDescriptor{Name: "SPX"},
		ImagePaths: []string{filepath.Join(t.TempDir(), "missing.png")},
	})

	assert.Error(t, err)
	gen.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything)
}
