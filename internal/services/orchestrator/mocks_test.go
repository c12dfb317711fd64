package orchestrator

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/ternarybob/gammawatch/internal/interfaces"
	"github.com/ternarybob/gammawatch/internal/models"
)

// MockRenderer is a mock implementation of Renderer
type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, htmlPath string, outputDir string) ([]string, error) {
	args := m.Called(ctx, htmlPath, outputDir)
	if paths, ok := args.Get(0).([]string); ok {
		return paths, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockExtractor is a mock implementation of TextExtractor
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, htmlPath string) string {
	args := m.Called(ctx, htmlPath)
	return args.String(0)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendImages(ctx context.Context, channel string, imagePaths []string, caption string) error {
	args := m.Called(ctx, channel, imagePaths, caption)
	return args.Error(0)
}

func (m *MockNotifier) SendText(ctx context.Context, channel string, text string) error {
	args := m.Called(ctx, channel, text)
	return args.Error(0)
}

// MockAnalyzer is a mock implementation of Analyzer
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, request *interfaces.AnalysisRequest) (string, error) {
	args := m.Called(ctx, request)
	return args.String(0), args.Error(1)
}

// MockRunStorage is a mock implementation of RunStorage
type MockRunStorage struct {
	mock.Mock
}

func (m *MockRunStorage) SaveRun(ctx context.Context, run *models.RunSummary) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunStorage) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	args := m.Called(ctx, id)
	if run, ok := args.Get(0).(*models.RunSummary); ok {
		return run, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRunStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error) {
	args := m.Called(ctx, limit)
	if runs, ok := args.Get(0).([]*models.RunSummary); ok {
		return runs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRunStorage) Close() error {
	return m.Called().Error(0)
}
