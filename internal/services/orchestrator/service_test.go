package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/common"
	"github.com/ternarybob/gammawatch/internal/history"
	"github.com/ternarybob/gammawatch/internal/interfaces"
	"github.com/ternarybob/gammawatch/internal/models"
	"github.com/ternarybob/gammawatch/internal/services/classifier"
	"github.com/ternarybob/gammawatch/internal/services/scanner"
)

type fixture struct {
	t         *testing.T
	config    *common.Config
	store     *history.Store
	renderer  *MockRenderer
	extractor *MockExtractor
	notifier  *MockNotifier
	analyzer  *MockAnalyzer
	runs      *MockRunStorage
	service   *Service
}

func newFixture(t *testing.T, today string) *fixture {
	t.Helper()
	logger := arbor.NewLogger()

	config := common.NewDefaultConfig()
	config.WatchDirectory = t.TempDir()
	config.OutputDirectory = t.TempDir()
	config.HistoryFile = filepath.Join(t.TempDir(), "history.json")
	config.Analysis.Channel = "reports"
	config.Symbols = []models.SymbolConfig{
		{Name: "ABC", Code: "ABC", Keywords: []string{"abc"}, Channel: "abc-images"},
		{Name: "SPX", Keywords: []string{"spx"}, Channel: "spx-images"},
	}

	clock := func() time.Time {
		d, _ := time.Parse("2006-01-02", today)
		return d.Add(23 * time.Hour)
	}

	f := &fixture{
		t:         t,
		config:    config,
		store:     history.NewStore(config.HistoryFile, logger),
		renderer:  new(MockRenderer),
		extractor: new(MockExtractor),
		notifier:  new(MockNotifier),
		analyzer:  new(MockAnalyzer),
		runs:      new(MockRunStorage),
	}
	scan := scanner.NewScanner(classifier.NewClassifier("", ""), ".html", clock, logger)
	f.service = NewService(config, f.store, scan, f.renderer, f.extractor, f.notifier, f.analyzer, f.runs, logger)
	f.runs.On("SaveRun", mock.Anything, mock.AnythingOfType("*models.RunSummary")).Return(nil).Maybe()
	return f
}

// input creates a snapshot file in the watch directory
func (f *fixture) input(name string) string {
	path := filepath.Join(f.config.WatchDirectory, name)
	require.NoError(f.t, os.WriteFile(path, []byte("<html></html>"), 0644))
	return path
}

// image creates a rendered image in the output directory
func (f *fixture) image(name string) string {
	path := filepath.Join(f.config.OutputDirectory, name)
	require.NoError(f.t, os.WriteFile(path, []byte("png"), 0644))
	return path
}

// seed records a chart entry and persists it so the run's Load sees it
func (f *fixture) seed(symbol, date string, images ...string) {
	require.NoError(f.t, f.store.RecordProcessed(symbol, "/old/"+date+"_gamma.html", images, date, models.RecordKindChart, ""))
}

func TestRunScheduledTask_FirstDayScenario(t *testing.T) {
	f := newFixture(t, "2025-06-01")
	file := f.input("2025-06-01_0930_ABC_gamma.html")
	img := f.image("2025-06-01_abc_1.png")

	f.renderer.On("Render", mock.Anything, file, f.config.OutputDirectory).Return([]string{img}, nil).Once()
	f.notifier.On("SendImages", mock.Anything, "abc-images", []string{img}, mock.AnythingOfType("string")).Return(nil).Once()

	run, err := f.service.RunScheduledTask(context.Background(), models.RunTriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Queued)
	assert.Equal(t, 1, run.Processed)
	assert.True(t, f.store.IsProcessed("abc", file, models.RecordKindChart))
	assert.Len(t, f.store.GetRecentRecords("abc", 5), 1)

	// One day of history never triggers analysis
	f.analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
	f.renderer.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
	f.runs.AssertCalled(t, "SaveRun", mock.Anything, run)
}

func TestRunScheduledTask_SecondDayChartOnlyTriggersAnalysis(t *testing.T) {
	f := newFixture(t, "2025-06-02")
	day1 := f.image("2025-06-01_abc_1.png")
	f.seed("abc", "2025-06-01", day1)

	file := f.input("2025-06-02_0930_ABC_gamma.html")
	day2 := f.image("2025-06-02_abc_1.png")

	f.renderer.On("Render", mock.Anything, file, f.config.OutputDirectory).Return([]string{day2}, nil).Once()
	f.notifier.On("SendImages", mock.Anything, "abc-images", []string{day2}, mock.Anything).Return(nil).Once()

	var captured *interfaces.AnalysisRequest
	f.analyzer.On("Analyze", mock.Anything, mock.AnythingOfType("*interfaces.AnalysisRequest")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*interfaces.AnalysisRequest) }).
		Return("bullish", nil).Once()
	f.notifier.On("SendText", mock.Anything, "reports", mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "bullish") && strings.Contains(text, "ABC")
	})).Return(nil).Once()

	run, err := f.service.RunScheduledTask(context.Background(), models.RunTriggerSchedule)
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, []string{day1, day2}, captured.ImagePaths)
	assert.Empty(t, captured.Texts)
	assert.Equal(t, []string{"2025-06-01", "2025-06-02"}, captured.TimeLabels)
	assert.Equal(t, "ABC", captured.Symbol.Name)
	assert.Equal(t, []string{"abc"}, run.AnalysedSymbols)
	assert.Equal(t, []string{"spx"}, run.SkippedSymbols)

	f.analyzer.AssertNumberOfCalls(t, "Analyze", 1)
	f.notifier.AssertExpectations(t)
}

func TestRunScheduledTask_EmptyQueueStops(t *testing.T) {
	f := newFixture(t, "2025-06-02")
	f.seed("abc", "2025-06-01", f.image("a.png"))
	f.seed("abc", "2025-06-02", f.image("b.png"))
	f.input("2025-06-01_0930_ABC_gamma.html") // stale

	run, err := f.service.RunScheduledTask(context.Background(), models.RunTriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Queued)

	f.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything)
	f.analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestRunScheduledTask_ItemFailureIsIsolated(t *testing.T) {
	f := newFixture(t, "2025-06-01")
	chart := f.input("2025-06-01_0930_ABC_gamma.html")
	text := f.input("2025-06-01_0930_SPX_tvcode.html")

	f.renderer.On("Render", mock.Anything, chart, mock.Anything).Return(nil, errors.New("chrome crashed")).Once()
	f.extractor.On("Extract", mock.Anything, text).Return("SPX: 5000").Once()

	run, err := f.service.RunScheduledTask(context.Background(), models.RunTriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 2, run.Queued)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 1, run.Failed)
	assert.Len(t, run.Errors, 1)

	assert.False(t, f.store.IsProcessed("abc", chart, models.RecordKindChart), "failed item must be retried next run")
	assert.True(t, f.store.IsProcessed("spx", text, models.RecordKindText))
	f.notifier.AssertNotCalled(t, "SendImages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessWorkItem_EmptyRenderIsNotRecorded(t *testing.T) {
	f := newFixture(t, "2025-06-01")
	file := f.input("2025-06-01_0930_ABC_gamma.html")
	item := &models.WorkItem{FilePath: file, Date: "2025-06-01", SymbolKey: "abc", Symbol: f.config.Symbols[0], Kind: models.RecordKindChart}

	f.renderer.On("Render", mock.Anything, file, mock.Anything).Return([]string{}, nil).Once()

	assert.Error(t, f.service.ProcessWorkItem(context.Background(), item))
	assert.False(t, f.store.IsProcessed("abc", file, models.RecordKindChart))
	f.notifier.AssertNotCalled(t, "SendImages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessWorkItem_NotifyFailureIsNotRecorded(t *testing.T) {
	f := newFixture(t, "2025-06-01")
	file := f.input("2025-06-01_0930_ABC_gamma.html")
	img := f.image("a.png")
	item := &models.WorkItem{FilePath: file, Date: "2025-06-01", SymbolKey: "abc", Symbol: f.config.Symbols[0], Kind: models.RecordKindChart}

	f.renderer.On("Render", mock.Anything, file, mock.Anything).Return([]string{img}, nil).Once()
	f.notifier.On("SendImages", mock.Anything, "abc-images", []string{img}, mock.Anything).Return(errors.New("503")).Once()

	assert.Error(t, f.service.ProcessWorkItem(context.Background(), item))
	assert.False(t, f.store.IsProcessed("abc", file, models.RecordKindChart))
}

func TestProcessWorkItem_TextSentinelIsRecorded(t *testing.T) {
	f := newFixture(t, "2025-06-01")
	file := f.input("2025-06-01_0930_ABC_tvcode.html")
	item := &models.WorkItem{FilePath: file, Date: "2025-06-01", SymbolKey: "abc", Symbol: f.config.Symbols[0], Kind: models.RecordKindText}

	f.extractor.On("Extract", mock.Anything, file).Return("extraction failed").Once()

	require.NoError(t, f.service.ProcessWorkItem(context.Background(), item))

	records := f.store.GetRecentRecords("abc", 1)
	require.Len(t, records, 1)
	assert.Equal(t, "extraction failed", records[0].Text.Data)
	f.notifier.AssertNotCalled(t, "SendImages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessWorkItem_PartialRenderIsRecorded(t *testing.T) {
	f := newFixture(t, "2025-06-01")
	file := f.input("2025-06-01_0930_ABC_gamma.html")
	img := f.image("a.png")
	item := &models.WorkItem{FilePath: file, Date: "2025-06-01", SymbolKey: "abc", Symbol: f.config.Symbols[0], Kind: models.RecordKindChart}

	f.renderer.On("Render", mock.Anything, file, mock.Anything).Return([]string{img}, errors.New("1 of 2 charts failed")).Once()
	f.notifier.On("SendImages", mock.Anything, "abc-images", []string{img}, mock.Anything).Return(nil).Once()

	require.NoError(t, f.service.ProcessWorkItem(context.Background(), item))
	assert.True(t, f.store.IsProcessed("abc", file, models.RecordKindChart))
}

func TestAnalyzeSymbol_BundleDeduplication(t *testing.T) {
	f := newFixture(t, "2025-06-02")
	shared := f.image("shared.png")
	f.seed("abc", "2025-06-01", shared)
	f.seed("abc", "2025-06-02", shared)
	require.NoError(t, f.store.RecordProcessed("abc", "/in/t.html", nil, "2025-06-02", models.RecordKindText, "ABC: 10"))

	f.analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(r *interfaces.AnalysisRequest) bool {
		return len(r.ImagePaths) == 1 && r.ImagePaths[0] == shared &&
			len(r.Texts) == 1 && r.Texts[0].Date == "2025-06-02" && r.Texts[0].Data == "ABC: 10"
	})).Return("report", nil).Once()
	f.notifier.On("SendText", mock.Anything, "reports", mock.Anything).Return(nil).Once()

	analysed, err := f.service.AnalyzeSymbol(context.Background(), f.config.Symbols[0])
	require.NoError(t, err)
	assert.True(t, analysed)
	f.analyzer.AssertExpectations(t)
}

func TestAnalyzeSymbol_EmptyTextEntriesAreBundled(t *testing.T) {
	f := newFixture(t, "2025-06-02")
	require.NoError(t, f.store.RecordProcessed("abc", "/in/t1.html", nil, "2025-06-01", models.RecordKindText, ""))
	require.NoError(t, f.store.RecordProcessed("abc", "/in/t2.html", nil, "2025-06-02", models.RecordKindText, "ABC: 10"))

	f.analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(r *interfaces.AnalysisRequest) bool {
		return len(r.Texts) == 2 && r.Texts[0].Data == "" && r.Texts[1].Data == "ABC: 10"
	})).Return("report", nil).Once()
	f.notifier.On("SendText", mock.Anything, "reports", mock.Anything).Return(nil).Once()

	analysed, err := f.service.AnalyzeSymbol(context.Background(), f.config.Symbols[0])
	require.NoError(t, err)
	assert.True(t, analysed)
	f.analyzer.AssertExpectations(t)
}

func TestAnalyzeSymbol_MissingImagesDropped(t *testing.T) {
	f := newFixture(t, "2025-06-02")
	f.seed("abc", "2025-06-01", filepath.Join(f.config.OutputDirectory, "gone.png"))
	kept := f.image("kept.png")
	f.seed("abc", "2025-06-02", kept)

	f.analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(r *interfaces.AnalysisRequest) bool {
		return len(r.ImagePaths) == 1 && r.ImagePaths[0] == kept
	})).Return("report", nil).Once()
	f.notifier.On("SendText", mock.Anything, "reports", mock.Anything).Return(nil).Once()

	analysed, err := f.service.AnalyzeSymbol(context.Background(), f.config.Symbols[0])
	require.NoError(t, err)
	assert.True(t, analysed)
}

func TestAnalyzeSymbol_EmptyBundleSkipped(t *testing.T) {
	f := newFixture(t, "2025-06-02")
	f.seed("abc", "2025-06-01", filepath.Join(f.config.OutputDirectory, "gone1.png"))
	f.seed("abc", "2025-06-02", filepath.Join(f.config.OutputDirectory, "gone2.png"))

	analysed, err := f.service.AnalyzeSymbol(context.Background(), f.config.Symbols[0])
	require.NoError(t, err)
	assert.False(t, analysed)
	f.analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestAnalyzeSymbol_ChannelResolution(t *testing.T) {
	tests := []struct {
		name     string
		global   string
		override string
		want     string
	}{
		{"symbol override wins", "reports", "abc-reports", "abc-reports"},
		{"global fallback", "reports", "", "reports"},
		{"no channel skips", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "2025-06-02")
			f.config.Analysis.Channel = tt.global
			sym := f.config.Symbols[0]
			sym.AnalysisChannel = tt.override

			f.seed("abc", "2025-06-01", f.image("a.png"))
			f.seed("abc", "2025-06-02", f.image("b.png"))

			f.analyzer.On("Analyze", mock.Anything, mock.Anything).Return("report", nil).Once()
			if tt.want != "" {
				f.notifier.On("SendText", mock.Anything, tt.want, mock.Anything).Return(nil).Once()
			}

			analysed, err := f.service.AnalyzeSymbol(context.Background(), sym)
			require.NoError(t, err)
			assert.Equal(t, tt.want != "", analysed)

			// The analyzer runs whenever two dated entries exist; only delivery depends on a channel
			f.analyzer.AssertExpectations(t)
			f.notifier.AssertExpectations(t)
			if tt.want == "" {
				f.notifier.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestRunAnalysis_FailureIsIsolatedPerSymbol(t *testing.T) {
	f := newFixture(t, "2025-06-02")
	f.seed("abc", "2025-06-01", f.image("abc1.png"))
	f.seed("abc", "2025-06-02", f.image("abc2.png"))
	f.seed("spx", "2025-06-01", f.image("spx1.png"))
	f.seed("spx", "2025-06-02", f.image("spx2.png"))

	f.analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(r *interfaces.AnalysisRequest) bool {
		return r.Symbol.Name == "ABC"
	})).Return("", errors.New("quota exceeded")).Once()
	f.analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(r *interfaces.AnalysisRequest) bool {
		return r.Symbol.Name == "SPX"
	})).Return("report", nil).Once()
	f.notifier.On("SendText", mock.Anything, "reports", mock.Anything).Return(nil).Once()

	run, err := f.service.RunAnalysis(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunTriggerAnalyzeOnly, run.Trigger)
	assert.Equal(t, []string{"spx"}, run.AnalysedSymbols)
	assert.Equal(t, []string{"abc"}, run.SkippedSymbols)
	assert.Len(t, run.Errors, 1)
	f.analyzer.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestRunScheduledTask_StrictPersistenceAborts(t *testing.T) {
	f := newFixture(t, "2025-06-01")

	// A directory in place of the history file makes every save fail
	blocked := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.Mkdir(blocked, 0755))
	logger := arbor.NewLogger()
	f.store = history.NewStore(blocked, logger)
	f.config.StrictPersistence = true
	clock := func() time.Time { return time.Date(2025, 6, 1, 23, 0, 0, 0, time.Local) }
	scan := scanner.NewScanner(classifier.NewClassifier("", ""), ".html", clock, logger)
	f.service = NewService(f.config, f.store, scan, f.renderer, f.extractor, f.notifier, f.analyzer, f.runs, logger)

	f.input("2025-06-01_0930_ABC_tvcode.html")
	f.input("2025-06-01_0930_SPX_tvcode.html")
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return("text")

	run, err := f.service.RunScheduledTask(context.Background(), models.RunTriggerManual)
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 1, run.Failed)
	f.extractor.AssertNumberOfCalls(t, "Extract", 1)
}

func TestRunScheduledTask_LenientPersistenceContinues(t *testing.T) {
	f := newFixture(t, "2025-06-01")

	blocked := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.Mkdir(blocked, 0755))
	logger := arbor.NewLogger()
	f.store = history.NewStore(blocked, logger)
	clock := func() time.Time { return time.Date(2025, 6, 1, 23, 0, 0, 0, time.Local) }
	scan := scanner.NewScanner(classifier.NewClassifier("", ""), ".html", clock, logger)
	f.service = NewService(f.config, f.store, scan, f.renderer, f.extractor, f.notifier, f.analyzer, f.runs, logger)

	text := f.input("2025-06-01_0930_ABC_tvcode.html")
	f.extractor.On("Extract", mock.Anything, text).Return("text").Once()

	run, err := f.service.RunScheduledTask(context.Background(), models.RunTriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)

	// In-memory state stays authoritative for the rest of the run
	assert.True(t, f.store.IsProcessed("abc", text, models.RecordKindText))
}

func TestRunScheduledTask_RunLogFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, "2025-06-01")
	f.runs = new(MockRunStorage)
	f.runs.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()
	f.service.runs = f.runs

	_, err := f.service.RunScheduledTask(context.Background(), models.RunTriggerManual)
	require.NoError(t, err)
	f.runs.AssertExpectations(t)
}

func TestRunScheduledTask_CancelledContext(t *testing.T) {
	f := newFixture(t, "2025-06-01")
	f.input("2025-06-01_0930_ABC_tvcode.html")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service.RunScheduledTask(ctx, models.RunTriggerManual)
	assert.ErrorIs(t, err, context.Canceled)
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}
