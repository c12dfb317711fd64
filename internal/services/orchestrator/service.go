// -----------------------------------------------------------------------
// Orchestrator - Drives one run: scan -> render/extract -> notify ->
// record, then multi-day bundle analysis per symbol.
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/common"
	"github.com/ternarybob/gammawatch/internal/interfaces"
	"github.com/ternarybob/gammawatch/internal/models"
	"github.com/ternarybob/gammawatch/internal/services/scanner"
)

// minBundleDays is the analysis trigger: a symbol needs this many dated entries
const minBundleDays = 2

// ErrPersistence aborts a run when strict persistence is enabled
var ErrPersistence = errors.New("history could not be persisted")

// Service runs the snapshot pipeline. Items and symbols are processed
// strictly in sequence; the record store is never shared across goroutines.
type Service struct {
	config    *common.Config
	store     interfaces.RecordStore
	scanner   *scanner.Scanner
	renderer  interfaces.Renderer
	extractor interfaces.TextExtractor
	notifier  interfaces.Notifier
	analyzer  interfaces.Analyzer
	runs      interfaces.RunStorage // optional
	logger    arbor.ILogger
}

// NewService creates the orchestrator. runs may be nil to disable the run log.
func NewService(
	config *common.Config,
	store interfaces.RecordStore,
	scan *scanner.Scanner,
	renderer interfaces.Renderer,
	extractor interfaces.TextExtractor,
	notifier interfaces.Notifier,
	analyzer interfaces.Analyzer,
	runs interfaces.RunStorage,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:    config,
		store:     store,
		scanner:   scan,
		renderer:  renderer,
		extractor: extractor,
		notifier:  notifier,
		analyzer:  analyzer,
		runs:      runs,
		logger:    logger,
	}
}

// RunScheduledTask performs one full run and records its summary
func (s *Service) RunScheduledTask(ctx context.Context, trigger models.RunTrigger) (*models.RunSummary, error) {
	run, logger := s.beginRun(trigger)
	defer s.finishRun(ctx, run, logger)

	logger.Info().Str("trigger", string(trigger)).Str("dir", s.config.WatchDirectory).Msg("Run started")

	s.store.Load()

	items, err := s.scanner.Scan(s.config.WatchDirectory, s.config.Symbols, s.store)
	if err != nil {
		logger.Error().Err(err).Msg("Scan failed")
		run.AddError(err.Error())
		return run, err
	}
	run.Queued = len(items)

	if len(items) == 0 {
		logger.Info().Msg("No new files to process")
		return run, nil
	}

	logger.Info().Int("queued", len(items)).Msg("Processing work items")

	for i := range items {
		if err := ctx.Err(); err != nil {
			run.AddError(err.Error())
			return run, err
		}

		item := &items[i]
		if err := s.processWorkItem(ctx, item, logger); err != nil {
			run.Failed++
			run.AddError(fmt.Sprintf("%s: %v", filepath.Base(item.FilePath), err))
			if errors.Is(err, ErrPersistence) {
				return run, err
			}
			continue
		}
		run.Processed++
	}

	if err := s.analyzeAll(ctx, run, logger); err != nil {
		return run, err
	}
	return run, nil
}

// RunAnalysis loads the store and runs the bundle analysis step only
func (s *Service) RunAnalysis(ctx context.Context) (*models.RunSummary, error) {
	run, logger := s.beginRun(models.RunTriggerAnalyzeOnly)
	defer s.finishRun(ctx, run, logger)

	s.store.Load()
	return run, s.analyzeAll(ctx, run, logger)
}

// ProcessWorkItem handles one queued file. A non-nil error means the item was
// not recorded and will be picked up again by the next scan.
func (s *Service) ProcessWorkItem(ctx context.Context, item *models.WorkItem) error {
	return s.processWorkItem(ctx, item, s.logger)
}

func (s *Service) processWorkItem(ctx context.Context, item *models.WorkItem, logger arbor.ILogger) error {
	name := filepath.Base(item.FilePath)
	logger.Info().Str("file", name).Str("symbol", item.SymbolKey).Str("kind", item.Kind.String()).Msg("Processing file")

	switch item.Kind {
	case models.RecordKindChart:
		images, err := s.renderer.Render(ctx, item.FilePath, s.config.OutputDirectory)
		if err != nil && len(images) == 0 {
			logger.Warn().Err(err).Str("file", name).Msg("Render failed")
			return fmt.Errorf("render failed: %w", err)
		}
		if len(images) == 0 {
			logger.Warn().Str("file", name).Msg("No images produced, will retry next run")
			return fmt.Errorf("no images produced")
		}
		if err != nil {
			logger.Warn().Err(err).Int("images", len(images)).Str("file", name).Msg("Render partially failed")
		}

		caption := fmt.Sprintf("📊 %s gamma chart - %s", item.Symbol.Name, item.Date)
		if err := s.notifier.SendImages(ctx, item.Symbol.Channel, images, caption); err != nil {
			logger.Error().Err(err).Str("file", name).Str("channel", item.Symbol.Channel).Msg("Failed to send images")
			return fmt.Errorf("notify failed: %w", err)
		}

		return s.record(item, images, "", logger)

	case models.RecordKindText:
		text := s.extractor.Extract(ctx, item.FilePath)
		logger.Debug().Str("file", name).Int("length", len(text)).Msg("Text extracted")
		return s.record(item, nil, text, logger)
	}

	return fmt.Errorf("unknown record kind %q", item.Kind)
}

// record writes through to the store. A failed save keeps the in-memory
// state and continues unless strict persistence is configured.
func (s *Service) record(item *models.WorkItem, images []string, text string, logger arbor.ILogger) error {
	err := s.store.RecordProcessed(item.SymbolKey, item.FilePath, images, item.Date, item.Kind, text)
	if err == nil {
		return nil
	}
	if s.config.StrictPersistence {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	logger.Warn().Err(err).Str("symbol", item.SymbolKey).Msg("History save failed, continuing with in-memory state")
	return nil
}

func (s *Service) analyzeAll(ctx context.Context, run *models.RunSummary, logger arbor.ILogger) error {
	for _, sym := range s.config.Symbols {
		if err := ctx.Err(); err != nil {
			run.AddError(err.Error())
			return err
		}

		analysed, err := s.analyzeSymbol(ctx, sym, logger)
		switch {
		case err != nil:
			run.SkippedSymbols = append(run.SkippedSymbols, sym.Key())
			run.AddError(fmt.Sprintf("analysis %s: %v", sym.Key(), err))
		case analysed:
			run.AnalysedSymbols = append(run.AnalysedSymbols, sym.Key())
		default:
			run.SkippedSymbols = append(run.SkippedSymbols, sym.Key())
		}
	}
	return nil
}

// AnalyzeSymbol runs bundle analysis for one symbol. It returns false with a
// nil error when the symbol is skipped (too little history, empty bundle or
// no analysis channel).
func (s *Service) AnalyzeSymbol(ctx context.Context, sym models.SymbolConfig) (bool, error) {
	return s.analyzeSymbol(ctx, sym, s.logger)
}

func (s *Service) analyzeSymbol(ctx context.Context, sym models.SymbolConfig, logger arbor.ILogger) (bool, error) {
	key := sym.Key()
	days := s.config.Analysis.RecentDays
	if days < minBundleDays {
		days = minBundleDays
	}

	entries := s.store.GetRecentRecords(key, days)
	if len(entries) < minBundleDays {
		logger.Debug().Str("symbol", key).Int("days", len(entries)).Msg("Not enough history for analysis")
		return false, nil
	}

	bundle := s.buildBundle(sym, entries, logger)
	if len(bundle.ImagePaths) == 0 && len(bundle.Texts) == 0 {
		logger.Warn().Str("symbol", key).Msg("Nothing to analyze: no images or text in recent history")
		return false, nil
	}

	logger.Info().
		Str("symbol", key).
		Int("images", len(bundle.ImagePaths)).
		Int("texts", len(bundle.Texts)).
		Strs("dates", bundle.TimeLabels).
		Msg("Running analysis")

	start := time.Now()
	report, err := s.analyzer.Analyze(ctx, bundle)
	if err != nil {
		logger.Error().Err(err).Str("symbol", key).Msg("Analysis failed")
		return false, fmt.Errorf("analyze: %w", err)
	}
	logger.Info().Str("symbol", key).Int("length", len(report)).Dur("duration", time.Since(start)).Msg("Analysis complete")

	channel := s.analysisChannel(sym)
	if channel == "" {
		logger.Info().Str("symbol", key).Msg("No analysis channel configured, report not delivered")
		return false, nil
	}

	message := fmt.Sprintf("## 🤖 %s analysis report\n\n%s", sym.Name, report)
	if err := s.notifier.SendText(ctx, channel, message); err != nil {
		logger.Error().Err(err).Str("symbol", key).Str("channel", channel).Msg("Failed to send analysis")
		return false, fmt.Errorf("notify: %w", err)
	}

	return true, nil
}

// buildBundle concatenates entries oldest to newest, dropping image paths
// that are missing on disk or already in the bundle.
func (s *Service) buildBundle(sym models.SymbolConfig, entries []*models.DatedEntry, logger arbor.ILogger) *interfaces.AnalysisRequest {
	bundle := &interfaces.AnalysisRequest{
		Symbol:     interfaces.SymbolDescriptor{Name: sym.Name, Code: sym.DisplayCode()},
		ImagePaths: []string{},
		TimeLabels: make([]string, 0, len(entries)),
		Texts:      []interfaces.DatedText{},
		Prompt:     s.config.Analysis.Prompt,
	}

	seen := make(map[string]bool)
	for _, entry := range entries {
		bundle.TimeLabels = append(bundle.TimeLabels, entry.Date)

		if entry.HasChart() {
			for _, path := range entry.Chart.ImagePaths {
				if seen[path] {
					logger.Debug().Str("symbol", sym.Key()).Str("image", path).Msg("Dropping duplicate image from bundle")
					continue
				}
				seen[path] = true
				if _, err := os.Stat(path); err != nil {
					logger.Warn().Str("symbol", sym.Key()).Str("image", path).Msg("Image missing on disk, dropping from bundle")
					continue
				}
				bundle.ImagePaths = append(bundle.ImagePaths, path)
			}
		}

		if entry.HasText() {
			bundle.Texts = append(bundle.Texts, interfaces.DatedText{Date: entry.Date, Data: entry.Text.Data})
		}
	}
	return bundle
}

// analysisChannel resolves symbol override -> global channel -> none
func (s *Service) analysisChannel(sym models.SymbolConfig) string {
	if sym.AnalysisChannel != "" {
		return sym.AnalysisChannel
	}
	return s.config.Analysis.Channel
}

func (s *Service) beginRun(trigger models.RunTrigger) (*models.RunSummary, arbor.ILogger) {
	run := &models.RunSummary{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	return run, s.logger.WithCorrelationId(run.ID)
}

func (s *Service) finishRun(ctx context.Context, run *models.RunSummary, logger arbor.ILogger) {
	run.FinishedAt = time.Now()

	logger.Info().
		Int("queued", run.Queued).
		Int("processed", run.Processed).
		Int("failed", run.Failed).
		Strs("analysed", run.AnalysedSymbols).
		Dur("duration", run.Duration()).
		Msg("Run finished")

	if s.runs == nil {
		return
	}
	// The run log must still be written when ctx was cancelled mid-run
	if err := s.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to save run summary")
	}
}
