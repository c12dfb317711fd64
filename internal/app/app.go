package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/common"
	"github.com/ternarybob/gammawatch/internal/history"
	"github.com/ternarybob/gammawatch/internal/interfaces"
	"github.com/ternarybob/gammawatch/internal/models"
	"github.com/ternarybob/gammawatch/internal/services/classifier"
	"github.com/ternarybob/gammawatch/internal/services/extractor"
	"github.com/ternarybob/gammawatch/internal/services/llm"
	"github.com/ternarybob/gammawatch/internal/services/notifier"
	"github.com/ternarybob/gammawatch/internal/services/orchestrator"
	"github.com/ternarybob/gammawatch/internal/services/renderer"
	"github.com/ternarybob/gammawatch/internal/services/scanner"
	"github.com/ternarybob/gammawatch/internal/services/scheduler"
	"github.com/ternarybob/gammawatch/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config   *common.Config
	Logger   arbor.ILogger
	Location *time.Location

	ctx       context.Context
	cancelCtx context.CancelFunc

	// State
	History    *history.Store
	RunStorage interfaces.RunStorage // nil when the run log is disabled

	// Pipeline stages
	Scanner   *scanner.Scanner
	Renderer  *renderer.Service
	Extractor *extractor.Service
	Notifier  *notifier.Service
	Analyzer  *llm.Service
	Providers *llm.ProviderFactory

	Orchestrator     *orchestrator.Service
	SchedulerService interfaces.SchedulerService
}

// New wires every component from configuration. The configuration must
// already be validated.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		Location:  loc,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := app.initStorage(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.initServices()

	logger.Info().
		Str("timezone", loc.String()).
		Bool("run_log", app.RunStorage != nil).
		Int("channels", len(app.Notifier.Channels())).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the history file and the optional run log
func (a *App) initStorage() error {
	a.History = history.NewStore(a.Config.HistoryFile, a.Logger)

	runs, err := storage.NewRunStorage(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.RunStorage = runs
	return nil
}

func (a *App) initServices() {
	cls := classifier.NewClassifier(a.Config.Scan.ChartMarker, a.Config.Scan.TextMarker)
	clock := func() time.Time { return time.Now().In(a.Location) }
	a.Scanner = scanner.NewScanner(cls, a.Config.Scan.Extension, clock, a.Logger)

	opts := renderer.OptionsFromConfig(&a.Config.Renderer)
	a.Renderer = renderer.NewService(opts, a.Logger)
	a.Extractor = extractor.NewService(a.Logger)
	a.Notifier = notifier.NewService(a.Config, a.Logger)
	a.Analyzer, a.Providers = llm.NewAnalyzer(a.Config, a.Logger)

	a.Orchestrator = orchestrator.NewService(
		a.Config,
		a.History,
		a.Scanner,
		a.Renderer,
		a.Extractor,
		a.Notifier,
		a.Analyzer,
		a.RunStorage,
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(a.Location, a.Logger)
}

// Start registers the daily run with the scheduler
func (a *App) Start() error {
	return a.SchedulerService.Start(a.Config.ScheduleTime, func() error {
		_, err := a.Orchestrator.RunScheduledTask(a.ctx, models.RunTriggerSchedule)
		return err
	})
}

// RunNow performs one full run on the calling goroutine. Runs never overlap
// with a scheduled run.
func (a *App) RunNow(ctx context.Context) (*models.RunSummary, error) {
	var summary *models.RunSummary
	err := a.SchedulerService.RunNow(func() error {
		var runErr error
		summary, runErr = a.Orchestrator.RunScheduledTask(ctx, models.RunTriggerManual)
		return runErr
	})
	return summary, err
}

// Analyze runs the bundle analysis for every symbol without scanning
func (a *App) Analyze(ctx context.Context) (*models.RunSummary, error) {
	var summary *models.RunSummary
	err := a.SchedulerService.RunNow(func() error {
		var runErr error
		summary, runErr = a.Orchestrator.RunAnalysis(ctx)
		return runErr
	})
	return summary, err
}

// Close stops the scheduler, cancels an in-flight run and closes storage
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.Providers != nil {
		if err := a.Providers.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM providers")
		}
	}

	if a.RunStorage != nil {
		if err := a.RunStorage.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		a.Logger.Debug().Msg("Run log closed")
	}

	return nil
}
