package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/common"
	"github.com/ternarybob/gammawatch/internal/interfaces"
)

// Service implements SchedulerService with a single daily cron entry
type Service struct {
	cron     *cron.Cron
	location *time.Location
	logger   arbor.ILogger
	mu       sync.Mutex // Protects the fields below
	globalMu sync.Mutex // Serializes task execution
	running  bool
	schedule string
	cronID   cron.EntryID
	busy     bool
	lastRun  *time.Time
	lastErr  string
}

// NewService creates a scheduler firing in loc (nil = local time)
func NewService(loc *time.Location, logger arbor.ILogger) interfaces.SchedulerService {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		cron:     cron.New(cron.WithLocation(loc)),
		location: loc,
		logger:   logger,
	}
}

// Start registers task at dailyTime ("HH:MM") and starts the cron loop
func (s *Service) Start(dailyTime string, task func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	spec, err := common.DailyCronSpec(dailyTime)
	if err != nil {
		return err
	}

	id, err := s.cron.AddFunc(spec, func() {
		_ = s.executeJob(task)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cronID = id
	s.schedule = dailyTime
	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("time", dailyTime).
		Str("cron_expr", spec).
		Str("timezone", s.location.String()).
		Str("next_run", s.cron.Entry(id).Next.Format(time.RFC3339)).
		Msg("Scheduler started")

	return nil
}

// Stop halts the scheduler and waits for a running task to finish
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// RunNow runs task immediately on the calling goroutine
func (s *Service) RunNow(task func() error) error {
	return s.executeJob(task)
}

// IsRunning returns true if the cron loop is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the state of the daily job
func (s *Service) Status() interfaces.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := interfaces.SchedulerStatus{
		Schedule:  s.schedule,
		Running:   s.running,
		IsRunning: s.busy,
		LastRun:   s.lastRun,
		LastError: s.lastErr,
	}
	if s.running {
		if next := s.cron.Entry(s.cronID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

// executeJob wraps task execution with mutex, panic recovery, and status tracking
func (s *Service) executeJob(task func() error) (err error) {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	start := time.Now()
	s.setBusy(true)

	defer func() {
		if r := recover(); r != nil {
			crashFile := common.WriteCrashFile(r, common.GetStackTrace())
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("crash_file", crashFile).
				Msg("PANIC RECOVERED in scheduled run")
			err = fmt.Errorf("panic: %v", r)
		}
		s.finish(start, err)
	}()

	s.logger.Info().Msg("🚀 Run started")
	return task()
}

func (s *Service) setBusy(busy bool) {
	s.mu.Lock()
	s.busy = busy
	s.mu.Unlock()
}

func (s *Service) finish(start time.Time, err error) {
	completed := time.Now()

	s.mu.Lock()
	s.busy = false
	s.lastRun = &completed
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Dur("duration", completed.Sub(start)).Msg("❌ Run failed")
		return
	}
	s.logger.Info().Dur("duration", completed.Sub(start)).Msg("✅ Run completed")
}
