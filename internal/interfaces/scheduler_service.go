package interfaces

import "time"

// SchedulerStatus describes the daily job
type SchedulerStatus struct {
	Schedule  string
	Running   bool
	IsRunning bool
	LastRun   *time.Time
	NextRun   *time.Time
	LastError string
}

// SchedulerService runs a task once per day at a wall-clock time
type SchedulerService interface {
	// Start registers task at dailyTime ("HH:MM") and starts the cron loop
	Start(dailyTime string, task func() error) error

	// Stop halts the scheduler, waiting for a running task to finish
	Stop() error

	// RunNow invokes task immediately on the calling goroutine
	RunNow(task func() error) error

	// IsRunning returns true if the scheduler is active
	IsRunning() bool

	// Status returns the state of the daily job
	Status() SchedulerStatus
}
