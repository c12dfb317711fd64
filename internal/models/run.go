package models

import "time"

// RunTrigger records what started a run
type RunTrigger string

const (
	RunTriggerSchedule    RunTrigger = "schedule"
	RunTriggerManual      RunTrigger = "manual"
	RunTriggerAnalyzeOnly RunTrigger = "analyze-only"
)

// RunSummary is the audit record of one orchestrator run
type RunSummary struct {
	ID              string     `json:"id" badgerhold:"key"`
	Trigger         RunTrigger `json:"trigger" badgerhold:"index"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at"`
	Queued          int        `json:"queued"`
	Processed       int        `json:"processed"`
	Failed          int        `json:"failed"`
	AnalysedSymbols []string   `json:"analysed_symbols"`
	SkippedSymbols  []string   `json:"skipped_symbols"`
	Errors          []string   `json:"errors"`
}

// Duration returns how long the run took
func (r *RunSummary) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AddError appends a failure message
func (r *RunSummary) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}
