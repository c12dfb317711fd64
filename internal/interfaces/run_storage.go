package interfaces

import (
	"context"

	"github.com/ternarybob/gammawatch/internal/models"
)

// RunStorage persists the audit trail of orchestrator runs
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.RunSummary) error
	GetRun(ctx context.Context, id string) (*models.RunSummary, error)
	// ListRuns returns the most recent runs first; limit <= 0 returns all
	ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error)
	Close() error
}
