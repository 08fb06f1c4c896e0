package fetch

import (
	"context"
	"fmt"

	"stockpix/internal/catalog"
	"stockpix/internal/logging"
	"stockpix/internal/stage"
)

// Stage adapts the scheduler to the pipeline contract. It downloads the
// primary image of every row in a batch; the batch file itself moves on
// unchanged.
type Stage struct {
	scheduler *Scheduler
}

// NewStage wraps a scheduler as a pipeline stage.
func NewStage(scheduler *Scheduler) *Stage {
	return &Stage{scheduler: scheduler}
}

func (s *Stage) Name() string { return "fetch" }

func (s *Stage) Prepare(context.Context) error { return nil }

func (s *Stage) Execute(ctx context.Context, batch stage.Batch) (stage.Result, error) {
	parsed, err := catalog.Read(batch.Path)
	if err != nil {
		return stage.Result{}, fmt.Errorf("read batch %s: %w", batch.Name, err)
	}
	if parsed.ImageColumn() == "" {
		return stage.Result{}, fmt.Errorf("batch %s has no image column", batch.Name)
	}

	summary, err := s.scheduler.Run(ctx, parsed.PrimaryURLs())
	if err != nil {
		return stage.Result{}, fmt.Errorf("fetch batch %s: %w", batch.Name, err)
	}
	s.scheduler.logger.Info("batch fetched",
		logging.String(logging.FieldBatch, batch.Name),
		logging.Int("rows", summary.Requested),
		logging.Int("downloaded", summary.Downloaded),
		logging.Int("failed", summary.Failed))
	return stage.Result{}, nil
}

func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.scheduler == nil {
		return stage.Unhealthy("fetch", "scheduler not configured")
	}
	return stage.Healthy("fetch")
}
