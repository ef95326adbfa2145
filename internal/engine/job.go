package engine

import (
	"context"
	"fmt"

	"github.com/dripwire/dripwire-backend/internal/worker"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

// NewSweepJob wraps the engine in a worker job that processes one due batch
// per cycle.
func NewSweepJob(service Service, logg *logger.Logger) (worker.Job, error) {
	if service == nil {
		return nil, fmt.Errorf("engine service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &sweepJob{service: service, logg: logg}, nil
}

type sweepJob struct {
	service Service
	logg    *logger.Logger
}

func (j *sweepJob) Name() string { return "sequence-sweep" }

func (j *sweepJob) Run(ctx context.Context) error {
	stats, err := j.service.ProcessDue(ctx)
	if err != nil {
		return fmt.Errorf("sequence sweep: %w", err)
	}
	if stats.Scanned == 0 {
		return nil
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":   stats.Scanned,
		"claimed":   stats.Claimed,
		"sent":      stats.Sent,
		"retried":   stats.Retried,
		"completed": stats.Completed,
		"failed":    stats.Failed,
	})
	j.logg.Info(logCtx, "sequence sweep complete")
	return nil
}
