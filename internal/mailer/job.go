package mailer

import (
	"context"
	"fmt"

	"github.com/dripwire/dripwire-backend/internal/worker"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

const defaultDrainBatch = 100

// NewDrainJob wraps the mail request service in a worker job.
func NewDrainJob(service RequestService, logg *logger.Logger, batch int) (worker.Job, error) {
	if service == nil {
		return nil, fmt.Errorf("mail request service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if batch <= 0 {
		batch = defaultDrainBatch
	}
	return &drainJob{service: service, logg: logg, batch: batch}, nil
}

type drainJob struct {
	service RequestService
	logg    *logger.Logger
	batch   int
}

func (j *drainJob) Name() string { return "mail-request-drain" }

func (j *drainJob) Run(ctx context.Context) error {
	attempted, err := j.service.ProcessPending(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("mail request drain: %w", err)
	}
	if attempted > 0 {
		j.logg.Info(j.logg.WithField(ctx, "attempted", attempted), "mail request drain complete")
	}
	return nil
}
