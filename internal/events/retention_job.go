package events

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dripwire/dripwire-backend/internal/worker"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

const defaultRetention = 90 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RetentionJobParams configure the email event retention job.
type RetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository Repository
	Retention  time.Duration
}

// NewRetentionJob builds a job that prunes old email events. The bounce
// breaker only looks at a recent window, so rows beyond the retention period
// carry no decision weight.
func NewRetentionJob(params RetentionJobParams) (worker.Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("events repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	return &retentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type retentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      Repository
	retention time.Duration
	now       func() time.Time
}

func (j *retentionJob) Name() string { return "email-event-retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteOlderThan(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("email event retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "email event retention complete")
	return nil
}
