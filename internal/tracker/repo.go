package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dripwire/dripwire-backend/pkg/db"
	"github.com/dripwire/dripwire-backend/pkg/db/models"
	dbtypes "github.com/dripwire/dripwire-backend/pkg/db/types"
	"github.com/dripwire/dripwire-backend/pkg/enums"
)

// ErrNotFound is returned when an ongoing sequence id does not resolve.
var ErrNotFound = errors.New("ongoing sequence not found")

// Repository owns the ongoing sequence records. All mutations that race with
// the worker sweep go through conditional updates keyed on the claim columns.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*models.OngoingSequence, error)
	Find(ctx context.Context, domainID, sequenceID, userID uuid.UUID) (*models.OngoingSequence, error)

	// Enroll inserts a new active record. When a record for the same
	// (domain, sequence, user) already exists the insert is a no-op and
	// created is false.
	Enroll(ctx context.Context, record *models.OngoingSequence) (created bool, err error)

	// Reactivate resets a terminal record back to active for re-enrollment
	// rules. Active records are left untouched.
	Reactivate(ctx context.Context, id uuid.UUID, nextAt, now time.Time) (bool, error)

	// ListDue returns active records whose schedule has elapsed and that are
	// either unclaimed or whose claim has expired. Results are candidates
	// only; callers must still win Claim before processing.
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.OngoingSequence, error)

	// Claim attempts to take ownership of a record until now+ttl. It returns
	// false when another live claim holds the record or the record is no
	// longer active.
	Claim(ctx context.Context, id uuid.UUID, owner string, now time.Time, ttl time.Duration) (bool, error)

	// Release drops a claim held by owner. Releasing a claim that was
	// already lost or expired is a no-op.
	Release(ctx context.Context, id uuid.UUID, owner string) error

	// RecordSent appends the delivered step, clears the retry counter and
	// advances the schedule. The schedule never moves backwards.
	RecordSent(ctx context.Context, record *models.OngoingSequence, stepID uuid.UUID, nextAt, now time.Time) error

	// RecordRetry bumps the retry counter and pushes the schedule out.
	RecordRetry(ctx context.Context, record *models.OngoingSequence, nextAt, now time.Time) error

	// MarkTerminal moves the record into a terminal state and drops the claim.
	MarkTerminal(ctx context.Context, id uuid.UUID, state enums.SequenceState, now time.Time) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an ongoing sequence repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Get(ctx context.Context, id uuid.UUID) (*models.OngoingSequence, error) {
	var record models.OngoingSequence
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *repositoryImpl) Find(ctx context.Context, domainID, sequenceID, userID uuid.UUID) (*models.OngoingSequence, error) {
	var record models.OngoingSequence
	err := r.db.WithContext(ctx).
		Where("domain_id = ? AND sequence_id = ? AND user_id = ?", domainID, sequenceID, userID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *repositoryImpl) Enroll(ctx context.Context, record *models.OngoingSequence) (bool, error) {
	if record.SentStepIDs == nil {
		record.SentStepIDs = dbtypes.StepIDSet{}
	}
	err := r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repositoryImpl) Reactivate(ctx context.Context, id uuid.UUID, nextAt, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OngoingSequence{}).
		Where("id = ? AND state IN ?", id, []enums.SequenceState{
			enums.SequenceStateComplete,
			enums.SequenceStateFailed,
		}).
		Updates(map[string]any{
			"state":                   enums.SequenceStateActive,
			"next_email_scheduled_at": nextAt,
			"retry_count":             0,
			"sent_step_ids":           dbtypes.StepIDSet{},
			"claimed_by":              nil,
			"claim_expires_at":        nil,
			"updated_at":              now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]models.OngoingSequence, error) {
	var records []models.OngoingSequence
	query := r.db.WithContext(ctx).
		Where("state = ? AND next_email_scheduled_at <= ?", enums.SequenceStateActive, now).
		Where("claimed_by IS NULL OR claim_expires_at < ?", now).
		Order("next_email_scheduled_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repositoryImpl) Claim(ctx context.Context, id uuid.UUID, owner string, now time.Time, ttl time.Duration) (bool, error) {
	expiresAt := now.Add(ttl)
	result := r.db.WithContext(ctx).
		Model(&models.OngoingSequence{}).
		Where("id = ? AND state = ?", id, enums.SequenceStateActive).
		Where("claimed_by IS NULL OR claim_expires_at < ?", now).
		Updates(map[string]any{
			"claimed_by":       owner,
			"claim_expires_at": expiresAt,
			"updated_at":       now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) Release(ctx context.Context, id uuid.UUID, owner string) error {
	return r.db.WithContext(ctx).
		Model(&models.OngoingSequence{}).
		Where("id = ? AND claimed_by = ?", id, owner).
		Updates(map[string]any{
			"claimed_by":       nil,
			"claim_expires_at": nil,
		}).Error
}

func (r *repositoryImpl) RecordSent(ctx context.Context, record *models.OngoingSequence, stepID uuid.UUID, nextAt, now time.Time) error {
	if nextAt.Before(record.NextEmailScheduledAt) {
		nextAt = record.NextEmailScheduledAt
	}
	sent := record.SentStepIDs.Add(stepID)
	err := r.db.WithContext(ctx).
		Model(&models.OngoingSequence{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"sent_step_ids":           sent,
			"retry_count":             0,
			"next_email_scheduled_at": nextAt,
			"updated_at":              now,
		}).Error
	if err != nil {
		return err
	}
	record.SentStepIDs = sent
	record.RetryCount = 0
	record.NextEmailScheduledAt = nextAt
	return nil
}

func (r *repositoryImpl) RecordRetry(ctx context.Context, record *models.OngoingSequence, nextAt, now time.Time) error {
	if nextAt.Before(record.NextEmailScheduledAt) {
		nextAt = record.NextEmailScheduledAt
	}
	err := r.db.WithContext(ctx).
		Model(&models.OngoingSequence{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"retry_count":             gorm.Expr("retry_count + 1"),
			"next_email_scheduled_at": nextAt,
			"updated_at":              now,
		}).Error
	if err != nil {
		return err
	}
	record.RetryCount++
	record.NextEmailScheduledAt = nextAt
	return nil
}

func (r *repositoryImpl) MarkTerminal(ctx context.Context, id uuid.UUID, state enums.SequenceState, now time.Time) error {
	if !state.IsTerminal() {
		return errors.New("tracker: state is not terminal")
	}
	return r.db.WithContext(ctx).
		Model(&models.OngoingSequence{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":            state,
			"claimed_by":       nil,
			"claim_expires_at": nil,
			"updated_at":       now,
		}).Error
}
