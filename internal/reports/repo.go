package reports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dripwire/dripwire-backend/pkg/db"
	"github.com/dripwire/dripwire-backend/pkg/db/models"
	"github.com/dripwire/dripwire-backend/pkg/enums"
)

// ErrNotFound is returned when no report exists for the sequence.
var ErrNotFound = errors.New("sequence report not found")

// Repository owns sequence reports and their bucket entries.
type Repository interface {
	// Ensure returns the report row for the sequence, creating it on first
	// touch. Concurrent creators converge on the same row.
	Ensure(ctx context.Context, domainID, sequenceID uuid.UUID) (*models.SequenceReport, error)
	Get(ctx context.Context, domainID, sequenceID uuid.UUID) (*models.SequenceReport, error)

	// PlaceUser puts the user in a bucket, moving it if it was already in
	// another. A user occupies at most one bucket per report.
	PlaceUser(ctx context.Context, reportID, userID uuid.UUID, bucket enums.ReportBucket, now time.Time) error

	// ClaimBroadcastLock wins at most once per report: only the first caller
	// ever gets true.
	ClaimBroadcastLock(ctx context.Context, reportID uuid.UUID, now time.Time) (bool, error)
	MarkBroadcastSent(ctx context.Context, reportID uuid.UUID, now time.Time) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a reports repository bound to the provided database.
func NewRepository(gdb *gorm.DB) Repository {
	return &repositoryImpl{db: gdb}
}

func (r *repositoryImpl) Ensure(ctx context.Context, domainID, sequenceID uuid.UUID) (*models.SequenceReport, error) {
	report := &models.SequenceReport{
		ID:         uuid.New(),
		DomainID:   domainID,
		SequenceID: sequenceID,
	}
	err := r.db.WithContext(ctx).Create(report).Error
	if err != nil && !db.IsUniqueViolation(err, "") {
		return nil, err
	}
	return r.Get(ctx, domainID, sequenceID)
}

func (r *repositoryImpl) Get(ctx context.Context, domainID, sequenceID uuid.UUID) (*models.SequenceReport, error) {
	var report models.SequenceReport
	err := r.db.WithContext(ctx).
		Preload("Entries").
		Where("domain_id = ? AND sequence_id = ?", domainID, sequenceID).
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

func (r *repositoryImpl) PlaceUser(ctx context.Context, reportID, userID uuid.UUID, bucket enums.ReportBucket, now time.Time) error {
	entry := &models.SequenceReportEntry{
		ID:       uuid.New(),
		ReportID: reportID,
		UserID:   userID,
		Bucket:   bucket,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "report_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"bucket": bucket, "updated_at": now}),
		}).
		Create(entry).Error
}

func (r *repositoryImpl) ClaimBroadcastLock(ctx context.Context, reportID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SequenceReport{}).
		Where("id = ? AND broadcast_locked_at IS NULL", reportID).
		Updates(map[string]any{"broadcast_locked_at": now, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) MarkBroadcastSent(ctx context.Context, reportID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.SequenceReport{}).
		Where("id = ?", reportID).
		Updates(map[string]any{"broadcast_sent_at": now, "updated_at": now}).Error
}
