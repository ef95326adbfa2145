package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dripwire/dripwire-backend/pkg/db/models"
	"github.com/dripwire/dripwire-backend/pkg/enums"
)

// Repository is the append-only email event log. Rows are never updated or
// deleted outside the retention job.
type Repository interface {
	Append(ctx context.Context, event *models.EmailEvent) error
	CountBouncesSince(ctx context.Context, domainID, userID, sequenceID uuid.UUID, since time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an email event repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Append(ctx context.Context, event *models.EmailEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repositoryImpl) CountBouncesSince(ctx context.Context, domainID, userID, sequenceID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.EmailEvent{}).
		Where("domain_id = ? AND user_id = ? AND sequence_id = ? AND action = ? AND created_at >= ?",
			domainID, userID, sequenceID, enums.EmailActionBounce, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repositoryImpl) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	conn := tx
	if conn == nil {
		conn = r.db
	}
	result := conn.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.EmailEvent{})
	return result.RowsAffected, result.Error
}
