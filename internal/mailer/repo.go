package mailer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dripwire/dripwire-backend/pkg/db/models"
	"github.com/dripwire/dripwire-backend/pkg/enums"
)

// RequestRepository stores ad-hoc mail requests.
type RequestRepository interface {
	Create(ctx context.Context, request *models.MailRequest) error
	ListPending(ctx context.Context, limit int) ([]models.MailRequest, error)
	MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) error
}

type requestRepositoryImpl struct {
	db *gorm.DB
}

// NewRequestRepository returns a mail request repository bound to the provided database.
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepositoryImpl{db: db}
}

func (r *requestRepositoryImpl) Create(ctx context.Context, request *models.MailRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *requestRepositoryImpl) ListPending(ctx context.Context, limit int) ([]models.MailRequest, error) {
	var requests []models.MailRequest
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.MailRequestPending).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepositoryImpl) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.MailRequest{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": enums.MailRequestSent, "updated_at": now}).Error
}

func (r *requestRepositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.MailRequest{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.MailRequestFailed,
			"message":    reason,
			"updated_at": now,
		}).Error
}
