package subscribers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dripwire/dripwire-backend/pkg/db/models"
)

// ErrNotFound is returned when a subscriber id or token does not resolve.
var ErrNotFound = errors.New("subscriber not found")

// Repository exposes the engine's view of subscribers.
type Repository interface {
	Get(ctx context.Context, domainID, userID uuid.UUID) (*models.Subscriber, error)
	// Unsubscribe flips the subscription flag for the holder of the token.
	// The boolean reports whether any row changed; callers must not leak
	// that difference to end users.
	Unsubscribe(ctx context.Context, token string, now time.Time) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a subscribers repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Get(ctx context.Context, domainID, userID uuid.UUID) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	err := r.db.WithContext(ctx).
		Where("id = ? AND domain_id = ?", userID, domainID).
		First(&subscriber).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &subscriber, nil
}

func (r *repositoryImpl) Unsubscribe(ctx context.Context, token string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Subscriber{}).
		Where("unsubscribe_token = ? AND subscribed = ?", token, true).
		Updates(map[string]any{"subscribed": false, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
