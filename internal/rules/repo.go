package rules

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dripwire/dripwire-backend/pkg/db/models"
	"github.com/dripwire/dripwire-backend/pkg/enums"
)

// Repository exposes read access to the rule store. Rules are authored
// outside the engine and never mutated here.
type Repository interface {
	ListByEvent(ctx context.Context, domainID uuid.UUID, eventType enums.TriggerEventType) ([]models.Rule, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a rules repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) ListByEvent(ctx context.Context, domainID uuid.UUID, eventType enums.TriggerEventType) ([]models.Rule, error) {
	var rules []models.Rule
	err := r.db.WithContext(ctx).
		Where("domain_id = ? AND event_type = ?", domainID, eventType).
		Order("created_at ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
