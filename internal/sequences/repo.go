package sequences

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dripwire/dripwire-backend/pkg/db/models"
	dbtypes "github.com/dripwire/dripwire-backend/pkg/db/types"
)

// ErrNotFound is returned when a sequence id does not resolve. Stale ongoing
// records reference sequences that may have been deleted upstream.
var ErrNotFound = errors.New("sequence not found")

// Repository exposes read access to sequence definitions. Step order and ids
// are stable; the engine may cache results freely.
type Repository interface {
	Get(ctx context.Context, domainID, sequenceID uuid.UUID) (*models.Sequence, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a sequences repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Get(ctx context.Context, domainID, sequenceID uuid.UUID) (*models.Sequence, error) {
	var sequence models.Sequence
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ? AND domain_id = ?", sequenceID, domainID).
		First(&sequence).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sequence, nil
}

// NextUnsentStep returns the lowest-ordered step whose id is not in sent, or
// nil when every step has been delivered.
func NextUnsentStep(sequence *models.Sequence, sent dbtypes.StepIDSet) *models.SequenceStep {
	if sequence == nil {
		return nil
	}
	for i := range sequence.Steps {
		if !sent.Contains(sequence.Steps[i].ID) {
			return &sequence.Steps[i]
		}
	}
	return nil
}

// StepByID resolves a step id inside the sequence, used by tracking callbacks.
func StepByID(sequence *models.Sequence, stepID uuid.UUID) *models.SequenceStep {
	if sequence == nil {
		return nil
	}
	for i := range sequence.Steps {
		if sequence.Steps[i].ID == stepID {
			return &sequence.Steps[i]
		}
	}
	return nil
}
