package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/dripwire/dripwire-backend/pkg/db/types"
	"github.com/dripwire/dripwire-backend/pkg/enums"
)

// OngoingSequence is the per-(sequence, subscriber) progress record and the
// engine's unit of contention. Workers claim it with a conditional update
// before touching it; the claim expires so crashed workers don't wedge a
// record forever.
type OngoingSequence struct {
	ID         uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DomainID   uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_ongoing_identity,priority:1"`
	SequenceID uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_ongoing_identity,priority:2"`
	UserID     uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_ongoing_identity,priority:3"`
	State      enums.SequenceState `gorm:"type:sequence_state;not null;default:'active'"`
	// NextEmailScheduledAt only moves forward; the engine never schedules
	// into the past on write.
	NextEmailScheduledAt time.Time         `gorm:"type:timestamptz;not null;index"`
	RetryCount           int               `gorm:"not null;default:0"`
	SentStepIDs          dbtypes.StepIDSet `gorm:"column:sent_step_ids;type:jsonb;not null;default:'[]'"`
	ClaimedBy            *string           `gorm:"type:text"`
	ClaimExpiresAt       *time.Time        `gorm:"type:timestamptz"`
	CreatedAt            time.Time         `gorm:"type:timestamptz;default:now()"`
	UpdatedAt            time.Time         `gorm:"type:timestamptz;default:now()"`
}
