package models

import (
	"time"

	"github.com/google/uuid"
)

// Sequence is an ordered list of email steps. The engine consumes it
// read-only; authoring lives in the campaign tooling.
type Sequence struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DomainID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name     string    `gorm:"type:text;not null"`
	// Broadcast marks one-shot sends that use the report's lockedAt/sentAt
	// claim instead of the stepped state machine.
	Broadcast bool           `gorm:"not null;default:false"`
	Steps     []SequenceStep `gorm:"foreignKey:SequenceID"`
	CreatedAt time.Time      `gorm:"type:timestamptz;default:now()"`
	UpdatedAt time.Time      `gorm:"type:timestamptz;default:now()"`
}

// SequenceStep is one email within a sequence. Step ids are stable across
// edits; ongoing records reference them.
type SequenceStep struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SequenceID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sequence_step_position,priority:1"`
	Position   int       `gorm:"not null;uniqueIndex:idx_sequence_step_position,priority:2"`
	// DelayMS is relative to the previous step, or to enrollment for the
	// first step.
	DelayMS     int64     `gorm:"column:delay_ms;not null;default:0"`
	TemplateRef string    `gorm:"type:text;not null"`
	Subject     string    `gorm:"type:text;not null"`
	Body        string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"type:timestamptz;default:now()"`
}
