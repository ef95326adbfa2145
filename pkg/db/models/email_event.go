package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/pkg/enums"
)

// EmailEvent is one row in the append-only engagement log. Repeated opens and
// clicks produce repeated rows; nothing deduplicates them.
type EmailEvent struct {
	ID           uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DomainID     uuid.UUID         `gorm:"type:uuid;not null;index"`
	SequenceID   uuid.UUID         `gorm:"type:uuid;not null;index:idx_email_events_lookup,priority:1"`
	UserID       uuid.UUID         `gorm:"type:uuid;not null;index:idx_email_events_lookup,priority:2"`
	StepID       uuid.UUID         `gorm:"type:uuid;not null"`
	Action       enums.EmailAction `gorm:"type:email_action;not null"`
	Link         *string           `gorm:"type:text"`
	LinkIndex    *int              `gorm:"column:link_index"`
	BounceType   *enums.BounceType `gorm:"type:bounce_type"`
	BounceReason *string           `gorm:"type:text"`
	CreatedAt    time.Time         `gorm:"type:timestamptz;default:now();index"`
}
