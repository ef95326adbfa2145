package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/pkg/enums"
)

// Rule binds a domain event type to a target sequence. Rules are authored by
// campaign tooling and are read-only to the engine.
type Rule struct {
	ID         uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DomainID   uuid.UUID              `gorm:"type:uuid;not null;index"`
	EventType  enums.TriggerEventType `gorm:"type:trigger_event_type;not null"`
	SequenceID uuid.UUID              `gorm:"type:uuid;not null"`
	// OffsetMS delays the first step relative to the triggering event,
	// used by date-based triggers. Zero means enroll due immediately.
	OffsetMS  int64           `gorm:"column:offset_ms;not null;default:0"`
	Payload   json.RawMessage `gorm:"type:jsonb"`
	ReEnroll  bool            `gorm:"column:re_enroll;not null;default:false"`
	CreatedAt time.Time       `gorm:"type:timestamptz;default:now()"`
	UpdatedAt time.Time       `gorm:"type:timestamptz;default:now()"`
}
