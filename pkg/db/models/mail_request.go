package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/pkg/enums"
)

// MailRequest records an ad-hoc, non-sequence mail request that still flows
// through the bounce-aware gateway.
type MailRequest struct {
	ID        uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DomainID  uuid.UUID              `gorm:"type:uuid;not null;index"`
	UserID    uuid.UUID              `gorm:"type:uuid;not null;index"`
	Reason    string                 `gorm:"type:text;not null"`
	Status    enums.MailRequestState `gorm:"type:mail_request_state;not null;default:'pending'"`
	Message   *string                `gorm:"type:text"`
	CreatedAt time.Time              `gorm:"type:timestamptz;default:now()"`
	UpdatedAt time.Time              `gorm:"type:timestamptz;default:now()"`
}
