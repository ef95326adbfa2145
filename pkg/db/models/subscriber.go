package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber is the engine's read-model of a user: just enough to address
// mail and honor unsubscribes. Account management lives elsewhere.
type Subscriber struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DomainID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Email      string    `gorm:"type:text;not null"`
	Name       string    `gorm:"type:text"`
	Active     bool      `gorm:"not null;default:true"`
	Subscribed bool      `gorm:"not null;default:true"`
	// UnsubscribeToken is the opaque per-user token embedded in mail
	// footers.
	UnsubscribeToken string    `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt        time.Time `gorm:"type:timestamptz;default:now()"`
	UpdatedAt        time.Time `gorm:"type:timestamptz;default:now()"`
}
