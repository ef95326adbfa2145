package dispatcher

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// DomainEvent is the wire shape arriving on the events topic and the ingest
// endpoint. EventID is the dedupe handle; the same event may arrive more
// than once.
type DomainEvent struct {
	EventID    uuid.UUID       `json:"eventId" validate:"required"`
	DomainID   uuid.UUID       `json:"domainId" validate:"required"`
	UserID     uuid.UUID       `json:"userId" validate:"required"`
	Type       string          `json:"type" validate:"required"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Validate checks structural requirements. Unknown event types pass here and
// are dropped later so producers can ship new types ahead of the engine.
func (e DomainEvent) Validate() error {
	return validate.Struct(e)
}
