package mailer

import (
	"context"

	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/pkg/enums"
)

// Message is a single outbound email. EmailID identifies the send itself and
// is embedded in tracking tokens, not the sequence step.
type Message struct {
	EmailID    uuid.UUID
	DomainID   uuid.UUID
	UserID     uuid.UUID
	SequenceID uuid.UUID
	To         string
	From       string
	Subject    string
	HTML       string
}

// Result classifies a send attempt. Failures are data, not errors: the
// engine's retry and breaker logic branches on them.
type Result struct {
	Delivered bool
	// Permanent marks failures that retrying cannot fix (rejected address,
	// rejected content). BounceType and Reason are set alongside it.
	Permanent  bool
	BounceType enums.BounceType
	Reason     string
}

// Transient reports a failure worth retrying with backoff.
func (r Result) Transient() bool {
	return !r.Delivered && !r.Permanent
}

// Gateway delivers email. Implementations must honor the context deadline
// and classify timeouts as transient.
type Gateway interface {
	Send(ctx context.Context, msg Message) Result
}
