package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/internal/events"
	"github.com/dripwire/dripwire-backend/internal/subscribers"
	pkgerrors "github.com/dripwire/dripwire-backend/pkg/errors"
)

// Verdict explains why a subscriber was excluded from delivery.
type Verdict string

const (
	VerdictEligible     Verdict = "eligible"
	VerdictNotFound     Verdict = "not_found"
	VerdictInactive     Verdict = "inactive"
	VerdictUnsubscribed Verdict = "unsubscribed"
	VerdictBounceLimit  Verdict = "bounce_limit"
)

// Decision is the outcome of an eligibility check.
type Decision struct {
	Verdict Verdict
	// Bounces is the recent bounce count considered, set when the breaker
	// logic ran (found, active subscribers).
	Bounces int64
}

// Eligible reports whether delivery may proceed.
func (d Decision) Eligible() bool {
	return d.Verdict == VerdictEligible
}

// Service gates every delivery attempt. It is the circuit breaker between
// the engine and addresses that keep bouncing.
type Service interface {
	Check(ctx context.Context, domainID, userID, sequenceID uuid.UUID) (Decision, error)
}

// Params wires breaker dependencies. BounceLimit and BounceWindow come from
// engine config; the limit has already been defaulted there.
type Params struct {
	Subscribers  subscribers.Repository
	Events       events.Repository
	BounceLimit  int
	BounceWindow time.Duration
	Now          func() time.Time
}

type service struct {
	subscribers  subscribers.Repository
	events       events.Repository
	bounceLimit  int
	bounceWindow time.Duration
	now          func() time.Time
}

// NewService wires the eligibility checker.
func NewService(params Params) (Service, error) {
	if params.Subscribers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscribers repository required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "events repository required")
	}
	if params.BounceLimit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bounce limit must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		subscribers:  params.Subscribers,
		events:       params.Events,
		bounceLimit:  params.BounceLimit,
		bounceWindow: params.BounceWindow,
		now:          now,
	}, nil
}

func (s *service) Check(ctx context.Context, domainID, userID, sequenceID uuid.UUID) (Decision, error) {
	subscriber, err := s.subscribers.Get(ctx, domainID, userID)
	if err != nil {
		if errors.Is(err, subscribers.ErrNotFound) {
			return Decision{Verdict: VerdictNotFound}, nil
		}
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscriber")
	}
	if !subscriber.Active {
		return Decision{Verdict: VerdictInactive}, nil
	}
	if !subscriber.Subscribed {
		return Decision{Verdict: VerdictUnsubscribed}, nil
	}

	since := time.Time{}
	if s.bounceWindow > 0 {
		since = s.now().UTC().Add(-s.bounceWindow)
	}
	bounces, err := s.events.CountBouncesSince(ctx, domainID, userID, sequenceID, since)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count bounces")
	}
	if bounces >= int64(s.bounceLimit) {
		return Decision{Verdict: VerdictBounceLimit, Bounces: bounces}, nil
	}
	return Decision{Verdict: VerdictEligible, Bounces: bounces}, nil
}
