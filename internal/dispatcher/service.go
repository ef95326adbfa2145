package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/internal/reports"
	"github.com/dripwire/dripwire-backend/internal/rules"
	"github.com/dripwire/dripwire-backend/internal/tracker"
	"github.com/dripwire/dripwire-backend/pkg/db/models"
	dbtypes "github.com/dripwire/dripwire-backend/pkg/db/types"
	"github.com/dripwire/dripwire-backend/pkg/enums"
	pkgerrors "github.com/dripwire/dripwire-backend/pkg/errors"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

// Service turns domain events into sequence enrollments.
type Service interface {
	// HandleEvent matches the event against the domain's rules and enrolls
	// the user into each matched sequence. Already-enrolled users are left
	// alone unless the rule re-enrolls.
	HandleEvent(ctx context.Context, event DomainEvent) error
}

// ServiceParams wires dispatcher dependencies.
type ServiceParams struct {
	Rules   rules.Repository
	Tracker tracker.Repository
	Reports reports.Service
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	rules   rules.Repository
	tracker tracker.Repository
	reports reports.Service
	logger  *logger.Logger
	now     func() time.Time
}

// NewService wires the event dispatcher.
func NewService(params ServiceParams) (Service, error) {
	if params.Rules == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "rules repository required")
	}
	if params.Tracker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tracker repository required")
	}
	if params.Reports == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reports service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		rules:   params.Rules,
		tracker: params.Tracker,
		reports: params.Reports,
		logger:  params.Logger,
		now:     now,
	}, nil
}

func (s *service) HandleEvent(ctx context.Context, event DomainEvent) error {
	if err := event.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid domain event")
	}

	eventType, err := enums.ParseTriggerEventType(event.Type)
	if err != nil {
		// Unknown types are produced by newer services; drop, don't fail.
		s.logger.Debug(s.logger.WithField(ctx, "event_type", event.Type), "ignoring unknown event type")
		return nil
	}

	matched, err := s.rules.ListByEvent(ctx, event.DomainID, eventType)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rules")
	}
	if len(matched) == 0 {
		return nil
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	var firstErr error
	for i := range matched {
		if err := s.applyRule(ctx, &matched[i], event, occurredAt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *service) applyRule(ctx context.Context, rule *models.Rule, event DomainEvent, occurredAt time.Time) error {
	nextAt := occurredAt.Add(time.Duration(rule.OffsetMS) * time.Millisecond)
	if now := s.now().UTC(); nextAt.Before(now) {
		// Redelivered events carry stale timestamps; never schedule into
		// the past.
		nextAt = now
	}
	logCtx := s.logger.WithFields(ctx, map[string]any{
		"rule_id":     rule.ID.String(),
		"sequence_id": rule.SequenceID.String(),
		"user_id":     event.UserID.String(),
	})

	if rule.SequenceID == uuid.Nil {
		// A rule without a target must not block the other matches.
		s.logger.Warn(logCtx, "rule has no target sequence, skipping")
		return nil
	}

	record := &models.OngoingSequence{
		ID:                   uuid.New(),
		DomainID:             event.DomainID,
		SequenceID:           rule.SequenceID,
		UserID:               event.UserID,
		State:                enums.SequenceStateActive,
		NextEmailScheduledAt: nextAt,
		SentStepIDs:          dbtypes.StepIDSet{},
	}
	created, err := s.tracker.Enroll(ctx, record)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enroll user")
	}

	if !created && rule.ReEnroll {
		existing, err := s.tracker.Find(ctx, event.DomainID, rule.SequenceID, event.UserID)
		if err != nil {
			if errors.Is(err, tracker.ErrNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ongoing sequence")
		}
		reset, err := s.tracker.Reactivate(ctx, existing.ID, nextAt, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "re-enroll user")
		}
		if !reset {
			// Still active; the first enrollment keeps running.
			return nil
		}
		created = true
	}

	if created {
		s.logger.Info(logCtx, "user enrolled in sequence")
		if err := s.reports.Track(ctx, event.DomainID, rule.SequenceID, event.UserID, enums.BucketSubscribers); err != nil {
			// Reporting is advisory; enrollment already happened.
			s.logger.Error(logCtx, "track enrollment in report", err)
		}
	}
	return nil
}
