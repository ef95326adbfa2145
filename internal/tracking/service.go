package tracking

import (
	"context"
	"time"

	"github.com/dripwire/dripwire-backend/internal/events"
	"github.com/dripwire/dripwire-backend/internal/sequences"
	"github.com/dripwire/dripwire-backend/internal/subscribers"
	"github.com/dripwire/dripwire-backend/pkg/config"
	"github.com/dripwire/dripwire-backend/pkg/db/models"
	"github.com/dripwire/dripwire-backend/pkg/enums"
	pkgerrors "github.com/dripwire/dripwire-backend/pkg/errors"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

// UnsubscribeMessage is shown for every unsubscribe request, valid token or
// not, so the endpoint leaks nothing about token validity.
const UnsubscribeMessage = "You have been unsubscribed."

// Service ingests tracking callbacks. Every method degrades instead of
// failing: a dead database must never break a mail client rendering a pixel.
type Service interface {
	// RecordOpen logs an open event. Invalid tokens and storage errors are
	// swallowed; callers always serve the pixel.
	RecordOpen(ctx context.Context, token string)
	// ResolveClick logs a click and returns the redirect destination. Bad
	// tokens and tokens without a link fall back to the home URL.
	ResolveClick(ctx context.Context, token string) string
	// Unsubscribe flips the subscriber flag behind the opaque token and
	// logs the event. The response message is fixed either way.
	Unsubscribe(ctx context.Context, token string) string
}

// ServiceParams wires tracking dependencies.
type ServiceParams struct {
	Config      config.TrackingConfig
	Events      events.Repository
	Sequences   sequences.Repository
	Subscribers subscribers.Repository
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	cfg         config.TrackingConfig
	events      events.Repository
	sequences   sequences.Repository
	subscribers subscribers.Repository
	logger      *logger.Logger
	now         func() time.Time
}

// NewService wires the tracking ingestion service.
func NewService(params ServiceParams) (Service, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "events repository required")
	}
	if params.Sequences == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "sequences repository required")
	}
	if params.Subscribers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscribers repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		cfg:         params.Config,
		events:      params.Events,
		sequences:   params.Sequences,
		subscribers: params.Subscribers,
		logger:      params.Logger,
		now:         now,
	}, nil
}

func (s *service) RecordOpen(ctx context.Context, token string) {
	payload, err := ParseToken(s.cfg, token)
	if err != nil {
		s.logger.Debug(ctx, "open callback with unusable token")
		return
	}
	if !s.resolvePayload(ctx, payload) {
		// Stale token; nothing to record.
		s.logger.Debug(ctx, "open callback for unknown recipient or step")
		return
	}
	event := &models.EmailEvent{
		DomainID:   payload.DomainID,
		SequenceID: payload.SequenceID,
		UserID:     payload.UserID,
		StepID:     payload.StepID,
		Action:     enums.EmailActionOpen,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.events.Append(ctx, event); err != nil {
		s.logger.Error(ctx, "record open event", err)
	}
}

func (s *service) ResolveClick(ctx context.Context, token string) string {
	payload, err := ParseToken(s.cfg, token)
	if err != nil || payload.Link == "" {
		s.logger.Debug(ctx, "click callback with unusable token")
		return s.homeURL()
	}
	if !s.resolvePayload(ctx, payload) {
		s.logger.Debug(ctx, "click callback for unknown recipient or step")
		return payload.Link
	}

	linkIndex := payload.LinkIndex
	event := &models.EmailEvent{
		DomainID:   payload.DomainID,
		SequenceID: payload.SequenceID,
		UserID:     payload.UserID,
		StepID:     payload.StepID,
		Action:     enums.EmailActionClick,
		Link:       &payload.Link,
		LinkIndex:  &linkIndex,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.events.Append(ctx, event); err != nil {
		// The destination still matters more than the log row.
		s.logger.Error(ctx, "record click event", err)
	}
	return payload.Link
}

func (s *service) Unsubscribe(ctx context.Context, token string) string {
	now := s.now().UTC()
	changed, err := s.subscribers.Unsubscribe(ctx, token, now)
	if err != nil {
		s.logger.Error(ctx, "unsubscribe", err)
		return UnsubscribeMessage
	}
	if !changed {
		return UnsubscribeMessage
	}
	s.logger.Info(s.logger.WithField(ctx, "token_used", true), "subscriber unsubscribed")
	return UnsubscribeMessage
}

// resolvePayload checks that every entity a token references still exists.
// Tokens never expire, so they can outlive the subscriber, the sequence, or
// the step they point at.
func (s *service) resolvePayload(ctx context.Context, payload *TokenPayload) bool {
	if _, err := s.subscribers.Get(ctx, payload.DomainID, payload.UserID); err != nil {
		return false
	}
	sequence, err := s.sequences.Get(ctx, payload.DomainID, payload.SequenceID)
	if err != nil {
		return false
	}
	return sequences.StepByID(sequence, payload.StepID) != nil
}

func (s *service) homeURL() string {
	if s.cfg.HomeURL != "" {
		return s.cfg.HomeURL
	}
	return "/"
}
