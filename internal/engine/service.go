package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/internal/breaker"
	"github.com/dripwire/dripwire-backend/internal/mailer"
	"github.com/dripwire/dripwire-backend/internal/reports"
	"github.com/dripwire/dripwire-backend/internal/sequences"
	"github.com/dripwire/dripwire-backend/internal/subscribers"
	"github.com/dripwire/dripwire-backend/internal/tracker"
	"github.com/dripwire/dripwire-backend/internal/tracking"
	"github.com/dripwire/dripwire-backend/pkg/config"
	"github.com/dripwire/dripwire-backend/pkg/db/models"
	"github.com/dripwire/dripwire-backend/pkg/enums"
	pkgerrors "github.com/dripwire/dripwire-backend/pkg/errors"
	"github.com/dripwire/dripwire-backend/pkg/logger"
	"github.com/dripwire/dripwire-backend/pkg/metrics"
)

// Stats summarizes one sweep over the due records.
type Stats struct {
	Scanned   int
	Claimed   int
	Sent      int
	Retried   int
	Completed int
	Failed    int
}

// Service drives due ongoing sequences through their next step.
type Service interface {
	// ProcessDue claims and processes a batch of due records. Records whose
	// claim is lost to another worker are skipped silently.
	ProcessDue(ctx context.Context) (Stats, error)
}

// ServiceParams wires engine dependencies.
type ServiceParams struct {
	Tracker      tracker.Repository
	Sequences    sequences.Repository
	Subscribers  subscribers.Repository
	Events       eventAppender
	Breaker      breaker.Service
	Reports      reports.Service
	Gateway      mailer.Gateway
	Instrumenter *tracking.Instrumenter
	Metrics      *metrics.DeliveryMetrics
	Logger       *logger.Logger
	Config       config.EngineConfig
	// WorkerID identifies this process in record claims. Defaults to a
	// random id per service instance.
	WorkerID string
	Now      func() time.Time
}

type eventAppender interface {
	Append(ctx context.Context, event *models.EmailEvent) error
}

type service struct {
	tracker      tracker.Repository
	sequences    sequences.Repository
	subscribers  subscribers.Repository
	events       eventAppender
	breaker      breaker.Service
	reports      reports.Service
	gateway      mailer.Gateway
	instrumenter *tracking.Instrumenter
	metrics      *metrics.DeliveryMetrics
	logger       *logger.Logger
	cfg          config.EngineConfig
	workerID     string
	now          func() time.Time
}

// NewService wires the sequence engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Tracker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tracker repository required")
	}
	if params.Sequences == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "sequences repository required")
	}
	if params.Subscribers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscribers repository required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "events repository required")
	}
	if params.Breaker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "breaker service required")
	}
	if params.Reports == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reports service required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mail gateway required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	workerID := params.WorkerID
	if workerID == "" {
		workerID = fmt.Sprintf("engine-%s", uuid.NewString())
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tracker:      params.Tracker,
		sequences:    params.Sequences,
		subscribers:  params.Subscribers,
		events:       params.Events,
		breaker:      params.Breaker,
		reports:      params.Reports,
		gateway:      params.Gateway,
		instrumenter: params.Instrumenter,
		metrics:      params.Metrics,
		logger:       params.Logger,
		cfg:          params.Config,
		workerID:     workerID,
		now:          now,
	}, nil
}

func (s *service) ProcessDue(ctx context.Context) (Stats, error) {
	now := s.now().UTC()
	due, err := s.tracker.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return Stats{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due records")
	}

	stats := Stats{Scanned: len(due)}
	for i := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		record := &due[i]
		claimed, err := s.tracker.Claim(ctx, record.ID, s.workerID, s.now().UTC(), s.cfg.ClaimTTL)
		if err != nil {
			s.logger.Error(ctx, "claim record", err)
			continue
		}
		if !claimed {
			continue
		}
		stats.Claimed++
		s.processClaimed(ctx, record, &stats)
	}
	return stats, nil
}

// processClaimed runs one record through the delivery state machine. The
// claim is released on every non-terminal path; terminal transitions clear
// it themselves.
func (s *service) processClaimed(ctx context.Context, record *models.OngoingSequence, stats *Stats) {
	logCtx := s.logger.WithFields(ctx, map[string]any{
		"record_id":   record.ID.String(),
		"sequence_id": record.SequenceID.String(),
		"user_id":     record.UserID.String(),
	})

	terminal, err := s.advance(logCtx, record, stats)
	if err != nil {
		s.logger.Error(logCtx, "process record", err)
	}
	if !terminal {
		if err := s.tracker.Release(ctx, record.ID, s.workerID); err != nil {
			s.logger.Error(logCtx, "release claim", err)
		}
	}
}

func (s *service) advance(ctx context.Context, record *models.OngoingSequence, stats *Stats) (terminal bool, err error) {
	sequence, err := s.sequences.Get(ctx, record.DomainID, record.SequenceID)
	if err != nil {
		if errors.Is(err, sequences.ErrNotFound) {
			// The definition is gone; the record can never progress.
			return true, s.finish(ctx, record, enums.SequenceStateFailed, enums.BucketFailed, stats)
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sequence")
	}

	decision, err := s.breaker.Check(ctx, record.DomainID, record.UserID, record.SequenceID)
	if err != nil {
		return false, err
	}
	switch decision.Verdict {
	case breaker.VerdictEligible:
	case breaker.VerdictUnsubscribed:
		return true, s.finish(ctx, record, enums.SequenceStateUnsubscribed, enums.BucketUnsubscribers, stats)
	case breaker.VerdictBounceLimit:
		s.metrics.IncBreakerTrip(sequence.Name)
		return true, s.finish(ctx, record, enums.SequenceStateFailed, enums.BucketFailed, stats)
	default: // not found, inactive
		return true, s.finish(ctx, record, enums.SequenceStateFailed, enums.BucketFailed, stats)
	}

	step := sequences.NextUnsentStep(sequence, record.SentStepIDs)
	if step == nil {
		return true, s.complete(ctx, record, sequence, stats)
	}

	if sequence.Broadcast {
		if _, err := s.reports.ClaimBroadcast(ctx, record.DomainID, record.SequenceID); err != nil {
			s.logger.Error(ctx, "claim broadcast lock", err)
		}
	}
	return s.deliver(ctx, record, sequence, step, stats)
}

func (s *service) deliver(ctx context.Context, record *models.OngoingSequence, sequence *models.Sequence, step *models.SequenceStep, stats *Stats) (bool, error) {
	subscriber, err := s.subscribers.Get(ctx, record.DomainID, record.UserID)
	if err != nil {
		if errors.Is(err, subscribers.ErrNotFound) {
			return true, s.finish(ctx, record, enums.SequenceStateFailed, enums.BucketFailed, stats)
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscriber")
	}

	emailID := uuid.New()
	body := step.Body
	if s.instrumenter != nil {
		body = s.instrumenter.Instrument(tracking.TokenPayload{
			DomainID:   record.DomainID,
			UserID:     record.UserID,
			SequenceID: record.SequenceID,
			StepID:     step.ID,
			EmailID:    emailID,
		}, body, subscriber.UnsubscribeToken)
	}

	result := s.gateway.Send(ctx, mailer.Message{
		EmailID:    emailID,
		DomainID:   record.DomainID,
		UserID:     record.UserID,
		SequenceID: record.SequenceID,
		To:         subscriber.Email,
		Subject:    step.Subject,
		HTML:       body,
	})

	now := s.now().UTC()
	switch {
	case result.Delivered:
		return s.recordDelivered(ctx, record, sequence, step, now, stats)
	case result.Permanent:
		s.appendBounce(ctx, record, step, result, now)
		return true, s.finish(ctx, record, enums.SequenceStateFailed, enums.BucketFailed, stats)
	default:
		s.appendBounce(ctx, record, step, result, now)
		delay := Backoff(s.cfg.RetryBaseDelay, s.cfg.RetryMaxDelay, record.RetryCount)
		if err := s.tracker.RecordRetry(ctx, record, now.Add(delay), now); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record retry")
		}
		s.metrics.IncRetry(sequence.Name)
		stats.Retried++
		return false, nil
	}
}

func (s *service) recordDelivered(ctx context.Context, record *models.OngoingSequence, sequence *models.Sequence, step *models.SequenceStep, now time.Time, stats *Stats) (bool, error) {
	s.metrics.IncSent(sequence.Name)
	stats.Sent++

	sent := record.SentStepIDs.Add(step.ID)
	next := sequences.NextUnsentStep(sequence, sent)
	if next == nil {
		if err := s.tracker.RecordSent(ctx, record, step.ID, now, now); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record sent step")
		}
		return true, s.complete(ctx, record, sequence, stats)
	}

	nextAt := now.Add(time.Duration(next.DelayMS) * time.Millisecond)
	if err := s.tracker.RecordSent(ctx, record, step.ID, nextAt, now); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record sent step")
	}
	return false, nil
}

func (s *service) complete(ctx context.Context, record *models.OngoingSequence, sequence *models.Sequence, stats *Stats) error {
	if err := s.tracker.MarkTerminal(ctx, record.ID, enums.SequenceStateComplete, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark record complete")
	}
	stats.Completed++
	if sequence.Broadcast {
		if err := s.reports.MarkBroadcastDone(ctx, record.DomainID, record.SequenceID); err != nil {
			s.logger.Error(ctx, "mark broadcast done", err)
		}
	}
	return nil
}

func (s *service) finish(ctx context.Context, record *models.OngoingSequence, state enums.SequenceState, bucket enums.ReportBucket, stats *Stats) error {
	if err := s.tracker.MarkTerminal(ctx, record.ID, state, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark record terminal")
	}
	switch state {
	case enums.SequenceStateFailed:
		stats.Failed++
	case enums.SequenceStateComplete:
		stats.Completed++
	}
	if err := s.reports.Track(ctx, record.DomainID, record.SequenceID, record.UserID, bucket); err != nil {
		s.logger.Error(ctx, "track report bucket", err)
	}
	return nil
}

func (s *service) appendBounce(ctx context.Context, record *models.OngoingSequence, step *models.SequenceStep, result mailer.Result, now time.Time) {
	bounceType := result.BounceType
	if bounceType == "" {
		if result.Permanent {
			bounceType = enums.BounceHard
		} else {
			bounceType = enums.BounceSoft
		}
	}
	reason := result.Reason
	event := &models.EmailEvent{
		DomainID:     record.DomainID,
		SequenceID:   record.SequenceID,
		UserID:       record.UserID,
		StepID:       step.ID,
		Action:       enums.EmailActionBounce,
		BounceType:   &bounceType,
		BounceReason: &reason,
		CreatedAt:    now,
	}
	if err := s.events.Append(ctx, event); err != nil {
		s.logger.Error(ctx, "append bounce event", err)
	}
}
