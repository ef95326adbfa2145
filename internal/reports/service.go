package reports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/pkg/enums"
	pkgerrors "github.com/dripwire/dripwire-backend/pkg/errors"
)

// Summary is the read model served by the report endpoint.
type Summary struct {
	SequenceID        uuid.UUID   `json:"sequenceId"`
	Subscribers       []uuid.UUID `json:"subscribers"`
	Unsubscribers     []uuid.UUID `json:"unsubscribers"`
	Failed            []uuid.UUID `json:"failed"`
	BroadcastLockedAt *time.Time  `json:"broadcastLockedAt,omitempty"`
	BroadcastSentAt   *time.Time  `json:"broadcastSentAt,omitempty"`
}

// Service maintains and serves sequence reports.
type Service interface {
	// Track places the user in a bucket for the sequence, creating the
	// report row on first touch.
	Track(ctx context.Context, domainID, sequenceID, userID uuid.UUID, bucket enums.ReportBucket) error
	Summary(ctx context.Context, domainID, sequenceID uuid.UUID) (*Summary, error)

	// ClaimBroadcast wins the one-shot broadcast lock for the sequence.
	// Only the first caller ever gets true.
	ClaimBroadcast(ctx context.Context, domainID, sequenceID uuid.UUID) (bool, error)
	// MarkBroadcastDone stamps the broadcast as fully dispatched.
	MarkBroadcastDone(ctx context.Context, domainID, sequenceID uuid.UUID) error
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires report dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reports repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Track(ctx context.Context, domainID, sequenceID, userID uuid.UUID, bucket enums.ReportBucket) error {
	if !bucket.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid report bucket")
	}
	report, err := s.repo.Ensure(ctx, domainID, sequenceID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure sequence report")
	}
	if err := s.repo.PlaceUser(ctx, report.ID, userID, bucket, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "place report entry")
	}
	return nil
}

func (s *service) Summary(ctx context.Context, domainID, sequenceID uuid.UUID) (*Summary, error) {
	report, err := s.repo.Get(ctx, domainID, sequenceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sequence report not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sequence report")
	}

	summary := &Summary{
		SequenceID:        sequenceID,
		Subscribers:       []uuid.UUID{},
		Unsubscribers:     []uuid.UUID{},
		Failed:            []uuid.UUID{},
		BroadcastLockedAt: report.BroadcastLockedAt,
		BroadcastSentAt:   report.BroadcastSentAt,
	}
	for _, entry := range report.Entries {
		switch entry.Bucket {
		case enums.BucketSubscribers:
			summary.Subscribers = append(summary.Subscribers, entry.UserID)
		case enums.BucketUnsubscribers:
			summary.Unsubscribers = append(summary.Unsubscribers, entry.UserID)
		case enums.BucketFailed:
			summary.Failed = append(summary.Failed, entry.UserID)
		}
	}
	return summary, nil
}

func (s *service) ClaimBroadcast(ctx context.Context, domainID, sequenceID uuid.UUID) (bool, error) {
	report, err := s.repo.Ensure(ctx, domainID, sequenceID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure sequence report")
	}
	won, err := s.repo.ClaimBroadcastLock(ctx, report.ID, s.now().UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim broadcast lock")
	}
	return won, nil
}

func (s *service) MarkBroadcastDone(ctx context.Context, domainID, sequenceID uuid.UUID) error {
	report, err := s.repo.Ensure(ctx, domainID, sequenceID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure sequence report")
	}
	if err := s.repo.MarkBroadcastSent(ctx, report.ID, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark broadcast sent")
	}
	return nil
}
