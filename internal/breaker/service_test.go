package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dripwire/dripwire-backend/internal/subscribers"
	"github.com/dripwire/dripwire-backend/pkg/db/models"
)

type fakeSubscribers struct {
	subscriber *models.Subscriber
	err        error
}

func (f *fakeSubscribers) Get(ctx context.Context, domainID, userID uuid.UUID) (*models.Subscriber, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.subscriber, nil
}

func (f *fakeSubscribers) Unsubscribe(ctx context.Context, token string, now time.Time) (bool, error) {
	return false, nil
}

type fakeEvents struct {
	bounces int64
	since   time.Time
	err     error
}

func (f *fakeEvents) Append(ctx context.Context, event *models.EmailEvent) error { return nil }

func (f *fakeEvents) CountBouncesSince(ctx context.Context, domainID, userID, sequenceID uuid.UUID, since time.Time) (int64, error) {
	f.since = since
	return f.bounces, f.err
}

func (f *fakeEvents) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newBreaker(t *testing.T, subs *fakeSubscribers, evts *fakeEvents, limit int) Service {
	t.Helper()

	svc, err := NewService(Params{
		Subscribers:  subs,
		Events:       evts,
		BounceLimit:  limit,
		BounceWindow: 30 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return svc
}

func activeSubscriber() *models.Subscriber {
	return &models.Subscriber{ID: uuid.New(), Active: true, Subscribed: true, Email: "a@b.test"}
}

func TestCheckEligible(t *testing.T) {
	svc := newBreaker(t, &fakeSubscribers{subscriber: activeSubscriber()}, &fakeEvents{bounces: 2}, 3)

	decision, err := svc.Check(context.Background(), uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.True(t, decision.Eligible())
	assert.Equal(t, int64(2), decision.Bounces)
}

func TestCheckTripsAtBounceLimit(t *testing.T) {
	svc := newBreaker(t, &fakeSubscribers{subscriber: activeSubscriber()}, &fakeEvents{bounces: 3}, 3)

	decision, err := svc.Check(context.Background(), uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.False(t, decision.Eligible())
	assert.Equal(t, VerdictBounceLimit, decision.Verdict)
}

func TestCheckUnsubscribed(t *testing.T) {
	subscriber := activeSubscriber()
	subscriber.Subscribed = false
	svc := newBreaker(t, &fakeSubscribers{subscriber: subscriber}, &fakeEvents{}, 3)

	decision, err := svc.Check(context.Background(), uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, VerdictUnsubscribed, decision.Verdict)
}

func TestCheckInactive(t *testing.T) {
	subscriber := activeSubscriber()
	subscriber.Active = false
	svc := newBreaker(t, &fakeSubscribers{subscriber: subscriber}, &fakeEvents{}, 3)

	decision, err := svc.Check(context.Background(), uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, VerdictInactive, decision.Verdict)
}

func TestCheckMissingSubscriber(t *testing.T) {
	svc := newBreaker(t, &fakeSubscribers{err: subscribers.ErrNotFound}, &fakeEvents{}, 3)

	decision, err := svc.Check(context.Background(), uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, VerdictNotFound, decision.Verdict)
}

func TestCheckWindowBoundsBounceQuery(t *testing.T) {
	evts := &fakeEvents{}
	svc := newBreaker(t, &fakeSubscribers{subscriber: activeSubscriber()}, evts, 3)

	_, err := svc.Check(context.Background(), uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.False(t, evts.since.IsZero(), "bounce count must be windowed")
}
