package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripwire/dripwire-backend/pkg/db/models"
	"github.com/dripwire/dripwire-backend/pkg/enums"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

type fakeRequestStore struct {
	created []models.MailRequest
	pending []models.MailRequest
	sent    []uuid.UUID
	failed  map[uuid.UUID]string
	listErr error
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{failed: map[uuid.UUID]string{}}
}

func (f *fakeRequestStore) Create(ctx context.Context, request *models.MailRequest) error {
	f.created = append(f.created, *request)
	return nil
}

func (f *fakeRequestStore) ListPending(ctx context.Context, limit int) ([]models.MailRequest, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit > 0 && limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeRequestStore) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeRequestStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	f.failed[id] = reason
	return nil
}

type fakeRecipientStore struct {
	missing bool
}

func (f *fakeRecipientStore) Get(ctx context.Context, domainID, userID uuid.UUID) (*models.Subscriber, error) {
	if f.missing {
		return nil, errors.New("subscriber not found")
	}
	return &models.Subscriber{ID: userID, DomainID: domainID, Email: "user@example.test", Active: true, Subscribed: true}, nil
}

func (f *fakeRecipientStore) Unsubscribe(ctx context.Context, token string, now time.Time) (bool, error) {
	return false, nil
}

type fakeGateway struct {
	result Result
	sent   []Message
}

func (f *fakeGateway) Send(ctx context.Context, msg Message) Result {
	f.sent = append(f.sent, msg)
	return f.result
}

func newRequestService(t *testing.T, store *fakeRequestStore, subs *fakeRecipientStore, gateway *fakeGateway) RequestService {
	t.Helper()

	svc, err := NewRequestService(RequestServiceParams{
		Requests:    store,
		Subscribers: subs,
		Gateway:     gateway,
		Logger:      logger.New(logger.Options{ServiceName: "mailer-test", Level: zerolog.ErrorLevel}),
		Now:         func() time.Time { return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc
}

func pendingRequest(message string) models.MailRequest {
	request := models.MailRequest{
		ID:       uuid.New(),
		DomainID: uuid.New(),
		UserID:   uuid.New(),
		Reason:   "password_reset",
		Status:   enums.MailRequestPending,
	}
	if message != "" {
		request.Message = &message
	}
	return request
}

func TestEnqueueCreatesPendingRequest(t *testing.T) {
	store := newFakeRequestStore()
	svc := newRequestService(t, store, &fakeRecipientStore{}, &fakeGateway{})

	request, err := svc.Enqueue(context.Background(), EnqueueParams{
		DomainID: uuid.New(),
		UserID:   uuid.New(),
		Reason:   "welcome_gift",
		Message:  "<p>Here is your gift.</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.MailRequestPending, request.Status)
	require.NotNil(t, request.Message)
	require.Len(t, store.created, 1)
	assert.Equal(t, request.ID, store.created[0].ID)
}

func TestEnqueueRejectsMissingFields(t *testing.T) {
	svc := newRequestService(t, newFakeRequestStore(), &fakeRecipientStore{}, &fakeGateway{})

	_, err := svc.Enqueue(context.Background(), EnqueueParams{UserID: uuid.New(), Reason: "x"})
	assert.Error(t, err)

	_, err = svc.Enqueue(context.Background(), EnqueueParams{DomainID: uuid.New(), UserID: uuid.New()})
	assert.Error(t, err)
}

func TestProcessPendingDeliversAndMarksSent(t *testing.T) {
	store := newFakeRequestStore()
	request := pendingRequest("<p>Body</p>")
	store.pending = []models.MailRequest{request}
	gateway := &fakeGateway{result: Result{Delivered: true}}
	svc := newRequestService(t, store, &fakeRecipientStore{}, gateway)

	attempted, err := svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)
	require.Len(t, gateway.sent, 1)
	assert.Equal(t, "user@example.test", gateway.sent[0].To)
	assert.Equal(t, "<p>Body</p>", gateway.sent[0].HTML)
	assert.Equal(t, []uuid.UUID{request.ID}, store.sent)
}

func TestProcessPendingMarksFailedOnPermanentBounce(t *testing.T) {
	store := newFakeRequestStore()
	request := pendingRequest("")
	store.pending = []models.MailRequest{request}
	gateway := &fakeGateway{result: Result{Permanent: true, BounceType: enums.BounceHard, Reason: "mailbox does not exist"}}
	svc := newRequestService(t, store, &fakeRecipientStore{}, gateway)

	_, err := svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, store.sent)
	assert.Equal(t, "mailbox does not exist", store.failed[request.ID])
}

func TestProcessPendingLeavesTransientFailuresPending(t *testing.T) {
	store := newFakeRequestStore()
	request := pendingRequest("")
	store.pending = []models.MailRequest{request}
	gateway := &fakeGateway{result: Result{Reason: "greylisted"}}
	svc := newRequestService(t, store, &fakeRecipientStore{}, gateway)

	attempted, err := svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)
	assert.Empty(t, store.sent)
	assert.Empty(t, store.failed)
}

func TestProcessPendingFailsUnresolvedRecipient(t *testing.T) {
	store := newFakeRequestStore()
	request := pendingRequest("")
	store.pending = []models.MailRequest{request}
	gateway := &fakeGateway{result: Result{Delivered: true}}
	svc := newRequestService(t, store, &fakeRecipientStore{missing: true}, gateway)

	_, err := svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, gateway.sent, "no send without a recipient")
	assert.Equal(t, "recipient not found", store.failed[request.ID])
}

func TestProcessPendingPropagatesListError(t *testing.T) {
	store := newFakeRequestStore()
	store.listErr = errors.New("db down")
	svc := newRequestService(t, store, &fakeRecipientStore{}, &fakeGateway{})

	_, err := svc.ProcessPending(context.Background(), 10)
	assert.Error(t, err)
}
