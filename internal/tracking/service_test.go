package tracking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dripwire/dripwire-backend/pkg/config"
	"github.com/dripwire/dripwire-backend/pkg/db/models"
	"github.com/dripwire/dripwire-backend/pkg/enums"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

type fakeEventLog struct {
	appended []models.EmailEvent
	err      error
}

func (f *fakeEventLog) Append(ctx context.Context, event *models.EmailEvent) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, *event)
	return nil
}

func (f *fakeEventLog) CountBouncesSince(ctx context.Context, domainID, userID, sequenceID uuid.UUID, since time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeEventLog) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeSequenceStore struct {
	steps   []models.SequenceStep
	missing bool
}

func (f *fakeSequenceStore) Get(ctx context.Context, domainID, sequenceID uuid.UUID) (*models.Sequence, error) {
	if f.missing {
		return nil, errors.New("sequence not found")
	}
	return &models.Sequence{ID: sequenceID, DomainID: domainID, Steps: f.steps}, nil
}

type fakeSubscriberStore struct {
	changed bool
	err     error
	token   string
	missing bool
}

func (f *fakeSubscriberStore) Get(ctx context.Context, domainID, userID uuid.UUID) (*models.Subscriber, error) {
	if f.missing {
		return nil, errors.New("subscriber not found")
	}
	return &models.Subscriber{ID: userID, DomainID: domainID, Active: true, Subscribed: true}, nil
}

func (f *fakeSubscriberStore) Unsubscribe(ctx context.Context, token string, now time.Time) (bool, error) {
	f.token = token
	return f.changed, f.err
}

func testTrackingConfig() config.TrackingConfig {
	return config.TrackingConfig{
		Secret:  "test-secret",
		BaseURL: "https://track.example.test",
		HomeURL: "https://example.test",
	}
}

func newTrackingService(t *testing.T, cfg config.TrackingConfig, log *fakeEventLog, seqs *fakeSequenceStore, subs *fakeSubscriberStore) Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Config:      cfg,
		Events:      log,
		Sequences:   seqs,
		Subscribers: subs,
		Logger:      logger.New(logger.Options{ServiceName: "tracking-test", Level: zerolog.ErrorLevel}),
	})
	require.NoError(t, err)
	return svc
}

func mintTestToken(t *testing.T, cfg config.TrackingConfig, seqs *fakeSequenceStore, link string, index int) (string, TokenPayload) {
	t.Helper()

	payload := TokenPayload{
		DomainID:   uuid.New(),
		UserID:     uuid.New(),
		SequenceID: uuid.New(),
		StepID:     uuid.New(),
		EmailID:    uuid.New(),
		Link:       link,
		LinkIndex:  index,
	}
	token, err := MintToken(cfg, payload)
	require.NoError(t, err)
	if seqs != nil {
		seqs.steps = append(seqs.steps, models.SequenceStep{ID: payload.StepID, SequenceID: payload.SequenceID})
	}
	return token, payload
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testTrackingConfig()
	token, payload := mintTestToken(t, cfg, nil, "https://example.test/offer", 2)

	got, err := ParseToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, payload.UserID, got.UserID)
	assert.Equal(t, payload.SequenceID, got.SequenceID)
	assert.Equal(t, payload.EmailID, got.EmailID)
	assert.Equal(t, "https://example.test/offer", got.Link)
	assert.Equal(t, 2, got.LinkIndex)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	cfg := testTrackingConfig()
	token, _ := mintTestToken(t, cfg, nil, "", 0)

	other := cfg
	other.Secret = "different"
	_, err := ParseToken(other, token)
	assert.Error(t, err)
}

func TestRecordOpenCountsRepeats(t *testing.T) {
	cfg := testTrackingConfig()
	log := &fakeEventLog{}
	seqs := &fakeSequenceStore{}
	svc := newTrackingService(t, cfg, log, seqs, &fakeSubscriberStore{})

	token, _ := mintTestToken(t, cfg, seqs, "", 0)
	svc.RecordOpen(context.Background(), token)
	svc.RecordOpen(context.Background(), token)

	require.Len(t, log.appended, 2, "repeated opens each produce a row")
	assert.Equal(t, enums.EmailActionOpen, log.appended[0].Action)
}

func TestRecordOpenSwallowsBadToken(t *testing.T) {
	log := &fakeEventLog{}
	svc := newTrackingService(t, testTrackingConfig(), log, &fakeSequenceStore{}, &fakeSubscriberStore{})

	svc.RecordOpen(context.Background(), "garbage")
	assert.Empty(t, log.appended)
}

func TestRecordOpenSkipsUnknownSubscriber(t *testing.T) {
	cfg := testTrackingConfig()
	log := &fakeEventLog{}
	seqs := &fakeSequenceStore{}
	svc := newTrackingService(t, cfg, log, seqs, &fakeSubscriberStore{missing: true})

	token, _ := mintTestToken(t, cfg, seqs, "", 0)
	svc.RecordOpen(context.Background(), token)
	assert.Empty(t, log.appended)
}

func TestRecordOpenSkipsMissingSequence(t *testing.T) {
	cfg := testTrackingConfig()
	log := &fakeEventLog{}
	svc := newTrackingService(t, cfg, log, &fakeSequenceStore{missing: true}, &fakeSubscriberStore{})

	token, _ := mintTestToken(t, cfg, nil, "", 0)
	svc.RecordOpen(context.Background(), token)
	assert.Empty(t, log.appended)
}

func TestRecordOpenSkipsMissingStep(t *testing.T) {
	cfg := testTrackingConfig()
	log := &fakeEventLog{}
	seqs := &fakeSequenceStore{steps: []models.SequenceStep{{ID: uuid.New()}}}
	svc := newTrackingService(t, cfg, log, seqs, &fakeSubscriberStore{})

	// Token references a step the sequence no longer contains.
	token, _ := mintTestToken(t, cfg, nil, "", 0)
	svc.RecordOpen(context.Background(), token)
	assert.Empty(t, log.appended)
}

func TestRecordOpenSwallowsStorageError(t *testing.T) {
	cfg := testTrackingConfig()
	log := &fakeEventLog{err: errors.New("db down")}
	seqs := &fakeSequenceStore{}
	svc := newTrackingService(t, cfg, log, seqs, &fakeSubscriberStore{})

	token, _ := mintTestToken(t, cfg, seqs, "", 0)
	svc.RecordOpen(context.Background(), token) // must not panic or propagate
}

func TestResolveClickRedirectsToLink(t *testing.T) {
	cfg := testTrackingConfig()
	log := &fakeEventLog{}
	seqs := &fakeSequenceStore{}
	svc := newTrackingService(t, cfg, log, seqs, &fakeSubscriberStore{})

	token, _ := mintTestToken(t, cfg, seqs, "https://example.test/buy", 1)
	dest := svc.ResolveClick(context.Background(), token)

	assert.Equal(t, "https://example.test/buy", dest)
	require.Len(t, log.appended, 1)
	assert.Equal(t, enums.EmailActionClick, log.appended[0].Action)
	require.NotNil(t, log.appended[0].LinkIndex)
	assert.Equal(t, 1, *log.appended[0].LinkIndex)
}

func TestResolveClickFallsBackToHome(t *testing.T) {
	log := &fakeEventLog{}
	svc := newTrackingService(t, testTrackingConfig(), log, &fakeSequenceStore{}, &fakeSubscriberStore{})

	dest := svc.ResolveClick(context.Background(), "garbage")
	assert.Equal(t, "https://example.test", dest)
	assert.Empty(t, log.appended)
}

func TestResolveClickStillRedirectsOnMissingSequence(t *testing.T) {
	cfg := testTrackingConfig()
	log := &fakeEventLog{}
	svc := newTrackingService(t, cfg, log, &fakeSequenceStore{missing: true}, &fakeSubscriberStore{})

	token, _ := mintTestToken(t, cfg, nil, "https://example.test/buy", 0)
	dest := svc.ResolveClick(context.Background(), token)
	assert.Equal(t, "https://example.test/buy", dest)
	assert.Empty(t, log.appended)
}

func TestResolveClickStillRedirectsOnStorageError(t *testing.T) {
	cfg := testTrackingConfig()
	log := &fakeEventLog{err: errors.New("db down")}
	seqs := &fakeSequenceStore{}
	svc := newTrackingService(t, cfg, log, seqs, &fakeSubscriberStore{})

	token, _ := mintTestToken(t, cfg, seqs, "https://example.test/buy", 0)
	dest := svc.ResolveClick(context.Background(), token)
	assert.Equal(t, "https://example.test/buy", dest)
}

func TestUnsubscribeMessageIsFixed(t *testing.T) {
	svc := newTrackingService(t, testTrackingConfig(), &fakeEventLog{}, &fakeSequenceStore{}, &fakeSubscriberStore{changed: true})
	assert.Equal(t, UnsubscribeMessage, svc.Unsubscribe(context.Background(), "tok-1"))

	svc = newTrackingService(t, testTrackingConfig(), &fakeEventLog{}, &fakeSequenceStore{}, &fakeSubscriberStore{changed: false})
	assert.Equal(t, UnsubscribeMessage, svc.Unsubscribe(context.Background(), "unknown"))

	svc = newTrackingService(t, testTrackingConfig(), &fakeEventLog{}, &fakeSequenceStore{}, &fakeSubscriberStore{err: errors.New("db down")})
	assert.Equal(t, UnsubscribeMessage, svc.Unsubscribe(context.Background(), "tok-2"))
}

func TestInstrumentWrapsLinksAndAppendsPixel(t *testing.T) {
	cfg := testTrackingConfig()
	instrumenter := NewInstrumenter(cfg)

	payload := TokenPayload{
		DomainID:   uuid.New(),
		UserID:     uuid.New(),
		SequenceID: uuid.New(),
		StepID:     uuid.New(),
		EmailID:    uuid.New(),
	}
	html := `<p><a href="https://example.test/a">A</a> <a href="https://example.test/b">B</a></p>`
	out := instrumenter.Instrument(payload, html, "unsub-token")

	assert.NotContains(t, out, `href="https://example.test/a"`)
	assert.Contains(t, out, "/t/click/")
	assert.Contains(t, out, "/t/open/")
	assert.Contains(t, out, "/t/unsubscribe/unsub-token")
	assert.Equal(t, 2, strings.Count(out, "/t/click/"))
}

func TestInstrumentDisabledPassesThrough(t *testing.T) {
	instrumenter := NewInstrumenter(config.TrackingConfig{})
	html := `<a href="https://example.test/a">A</a>`
	assert.Equal(t, html, instrumenter.Instrument(TokenPayload{}, html, "tok"))
}
