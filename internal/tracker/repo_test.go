package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dripwire/dripwire-backend/pkg/db/models"
	dbtypes "github.com/dripwire/dripwire-backend/pkg/db/types"
	"github.com/dripwire/dripwire-backend/pkg/enums"
)

func setupTrackerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ongoing := `
CREATE TABLE IF NOT EXISTS ongoing_sequences (
  id TEXT PRIMARY KEY,
  domain_id TEXT NOT NULL,
  sequence_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  state TEXT NOT NULL DEFAULT 'active',
  next_email_scheduled_at DATETIME NOT NULL,
  retry_count INTEGER NOT NULL DEFAULT 0,
  sent_step_ids TEXT NOT NULL DEFAULT '[]',
  claimed_by TEXT,
  claim_expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (domain_id, sequence_id, user_id)
);`
	require.NoError(t, db.Exec(ongoing).Error)
	return db
}

func newOngoing(t *testing.T, db *gorm.DB, due time.Time) *models.OngoingSequence {
	t.Helper()

	record := &models.OngoingSequence{
		ID:                   uuid.New(),
		DomainID:             uuid.New(),
		SequenceID:           uuid.New(),
		UserID:               uuid.New(),
		State:                enums.SequenceStateActive,
		NextEmailScheduledAt: due,
		SentStepIDs:          dbtypes.StepIDSet{},
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func TestEnrollIsIdempotent(t *testing.T) {
	db := setupTrackerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	record := &models.OngoingSequence{
		ID:                   uuid.New(),
		DomainID:             uuid.New(),
		SequenceID:           uuid.New(),
		UserID:               uuid.New(),
		State:                enums.SequenceStateActive,
		NextEmailScheduledAt: now,
	}
	created, err := repo.Enroll(ctx, record)
	require.NoError(t, err)
	assert.True(t, created)

	duplicate := &models.OngoingSequence{
		ID:                   uuid.New(),
		DomainID:             record.DomainID,
		SequenceID:           record.SequenceID,
		UserID:               record.UserID,
		State:                enums.SequenceStateActive,
		NextEmailScheduledAt: now.Add(time.Hour),
	}
	created, err = repo.Enroll(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.UserID, got.UserID)
}

func TestClaimExcludesConcurrentOwners(t *testing.T) {
	db := setupTrackerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	record := newOngoing(t, db, now.Add(-time.Minute))

	won, err := repo.Claim(ctx, record.ID, "worker-a", now, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Claim(ctx, record.ID, "worker-b", now, 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, won, "second claimant must lose while the claim is live")
}

func TestClaimRecoversExpiredClaim(t *testing.T) {
	db := setupTrackerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	record := newOngoing(t, db, now.Add(-time.Hour))

	won, err := repo.Claim(ctx, record.ID, "worker-a", now.Add(-10*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	// worker-a's claim expired five minutes ago; worker-b may take over.
	won, err = repo.Claim(ctx, record.ID, "worker-b", now, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	got, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, "worker-b", *got.ClaimedBy)
}

func TestClaimSkipsTerminalRecords(t *testing.T) {
	db := setupTrackerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	record := newOngoing(t, db, now.Add(-time.Minute))
	require.NoError(t, repo.MarkTerminal(ctx, record.ID, enums.SequenceStateComplete, now))

	won, err := repo.Claim(ctx, record.ID, "worker-a", now, 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestReleaseOnlyDropsOwnClaim(t *testing.T) {
	db := setupTrackerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	record := newOngoing(t, db, now.Add(-time.Minute))

	won, err := repo.Claim(ctx, record.ID, "worker-a", now, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, repo.Release(ctx, record.ID, "worker-b"))
	got, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, "worker-a", *got.ClaimedBy)

	require.NoError(t, repo.Release(ctx, record.ID, "worker-a"))
	got, err = repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ClaimedBy)
	assert.Nil(t, got.ClaimExpiresAt)
}

func TestListDueFiltersClaimedAndFuture(t *testing.T) {
	db := setupTrackerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	due := newOngoing(t, db, now.Add(-time.Minute))
	newOngoing(t, db, now.Add(time.Hour)) // not yet due

	claimed := newOngoing(t, db, now.Add(-time.Minute))
	won, err := repo.Claim(ctx, claimed.ID, "worker-a", now, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	expired := newOngoing(t, db, now.Add(-time.Minute))
	won, err = repo.Claim(ctx, expired.ID, "worker-a", now.Add(-10*time.Minute), time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	records, err := repo.ListDue(ctx, now, 50)
	require.NoError(t, err)

	ids := make(map[uuid.UUID]bool, len(records))
	for _, record := range records {
		ids[record.ID] = true
	}
	assert.True(t, ids[due.ID])
	assert.True(t, ids[expired.ID], "expired claims must surface for recovery")
	assert.False(t, ids[claimed.ID])
}

func TestRecordSentAdvancesScheduleMonotonically(t *testing.T) {
	db := setupTrackerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	record := newOngoing(t, db, now)
	record.RetryCount = 2
	require.NoError(t, db.Model(record).Update("retry_count", 2).Error)

	stepID := uuid.New()
	nextAt := now.Add(24 * time.Hour)
	require.NoError(t, repo.RecordSent(ctx, record, stepID, nextAt, now))

	got, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, got.SentStepIDs.Contains(stepID))
	assert.Equal(t, 0, got.RetryCount)
	assert.WithinDuration(t, nextAt, got.NextEmailScheduledAt, time.Second)

	// An earlier timestamp must not drag the schedule backwards.
	before := got.NextEmailScheduledAt
	require.NoError(t, repo.RecordSent(ctx, got, uuid.New(), now.Add(-time.Hour), now))
	again, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, again.NextEmailScheduledAt.Before(before.Add(-time.Second)))
}

func TestRecordRetryIncrementsCounter(t *testing.T) {
	db := setupTrackerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	record := newOngoing(t, db, now.Add(-time.Minute))

	require.NoError(t, repo.RecordRetry(ctx, record, now.Add(30*time.Second), now))
	require.NoError(t, repo.RecordRetry(ctx, record, now.Add(time.Minute), now))

	got, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
}

func TestReactivateResetsTerminalRecord(t *testing.T) {
	db := setupTrackerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	record := newOngoing(t, db, now.Add(-time.Minute))
	require.NoError(t, repo.RecordSent(ctx, record, uuid.New(), now, now))
	require.NoError(t, repo.MarkTerminal(ctx, record.ID, enums.SequenceStateComplete, now))

	nextAt := now.Add(time.Hour)
	reset, err := repo.Reactivate(ctx, record.ID, nextAt, now)
	require.NoError(t, err)
	assert.True(t, reset)

	got, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SequenceStateActive, got.State)
	assert.Empty(t, got.SentStepIDs)
	assert.Equal(t, 0, got.RetryCount)

	// Active records are not reset again.
	reset, err = repo.Reactivate(ctx, record.ID, nextAt, now)
	require.NoError(t, err)
	assert.False(t, reset)
}

func TestMarkTerminalRejectsActiveState(t *testing.T) {
	db := setupTrackerTestDB(t)
	repo := NewRepository(db)

	err := repo.MarkTerminal(context.Background(), uuid.New(), enums.SequenceStateActive, time.Now().UTC())
	assert.Error(t, err)
}
