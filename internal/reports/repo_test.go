package reports

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dripwire/dripwire-backend/pkg/enums"
)

func setupReportsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	reports := `
CREATE TABLE IF NOT EXISTS sequence_reports (
  id TEXT PRIMARY KEY,
  domain_id TEXT NOT NULL,
  sequence_id TEXT NOT NULL,
  broadcast_locked_at DATETIME,
  broadcast_sent_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (domain_id, sequence_id)
);`
	entries := `
CREATE TABLE IF NOT EXISTS sequence_report_entries (
  id TEXT PRIMARY KEY,
  report_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  bucket TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (report_id, user_id)
);`
	require.NoError(t, db.Exec(reports).Error)
	require.NoError(t, db.Exec(entries).Error)
	return db
}

func TestEnsureConvergesOnOneReport(t *testing.T) {
	db := setupReportsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	domainID, sequenceID := uuid.New(), uuid.New()
	first, err := repo.Ensure(ctx, domainID, sequenceID)
	require.NoError(t, err)
	second, err := repo.Ensure(ctx, domainID, sequenceID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestPlaceUserMovesBetweenBuckets(t *testing.T) {
	db := setupReportsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	report, err := repo.Ensure(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	userID := uuid.New()

	require.NoError(t, repo.PlaceUser(ctx, report.ID, userID, enums.BucketSubscribers, now))
	require.NoError(t, repo.PlaceUser(ctx, report.ID, userID, enums.BucketUnsubscribers, now))

	got, err := repo.Get(ctx, report.DomainID, report.SequenceID)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1, "a user occupies exactly one bucket")
	assert.Equal(t, enums.BucketUnsubscribers, got.Entries[0].Bucket)
}

func TestClaimBroadcastLockWinsOnce(t *testing.T) {
	db := setupReportsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	report, err := repo.Ensure(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)

	won, err := repo.ClaimBroadcastLock(ctx, report.ID, now)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.ClaimBroadcastLock(ctx, report.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, repo.MarkBroadcastSent(ctx, report.ID, now.Add(time.Minute)))
	got, err := repo.Get(ctx, report.DomainID, report.SequenceID)
	require.NoError(t, err)
	assert.NotNil(t, got.BroadcastLockedAt)
	assert.NotNil(t, got.BroadcastSentAt)
}
