package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/pkg/enums"
)

// SequenceReport rolls up per-sequence observability state. For broadcast
// sequences LockedAt is the one-shot claim and SentAt marks completion.
type SequenceReport struct {
	ID                uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DomainID          uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_report_sequence,priority:1"`
	SequenceID        uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_report_sequence,priority:2"`
	BroadcastLockedAt *time.Time            `gorm:"type:timestamptz"`
	BroadcastSentAt   *time.Time            `gorm:"type:timestamptz"`
	Entries           []SequenceReportEntry `gorm:"foreignKey:ReportID"`
	CreatedAt         time.Time             `gorm:"type:timestamptz;default:now()"`
	UpdatedAt         time.Time             `gorm:"type:timestamptz;default:now()"`
}

// SequenceReportEntry places one user id in exactly one report bucket.
type SequenceReportEntry struct {
	ID        uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ReportID  uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_report_entry_user,priority:1"`
	UserID    uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_report_entry_user,priority:2"`
	Bucket    enums.ReportBucket `gorm:"type:report_bucket;not null"`
	CreatedAt time.Time          `gorm:"type:timestamptz;default:now()"`
	UpdatedAt time.Time          `gorm:"type:timestamptz;default:now()"`
}
