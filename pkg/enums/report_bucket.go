package enums

import "fmt"

// ReportBucket maps to the report_bucket enum in Postgres. A user id sits in
// exactly one bucket per sequence report at any time.
type ReportBucket string

const (
	BucketSubscribers   ReportBucket = "subscribers"
	BucketUnsubscribers ReportBucket = "unsubscribers"
	BucketFailed        ReportBucket = "failed"
)

var validReportBuckets = []ReportBucket{
	BucketSubscribers,
	BucketUnsubscribers,
	BucketFailed,
}

// IsValid checks whether the given bucket matches the canonical enum.
func (b ReportBucket) IsValid() bool {
	for _, candidate := range validReportBuckets {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseReportBucket converts raw strings into ReportBucket.
func ParseReportBucket(value string) (ReportBucket, error) {
	for _, candidate := range validReportBuckets {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid report bucket %q", value)
}
