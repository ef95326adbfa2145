package engine

import "time"

// Backoff returns the delay before the next retry attempt: base doubled per
// prior retry, capped at max. retryCount is the number of failures already
// recorded, so the first retry waits the base delay.
func Backoff(base, max time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
