package enums

import "fmt"

// EmailAction maps to the email_action enum in Postgres. Actions are recorded
// append-only in the email event log.
type EmailAction string

const (
	EmailActionOpen        EmailAction = "open"
	EmailActionClick       EmailAction = "click"
	EmailActionBounce      EmailAction = "bounce"
	EmailActionComplaint   EmailAction = "complaint"
	EmailActionUnsubscribe EmailAction = "unsubscribe"
)

var validEmailActions = []EmailAction{
	EmailActionOpen,
	EmailActionClick,
	EmailActionBounce,
	EmailActionComplaint,
	EmailActionUnsubscribe,
}

// IsValid checks whether the given action matches the canonical enum.
func (a EmailAction) IsValid() bool {
	for _, candidate := range validEmailActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseEmailAction converts raw strings into EmailAction.
func ParseEmailAction(value string) (EmailAction, error) {
	for _, candidate := range validEmailActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid email action %q", value)
}

// BounceType distinguishes permanent from retryable delivery failures.
type BounceType string

const (
	BounceHard BounceType = "hard"
	BounceSoft BounceType = "soft"
)

// IsValid checks whether the given bounce type matches the canonical enum.
func (b BounceType) IsValid() bool {
	return b == BounceHard || b == BounceSoft
}
