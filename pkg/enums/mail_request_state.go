package enums

import "fmt"

// MailRequestState maps to the mail_request_state enum in Postgres. Ad-hoc
// mail requests share the engine's failure vocabulary without joining the
// sequence state machine.
type MailRequestState string

const (
	MailRequestPending MailRequestState = "pending"
	MailRequestSent    MailRequestState = "sent"
	MailRequestFailed  MailRequestState = "failed"
)

var validMailRequestStates = []MailRequestState{
	MailRequestPending,
	MailRequestSent,
	MailRequestFailed,
}

// IsValid checks whether the given state matches the canonical enum.
func (m MailRequestState) IsValid() bool {
	for _, candidate := range validMailRequestStates {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMailRequestState converts raw strings into MailRequestState.
func ParseMailRequestState(value string) (MailRequestState, error) {
	for _, candidate := range validMailRequestStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mail request state %q", value)
}
