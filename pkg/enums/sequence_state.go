package enums

import "fmt"

// SequenceState maps to the sequence_state enum in Postgres. It tracks a
// subscriber's progress record against one sequence. Active is the only
// state the scheduler picks up; the other three are terminal.
type SequenceState string

const (
	SequenceStateActive       SequenceState = "active"
	SequenceStateComplete     SequenceState = "complete"
	SequenceStateFailed       SequenceState = "failed"
	SequenceStateUnsubscribed SequenceState = "unsubscribed"
)

var validSequenceStates = []SequenceState{
	SequenceStateActive,
	SequenceStateComplete,
	SequenceStateFailed,
	SequenceStateUnsubscribed,
}

// IsValid checks whether the given state matches the canonical enum.
func (s SequenceState) IsValid() bool {
	for _, candidate := range validSequenceStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the scheduler must never pick up the record again.
func (s SequenceState) IsTerminal() bool {
	return s == SequenceStateComplete || s == SequenceStateFailed || s == SequenceStateUnsubscribed
}

// ParseSequenceState converts raw strings into SequenceState.
func ParseSequenceState(value string) (SequenceState, error) {
	for _, candidate := range validSequenceStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sequence state %q", value)
}
