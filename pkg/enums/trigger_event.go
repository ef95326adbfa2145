package enums

import "fmt"

// TriggerEventType maps to the trigger_event_type enum in Postgres. It is the
// closed set of domain events that can start or advance a drip sequence.
type TriggerEventType string

const (
	TriggerUserSignup        TriggerEventType = "user_signup"
	TriggerPurchaseCompleted TriggerEventType = "purchase_completed"
	TriggerTagApplied        TriggerEventType = "tag_applied"
	TriggerFormSubmitted     TriggerEventType = "form_submitted"
	TriggerDateReached       TriggerEventType = "date_reached"
)

var validTriggerEventTypes = []TriggerEventType{
	TriggerUserSignup,
	TriggerPurchaseCompleted,
	TriggerTagApplied,
	TriggerFormSubmitted,
	TriggerDateReached,
}

// IsValid checks whether the given type matches the canonical enum.
func (t TriggerEventType) IsValid() bool {
	for _, candidate := range validTriggerEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTriggerEventType converts raw strings into TriggerEventType.
func ParseTriggerEventType(value string) (TriggerEventType, error) {
	for _, candidate := range validTriggerEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trigger event type %q", value)
}
