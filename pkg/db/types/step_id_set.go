package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// StepIDSet stores the set of already-delivered step ids as a JSON array.
// Insertion order is irrelevant; membership is what matters.
type StepIDSet []uuid.UUID

func (s *StepIDSet) Scan(src any) error {
	if src == nil {
		*s = StepIDSet{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("StepIDSet: unsupported Scan type %T", src)
	}

	if len(raw) == 0 {
		*s = StepIDSet{}
		return nil
	}
	var out []uuid.UUID
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("StepIDSet: decode %q: %w", raw, err)
	}
	*s = StepIDSet(out)
	return nil
}

func (s StepIDSet) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal([]uuid.UUID(s))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Contains reports whether the step id is already in the set.
func (s StepIDSet) Contains(id uuid.UUID) bool {
	for _, candidate := range s {
		if candidate == id {
			return true
		}
	}
	return false
}

// Add returns the set with the id appended, keeping membership unique.
func (s StepIDSet) Add(id uuid.UUID) StepIDSet {
	if s.Contains(id) {
		return s
	}
	return append(s, id)
}
