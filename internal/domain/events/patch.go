package events

import (
	"encoding/json"
	"time"
)

// Optional is a partial-update slot that distinguishes "absent from the
// payload" from "explicitly set" (including set to null for nullable fields).
type Optional[T any] struct {
	value T
	set   bool
}

func Some[T any](value T) Optional[T] {
	return Optional[T]{value: value, set: true}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

func (o Optional[T]) IsSet() bool {
	return o.set
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &o.value); err != nil {
		return err
	}
	o.set = true
	return nil
}

// Patch is a typed partial update for an event. Only fields present in the
// request payload are applied; the field set is the allow-list of mutable
// event attributes.
type Patch struct {
	Title             Optional[string]         `json:"title"`
	Description       Optional[string]         `json:"description"`
	StartTime         Optional[time.Time]      `json:"start_time"`
	EndTime           Optional[time.Time]      `json:"end_time"`
	Location          Optional[*string]        `json:"location"`
	IsRecurring       Optional[bool]           `json:"is_recurring"`
	RecurrencePattern Optional[map[string]any] `json:"recurrence_pattern"`
}

func (p Patch) IsEmpty() bool {
	return !p.Title.set && !p.Description.set && !p.StartTime.set && !p.EndTime.set &&
		!p.Location.set && !p.IsRecurring.set && !p.RecurrencePattern.set
}

// Apply copies the set fields onto the event. Timestamps are normalized to
// UTC microsecond precision, matching timestamptz storage resolution.
func (p Patch) Apply(e *Event) {
	if value, ok := p.Title.Get(); ok {
		e.Title = value
	}
	if value, ok := p.Description.Get(); ok {
		e.Description = value
	}
	if value, ok := p.StartTime.Get(); ok {
		e.StartTime = normalizeTime(value)
	}
	if value, ok := p.EndTime.Get(); ok {
		e.EndTime = normalizeTime(value)
	}
	if value, ok := p.Location.Get(); ok {
		e.Location = value
	}
	if value, ok := p.IsRecurring.Get(); ok {
		e.IsRecurring = value
	}
	if value, ok := p.RecurrencePattern.Get(); ok {
		e.RecurrencePattern = value
	}
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
