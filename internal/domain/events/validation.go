package events

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ValidationError{Field: "title", Message: "must not be empty"}
	}
	return nil
}

func validateInterval(start, end time.Time) error {
	if start.IsZero() {
		return ValidationError{Field: "start_time", Message: "must be set"}
	}
	if end.IsZero() {
		return ValidationError{Field: "end_time", Message: "must be set"}
	}
	if !start.Before(end) {
		return ValidationError{Field: "end_time", Message: "must be after start_time"}
	}
	return nil
}

// validateRecurrence treats the recurrence pattern as an opaque map, with one
// exception: an "rrule" key must hold a parseable RFC 5545 recurrence rule.
func validateRecurrence(pattern map[string]any) error {
	if pattern == nil {
		return nil
	}
	raw, ok := pattern["rrule"]
	if !ok {
		return nil
	}
	value, ok := raw.(string)
	if !ok {
		return ValidationError{Field: "recurrence_pattern", Message: "rrule must be a string"}
	}
	if _, err := rrule.StrToRRule(value); err != nil {
		return ValidationError{Field: "recurrence_pattern", Message: "invalid rrule: " + err.Error()}
	}
	return nil
}
