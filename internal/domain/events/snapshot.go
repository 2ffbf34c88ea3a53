package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the full serialized copy of an event's field values at one
// point in time, stored as a JSON object. Values are kept in their decoded
// JSON representation so snapshots loaded from storage compare equal to
// snapshots derived in memory.
type Snapshot map[string]any

// structuralFields are identity and bookkeeping attributes. They are carried
// in snapshots for display but never produce changelog or diff entries, and
// rollback never copies them onto the live event.
var structuralFields = map[string]struct{}{
	"id":         {},
	"owner_id":   {},
	"created_at": {},
	"updated_at": {},
}

func IsStructuralField(name string) bool {
	_, ok := structuralFields[name]
	return ok
}

const snapshotTimeFormat = time.RFC3339Nano

// NewSnapshot captures the event's current field state. Public ULIDs stand in
// for database identity so snapshots are meaningful to API clients.
func NewSnapshot(e *Event) Snapshot {
	snap := Snapshot{
		"id":                 e.ULID,
		"title":              e.Title,
		"description":        e.Description,
		"start_time":         e.StartTime.UTC().Format(snapshotTimeFormat),
		"end_time":           e.EndTime.UTC().Format(snapshotTimeFormat),
		"location":           nil,
		"is_recurring":       e.IsRecurring,
		"recurrence_pattern": nil,
		"owner_id":           e.OwnerULID,
		"created_at":         e.CreatedAt.UTC().Format(snapshotTimeFormat),
		"updated_at":         e.UpdatedAt.UTC().Format(snapshotTimeFormat),
	}
	if e.Location != nil {
		snap["location"] = *e.Location
	}
	if e.RecurrencePattern != nil {
		snap["recurrence_pattern"] = normalizeValue(e.RecurrencePattern)
	}
	return snap
}

// Apply copies every tracked content field present in the snapshot onto the
// event. Structural fields are skipped.
func (s Snapshot) Apply(e *Event) error {
	if raw, ok := s["title"]; ok {
		value, ok := raw.(string)
		if !ok {
			return fmt.Errorf("snapshot field title: expected string, got %T", raw)
		}
		e.Title = value
	}
	if raw, ok := s["description"]; ok {
		value, ok := raw.(string)
		if !ok {
			return fmt.Errorf("snapshot field description: expected string, got %T", raw)
		}
		e.Description = value
	}
	if raw, ok := s["start_time"]; ok {
		parsed, err := parseSnapshotTime("start_time", raw)
		if err != nil {
			return err
		}
		e.StartTime = parsed
	}
	if raw, ok := s["end_time"]; ok {
		parsed, err := parseSnapshotTime("end_time", raw)
		if err != nil {
			return err
		}
		e.EndTime = parsed
	}
	if raw, ok := s["location"]; ok {
		switch value := raw.(type) {
		case nil:
			e.Location = nil
		case string:
			location := value
			e.Location = &location
		default:
			return fmt.Errorf("snapshot field location: expected string or null, got %T", raw)
		}
	}
	if raw, ok := s["is_recurring"]; ok {
		value, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("snapshot field is_recurring: expected bool, got %T", raw)
		}
		e.IsRecurring = value
	}
	if raw, ok := s["recurrence_pattern"]; ok {
		switch value := raw.(type) {
		case nil:
			e.RecurrencePattern = nil
		case map[string]any:
			e.RecurrencePattern = value
		default:
			return fmt.Errorf("snapshot field recurrence_pattern: expected object or null, got %T", raw)
		}
	}
	return nil
}

func parseSnapshotTime(field string, raw any) (time.Time, error) {
	value, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("snapshot field %s: expected string, got %T", field, raw)
	}
	parsed, err := time.Parse(snapshotTimeFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot field %s: %w", field, err)
	}
	return parsed.UTC(), nil
}

// normalizeValue round-trips a value through JSON so nested maps and numbers
// take their canonical decoded form (map[string]any, float64).
func normalizeValue(value any) any {
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return value
	}
	return normalized
}
