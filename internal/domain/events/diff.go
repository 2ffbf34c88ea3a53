package events

import (
	"bytes"
	"encoding/json"
	"sort"
)

type ChangeType string

const (
	ChangeTypeAdded    ChangeType = "added"
	ChangeTypeModified ChangeType = "modified"
	ChangeTypeRemoved  ChangeType = "removed"
)

type DiffEntry struct {
	FieldName  string     `json:"field_name"`
	OldValue   any        `json:"old_value"`
	NewValue   any        `json:"new_value"`
	ChangeType ChangeType `json:"change_type"`
}

// DiffSnapshots computes the field-level delta between two snapshots. A field
// present in b but not a is "added", present in a but not b is "removed",
// present in both with different values is "modified". Structural fields are
// never reported. Entries are sorted by field name; equal values produce
// nothing.
func DiffSnapshots(a, b Snapshot) []DiffEntry {
	diffs := make([]DiffEntry, 0)
	for field, newValue := range b {
		if IsStructuralField(field) {
			continue
		}
		oldValue, present := a[field]
		if !present {
			diffs = append(diffs, DiffEntry{
				FieldName:  field,
				NewValue:   newValue,
				ChangeType: ChangeTypeAdded,
			})
			continue
		}
		if !valueEqual(oldValue, newValue) {
			diffs = append(diffs, DiffEntry{
				FieldName:  field,
				OldValue:   oldValue,
				NewValue:   newValue,
				ChangeType: ChangeTypeModified,
			})
		}
	}
	for field, oldValue := range a {
		if IsStructuralField(field) {
			continue
		}
		if _, present := b[field]; !present {
			diffs = append(diffs, DiffEntry{
				FieldName:  field,
				OldValue:   oldValue,
				ChangeType: ChangeTypeRemoved,
			})
		}
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].FieldName < diffs[j].FieldName })
	return diffs
}

// valueEqual compares two decoded JSON values structurally by comparing their
// canonical serialized forms (encoding/json sorts object keys).
func valueEqual(a, b any) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(rawA, rawB)
}
