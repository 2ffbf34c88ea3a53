package events

import "sort"

// FieldChange is one derived delta between two consecutive snapshots, before
// it is persisted as a changelog row.
type FieldChange struct {
	FieldName string
	OldValue  any
	NewValue  any
}

// ChangedFields derives the per-field deltas the new snapshot introduced over
// the previous one: every non-structural field of next that is absent from
// prev or carries a different value. Identical values never produce a change.
func ChangedFields(prev, next Snapshot) []FieldChange {
	changes := make([]FieldChange, 0)
	for field, newValue := range next {
		if IsStructuralField(field) {
			continue
		}
		oldValue, present := prev[field]
		if present && valueEqual(oldValue, newValue) {
			continue
		}
		if !present {
			oldValue = nil
		}
		changes = append(changes, FieldChange{
			FieldName: field,
			OldValue:  oldValue,
			NewValue:  newValue,
		})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].FieldName < changes[j].FieldName })
	return changes
}
