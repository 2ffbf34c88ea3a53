package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffSnapshots_Classification(t *testing.T) {
	a := Snapshot{
		"title":       "A",
		"description": "same",
		"location":    "Room 1",
		"id":          "01AAAAAAAAAAAAAAAAAAAAAAAA",
	}
	b := Snapshot{
		"title":        "B",
		"description":  "same",
		"is_recurring": false,
		"id":           "01BBBBBBBBBBBBBBBBBBBBBBBB",
	}

	diffs := DiffSnapshots(a, b)
	require.Len(t, diffs, 3)

	// Sorted by field name: is_recurring, location, title.
	require.Equal(t, "is_recurring", diffs[0].FieldName)
	require.Equal(t, ChangeTypeAdded, diffs[0].ChangeType)
	require.Nil(t, diffs[0].OldValue)
	require.Equal(t, false, diffs[0].NewValue)

	require.Equal(t, "location", diffs[1].FieldName)
	require.Equal(t, ChangeTypeRemoved, diffs[1].ChangeType)
	require.Equal(t, "Room 1", diffs[1].OldValue)
	require.Nil(t, diffs[1].NewValue)

	require.Equal(t, "title", diffs[2].FieldName)
	require.Equal(t, ChangeTypeModified, diffs[2].ChangeType)
	require.Equal(t, "A", diffs[2].OldValue)
	require.Equal(t, "B", diffs[2].NewValue)
}

func TestDiffSnapshots_EqualSnapshotsEmpty(t *testing.T) {
	snap := Snapshot{
		"title":              "A",
		"recurrence_pattern": map[string]any{"rrule": "FREQ=DAILY", "count": float64(3)},
	}
	require.Empty(t, DiffSnapshots(snap, snap))
}

func TestDiffSnapshots_IgnoresStructuralFields(t *testing.T) {
	a := Snapshot{"id": "x", "owner_id": "u1", "created_at": "t1", "updated_at": "t1", "title": "A"}
	b := Snapshot{"id": "y", "owner_id": "u2", "created_at": "t2", "updated_at": "t2", "title": "A"}
	require.Empty(t, DiffSnapshots(a, b))
}

func TestDiffSnapshots_Antisymmetry(t *testing.T) {
	a := Snapshot{"title": "A", "location": "Room 1", "description": "d"}
	b := Snapshot{"title": "B", "is_recurring": true, "description": "d"}

	forward := DiffSnapshots(a, b)
	backward := DiffSnapshots(b, a)
	require.Equal(t, len(forward), len(backward))

	byField := make(map[string]DiffEntry, len(backward))
	for _, entry := range backward {
		byField[entry.FieldName] = entry
	}
	for _, entry := range forward {
		mirror := byField[entry.FieldName]
		require.Equal(t, entry.OldValue, mirror.NewValue, entry.FieldName)
		require.Equal(t, entry.NewValue, mirror.OldValue, entry.FieldName)
		switch entry.ChangeType {
		case ChangeTypeAdded:
			require.Equal(t, ChangeTypeRemoved, mirror.ChangeType, entry.FieldName)
		case ChangeTypeRemoved:
			require.Equal(t, ChangeTypeAdded, mirror.ChangeType, entry.FieldName)
		default:
			require.Equal(t, ChangeTypeModified, mirror.ChangeType, entry.FieldName)
		}
	}
}

func TestDiffSnapshots_NestedValueEquality(t *testing.T) {
	a := Snapshot{"recurrence_pattern": map[string]any{"rrule": "FREQ=DAILY", "count": float64(3)}}
	b := Snapshot{"recurrence_pattern": map[string]any{"count": float64(3), "rrule": "FREQ=DAILY"}}
	// Key order does not matter for structural equality.
	require.Empty(t, DiffSnapshots(a, b))

	c := Snapshot{"recurrence_pattern": map[string]any{"rrule": "FREQ=WEEKLY", "count": float64(3)}}
	diffs := DiffSnapshots(a, c)
	require.Len(t, diffs, 1)
	require.Equal(t, ChangeTypeModified, diffs[0].ChangeType)
}
