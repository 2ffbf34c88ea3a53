package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleEvent() *Event {
	location := "Main hall"
	return &Event{
		ID:          "internal-id",
		ULID:        "01J0000000000000000000000A",
		Title:       "Town meeting",
		Description: "Monthly sync",
		StartTime:   time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2025, 7, 1, 11, 0, 0, 0, time.UTC),
		Location:    &location,
		IsRecurring: true,
		RecurrencePattern: map[string]any{
			"rrule": "FREQ=MONTHLY",
			"count": 6,
		},
		OwnerID:   "owner-internal",
		OwnerULID: "01J0000000000000000000000B",
		CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestNewSnapshot_PublicIdentifiers(t *testing.T) {
	event := sampleEvent()
	snap := NewSnapshot(event)

	require.Equal(t, event.ULID, snap["id"])
	require.Equal(t, event.OwnerULID, snap["owner_id"])
	require.Equal(t, "Town meeting", snap["title"])
	require.Equal(t, "2025-07-01T10:00:00Z", snap["start_time"])
	require.Equal(t, "Main hall", snap["location"])

	// The pattern is normalized to decoded-JSON form on capture.
	pattern, ok := snap["recurrence_pattern"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(6), pattern["count"])
}

func TestSnapshot_ApplyAfterJSONRoundTrip(t *testing.T) {
	event := sampleEvent()
	snap := NewSnapshot(event)

	// Store and reload, as a jsonb column would.
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var loaded Snapshot
	require.NoError(t, json.Unmarshal(raw, &loaded))

	restored := &Event{
		ID:        event.ID,
		ULID:      event.ULID,
		OwnerID:   event.OwnerID,
		OwnerULID: event.OwnerULID,
	}
	require.NoError(t, loaded.Apply(restored))

	require.Equal(t, event.Title, restored.Title)
	require.Equal(t, event.Description, restored.Description)
	require.True(t, event.StartTime.Equal(restored.StartTime))
	require.True(t, event.EndTime.Equal(restored.EndTime))
	require.NotNil(t, restored.Location)
	require.Equal(t, *event.Location, *restored.Location)
	require.Equal(t, event.IsRecurring, restored.IsRecurring)
	require.Equal(t, "FREQ=MONTHLY", restored.RecurrencePattern["rrule"])

	// Identity fields are untouched even though the snapshot carries them.
	require.Equal(t, event.ID, restored.ID)
	require.Equal(t, event.OwnerID, restored.OwnerID)
}

func TestSnapshot_ApplyNullableFields(t *testing.T) {
	snap := Snapshot{
		"location":           nil,
		"recurrence_pattern": nil,
	}
	location := "somewhere"
	event := &Event{Location: &location, RecurrencePattern: map[string]any{"rrule": "FREQ=DAILY"}}

	require.NoError(t, snap.Apply(event))
	require.Nil(t, event.Location)
	require.Nil(t, event.RecurrencePattern)
}

func TestSnapshot_ApplyTypeMismatch(t *testing.T) {
	snap := Snapshot{"title": 42}
	err := snap.Apply(&Event{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "title")

	snap = Snapshot{"start_time": "not-a-time"}
	err = snap.Apply(&Event{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "start_time")
}

func TestIsStructuralField(t *testing.T) {
	for _, field := range []string{"id", "owner_id", "created_at", "updated_at"} {
		require.True(t, IsStructuralField(field), field)
	}
	for _, field := range []string{"title", "start_time", "location", "recurrence_pattern"} {
		require.False(t, IsStructuralField(field), field)
	}
}
