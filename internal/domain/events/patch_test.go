package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPatch_UnmarshalDistinguishesAbsentFromNull(t *testing.T) {
	var patch Patch
	require.NoError(t, json.Unmarshal([]byte(`{"title":"New","location":null}`), &patch))

	title, ok := patch.Title.Get()
	require.True(t, ok)
	require.Equal(t, "New", title)

	location, ok := patch.Location.Get()
	require.True(t, ok)
	require.Nil(t, location)

	require.False(t, patch.Description.IsSet())
	require.False(t, patch.StartTime.IsSet())
	require.False(t, patch.IsEmpty())
}

func TestPatch_EmptyPayload(t *testing.T) {
	var patch Patch
	require.NoError(t, json.Unmarshal([]byte(`{}`), &patch))
	require.True(t, patch.IsEmpty())
}

func TestPatch_ApplyOnlySetFields(t *testing.T) {
	location := "Old room"
	event := &Event{
		Title:       "Old title",
		Description: "Old description",
		StartTime:   time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2025, 7, 1, 11, 0, 0, 0, time.UTC),
		Location:    &location,
	}

	patch := Patch{
		Title:    Some("New title"),
		Location: Some[*string](nil),
	}
	patch.Apply(event)

	require.Equal(t, "New title", event.Title)
	require.Equal(t, "Old description", event.Description)
	require.Nil(t, event.Location)
	require.Equal(t, time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC), event.StartTime)
}

func TestPatch_ApplyNormalizesTimes(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := &Event{}

	patch := Patch{
		StartTime: Some(time.Date(2025, 7, 1, 12, 0, 0, 123456789, loc)),
	}
	patch.Apply(event)

	require.Equal(t, time.UTC, event.StartTime.Location())
	require.Equal(t, time.Date(2025, 7, 1, 10, 0, 0, 123456000, time.UTC), event.StartTime)
}
