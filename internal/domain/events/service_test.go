package events_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/events"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/events/eventstest"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/ids"
)

type fixture struct {
	store *eventstest.Store
	svc   *events.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := eventstest.NewStore()
	return &fixture{
		store: store,
		svc:   events.NewService(store, zerolog.Nop()),
	}
}

func (f *fixture) user(t *testing.T, username string) events.Principal {
	t.Helper()
	ulid, err := ids.NewULID()
	require.NoError(t, err)
	id := f.store.AddUser(ulid, username)
	return events.Principal{ID: id, ULID: ulid}
}

func baseInput() events.CreateInput {
	return events.CreateInput{
		Title:       "Sprint planning",
		Description: "Quarterly planning session",
		StartTime:   time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2025, 7, 1, 11, 0, 0, 0, time.UTC),
	}
}

func TestCreate_WritesInitialVersion(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	ctx := context.Background()

	event, err := f.svc.Create(ctx, owner, baseInput())
	require.NoError(t, err)
	require.Equal(t, 1, event.VersionNumber)
	require.Equal(t, owner.ULID, event.OwnerULID)

	versions, err := f.svc.ListVersions(ctx, owner, event.ULID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, 1, versions[0].Number)
	require.Equal(t, "Initial version", versions[0].Description)
	require.Equal(t, owner.ULID, versions[0].CreatedBy)
	require.Equal(t, "Sprint planning", versions[0].Data["title"])

	entries, err := f.svc.Changelog(ctx, owner, event.ULID)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	ctx := context.Background()

	input := baseInput()
	input.Title = "   "
	_, err := f.svc.Create(ctx, owner, input)
	var validationErr events.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "title", validationErr.Field)

	input = baseInput()
	input.EndTime = input.StartTime
	_, err = f.svc.Create(ctx, owner, input)
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "end_time", validationErr.Field)

	input = baseInput()
	input.RecurrencePattern = map[string]any{"rrule": "FREQ=NONSENSE"}
	_, err = f.svc.Create(ctx, owner, input)
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "recurrence_pattern", validationErr.Field)
}

func TestCreate_ValidRecurrenceRule(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")

	input := baseInput()
	input.IsRecurring = true
	input.RecurrencePattern = map[string]any{"rrule": "FREQ=WEEKLY;BYDAY=TU", "timezone": "UTC"}

	event, err := f.svc.Create(context.Background(), owner, input)
	require.NoError(t, err)
	require.True(t, event.IsRecurring)
	require.Equal(t, "FREQ=WEEKLY;BYDAY=TU", event.RecurrencePattern["rrule"])
}

func TestCreate_RejectsOverlap(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	other := f.user(t, "bob")
	ctx := context.Background()

	_, err := f.svc.Create(ctx, owner, baseInput())
	require.NoError(t, err)

	// Same owner, half-open overlap.
	input := baseInput()
	input.StartTime = time.Date(2025, 7, 1, 10, 30, 0, 0, time.UTC)
	input.EndTime = time.Date(2025, 7, 1, 11, 30, 0, 0, time.UTC)
	_, err = f.svc.Create(ctx, owner, input)
	require.ErrorIs(t, err, events.ErrTimeConflict)

	// Back-to-back events touch at the boundary; [start, end) means no overlap.
	input = baseInput()
	input.StartTime = time.Date(2025, 7, 1, 11, 0, 0, 0, time.UTC)
	input.EndTime = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	_, err = f.svc.Create(ctx, owner, input)
	require.NoError(t, err)

	// A different owner can hold the same window.
	_, err = f.svc.Create(ctx, other, baseInput())
	require.NoError(t, err)
}

func TestUpdate_TitleRollbackScenario(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	ctx := context.Background()

	input := baseInput()
	input.Title = "A"
	event, err := f.svc.Create(ctx, owner, input)
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, owner, event.ULID, events.Patch{Title: events.Some("B")})
	require.NoError(t, err)
	require.Equal(t, 2, updated.VersionNumber)
	require.Equal(t, "B", updated.Title)

	entries, err := f.svc.Changelog(ctx, owner, event.ULID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "title", entries[0].FieldName)
	require.Equal(t, "A", entries[0].OldValue)
	require.Equal(t, "B", entries[0].NewValue)
	require.Equal(t, 2, entries[0].VersionNumber)

	rolled, err := f.svc.Rollback(ctx, owner, event.ULID, 1)
	require.NoError(t, err)
	require.Equal(t, 3, rolled.VersionNumber)
	require.Equal(t, "A", rolled.Title)

	version, err := f.svc.GetVersion(ctx, owner, event.ULID, 3)
	require.NoError(t, err)
	require.Equal(t, "Rolled back to version 1", version.Description)

	entries, err = f.svc.Changelog(ctx, owner, event.ULID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first: the rollback's delta diffs against version 2.
	require.Equal(t, "title", entries[0].FieldName)
	require.Equal(t, "B", entries[0].OldValue)
	require.Equal(t, "A", entries[0].NewValue)
	require.Equal(t, 3, entries[0].VersionNumber)

	diff, err := f.svc.Diff(ctx, owner, event.ULID, 1, 3)
	require.NoError(t, err)
	require.Empty(t, diff)

	diff, err = f.svc.Diff(ctx, owner, event.ULID, 1, 2)
	require.NoError(t, err)
	require.Len(t, diff, 1)
	require.Equal(t, "title", diff[0].FieldName)
	require.Equal(t, events.ChangeTypeModified, diff[0].ChangeType)
}

func TestUpdate_VersionNumbersContiguous(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	ctx := context.Background()

	event, err := f.svc.Create(ctx, owner, baseInput())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.svc.Update(ctx, owner, event.ULID, events.Patch{Description: events.Some(time.Now().String())})
		require.NoError(t, err)
	}

	versions, err := f.svc.ListVersions(ctx, owner, event.ULID)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	for i, version := range versions {
		require.Equal(t, i+1, version.Number)
	}
}

func TestUpdate_ConcurrentMutatorsKeepVersionsContiguous(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	editor := f.user(t, "bob")
	ctx := context.Background()

	event, err := f.svc.Create(ctx, owner, baseInput())
	require.NoError(t, err)
	_, err = f.svc.Share(ctx, owner, event.ULID, editor.ULID, events.RoleEditor)
	require.NoError(t, err)

	// Two principals race on the same event. The row lock taken inside each
	// transaction serializes them, so every update must commit with its own
	// version number and no gaps.
	const mutators = 8
	principals := [2]events.Principal{owner, editor}
	errs := make([]error, mutators)
	var wg sync.WaitGroup
	for i := 0; i < mutators; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Update(ctx, principals[i%2], event.ULID,
				events.Patch{Title: events.Some(fmt.Sprintf("Title %d", i))})
		}(i)
	}
	wg.Wait()

	for i, updateErr := range errs {
		require.NoError(t, updateErr, "mutator %d", i)
	}

	versions, err := f.svc.ListVersions(ctx, owner, event.ULID)
	require.NoError(t, err)
	require.Len(t, versions, mutators+1)
	for i, version := range versions {
		require.Equal(t, i+1, version.Number)
	}
}

func TestUpdate_Permissions(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	editor := f.user(t, "bob")
	viewer := f.user(t, "carol")
	stranger := f.user(t, "dave")
	ctx := context.Background()

	event, err := f.svc.Create(ctx, owner, baseInput())
	require.NoError(t, err)

	_, err = f.svc.Share(ctx, owner, event.ULID, editor.ULID, events.RoleEditor)
	require.NoError(t, err)
	_, err = f.svc.Share(ctx, owner, event.ULID, viewer.ULID, events.RoleViewer)
	require.NoError(t, err)

	patch := events.Patch{Title: events.Some("Renamed")}

	_, err = f.svc.Update(ctx, editor, event.ULID, patch)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, viewer, event.ULID, patch)
	require.ErrorIs(t, err, events.ErrForbidden)

	_, err = f.svc.Update(ctx, stranger, event.ULID, patch)
	require.ErrorIs(t, err, events.ErrForbidden)

	// Read access mirrors the hierarchy.
	_, err = f.svc.Get(ctx, viewer, event.ULID)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, stranger, event.ULID)
	require.ErrorIs(t, err, events.ErrForbidden)
}

func TestUpdate_OverlapChecksMergedInterval(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	ctx := context.Background()

	first, err := f.svc.Create(ctx, owner, baseInput())
	require.NoError(t, err)

	input := baseInput()
	input.Title = "Afternoon review"
	input.StartTime = time.Date(2025, 7, 1, 14, 0, 0, 0, time.UTC)
	input.EndTime = time.Date(2025, 7, 1, 15, 0, 0, 0, time.UTC)
	_, err = f.svc.Create(ctx, owner, input)
	require.NoError(t, err)

	// Shifting within the event's own window is not a self-conflict.
	_, err = f.svc.Update(ctx, owner, first.ULID, events.Patch{
		StartTime: events.Some(time.Date(2025, 7, 1, 10, 15, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	// Moving the end into the second event's window conflicts.
	_, err = f.svc.Update(ctx, owner, first.ULID, events.Patch{
		EndTime: events.Some(time.Date(2025, 7, 1, 14, 30, 0, 0, time.UTC)),
	})
	require.ErrorIs(t, err, events.ErrTimeConflict)
}

func TestRollback_UnknownVersion(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	ctx := context.Background()

	event, err := f.svc.Create(ctx, owner, baseInput())
	require.NoError(t, err)

	_, err = f.svc.Rollback(ctx, owner, event.ULID, 9)
	require.ErrorIs(t, err, events.ErrVersionNotFound)
}

func TestRollback_RequiresEditor(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	viewer := f.user(t, "bob")
	ctx := context.Background()

	event, err := f.svc.Create(ctx, owner, baseInput())
	require.NoError(t, err)
	_, err = f.svc.Share(ctx, owner, event.ULID, viewer.ULID, events.RoleViewer)
	require.NoError(t, err)

	_, err = f.svc.Rollback(ctx, viewer, event.ULID, 1)
	require.ErrorIs(t, err, events.ErrForbidden)
}

func TestRollback_RestoresNullableFields(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	ctx := context.Background()

	location := "Room 4"
	input := baseInput()
	input.Location = &location
	event, err := f.svc.Create(ctx, owner, input)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, owner, event.ULID, events.Patch{Location: events.Some[*string](nil)})
	require.NoError(t, err)

	current, err := f.svc.Get(ctx, owner, event.ULID)
	require.NoError(t, err)
	require.Nil(t, current.Location)

	rolled, err := f.svc.Rollback(ctx, owner, event.ULID, 1)
	require.NoError(t, err)
	require.NotNil(t, rolled.Location)
	require.Equal(t, "Room 4", *rolled.Location)
}

func TestDelete_OwnerOnlyAndCascade(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	editor := f.user(t, "bob")
	ctx := context.Background()

	event, err := f.svc.Create(ctx, owner, baseInput())
	require.NoError(t, err)
	_, err = f.svc.Share(ctx, owner, event.ULID, editor.ULID, events.RoleEditor)
	require.NoError(t, err)

	err = f.svc.Delete(ctx, editor, event.ULID)
	require.ErrorIs(t, err, events.ErrForbidden)

	err = f.svc.Delete(ctx, owner, event.ULID)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, owner, event.ULID)
	require.ErrorIs(t, err, events.ErrNotFound)
}

func TestShare_DuplicatesAndUnknownUsers(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	grantee := f.user(t, "bob")
	ctx := context.Background()

	event, err := f.svc.Create(ctx, owner, baseInput())
	require.NoError(t, err)

	permission, err := f.svc.Share(ctx, owner, event.ULID, grantee.ULID, events.RoleViewer)
	require.NoError(t, err)
	require.Equal(t, events.RoleViewer, permission.Role)
	require.Equal(t, grantee.ULID, permission.UserULID)

	_, err = f.svc.Share(ctx, owner, event.ULID, grantee.ULID, events.RoleEditor)
	require.ErrorIs(t, err, events.ErrDuplicatePermission)

	// Granting to the owner is redundant; they already hold owner rights.
	_, err = f.svc.Share(ctx, owner, event.ULID, owner.ULID, events.RoleEditor)
	require.ErrorIs(t, err, events.ErrDuplicatePermission)

	unknownULID, err := ids.NewULID()
	require.NoError(t, err)
	_, err = f.svc.Share(ctx, owner, event.ULID, unknownULID, events.RoleViewer)
	require.ErrorIs(t, err, events.ErrUserNotFound)

	// Only owners can grant.
	third := f.user(t, "carol")
	_, err = f.svc.Share(ctx, grantee, event.ULID, third.ULID, events.RoleViewer)
	require.ErrorIs(t, err, events.ErrForbidden)
}

func TestPermissions_UpdateAndRevoke(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	grantee := f.user(t, "bob")
	ctx := context.Background()

	event, err := f.svc.Create(ctx, owner, baseInput())
	require.NoError(t, err)
	_, err = f.svc.Share(ctx, owner, event.ULID, grantee.ULID, events.RoleViewer)
	require.NoError(t, err)

	updated, err := f.svc.UpdatePermission(ctx, owner, event.ULID, grantee.ULID, events.RoleEditor)
	require.NoError(t, err)
	require.Equal(t, events.RoleEditor, updated.Role)

	_, err = f.svc.Update(ctx, grantee, event.ULID, events.Patch{Title: events.Some("Renamed")})
	require.NoError(t, err)

	err = f.svc.RevokePermission(ctx, owner, event.ULID, grantee.ULID)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, grantee, event.ULID)
	require.ErrorIs(t, err, events.ErrForbidden)

	err = f.svc.RevokePermission(ctx, owner, event.ULID, grantee.ULID)
	require.ErrorIs(t, err, events.ErrPermissionNotFound)
}

func TestList_VisibleEvents(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	grantee := f.user(t, "bob")
	ctx := context.Background()

	mine, err := f.svc.Create(ctx, owner, baseInput())
	require.NoError(t, err)

	input := baseInput()
	input.StartTime = time.Date(2025, 7, 2, 10, 0, 0, 0, time.UTC)
	input.EndTime = time.Date(2025, 7, 2, 11, 0, 0, 0, time.UTC)
	shared, err := f.svc.Create(ctx, grantee, input)
	require.NoError(t, err)
	_, err = f.svc.Share(ctx, grantee, shared.ULID, owner.ULID, events.RoleViewer)
	require.NoError(t, err)

	visible, err := f.svc.List(ctx, owner, events.ListParams{})
	require.NoError(t, err)
	require.Len(t, visible, 2)

	ulids := []string{visible[0].ULID, visible[1].ULID}
	require.Contains(t, ulids, mine.ULID)
	require.Contains(t, ulids, shared.ULID)

	// The grantee sees only their own event plus nothing extra.
	visible, err = f.svc.List(ctx, grantee, events.ListParams{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, shared.ULID, visible[0].ULID)
}

func TestList_Pagination(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")
	ctx := context.Background()

	for day := 1; day <= 5; day++ {
		input := baseInput()
		input.StartTime = time.Date(2025, 7, day, 10, 0, 0, 0, time.UTC)
		input.EndTime = time.Date(2025, 7, day, 11, 0, 0, 0, time.UTC)
		_, err := f.svc.Create(ctx, owner, input)
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, owner, events.ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)

	rest, err := f.svc.List(ctx, owner, events.ListParams{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, rest, 1)

	beyond, err := f.svc.List(ctx, owner, events.ListParams{Offset: 10})
	require.NoError(t, err)
	require.Empty(t, beyond)

	// Zero params fall back to the default limit and return everything here.
	all, err := f.svc.List(ctx, owner, events.ListParams{})
	require.NoError(t, err)
	require.Len(t, all, 5)
}
