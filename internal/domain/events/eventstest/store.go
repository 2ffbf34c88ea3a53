// Package eventstest provides an in-memory events.Store for tests.
package eventstest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/events"
)

type storedUser struct {
	id       string
	ulid     string
	username string
}

// Store implements events.Store backed by maps. Snapshot data is round-tripped
// through JSON on insert, matching how jsonb columns decode. GetForUpdate
// inside WithTx takes a per-event lock that is held until the transaction
// function returns, mirroring SELECT ... FOR UPDATE row-lock semantics.
type Store struct {
	mu          sync.Mutex
	events      map[string]*events.Event
	versions    map[string][]*events.Version
	changelog   map[string][]*events.ChangeEntry
	permissions map[string]map[string]*events.Permission
	users       map[string]storedUser // keyed by ULID
	rowLocks    map[string]*sync.Mutex
	now         time.Time
}

func NewStore() *Store {
	return &Store{
		events:      make(map[string]*events.Event),
		versions:    make(map[string][]*events.Version),
		changelog:   make(map[string][]*events.ChangeEntry),
		permissions: make(map[string]map[string]*events.Permission),
		users:       make(map[string]storedUser),
		rowLocks:    make(map[string]*sync.Mutex),
		now:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// AddUser registers a user the store can resolve by ULID. Returns the
// generated internal id.
func (s *Store) AddUser(ulid, username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.users[ulid] = storedUser{id: id, ulid: ulid, username: username}
	return id
}

// tick advances the store clock so successive writes get distinct timestamps.
func (s *Store) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, events.Repository) error) error {
	t := &storeTx{Store: s}
	defer t.releaseLocks()
	return fn(ctx, t)
}

// storeTx scopes row locks to one WithTx call. GetForUpdate blocks until the
// event's lock is free and keeps it until the transaction function returns.
type storeTx struct {
	*Store
	held []*sync.Mutex
}

func (t *storeTx) GetForUpdate(ctx context.Context, id string) (*events.Event, error) {
	lock := t.Store.rowLock(id)
	lock.Lock()
	t.held = append(t.held, lock)
	return t.Store.GetForUpdate(ctx, id)
}

func (t *storeTx) releaseLocks() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
}

func (s *Store) rowLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.rowLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.rowLocks[id] = lock
	}
	return lock
}

func (s *Store) Create(ctx context.Context, params events.EventCreateParams) (*events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	event := &events.Event{
		ID:                uuid.NewString(),
		ULID:              params.ULID,
		Title:             params.Title,
		Description:       params.Description,
		StartTime:         params.StartTime,
		EndTime:           params.EndTime,
		Location:          cloneStringPtr(params.Location),
		IsRecurring:       params.IsRecurring,
		RecurrencePattern: cloneMap(params.RecurrencePattern),
		OwnerID:           params.OwnerID,
		OwnerULID:         s.ulidForID(params.OwnerID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.events[event.ID] = event
	return cloneEvent(event), nil
}

func (s *Store) GetByULID(ctx context.Context, ulid string) (*events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.ULID == ulid {
			clone := cloneEvent(event)
			clone.VersionNumber = len(s.versions[event.ID])
			return clone, nil
		}
	}
	return nil, events.ErrNotFound
}

func (s *Store) GetForUpdate(ctx context.Context, id string) (*events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	return cloneEvent(event), nil
}

func (s *Store) Update(ctx context.Context, event *events.Event) (*events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.events[event.ID]
	if !ok {
		return nil, events.ErrNotFound
	}
	stored.Title = event.Title
	stored.Description = event.Description
	stored.StartTime = event.StartTime
	stored.EndTime = event.EndTime
	stored.Location = cloneStringPtr(event.Location)
	stored.IsRecurring = event.IsRecurring
	stored.RecurrencePattern = cloneMap(event.RecurrencePattern)
	stored.UpdatedAt = s.tick()
	return cloneEvent(stored), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return events.ErrNotFound
	}
	delete(s.events, id)
	delete(s.versions, id)
	delete(s.changelog, id)
	delete(s.permissions, id)
	return nil
}

func (s *Store) ListVisibleTo(ctx context.Context, userID string, params events.ListParams) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := make([]events.Event, 0)
	for _, event := range s.events {
		if event.OwnerID == userID || s.permissions[event.ID][userID] != nil {
			clone := cloneEvent(event)
			clone.VersionNumber = len(s.versions[event.ID])
			visible = append(visible, *clone)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		if !visible[i].StartTime.Equal(visible[j].StartTime) {
			return visible[i].StartTime.Before(visible[j].StartTime)
		}
		return visible[i].ULID < visible[j].ULID
	})
	if params.Offset >= len(visible) {
		return []events.Event{}, nil
	}
	visible = visible[params.Offset:]
	if params.Limit > 0 && params.Limit < len(visible) {
		visible = visible[:params.Limit]
	}
	return visible, nil
}

func (s *Store) CountOverlapping(ctx context.Context, ownerID string, start, end time.Time, excludeEventID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, event := range s.events {
		if event.OwnerID != ownerID || event.ID == excludeEventID {
			continue
		}
		if event.StartTime.Before(end) && event.EndTime.After(start) {
			count++
		}
	}
	return count, nil
}

func (s *Store) InsertVersion(ctx context.Context, params events.VersionCreateParams) (*events.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.versions[params.EventID] {
		if existing.Number == params.Number {
			return nil, fmt.Errorf("duplicate version %d for event %s", params.Number, params.EventID)
		}
	}
	version := &events.Version{
		ID:          uuid.NewString(),
		EventID:     params.EventID,
		Number:      params.Number,
		Data:        roundTripSnapshot(params.Data),
		Description: params.Description,
		CreatedBy:   s.ulidForID(params.CreatedByID),
		CreatedAt:   s.tick(),
	}
	s.versions[params.EventID] = append(s.versions[params.EventID], version)
	return cloneVersion(version), nil
}

func (s *Store) GetVersion(ctx context.Context, eventID string, number int) (*events.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, version := range s.versions[eventID] {
		if version.Number == number {
			return cloneVersion(version), nil
		}
	}
	return nil, events.ErrVersionNotFound
}

func (s *Store) LatestVersion(ctx context.Context, eventID string) (*events.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.versions[eventID]
	if len(stored) == 0 {
		return nil, events.ErrVersionNotFound
	}
	latest := stored[0]
	for _, version := range stored[1:] {
		if version.Number > latest.Number {
			latest = version
		}
	}
	return cloneVersion(latest), nil
}

func (s *Store) ListVersions(ctx context.Context, eventID string) ([]events.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.versions[eventID]
	out := make([]events.Version, 0, len(stored))
	for _, version := range stored {
		out = append(out, *cloneVersion(version))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *Store) InsertChangeEntries(ctx context.Context, entries []events.ChangeEntryCreateParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, params := range entries {
		number := 0
		for _, version := range s.versions[params.EventID] {
			if version.ID == params.VersionID {
				number = version.Number
			}
		}
		entry := &events.ChangeEntry{
			ID:            uuid.NewString(),
			EventID:       params.EventID,
			VersionID:     params.VersionID,
			VersionNumber: number,
			FieldName:     params.FieldName,
			OldValue:      roundTripValue(params.OldValue),
			NewValue:      roundTripValue(params.NewValue),
			CreatedBy:     s.ulidForID(params.CreatedByID),
			CreatedAt:     s.tick(),
		}
		s.changelog[params.EventID] = append(s.changelog[params.EventID], entry)
	}
	return nil
}

func (s *Store) ListChangelog(ctx context.Context, eventID string) ([]events.ChangeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.changelog[eventID]
	out := make([]events.ChangeEntry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- { // newest first
		out = append(out, *stored[i])
	}
	return out, nil
}

func (s *Store) GetPermission(ctx context.Context, eventID, userID string) (*events.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	permission := s.permissions[eventID][userID]
	if permission == nil {
		return nil, events.ErrPermissionNotFound
	}
	clone := *permission
	return &clone, nil
}

func (s *Store) InsertPermission(ctx context.Context, params events.PermissionCreateParams) (*events.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permissions[params.EventID] == nil {
		s.permissions[params.EventID] = make(map[string]*events.Permission)
	}
	if s.permissions[params.EventID][params.UserID] != nil {
		return nil, events.ErrDuplicatePermission
	}
	now := s.tick()
	permission := &events.Permission{
		ID:        uuid.NewString(),
		EventID:   params.EventID,
		UserID:    params.UserID,
		UserULID:  s.ulidForID(params.UserID),
		Username:  s.usernameForID(params.UserID),
		Role:      params.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.permissions[params.EventID][params.UserID] = permission
	clone := *permission
	return &clone, nil
}

func (s *Store) UpdatePermissionRole(ctx context.Context, eventID, userID string, role events.Role) (*events.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	permission := s.permissions[eventID][userID]
	if permission == nil {
		return nil, events.ErrPermissionNotFound
	}
	permission.Role = role
	permission.UpdatedAt = s.tick()
	clone := *permission
	return &clone, nil
}

func (s *Store) DeletePermission(ctx context.Context, eventID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permissions[eventID][userID] == nil {
		return events.ErrPermissionNotFound
	}
	delete(s.permissions[eventID], userID)
	return nil
}

func (s *Store) ListPermissions(ctx context.Context, eventID string) ([]events.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Permission, 0)
	for _, permission := range s.permissions[eventID] {
		out = append(out, *permission)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ResolveUserULID(ctx context.Context, ulid string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[ulid]
	if !ok {
		return "", events.ErrUserNotFound
	}
	return user.id, nil
}

func (s *Store) ulidForID(id string) string {
	for _, user := range s.users {
		if user.id == id {
			return user.ulid
		}
	}
	return ""
}

func (s *Store) usernameForID(id string) string {
	for _, user := range s.users {
		if user.id == id {
			return user.username
		}
	}
	return ""
}

func cloneEvent(event *events.Event) *events.Event {
	clone := *event
	clone.Location = cloneStringPtr(event.Location)
	clone.RecurrencePattern = cloneMap(event.RecurrencePattern)
	return &clone
}

func cloneVersion(version *events.Version) *events.Version {
	clone := *version
	clone.Data = roundTripSnapshot(version.Data)
	return &clone
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneMap(value map[string]any) map[string]any {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var clone map[string]any
	if err := json.Unmarshal(raw, &clone); err != nil {
		return value
	}
	return clone
}

func roundTripSnapshot(data events.Snapshot) events.Snapshot {
	return events.Snapshot(cloneMap(map[string]any(data)))
}

func roundTripValue(value any) any {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var clone any
	if err := json.Unmarshal(raw, &clone); err != nil {
		return value
	}
	return clone
}
