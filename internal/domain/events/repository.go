package events

import (
	"context"
	"time"
)

type Event struct {
	ID                string
	ULID              string
	Title             string
	Description       string
	StartTime         time.Time
	EndTime           time.Time
	Location          *string
	IsRecurring       bool
	RecurrencePattern map[string]any
	OwnerID           string
	OwnerULID         string
	VersionNumber     int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Version is an immutable full snapshot of an event after one mutation.
type Version struct {
	ID          string
	EventID     string
	Number      int
	Data        Snapshot
	Description string
	CreatedBy   string // acting user's ULID
	CreatedAt   time.Time
}

// ChangeEntry is one recorded field-level delta, tied to the version that
// introduced it.
type ChangeEntry struct {
	ID            string
	EventID       string
	VersionID     string
	VersionNumber int
	FieldName     string
	OldValue      any
	NewValue      any
	CreatedBy     string // acting user's ULID
	CreatedAt     time.Time
}

type Permission struct {
	ID        string
	EventID   string
	UserID    string
	UserULID  string
	Username  string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventCreateParams struct {
	ULID              string
	Title             string
	Description       string
	StartTime         time.Time
	EndTime           time.Time
	Location          *string
	IsRecurring       bool
	RecurrencePattern map[string]any
	OwnerID           string
}

type VersionCreateParams struct {
	EventID     string
	Number      int
	Data        Snapshot
	Description string
	CreatedByID string
}

type ChangeEntryCreateParams struct {
	EventID     string
	VersionID   string
	FieldName   string
	OldValue    any
	NewValue    any
	CreatedByID string
}

type PermissionCreateParams struct {
	EventID string
	UserID  string
	Role    Role
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ListParams bounds a visible-events listing. A zero Limit falls back to
// DefaultListLimit.
type ListParams struct {
	Limit  int
	Offset int
}

func (p ListParams) normalized() ListParams {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type Repository interface {
	Create(ctx context.Context, params EventCreateParams) (*Event, error)
	GetByULID(ctx context.Context, ulid string) (*Event, error)
	// GetForUpdate re-reads an event by internal id while holding a row lock
	// for the remainder of the surrounding transaction.
	GetForUpdate(ctx context.Context, id string) (*Event, error)
	Update(ctx context.Context, event *Event) (*Event, error)
	Delete(ctx context.Context, id string) error
	ListVisibleTo(ctx context.Context, userID string, params ListParams) ([]Event, error)
	CountOverlapping(ctx context.Context, ownerID string, start, end time.Time, excludeEventID string) (int, error)

	InsertVersion(ctx context.Context, params VersionCreateParams) (*Version, error)
	GetVersion(ctx context.Context, eventID string, number int) (*Version, error)
	LatestVersion(ctx context.Context, eventID string) (*Version, error)
	ListVersions(ctx context.Context, eventID string) ([]Version, error)

	InsertChangeEntries(ctx context.Context, entries []ChangeEntryCreateParams) error
	ListChangelog(ctx context.Context, eventID string) ([]ChangeEntry, error)

	GetPermission(ctx context.Context, eventID, userID string) (*Permission, error)
	InsertPermission(ctx context.Context, params PermissionCreateParams) (*Permission, error)
	UpdatePermissionRole(ctx context.Context, eventID, userID string, role Role) (*Permission, error)
	DeletePermission(ctx context.Context, eventID, userID string) error
	ListPermissions(ctx context.Context, eventID string) ([]Permission, error)

	ResolveUserULID(ctx context.Context, ulid string) (string, error)
}

// Store is a Repository that can also run a function inside one transaction.
// The Repository passed to fn is scoped to that transaction.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
