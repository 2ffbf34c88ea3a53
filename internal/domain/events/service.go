package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/ids"
)

// Principal is the authenticated identity acting on an event. Identity
// verification happens upstream; the service trusts it.
type Principal struct {
	ID   string // internal user id
	ULID string // public user id
}

type CreateInput struct {
	Title             string
	Description       string
	StartTime         time.Time
	EndTime           time.Time
	Location          *string
	IsRecurring       bool
	RecurrencePattern map[string]any
}

const (
	descInitialVersion = "Initial version"
	descEventUpdated   = "Event updated"
)

// Service sequences event mutations: each create, update, and rollback runs
// inside one transaction covering authorization, the field mutation, the
// version snapshot, and the changelog rows.
type Service struct {
	store  Store
	logger zerolog.Logger
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, p Principal, input CreateInput) (*Event, error) {
	if err := validateTitle(input.Title); err != nil {
		return nil, err
	}
	start := normalizeTime(input.StartTime)
	end := normalizeTime(input.EndTime)
	if err := validateInterval(start, end); err != nil {
		return nil, err
	}
	if err := validateRecurrence(input.RecurrencePattern); err != nil {
		return nil, err
	}

	eventULID, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint event ulid: %w", err)
	}

	var created *Event
	err = s.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		overlapping, err := repo.CountOverlapping(ctx, p.ID, start, end, "")
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return ErrTimeConflict
		}

		event, err := repo.Create(ctx, EventCreateParams{
			ULID:              eventULID,
			Title:             input.Title,
			Description:       input.Description,
			StartTime:         start,
			EndTime:           end,
			Location:          input.Location,
			IsRecurring:       input.IsRecurring,
			RecurrencePattern: input.RecurrencePattern,
			OwnerID:           p.ID,
		})
		if err != nil {
			return err
		}

		if _, err := s.writeVersion(ctx, repo, event, p, 1, descInitialVersion); err != nil {
			return err
		}
		event.VersionNumber = 1
		created = event
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("event", created.ULID).Str("actor", p.ULID).Msg("event created")
	return created, nil
}

func (s *Service) Update(ctx context.Context, p Principal, eventULID string, patch Patch) (*Event, error) {
	if value, ok := patch.Title.Get(); ok {
		if err := validateTitle(value); err != nil {
			return nil, err
		}
	}
	if value, ok := patch.RecurrencePattern.Get(); ok {
		if err := validateRecurrence(value); err != nil {
			return nil, err
		}
	}

	var updated *Event
	err := s.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		event, err := s.lockForMutation(ctx, repo, eventULID)
		if err != nil {
			return err
		}
		if err := s.requireRole(ctx, repo, event, p, RoleEditor); err != nil {
			return err
		}

		if patch.StartTime.IsSet() || patch.EndTime.IsSet() {
			start, end := event.StartTime, event.EndTime
			if value, ok := patch.StartTime.Get(); ok {
				start = normalizeTime(value)
			}
			if value, ok := patch.EndTime.Get(); ok {
				end = normalizeTime(value)
			}
			if err := validateInterval(start, end); err != nil {
				return err
			}
			overlapping, err := repo.CountOverlapping(ctx, event.OwnerID, start, end, event.ID)
			if err != nil {
				return err
			}
			if overlapping > 0 {
				return ErrTimeConflict
			}
		}

		previous, err := s.latestVersion(ctx, repo, event.ID)
		if err != nil {
			return err
		}

		patch.Apply(event)
		event, err = repo.Update(ctx, event)
		if err != nil {
			return err
		}

		number := 1
		if previous != nil {
			number = previous.Number + 1
		}
		version, err := s.writeVersion(ctx, repo, event, p, number, descEventUpdated)
		if err != nil {
			return err
		}
		if previous != nil {
			if err := s.recordChanges(ctx, repo, event, previous, version, p); err != nil {
				return err
			}
		}

		event.VersionNumber = number
		updated = event
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("event", updated.ULID).Str("actor", p.ULID).Int("version", updated.VersionNumber).Msg("event updated")
	return updated, nil
}

func (s *Service) Rollback(ctx context.Context, p Principal, eventULID string, versionNumber int) (*Event, error) {
	var rolled *Event
	err := s.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		event, err := s.lockForMutation(ctx, repo, eventULID)
		if err != nil {
			return err
		}
		if err := s.requireRole(ctx, repo, event, p, RoleEditor); err != nil {
			return err
		}

		target, err := repo.GetVersion(ctx, event.ID, versionNumber)
		if err != nil {
			return err
		}
		previous, err := repo.LatestVersion(ctx, event.ID)
		if err != nil {
			return err
		}

		if err := target.Data.Apply(event); err != nil {
			return fmt.Errorf("apply version %d snapshot: %w", versionNumber, err)
		}
		event, err = repo.Update(ctx, event)
		if err != nil {
			return err
		}

		number := previous.Number + 1
		description := fmt.Sprintf("Rolled back to version %d", versionNumber)
		version, err := s.writeVersion(ctx, repo, event, p, number, description)
		if err != nil {
			return err
		}
		// The changelog diffs against the version that was current before the
		// rollback, not against the rollback target.
		if err := s.recordChanges(ctx, repo, event, previous, version, p); err != nil {
			return err
		}

		event.VersionNumber = number
		rolled = event
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("event", rolled.ULID).Str("actor", p.ULID).Int("target", versionNumber).Int("version", rolled.VersionNumber).Msg("event rolled back")
	return rolled, nil
}

func (s *Service) Delete(ctx context.Context, p Principal, eventULID string) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		event, err := repo.GetByULID(ctx, eventULID)
		if err != nil {
			return err
		}
		if err := s.requireRole(ctx, repo, event, p, RoleOwner); err != nil {
			return err
		}
		// Permissions, versions, and changelog rows go with the event.
		return repo.Delete(ctx, event.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("event", eventULID).Str("actor", p.ULID).Msg("event deleted")
	return nil
}

func (s *Service) Get(ctx context.Context, p Principal, eventULID string) (*Event, error) {
	return s.authorized(ctx, p, eventULID, RoleViewer)
}

func (s *Service) List(ctx context.Context, p Principal, params ListParams) ([]Event, error) {
	return s.store.ListVisibleTo(ctx, p.ID, params.normalized())
}

func (s *Service) GetVersion(ctx context.Context, p Principal, eventULID string, number int) (*Version, error) {
	event, err := s.authorized(ctx, p, eventULID, RoleViewer)
	if err != nil {
		return nil, err
	}
	return s.store.GetVersion(ctx, event.ID, number)
}

func (s *Service) ListVersions(ctx context.Context, p Principal, eventULID string) ([]Version, error) {
	event, err := s.authorized(ctx, p, eventULID, RoleViewer)
	if err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, event.ID)
}

func (s *Service) Changelog(ctx context.Context, p Principal, eventULID string) ([]ChangeEntry, error) {
	event, err := s.authorized(ctx, p, eventULID, RoleViewer)
	if err != nil {
		return nil, err
	}
	return s.store.ListChangelog(ctx, event.ID)
}

// Diff computes the field-level difference between two stored versions. It is
// independent of the changelog and writes nothing.
func (s *Service) Diff(ctx context.Context, p Principal, eventULID string, from, to int) ([]DiffEntry, error) {
	event, err := s.authorized(ctx, p, eventULID, RoleViewer)
	if err != nil {
		return nil, err
	}
	versionA, err := s.store.GetVersion(ctx, event.ID, from)
	if err != nil {
		return nil, err
	}
	versionB, err := s.store.GetVersion(ctx, event.ID, to)
	if err != nil {
		return nil, err
	}
	return DiffSnapshots(versionA.Data, versionB.Data), nil
}

func (s *Service) Share(ctx context.Context, p Principal, eventULID, granteeULID string, role Role) (*Permission, error) {
	if !role.Valid() {
		return nil, ValidationError{Field: "role", Message: "must be owner, editor, or viewer"}
	}
	event, err := s.authorized(ctx, p, eventULID, RoleOwner)
	if err != nil {
		return nil, err
	}
	granteeID, err := s.store.ResolveUserULID(ctx, granteeULID)
	if err != nil {
		return nil, err
	}
	if granteeID == event.OwnerID {
		return nil, ErrDuplicatePermission
	}
	permission, err := s.store.InsertPermission(ctx, PermissionCreateParams{
		EventID: event.ID,
		UserID:  granteeID,
		Role:    role,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("event", event.ULID).Str("actor", p.ULID).Str("grantee", granteeULID).Str("role", string(role)).Msg("permission granted")
	return permission, nil
}

func (s *Service) UpdatePermission(ctx context.Context, p Principal, eventULID, granteeULID string, role Role) (*Permission, error) {
	if !role.Valid() {
		return nil, ValidationError{Field: "role", Message: "must be owner, editor, or viewer"}
	}
	event, err := s.authorized(ctx, p, eventULID, RoleOwner)
	if err != nil {
		return nil, err
	}
	granteeID, err := s.store.ResolveUserULID(ctx, granteeULID)
	if err != nil {
		return nil, err
	}
	return s.store.UpdatePermissionRole(ctx, event.ID, granteeID, role)
}

func (s *Service) RevokePermission(ctx context.Context, p Principal, eventULID, granteeULID string) error {
	event, err := s.authorized(ctx, p, eventULID, RoleOwner)
	if err != nil {
		return err
	}
	granteeID, err := s.store.ResolveUserULID(ctx, granteeULID)
	if err != nil {
		return err
	}
	return s.store.DeletePermission(ctx, event.ID, granteeID)
}

func (s *Service) ListPermissions(ctx context.Context, p Principal, eventULID string) ([]Permission, error) {
	event, err := s.authorized(ctx, p, eventULID, RoleViewer)
	if err != nil {
		return nil, err
	}
	return s.store.ListPermissions(ctx, event.ID)
}

// authorized loads an event and checks the principal holds the required role.
func (s *Service) authorized(ctx context.Context, p Principal, eventULID string, required Role) (*Event, error) {
	event, err := s.store.GetByULID(ctx, eventULID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, s.store, event, p, required); err != nil {
		return nil, err
	}
	return event, nil
}

// requireRole applies the role ranking. The owner implicitly holds owner
// rights without a permission row.
func (s *Service) requireRole(ctx context.Context, repo Repository, event *Event, p Principal, required Role) error {
	if event.OwnerID == p.ID {
		return nil
	}
	permission, err := repo.GetPermission(ctx, event.ID, p.ID)
	if err != nil {
		if errors.Is(err, ErrPermissionNotFound) {
			return ErrForbidden
		}
		return err
	}
	if !permission.Role.Allows(required) {
		return ErrForbidden
	}
	return nil
}

// lockForMutation resolves the event and re-reads it under a row lock so
// concurrent mutators of the same event serialize for the rest of the
// transaction, keeping version numbers contiguous and collision-free.
func (s *Service) lockForMutation(ctx context.Context, repo Repository, eventULID string) (*Event, error) {
	event, err := repo.GetByULID(ctx, eventULID)
	if err != nil {
		return nil, err
	}
	return repo.GetForUpdate(ctx, event.ID)
}

func (s *Service) latestVersion(ctx context.Context, repo Repository, eventID string) (*Version, error) {
	version, err := repo.LatestVersion(ctx, eventID)
	if err != nil {
		if errors.Is(err, ErrVersionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return version, nil
}

func (s *Service) writeVersion(ctx context.Context, repo Repository, event *Event, p Principal, number int, description string) (*Version, error) {
	return repo.InsertVersion(ctx, VersionCreateParams{
		EventID:     event.ID,
		Number:      number,
		Data:        NewSnapshot(event),
		Description: description,
		CreatedByID: p.ID,
	})
}

func (s *Service) recordChanges(ctx context.Context, repo Repository, event *Event, previous, version *Version, p Principal) error {
	changes := ChangedFields(previous.Data, version.Data)
	if len(changes) == 0 {
		return nil
	}
	entries := make([]ChangeEntryCreateParams, 0, len(changes))
	for _, change := range changes {
		entries = append(entries, ChangeEntryCreateParams{
			EventID:     event.ID,
			VersionID:   version.ID,
			FieldName:   change.FieldName,
			OldValue:    change.OldValue,
			NewValue:    change.NewValue,
			CreatedByID: p.ID,
		})
	}
	return repo.InsertChangeEntries(ctx, entries)
}
