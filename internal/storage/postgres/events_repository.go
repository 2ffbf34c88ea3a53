package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/events"
)

var _ events.Store = (*EventRepository)(nil)

const eventColumns = `
SELECT e.id::text, e.ulid, e.title, e.description, e.start_time, e.end_time,
       e.location, e.is_recurring, e.recurrence_pattern, e.owner_id::text, u.ulid,
       COALESCE((SELECT MAX(v.version_number) FROM event_versions v WHERE v.event_id = e.id), 0),
       e.created_at, e.updated_at
  FROM events e
  JOIN users u ON u.id = e.owner_id`

func (r *EventRepository) scanEvent(row pgx.Row) (*events.Event, error) {
	var (
		event      events.Event
		location   *string
		recurrence []byte
	)
	err := row.Scan(
		&event.ID,
		&event.ULID,
		&event.Title,
		&event.Description,
		&event.StartTime,
		&event.EndTime,
		&location,
		&event.IsRecurring,
		&recurrence,
		&event.OwnerID,
		&event.OwnerULID,
		&event.VersionNumber,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	event.Location = location
	if len(recurrence) > 0 {
		if err := json.Unmarshal(recurrence, &event.RecurrencePattern); err != nil {
			return nil, fmt.Errorf("decode recurrence pattern: %w", err)
		}
	}
	event.StartTime = event.StartTime.UTC()
	event.EndTime = event.EndTime.UTC()
	event.CreatedAt = event.CreatedAt.UTC()
	event.UpdatedAt = event.UpdatedAt.UTC()
	return &event, nil
}

func (r *EventRepository) Create(ctx context.Context, params events.EventCreateParams) (*events.Event, error) {
	recurrence, err := marshalJSONArg(params.RecurrencePattern)
	if err != nil {
		return nil, fmt.Errorf("encode recurrence pattern: %w", err)
	}

	var id string
	err = r.queryer().QueryRow(ctx, `
INSERT INTO events (id, ulid, title, description, start_time, end_time, location,
                    is_recurring, recurrence_pattern, owner_id, created_at, updated_at)
VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::uuid, now(), now())
RETURNING id::text
`,
		params.ULID,
		params.Title,
		params.Description,
		params.StartTime,
		params.EndTime,
		params.Location,
		params.IsRecurring,
		recurrence,
		params.OwnerID,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return r.getByID(ctx, id)
}

func (r *EventRepository) getByID(ctx context.Context, id string) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, eventColumns+` WHERE e.id = $1::uuid`, id)
	return r.scanEvent(row)
}

func (r *EventRepository) GetByULID(ctx context.Context, ulid string) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, eventColumns+` WHERE e.ulid = $1`, ulid)
	return r.scanEvent(row)
}

// GetForUpdate locks the event row so concurrent mutators serialize on it for
// the rest of the transaction. This is what keeps the read-max/insert-next
// version sequence collision-free.
func (r *EventRepository) GetForUpdate(ctx context.Context, id string) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, eventColumns+` WHERE e.id = $1::uuid FOR UPDATE OF e`, id)
	return r.scanEvent(row)
}

func (r *EventRepository) Update(ctx context.Context, event *events.Event) (*events.Event, error) {
	recurrence, err := marshalJSONArg(event.RecurrencePattern)
	if err != nil {
		return nil, fmt.Errorf("encode recurrence pattern: %w", err)
	}

	tag, err := r.queryer().Exec(ctx, `
UPDATE events
   SET title = $2, description = $3, start_time = $4, end_time = $5,
       location = $6, is_recurring = $7, recurrence_pattern = $8::jsonb,
       updated_at = now()
 WHERE id = $1::uuid
`,
		event.ID,
		event.Title,
		event.Description,
		event.StartTime,
		event.EndTime,
		event.Location,
		event.IsRecurring,
		recurrence,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, events.ErrNotFound
	}
	return r.getByID(ctx, event.ID)
}

func (r *EventRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventRepository) ListVisibleTo(ctx context.Context, userID string, params events.ListParams) ([]events.Event, error) {
	rows, err := r.queryer().Query(ctx, eventColumns+`
 WHERE e.owner_id = $1::uuid
    OR EXISTS (
         SELECT 1 FROM event_permissions p
          WHERE p.event_id = e.id AND p.user_id = $1::uuid
       )
 ORDER BY e.start_time ASC, e.ulid ASC
 LIMIT $2 OFFSET $3
`, userID, params.Limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	items := make([]events.Event, 0)
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return items, nil
}

func (r *EventRepository) CountOverlapping(ctx context.Context, ownerID string, start, end time.Time, excludeEventID string) (int, error) {
	var count int
	err := r.queryer().QueryRow(ctx, `
SELECT COUNT(*)
  FROM events e
 WHERE e.owner_id = $1::uuid
   AND e.start_time < $3
   AND e.end_time > $2
   AND ($4 = '' OR e.id::text <> $4)
`, ownerID, start, end, excludeEventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count overlapping events: %w", err)
	}
	return count, nil
}

func (r *EventRepository) InsertVersion(ctx context.Context, params events.VersionCreateParams) (*events.Version, error) {
	data, err := json.Marshal(params.Data)
	if err != nil {
		return nil, fmt.Errorf("encode version data: %w", err)
	}

	version := events.Version{
		EventID:     params.EventID,
		Number:      params.Number,
		Data:        params.Data,
		Description: params.Description,
	}
	err = r.queryer().QueryRow(ctx, `
WITH inserted AS (
	INSERT INTO event_versions (id, event_id, version_number, data, created_by, change_description, created_at)
	VALUES (gen_random_uuid(), $1::uuid, $2, $3::jsonb, $4::uuid, $5, now())
	RETURNING id, created_by, created_at
)
SELECT inserted.id::text, u.ulid, inserted.created_at
  FROM inserted
  JOIN users u ON u.id = inserted.created_by
`,
		params.EventID,
		params.Number,
		string(data),
		params.CreatedByID,
		nullableText(params.Description),
	).Scan(&version.ID, &version.CreatedBy, &version.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	version.CreatedAt = version.CreatedAt.UTC()
	return &version, nil
}

const versionColumns = `
SELECT v.id::text, v.event_id::text, v.version_number, v.data,
       COALESCE(v.change_description, ''), u.ulid, v.created_at
  FROM event_versions v
  JOIN users u ON u.id = v.created_by`

func scanVersion(row pgx.Row) (*events.Version, error) {
	var (
		version events.Version
		data    []byte
	)
	err := row.Scan(
		&version.ID,
		&version.EventID,
		&version.Number,
		&data,
		&version.Description,
		&version.CreatedBy,
		&version.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrVersionNotFound
		}
		return nil, fmt.Errorf("scan version: %w", err)
	}
	if err := json.Unmarshal(data, &version.Data); err != nil {
		return nil, fmt.Errorf("decode version data: %w", err)
	}
	version.CreatedAt = version.CreatedAt.UTC()
	return &version, nil
}

func (r *EventRepository) GetVersion(ctx context.Context, eventID string, number int) (*events.Version, error) {
	row := r.queryer().QueryRow(ctx, versionColumns+`
 WHERE v.event_id = $1::uuid AND v.version_number = $2`, eventID, number)
	return scanVersion(row)
}

func (r *EventRepository) LatestVersion(ctx context.Context, eventID string) (*events.Version, error) {
	row := r.queryer().QueryRow(ctx, versionColumns+`
 WHERE v.event_id = $1::uuid
 ORDER BY v.version_number DESC
 LIMIT 1`, eventID)
	return scanVersion(row)
}

func (r *EventRepository) ListVersions(ctx context.Context, eventID string) ([]events.Version, error) {
	rows, err := r.queryer().Query(ctx, versionColumns+`
 WHERE v.event_id = $1::uuid
 ORDER BY v.version_number ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]events.Version, 0)
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (r *EventRepository) InsertChangeEntries(ctx context.Context, entries []events.ChangeEntryCreateParams) error {
	for _, entry := range entries {
		oldValue, err := json.Marshal(entry.OldValue)
		if err != nil {
			return fmt.Errorf("encode old value: %w", err)
		}
		newValue, err := json.Marshal(entry.NewValue)
		if err != nil {
			return fmt.Errorf("encode new value: %w", err)
		}
		_, err = r.queryer().Exec(ctx, `
INSERT INTO event_changelog (id, event_id, version_id, field_name, old_value, new_value, created_by, created_at)
VALUES (gen_random_uuid(), $1::uuid, $2::uuid, $3, $4::jsonb, $5::jsonb, $6::uuid, now())
`,
			entry.EventID,
			entry.VersionID,
			entry.FieldName,
			string(oldValue),
			string(newValue),
			entry.CreatedByID,
		)
		if err != nil {
			return fmt.Errorf("insert changelog entry: %w", err)
		}
	}
	return nil
}

func (r *EventRepository) ListChangelog(ctx context.Context, eventID string) ([]events.ChangeEntry, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT c.id::text, c.event_id::text, c.version_id::text, v.version_number,
       c.field_name, c.old_value, c.new_value, u.ulid, c.created_at
  FROM event_changelog c
  JOIN event_versions v ON v.id = c.version_id
  JOIN users u ON u.id = c.created_by
 WHERE c.event_id = $1::uuid
 ORDER BY c.created_at DESC, v.version_number DESC, c.field_name ASC
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list changelog: %w", err)
	}
	defer rows.Close()

	items := make([]events.ChangeEntry, 0)
	for rows.Next() {
		var (
			entry    events.ChangeEntry
			oldValue []byte
			newValue []byte
		)
		err := rows.Scan(
			&entry.ID,
			&entry.EventID,
			&entry.VersionID,
			&entry.VersionNumber,
			&entry.FieldName,
			&oldValue,
			&newValue,
			&entry.CreatedBy,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan changelog entry: %w", err)
		}
		if err := json.Unmarshal(oldValue, &entry.OldValue); err != nil {
			return nil, fmt.Errorf("decode old value: %w", err)
		}
		if err := json.Unmarshal(newValue, &entry.NewValue); err != nil {
			return nil, fmt.Errorf("decode new value: %w", err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changelog: %w", err)
	}
	return items, nil
}

const permissionColumns = `
SELECT p.id::text, p.event_id::text, p.user_id::text, u.ulid, u.username,
       p.role, p.created_at, p.updated_at
  FROM event_permissions p
  JOIN users u ON u.id = p.user_id`

func scanPermission(row pgx.Row) (*events.Permission, error) {
	var permission events.Permission
	err := row.Scan(
		&permission.ID,
		&permission.EventID,
		&permission.UserID,
		&permission.UserULID,
		&permission.Username,
		&permission.Role,
		&permission.CreatedAt,
		&permission.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("scan permission: %w", err)
	}
	return &permission, nil
}

func (r *EventRepository) GetPermission(ctx context.Context, eventID, userID string) (*events.Permission, error) {
	row := r.queryer().QueryRow(ctx, permissionColumns+`
 WHERE p.event_id = $1::uuid AND p.user_id = $2::uuid`, eventID, userID)
	return scanPermission(row)
}

func (r *EventRepository) InsertPermission(ctx context.Context, params events.PermissionCreateParams) (*events.Permission, error) {
	var id string
	err := r.queryer().QueryRow(ctx, `
INSERT INTO event_permissions (id, event_id, user_id, role, created_at, updated_at)
VALUES (gen_random_uuid(), $1::uuid, $2::uuid, $3, now(), now())
RETURNING id::text
`, params.EventID, params.UserID, string(params.Role)).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, events.ErrDuplicatePermission
		}
		return nil, fmt.Errorf("insert permission: %w", err)
	}
	row := r.queryer().QueryRow(ctx, permissionColumns+` WHERE p.id = $1::uuid`, id)
	return scanPermission(row)
}

func (r *EventRepository) UpdatePermissionRole(ctx context.Context, eventID, userID string, role events.Role) (*events.Permission, error) {
	tag, err := r.queryer().Exec(ctx, `
UPDATE event_permissions
   SET role = $3, updated_at = now()
 WHERE event_id = $1::uuid AND user_id = $2::uuid
`, eventID, userID, string(role))
	if err != nil {
		return nil, fmt.Errorf("update permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, events.ErrPermissionNotFound
	}
	return r.GetPermission(ctx, eventID, userID)
}

func (r *EventRepository) DeletePermission(ctx context.Context, eventID, userID string) error {
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM event_permissions WHERE event_id = $1::uuid AND user_id = $2::uuid
`, eventID, userID)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrPermissionNotFound
	}
	return nil
}

func (r *EventRepository) ListPermissions(ctx context.Context, eventID string) ([]events.Permission, error) {
	rows, err := r.queryer().Query(ctx, permissionColumns+`
 WHERE p.event_id = $1::uuid
 ORDER BY p.created_at ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	items := make([]events.Permission, 0)
	for rows.Next() {
		permission, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *permission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return items, nil
}

func (r *EventRepository) ResolveUserULID(ctx context.Context, ulid string) (string, error) {
	var id string
	err := r.queryer().QueryRow(ctx, `SELECT id::text FROM users WHERE ulid = $1`, ulid).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", events.ErrUserNotFound
		}
		return "", fmt.Errorf("resolve user: %w", err)
	}
	return id, nil
}
