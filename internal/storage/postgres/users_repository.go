package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/users"
)

var _ users.Repository = (*UserRepository)(nil)

const userColumns = `
SELECT id::text, ulid, email, username, password_hash, is_active, created_at, updated_at
  FROM users`

func scanUser(row pgx.Row) (*users.User, error) {
	var user users.User
	err := row.Scan(
		&user.ID,
		&user.ULID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, params users.CreateParams) (*users.User, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (id, ulid, email, username, password_hash, is_active, created_at, updated_at)
VALUES (gen_random_uuid(), $1, $2, $3, $4, TRUE, now(), now())
RETURNING id::text, ulid, email, username, password_hash, is_active, created_at, updated_at
`, params.ULID, params.Email, params.Username, params.PasswordHash)

	user, err := scanUser(row)
	if err != nil {
		switch violatedConstraint(err) {
		case "users_email_key":
			return nil, users.ErrEmailTaken
		case "users_username_key":
			return nil, users.ErrUsernameTaken
		}
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return scanUser(r.pool.QueryRow(ctx, userColumns+` WHERE email = $1`, email))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	return scanUser(r.pool.QueryRow(ctx, userColumns+` WHERE username = $1`, username))
}

func (r *UserRepository) GetByULID(ctx context.Context, ulid string) (*users.User, error) {
	return scanUser(r.pool.QueryRow(ctx, userColumns+` WHERE ulid = $1`, ulid))
}
