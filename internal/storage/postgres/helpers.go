package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// violatedConstraint reports the constraint name behind a unique violation,
// or "" when err is anything else.
func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return strings.ToLower(pgErr.ConstraintName)
	}
	return ""
}

// marshalJSONArg renders v as a jsonb parameter, passing SQL NULL through for
// nil maps so the column stays NULL instead of holding the string "null".
func marshalJSONArg(v map[string]any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	s := string(data)
	return &s, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
