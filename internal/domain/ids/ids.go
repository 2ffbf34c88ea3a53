// Package ids mints and validates the ULIDs used as public identifiers.
// Database rows carry UUID primary keys; ULIDs are what the API exposes.
package ids

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var ErrInvalidULID = errors.New("invalid ULID")

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID mints a ULID. Monotonic entropy keeps IDs minted within the same
// millisecond sortable in mint order.
func NewULID() (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsULID reports whether value parses as a ULID. Crockford Base32 is accepted
// in either case.
func IsULID(value string) bool {
	_, err := ulid.ParseStrict(Normalize(value))
	return err == nil
}

func ValidateULID(value string) error {
	if !IsULID(value) {
		return ErrInvalidULID
	}
	return nil
}

// Normalize folds a ULID to its canonical uppercase form.
func Normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
