package events

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("event not found")
	ErrForbidden           = errors.New("insufficient permissions")
	ErrVersionNotFound     = errors.New("version not found")
	ErrTimeConflict        = errors.New("time conflict with existing events")
	ErrPermissionNotFound  = errors.New("permission not found")
	ErrDuplicatePermission = errors.New("user already has permission for this event")
	ErrUserNotFound        = errors.New("user not found")
)

// ValidationError rejects malformed input before any mutation happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
