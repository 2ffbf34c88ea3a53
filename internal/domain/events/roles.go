package events

import "fmt"

// Role is a permission level on an event. Roles are totally ordered:
// owner > editor > viewer.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

func (r Role) Valid() bool {
	return r.Rank() > 0
}

// Allows reports whether a granted role satisfies a required role.
func (r Role) Allows(required Role) bool {
	return r.Rank() >= required.Rank()
}

func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.Valid() {
		return "", ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", value)}
	}
	return role, nil
}
