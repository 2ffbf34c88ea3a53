package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRole_Allows(t *testing.T) {
	cases := []struct {
		granted  Role
		required Role
		want     bool
	}{
		{RoleOwner, RoleOwner, true},
		{RoleOwner, RoleEditor, true},
		{RoleOwner, RoleViewer, true},
		{RoleEditor, RoleOwner, false},
		{RoleEditor, RoleEditor, true},
		{RoleEditor, RoleViewer, true},
		{RoleViewer, RoleOwner, false},
		{RoleViewer, RoleEditor, false},
		{RoleViewer, RoleViewer, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.granted.Allows(tc.required), "%s allows %s", tc.granted, tc.required)
	}
}

func TestParseRole(t *testing.T) {
	for _, value := range []string{"owner", "editor", "viewer"} {
		role, err := ParseRole(value)
		require.NoError(t, err)
		require.True(t, role.Valid())
	}

	_, err := ParseRole("admin")
	var validationErr ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "role", validationErr.Field)

	require.False(t, Role("OWNER").Valid())
}
