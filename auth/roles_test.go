package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeRoleCanonicalForm(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"admin", "ROLE_admin"},
		{"ROLE_admin", "ROLE_admin"},
		{"role_admin", "ROLE_admin"},
		{"ROLE_ROLE_admin", "ROLE_admin"},
		{"Role_rOlE_ROLE_admin", "ROLE_admin"},
		{"  admin  ", "ROLE_admin"},
		{"ROLE_ ROLE_admin", "ROLE_admin"},
		{"auditor-read.only_2", "ROLE_auditor-read.only_2"},
	}

	for _, tc := range tests {
		got, err := NormalizeRole(tc.input)
		require.NoError(t, err, "input %q", tc.input)
		require.Equal(t, tc.expected, got, "input %q", tc.input)
	}
}

func TestNormalizeRoleIdempotent(t *testing.T) {
	for _, input := range []string{"admin", "ROLE_admin", "ROLE_ROLE_admin", "ledger:read", "a.b-c_d"} {
		once, err := NormalizeRole(input)
		require.NoError(t, err)

		twice, err := NormalizeRole(once)
		require.NoError(t, err)
		require.Equal(t, once, twice, "input %q", input)
	}
}

func TestNormalizeRoleDoublePrefixEqualsBare(t *testing.T) {
	fromDouble, err := NormalizeRole("ROLE_ROLE_admin")
	require.NoError(t, err)

	fromBare, err := NormalizeRole("admin")
	require.NoError(t, err)

	require.Equal(t, fromBare, fromDouble)
}

func TestNormalizeRoleRejectsInvalidInput(t *testing.T) {
	invalid := []string{
		"",
		"   ",
		"ROLE_",
		"ROLE_ROLE_",
		"admin;drop",
		"admin drop",
		"admin,viewer",
		"adm/in",
		"über-admin",
		strings.Repeat("a", 100),
	}

	for _, input := range invalid {
		_, err := NormalizeRole(input)
		require.ErrorIs(t, err, ErrInvalidRole, "input %q", input)
	}
}

func TestNormalizeRolePermissionForm(t *testing.T) {
	got, err := NormalizeRole("ledger:read")
	require.NoError(t, err)
	require.Equal(t, "ledger:read", got)

	got, err = NormalizeRole("accounts:balance:read")
	require.NoError(t, err)
	require.Equal(t, "accounts:balance:read", got)

	for _, input := range []string{"ledger:", ":read", "ledger::read", "ledger:re ad", "ledger:re;ad"} {
		_, err := NormalizeRole(input)
		require.ErrorIs(t, err, ErrInvalidRole, "input %q", input)
	}
}

func TestNormalizeRolesRejectsWholeSetOnAnyFailure(t *testing.T) {
	roles, err := NormalizeRoles([]string{"admin", "ledger:read"})
	require.NoError(t, err)
	require.Equal(t, []string{"ROLE_admin", "ledger:read"}, roles)

	_, err = NormalizeRoles([]string{"admin", "bad;role"})
	require.ErrorIs(t, err, ErrInvalidRole)
}
