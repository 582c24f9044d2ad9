package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// RolePrefix is the canonical marker for traditional role tokens
const RolePrefix = "ROLE_"

// maxRoleLength bounds the normalized token, prefix included
const maxRoleLength = 64

var roleSegmentPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ErrInvalidRole is returned for any role string that fails normalization.
// This is a security boundary: malformed input is rejected, never cleaned
// up best-effort.
var ErrInvalidRole = errors.New("invalid role")

// NormalizeRole converts a raw role claim into its canonical form.
//
// Any number of leading case-insensitive role markers are stripped (a
// double-prefixed "ROLE_ROLE_admin" from a misconfigured issuer collapses
// the same as "admin"), whitespace is trimmed, the remainder is checked
// against a character whitelist, and exactly one canonical prefix is
// re-added for traditional role tokens. Colon-delimited permission tokens
// ("resource:action") keep their shape with every segment validated
// individually. The function is idempotent: normalizing an already
// canonical token returns it unchanged.
func NormalizeRole(raw string) (string, error) {
	token := strings.TrimSpace(raw)

	for len(token) >= len(RolePrefix) && strings.EqualFold(token[:len(RolePrefix)], RolePrefix) {
		token = strings.TrimSpace(token[len(RolePrefix):])
	}

	if token == "" {
		return "", fmt.Errorf("%w: empty after normalization", ErrInvalidRole)
	}

	if strings.Contains(token, ":") {
		return normalizePermission(token)
	}

	if !roleSegmentPattern.MatchString(token) {
		return "", fmt.Errorf("%w: illegal characters in %q", ErrInvalidRole, raw)
	}

	normalized := RolePrefix + token
	if len(normalized) > maxRoleLength {
		return "", fmt.Errorf("%w: token exceeds %d characters", ErrInvalidRole, maxRoleLength)
	}

	return normalized, nil
}

// normalizePermission validates a colon-delimited permission token. Every
// segment must individually pass the whitelist; permission tokens never
// carry the role prefix.
func normalizePermission(token string) (string, error) {
	if len(token) > maxRoleLength {
		return "", fmt.Errorf("%w: token exceeds %d characters", ErrInvalidRole, maxRoleLength)
	}

	for _, segment := range strings.Split(token, ":") {
		if segment == "" || !roleSegmentPattern.MatchString(segment) {
			return "", fmt.Errorf("%w: illegal permission segment in %q", ErrInvalidRole, token)
		}
	}

	return token, nil
}

// NormalizeRoles normalizes a full role claim set, rejecting the set as a
// whole if any member fails.
func NormalizeRoles(raw []string) ([]string, error) {
	normalized := make([]string, 0, len(raw))
	for _, role := range raw {
		token, err := NormalizeRole(role)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, token)
	}
	return normalized, nil
}
