package identity

import (
	"fmt"
	"slices"
	"strings"
)

// Role is a member of the closed set of authorities an identity can hold.
type Role string

const (
	RoleEmployee       Role = "EMPLOYEE"
	RoleManager        Role = "MANAGER"
	RoleOHProfessional Role = "OH_PROFESSIONAL"
	RoleAdmin          Role = "ADMIN"
)

// authorityPrefix is accepted on input and produced by Authority.
const authorityPrefix = "ROLE_"

var knownRoles = []Role{RoleEmployee, RoleManager, RoleOHProfessional, RoleAdmin}

// ParseRole maps a stored or claimed string onto the closed Role set.
// Matching is case-insensitive and tolerates a "ROLE_" prefix.
func ParseRole(s string) (Role, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, authorityPrefix)
	for _, r := range knownRoles {
		if string(r) == v {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// ParseRoles parses every entry and returns a sorted, de-duplicated set.
// A single unknown entry fails the whole set.
func ParseRoles(in []string) ([]Role, error) {
	out := make([]Role, 0, len(in))
	for _, s := range in {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return NormalizeRoles(out), nil
}

// NormalizeRoles sorts and de-duplicates roles.
func NormalizeRoles(in []Role) []Role {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// Authority renders the role in "ROLE_X" form.
func (r Role) Authority() string { return authorityPrefix + string(r) }

// Valid reports whether r is in the closed set.
func (r Role) Valid() bool { return slices.Contains(knownRoles, r) }

// HasRole reports whether roles contains want.
func HasRole(roles []Role, want Role) bool { return slices.Contains(roles, want) }

// RoleStrings converts roles to their bare string form for storage and claims.
func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
