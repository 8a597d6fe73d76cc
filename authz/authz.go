// Package authz decides who may manage which organization, user and role.
//
// The package is split the same way on the read and the write side:
//   - Resolver: reads a user's global role grants and organization memberships
//   - Subject / Evaluator: pure allow/deny decisions over resolved roles
//   - MembershipManager, RoleStore: write side for memberships and role grants
//   - OrgRepository: CRUD for organization rows, no authorization logic
package authz

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
)

// Role is the closed set of roles a user can hold, either as a global grant
// or as an organization membership role. The zero value is not a role.
type Role uint8

const (
	RoleAdmin Role = iota + 1
	RoleWorker
	RoleVolunteer
	RoleBeneficiary
	RoleSuperAdmin
)

var roleNames = [...]string{
	RoleAdmin:       "admin",
	RoleWorker:      "worker",
	RoleVolunteer:   "volunteer",
	RoleBeneficiary: "beneficiary",
	RoleSuperAdmin:  "super_admin",
}

// AllRoles lists every role in declaration order.
var AllRoles = []Role{RoleAdmin, RoleWorker, RoleVolunteer, RoleBeneficiary, RoleSuperAdmin}

// ParseRole is the only conversion from text to Role. It accepts the
// lower-case wire spelling and the upper-case enum spelling.
func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, r := range AllRoles {
		if roleNames[r] == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) Valid() bool {
	return r >= RoleAdmin && r <= RoleSuperAdmin
}

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
	return roleNames[r]
}

// Privileged reports whether only a super admin may grant the role.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// MembershipRole reports whether the role may be held inside an organization.
func (r Role) MembershipRole() bool {
	return r.Valid() && r != RoleSuperAdmin
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, uint8(r))
	}
	return []byte(roleNames[r]), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Scan implements sql.Scanner.
func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrUnknownRole, src)
	}
}

// Value implements driver.Valuer.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, uint8(r))
	}
	return roleNames[r], nil
}

// ============================================================================
// Sets
// ============================================================================

// RoleSet is a bit set of roles.
type RoleSet uint32

func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s = s.With(r)
	}
	return s
}

func (s RoleSet) Has(r Role) bool {
	return r.Valid() && s&(1<<r) != 0
}

func (s RoleSet) With(r Role) RoleSet {
	if !r.Valid() {
		return s
	}
	return s | 1<<r
}

func (s RoleSet) Without(r Role) RoleSet {
	return s &^ (1 << r)
}

func (s RoleSet) Empty() bool {
	return s == 0
}

// Slice returns the roles in declaration order.
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0)
	for _, r := range AllRoles {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// OrgSet is a set of organization IDs.
type OrgSet map[string]struct{}

func NewOrgSet(ids ...string) OrgSet {
	s := make(OrgSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s OrgSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Intersects reports whether the two sets share at least one organization.
func (s OrgSet) Intersects(other OrgSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for id := range small {
		if large.Has(id) {
			return true
		}
	}
	return false
}

// Slice returns the IDs sorted.
func (s OrgSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
// Identity
// ============================================================================

// Identity is the authenticated caller, built once from a verified access
// token and passed explicitly through handlers and services.
type Identity struct {
	UserID string
	Email  string
}

func (id Identity) Authenticated() bool {
	return id.UserID != ""
}
