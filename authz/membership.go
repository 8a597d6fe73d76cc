package authz

import (
	"context"
	"time"
)

// Membership is a user's single role inside one organization
type Membership struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	// User details (populated when listing organization members)
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// MembershipManager manages user-organization relationships.
// It is the write side of what Resolver reads.
type MembershipManager interface {
	// AddMember adds a user to an organization. Returns ErrAlreadyExists if the
	// user is already a member.
	AddMember(ctx context.Context, orgID, userID string, role Role) error

	// UpdateMemberRole changes a member's role
	UpdateMemberRole(ctx context.Context, orgID, userID string, role Role) error

	// RemoveMember removes a user from an organization
	RemoveMember(ctx context.Context, orgID, userID string) error

	// GetMembership gets a specific membership
	GetMembership(ctx context.Context, orgID, userID string) (*Membership, error)

	// ListMembers returns all members of an organization with user details
	ListMembers(ctx context.Context, orgID string) ([]Membership, error)

	// ListUserMemberships returns all memberships of a user
	ListUserMemberships(ctx context.Context, userID string) ([]Membership, error)

	// CountAdmins returns how many ADMIN memberships the organization has
	CountAdmins(ctx context.Context, orgID string) (int, error)

	// IsMember checks if a user is a member of an organization (any role)
	IsMember(ctx context.Context, orgID, userID string) bool
}

// RoleStore manages global role grants.
type RoleStore interface {
	// GrantRole adds a role grant. Granting a role the user already holds is a no-op.
	GrantRole(ctx context.Context, userID string, role Role) error

	// RevokeRole removes a role grant. Returns ErrNotFound if the user does not hold it.
	RevokeRole(ctx context.Context, userID string, role Role) error

	// CountHolders returns how many users hold the role
	CountHolders(ctx context.Context, role Role) (int, error)

	// CountByRole returns the number of holders per role
	CountByRole(ctx context.Context) (map[Role]int, error)
}
