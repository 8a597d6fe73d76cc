package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// Resolver reads the roles a user holds. Implementations must not mutate
// anything, and an unknown user resolves to empty sets without error.
type Resolver interface {
	// GlobalRoles returns the user's global role grants
	GlobalRoles(ctx context.Context, userID string) (RoleSet, error)

	// AdminOrganizationIDs returns organizations where the user holds the ADMIN membership role
	AdminOrganizationIDs(ctx context.Context, userID string) (OrgSet, error)

	// OrganizationIDs returns organizations where the user holds any membership
	OrganizationIDs(ctx context.Context, userID string) (OrgSet, error)
}

// SimpleResolver implements Resolver with direct SQL queries against
// user_roles and organization_members. Nothing is cached: every call reads
// the current state.
type SimpleResolver struct {
	db *sql.DB
}

// NewSimpleResolver creates a new SimpleResolver with the given database connection
func NewSimpleResolver(db *sql.DB) *SimpleResolver {
	return &SimpleResolver{db: db}
}

var _ Resolver = (*SimpleResolver)(nil)

// GlobalRoles returns the user's global role grants
func (r *SimpleResolver) GlobalRoles(ctx context.Context, userID string) (RoleSet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT role FROM user_roles
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	var roles RoleSet
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role); err != nil {
			return 0, fmt.Errorf("failed to scan user role: %w", err)
		}
		roles = roles.With(role)
	}
	return roles, rows.Err()
}

// AdminOrganizationIDs returns organizations where the user is ADMIN
func (r *SimpleResolver) AdminOrganizationIDs(ctx context.Context, userID string) (OrgSet, error) {
	return r.queryOrgIDs(ctx, `
		SELECT organization_id FROM organization_members
		WHERE user_id = $1 AND role = $2
	`, userID, RoleAdmin)
}

// OrganizationIDs returns organizations where the user has any membership
func (r *SimpleResolver) OrganizationIDs(ctx context.Context, userID string) (OrgSet, error) {
	return r.queryOrgIDs(ctx, `
		SELECT organization_id FROM organization_members
		WHERE user_id = $1
	`, userID)
}

func (r *SimpleResolver) queryOrgIDs(ctx context.Context, query string, args ...any) (OrgSet, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization memberships: %w", err)
	}
	defer rows.Close()

	orgs := NewOrgSet()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization id: %w", err)
		}
		orgs[id] = struct{}{}
	}
	return orgs, rows.Err()
}
