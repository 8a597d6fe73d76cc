package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SimpleMembershipManager implements MembershipManager using SQL
type SimpleMembershipManager struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSimpleMembershipManager creates a new SimpleMembershipManager
func NewSimpleMembershipManager(db *sql.DB, logger *zap.Logger) *SimpleMembershipManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimpleMembershipManager{db: db, logger: logger}
}

var _ MembershipManager = (*SimpleMembershipManager)(nil)

// singleAdminIndex backs the one-admin-per-organization rule in the schema
const singleAdminIndex = "uq_org_members_single_admin"

func isSingleAdminViolation(err error) bool {
	return isUniqueViolation(err) && violatedConstraint(err) == singleAdminIndex
}

// AddMember adds a user to an organization
func (m *SimpleMembershipManager) AddMember(ctx context.Context, orgID, userID string, role Role) error {
	now := time.Now()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, orgID, userID, role, now, now)

	if err != nil {
		if isSingleAdminViolation(err) {
			return ErrSingleAdmin
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user is already a member", ErrAlreadyExists)
		}
		if isMissingReference(err) {
			return fmt.Errorf("%w: user or organization", ErrNotFound)
		}
		return fmt.Errorf("failed to add membership: %w", err)
	}
	return nil
}

// UpdateMemberRole changes a member's role
func (m *SimpleMembershipManager) UpdateMemberRole(ctx context.Context, orgID, userID string, role Role) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE organization_members
		SET role = $1, updated_at = $2
		WHERE organization_id = $3 AND user_id = $4
	`, role, time.Now(), orgID, userID)

	if err != nil {
		if isSingleAdminViolation(err) {
			return ErrSingleAdmin
		}
		return fmt.Errorf("failed to update membership: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: membership", ErrNotFound)
	}
	return nil
}

// RemoveMember removes a user from an organization
func (m *SimpleMembershipManager) RemoveMember(ctx context.Context, orgID, userID string) error {
	result, err := m.db.ExecContext(ctx, `
		DELETE FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID)

	if err != nil {
		return fmt.Errorf("failed to remove membership: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: membership", ErrNotFound)
	}
	return nil
}

// GetMembership gets a specific membership
func (m *SimpleMembershipManager) GetMembership(ctx context.Context, orgID, userID string) (*Membership, error) {
	var mem Membership
	err := m.db.QueryRowContext(ctx, `
		SELECT organization_id, user_id, role, created_at, updated_at
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&mem.OrganizationID, &mem.UserID, &mem.Role, &mem.CreatedAt, &mem.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: membership", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &mem, nil
}

// ListMembers returns all members of an organization, admins first
func (m *SimpleMembershipManager) ListMembers(ctx context.Context, orgID string) ([]Membership, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT
			m.organization_id, m.user_id, m.role, m.created_at, m.updated_at,
			COALESCE(u.full_name, ''), COALESCE(u.email, '')
		FROM organization_members m
		LEFT JOIN users u ON m.user_id = u.id
		WHERE m.organization_id = $1
		ORDER BY
			CASE m.role WHEN 'admin' THEN 1 ELSE 2 END,
			m.created_at
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	memberships := make([]Membership, 0)
	for rows.Next() {
		var mem Membership
		if err := rows.Scan(
			&mem.OrganizationID, &mem.UserID, &mem.Role, &mem.CreatedAt, &mem.UpdatedAt,
			&mem.FullName, &mem.Email,
		); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, mem)
	}
	return memberships, rows.Err()
}

// ListUserMemberships returns all memberships of a user
func (m *SimpleMembershipManager) ListUserMemberships(ctx context.Context, userID string) ([]Membership, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT organization_id, user_id, role, created_at, updated_at
		FROM organization_members
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]Membership, 0)
	for rows.Next() {
		var mem Membership
		if err := rows.Scan(&mem.OrganizationID, &mem.UserID, &mem.Role, &mem.CreatedAt, &mem.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, mem)
	}
	return memberships, rows.Err()
}

// CountAdmins returns how many ADMIN memberships the organization has
func (m *SimpleMembershipManager) CountAdmins(ctx context.Context, orgID string) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM organization_members
		WHERE organization_id = $1 AND role = $2
	`, orgID, RoleAdmin).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

// IsMember checks if a user is a member of an organization (any role)
func (m *SimpleMembershipManager) IsMember(ctx context.Context, orgID, userID string) bool {
	var exists bool
	err := m.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM organization_members
			WHERE organization_id = $1 AND user_id = $2
		)
	`, orgID, userID).Scan(&exists)
	if err != nil {
		m.logger.Error("check membership", zap.String("organization_id", orgID), zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return exists
}

// ============================================================================
// SimpleRoleStore - SQL implementation of RoleStore
// ============================================================================

// SimpleRoleStore implements RoleStore over the user_roles table
type SimpleRoleStore struct {
	db *sql.DB
}

// NewSimpleRoleStore creates a new SimpleRoleStore
func NewSimpleRoleStore(db *sql.DB) *SimpleRoleStore {
	return &SimpleRoleStore{db: db}
}

var _ RoleStore = (*SimpleRoleStore)(nil)

// GrantRole adds a role grant
func (s *SimpleRoleStore) GrantRole(ctx context.Context, userID string, role Role) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role) DO NOTHING
	`, userID, role, time.Now())
	if err != nil {
		if isMissingReference(err) {
			return fmt.Errorf("%w: user", ErrNotFound)
		}
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// RevokeRole removes a role grant
func (s *SimpleRoleStore) RevokeRole(ctx context.Context, userID string, role Role) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM user_roles
		WHERE user_id = $1 AND role = $2
	`, userID, role)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: user does not have role %s", ErrNotFound, role)
	}
	return nil
}

// CountHolders returns how many users hold the role
func (s *SimpleRoleStore) CountHolders(ctx context.Context, role Role) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_roles WHERE role = $1
	`, role).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count role holders: %w", err)
	}
	return count, nil
}

// CountByRole returns the number of holders per role. Roles nobody holds
// are reported with a zero count.
func (s *SimpleRoleStore) CountByRole(ctx context.Context) (map[Role]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, COUNT(*) FROM user_roles GROUP BY role
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count roles: %w", err)
	}
	defer rows.Close()

	counts := make(map[Role]int, len(AllRoles))
	for _, r := range AllRoles {
		counts[r] = 0
	}
	for rows.Next() {
		var role Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("failed to scan role count: %w", err)
		}
		counts[role] = n
	}
	return counts, rows.Err()
}
