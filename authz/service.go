package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Common errors
var (
	ErrForbidden        = errors.New("forbidden: you don't have permission to perform this action")
	ErrNotFound         = errors.New("resource not found")
	ErrAlreadyExists    = errors.New("resource already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnknownRole      = errors.New("unknown role")
	ErrSingleAdmin      = errors.New("organization already has an admin")
	ErrLastOrgAdmin     = errors.New("cannot remove the only admin of an organization")
	ErrLastSuperAdmin   = errors.New("cannot remove the last super admin role")
	ErrCannotRemoveSelf = errors.New("cannot remove yourself")
)

// OrgService handles organization business logic.
// Every mutation asks the Authorizer first, then acts on the store.
type OrgService struct {
	authz   Authorizer
	members MembershipManager
	roles   RoleStore
	repo    OrgRepository
	logger  *zap.Logger
}

// NewOrgService creates a new organization service
func NewOrgService(authz Authorizer, members MembershipManager, roles RoleStore, repo OrgRepository, logger *zap.Logger) *OrgService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrgService{
		authz:   authz,
		members: members,
		roles:   roles,
		repo:    repo,
		logger:  logger,
	}
}

// CreateOrgInput represents input for creating an organization
type CreateOrgInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// CreateOrg creates a new organization. The creator becomes its ADMIN member
// and receives the global ADMIN grant.
func (s *OrgService) CreateOrg(ctx context.Context, id Identity, input CreateOrgInput) (*Organization, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !id.Authenticated() {
		return nil, ErrForbidden
	}

	if s.repo.NameExists(ctx, input.Name) {
		return nil, fmt.Errorf("%w: organization name already taken", ErrAlreadyExists)
	}

	org := &Organization{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Description: input.Description,
		Location:    input.Location,
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
	}

	if err := s.repo.Create(ctx, org); err != nil {
		return nil, err
	}

	if err := s.members.AddMember(ctx, org.ID, id.UserID, RoleAdmin); err != nil {
		// Rollback org creation
		_ = s.repo.Delete(ctx, org.ID)
		return nil, fmt.Errorf("failed to add admin membership: %w", err)
	}

	if err := s.roles.GrantRole(ctx, id.UserID, RoleAdmin); err != nil {
		_ = s.repo.Delete(ctx, org.ID)
		return nil, fmt.Errorf("failed to grant admin role: %w", err)
	}

	s.logger.Info("organization created",
		zap.String("organization_id", org.ID),
		zap.String("admin_id", id.UserID))
	return org, nil
}

// GetOrg retrieves an organization by ID
func (s *OrgService) GetOrg(ctx context.Context, orgID string) (*Organization, error) {
	return s.repo.Get(ctx, orgID)
}

// ListOrgs returns organizations ordered by name
func (s *OrgService) ListOrgs(ctx context.Context, limit, offset int) ([]Organization, error) {
	return s.repo.List(ctx, limit, offset)
}

// ListUserOrgs returns the organizations the caller belongs to
func (s *OrgService) ListUserOrgs(ctx context.Context, id Identity) ([]Organization, error) {
	return s.repo.ListByUser(ctx, id.UserID)
}

// UpdateOrgInput represents input for updating an organization
type UpdateOrgInput struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Location    *string  `json:"location,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// UpdateOrg updates an organization (requires organization management)
func (s *OrgService) UpdateOrg(ctx context.Context, id Identity, orgID string, input UpdateOrgInput) (*Organization, error) {
	if !s.authz.CanManageOrganization(ctx, id, orgID) {
		return nil, ErrForbidden
	}

	org, err := s.repo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
		}
		if name != org.Name && s.repo.NameExists(ctx, name) {
			return nil, fmt.Errorf("%w: organization name already taken", ErrAlreadyExists)
		}
		org.Name = name
	}
	if input.Description != nil {
		org.Description = *input.Description
	}
	if input.Location != nil {
		org.Location = *input.Location
	}
	if input.Latitude != nil {
		org.Latitude = input.Latitude
	}
	if input.Longitude != nil {
		org.Longitude = input.Longitude
	}

	if err := s.repo.Update(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// DeleteOrg deletes an organization with its memberships and events
func (s *OrgService) DeleteOrg(ctx context.Context, id Identity, orgID string) error {
	if !s.authz.CanManageOrganization(ctx, id, orgID) {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, orgID); err != nil {
		return err
	}
	s.logger.Info("organization deleted", zap.String("organization_id", orgID), zap.String("actor_id", id.UserID))
	return nil
}

// AddMemberInput represents input for adding a member
type AddMemberInput struct {
	UserID string `json:"user_id" binding:"required,uuid"`
	Role   Role   `json:"role"`
}

// AddMember adds a user to an organization (requires organization management).
// An organization holds at most one ADMIN.
func (s *OrgService) AddMember(ctx context.Context, id Identity, orgID string, input AddMemberInput) (*Membership, error) {
	if !s.authz.CanManageOrganization(ctx, id, orgID) {
		return nil, ErrForbidden
	}
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if !input.Role.MembershipRole() {
		return nil, fmt.Errorf("%w: %s is not an organization role", ErrInvalidInput, input.Role)
	}
	if !s.repo.Exists(ctx, orgID) {
		return nil, fmt.Errorf("%w: organization", ErrNotFound)
	}

	if input.Role == RoleAdmin {
		if err := s.ensureNoAdmin(ctx, orgID); err != nil {
			return nil, err
		}
	}

	if err := s.members.AddMember(ctx, orgID, input.UserID, input.Role); err != nil {
		return nil, err
	}
	return s.members.GetMembership(ctx, orgID, input.UserID)
}

// UpdateMemberRole changes a member's role (requires organization management)
func (s *OrgService) UpdateMemberRole(ctx context.Context, id Identity, orgID, userID string, role Role) (*Membership, error) {
	if !s.authz.CanManageOrganization(ctx, id, orgID) {
		return nil, ErrForbidden
	}
	if !role.MembershipRole() {
		return nil, fmt.Errorf("%w: %s is not an organization role", ErrInvalidInput, role)
	}

	current, err := s.members.GetMembership(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if current.Role == role {
		return current, nil
	}

	if role == RoleAdmin {
		if err := s.ensureNoAdmin(ctx, orgID); err != nil {
			return nil, err
		}
	}
	if current.Role == RoleAdmin {
		if err := s.ensureNotLastAdmin(ctx, orgID); err != nil {
			return nil, err
		}
	}

	if err := s.members.UpdateMemberRole(ctx, orgID, userID, role); err != nil {
		return nil, err
	}
	current.Role = role
	return current, nil
}

// RemoveMember removes a user from an organization. Organization managers
// may remove anyone; members may remove themselves.
func (s *OrgService) RemoveMember(ctx context.Context, id Identity, orgID, userID string) error {
	if id.UserID != userID && !s.authz.CanManageOrganization(ctx, id, orgID) {
		return ErrForbidden
	}

	mem, err := s.members.GetMembership(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if mem.Role == RoleAdmin {
		if err := s.ensureNotLastAdmin(ctx, orgID); err != nil {
			return err
		}
	}

	return s.members.RemoveMember(ctx, orgID, userID)
}

// ListMembers returns all members of an organization
func (s *OrgService) ListMembers(ctx context.Context, orgID string) ([]Membership, error) {
	if !s.repo.Exists(ctx, orgID) {
		return nil, fmt.Errorf("%w: organization", ErrNotFound)
	}
	return s.members.ListMembers(ctx, orgID)
}

func (s *OrgService) ensureNoAdmin(ctx context.Context, orgID string) error {
	admins, err := s.members.CountAdmins(ctx, orgID)
	if err != nil {
		return err
	}
	if admins > 0 {
		return ErrSingleAdmin
	}
	return nil
}

func (s *OrgService) ensureNotLastAdmin(ctx context.Context, orgID string) error {
	admins, err := s.members.CountAdmins(ctx, orgID)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return ErrLastOrgAdmin
	}
	return nil
}
