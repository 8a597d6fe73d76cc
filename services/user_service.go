package services

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
	"go.uber.org/zap"
)

// Algerian mobile numbers
var phonePattern = regexp.MustCompile(`^\+213[5-7]\d{8}$`)

// ValidPhone reports whether phone is an accepted mobile number
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// UserService manages user profiles and global role grants.
// Every mutation asks the authorizer first.
type UserService struct {
	authz  authz.Authorizer
	users  UserRepository
	roles  authz.RoleStore
	logger *zap.Logger
}

func NewUserService(az authz.Authorizer, users UserRepository, roles authz.RoleStore, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{authz: az, users: users, roles: roles, logger: logger}
}

// GetUser returns a profile. Profiles are public to authenticated users,
// except that an organization admin only sees the users they manage.
func (s *UserService) GetUser(ctx context.Context, id authz.Identity, userID string) (*db.User, error) {
	if userID != id.UserID {
		sub, ok := s.authz.Subject(ctx, id)
		if !ok {
			return nil, authz.ErrForbidden
		}
		if !sub.IsSuperAdmin() && sub.Roles.Has(authz.RoleAdmin) && !s.authz.CanManageUser(ctx, id, userID) {
			return nil, fmt.Errorf("%w: you can only view users in your organizations", authz.ErrForbidden)
		}
	}
	return s.users.GetByID(ctx, userID)
}

// UserRoles lists a user's global role grants
func (s *UserService) UserRoles(ctx context.Context, id authz.Identity, userID string) ([]authz.Role, error) {
	if !s.authz.CanManageUser(ctx, id, userID) {
		return nil, authz.ErrForbidden
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Roles == nil {
		return []authz.Role{}, nil
	}
	return u.Roles, nil
}

func (s *UserService) GetMe(ctx context.Context, id authz.Identity) (*db.User, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthorized
	}
	return s.users.GetByID(ctx, id.UserID)
}

func (s *UserService) UpdateUser(ctx context.Context, id authz.Identity, userID string, req db.UpdateUserRequest) (*db.User, error) {
	if !s.authz.CanManageUser(ctx, id, userID) {
		return nil, authz.ErrForbidden
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, fmt.Errorf("%w: full_name cannot be empty", authz.ErrInvalidInput)
		}
		u.FullName = name
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone != "" && !ValidPhone(phone) {
			return nil, fmt.Errorf("%w: phone must match +213XXXXXXXXX", authz.ErrInvalidInput)
		}
		u.Phone = phone
	}
	if req.Location != nil {
		u.Location = *req.Location
	}
	if req.Latitude != nil {
		u.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		u.Longitude = req.Longitude
	}
	if err := validateCoordinates(u.Latitude, u.Longitude); err != nil {
		return nil, err
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser removes a user. Only a super admin may delete a super admin,
// and the last super admin cannot be deleted at all.
func (s *UserService) DeleteUser(ctx context.Context, id authz.Identity, userID string) error {
	if !s.authz.CanManageUser(ctx, id, userID) {
		return authz.ErrForbidden
	}

	target, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if hasRole(target.Roles, authz.RoleSuperAdmin) {
		if !s.authz.IsSuperAdmin(ctx, id) {
			return authz.ErrForbidden
		}
		if err := s.ensureNotLastSuperAdmin(ctx); err != nil {
			return err
		}
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("user deleted", zap.String("user_id", userID), zap.String("by", id.UserID))
	return nil
}

// ListUsers returns every user to a super admin and the members of their
// organizations to an org admin.
func (s *UserService) ListUsers(ctx context.Context, id authz.Identity, limit, offset int) ([]db.User, error) {
	subject, ok := s.authz.Subject(ctx, id)
	if !ok {
		return nil, authz.ErrForbidden
	}
	limit = clampLimit(limit, 50, 200)

	switch {
	case subject.IsSuperAdmin():
		return s.users.List(ctx, limit, offset)
	case subject.IsOrgAdmin():
		return s.users.ListByOrganizations(ctx, subject.AdminOrgs.Slice(), limit, offset)
	}
	return nil, authz.ErrForbidden
}

func (s *UserService) SearchUsers(ctx context.Context, id authz.Identity, query string, limit int) ([]db.User, error) {
	if !s.authz.IsSuperAdmin(ctx, id) {
		return nil, authz.ErrForbidden
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", authz.ErrInvalidInput)
	}
	return s.users.Search(ctx, query, clampLimit(limit, 20, 100))
}

func (s *UserService) CountByRole(ctx context.Context, id authz.Identity) (map[authz.Role]int, error) {
	if !s.authz.IsSuperAdmin(ctx, id) {
		return nil, authz.ErrForbidden
	}
	return s.roles.CountByRole(ctx)
}

func (s *UserService) UsersWithRole(ctx context.Context, id authz.Identity, role authz.Role) ([]db.User, error) {
	if !role.Valid() {
		return nil, authz.ErrUnknownRole
	}
	if !s.authz.IsSuperAdmin(ctx, id) {
		return nil, authz.ErrForbidden
	}
	return s.users.ListByRole(ctx, role)
}

// AddRole grants a global role. Granting a role the user already holds is a no-op.
func (s *UserService) AddRole(ctx context.Context, id authz.Identity, userID string, role authz.Role) error {
	if !role.Valid() {
		return authz.ErrUnknownRole
	}
	if !s.authz.CanAssignRole(ctx, id, userID, role) {
		return authz.ErrForbidden
	}
	if !s.users.Exists(ctx, userID) {
		return fmt.Errorf("%w: user", authz.ErrNotFound)
	}

	if err := s.roles.GrantRole(ctx, userID, role); err != nil {
		return err
	}
	s.logger.Info("role granted",
		zap.String("user_id", userID),
		zap.Stringer("role", role),
		zap.String("by", id.UserID))
	return nil
}

// RemoveRole revokes a global role. Removal needs the same permission as
// assignment. A super admin cannot drop their own SUPER_ADMIN grant while
// they are its only holder.
func (s *UserService) RemoveRole(ctx context.Context, id authz.Identity, userID string, role authz.Role) error {
	if !role.Valid() {
		return authz.ErrUnknownRole
	}
	if !s.authz.CanAssignRole(ctx, id, userID, role) {
		return authz.ErrForbidden
	}

	if role == authz.RoleSuperAdmin && userID == id.UserID {
		if err := s.ensureNotLastSuperAdmin(ctx); err != nil {
			return err
		}
	}

	if err := s.roles.RevokeRole(ctx, userID, role); err != nil {
		return err
	}
	s.logger.Info("role revoked",
		zap.String("user_id", userID),
		zap.Stringer("role", role),
		zap.String("by", id.UserID))
	return nil
}

func (s *UserService) ensureNotLastSuperAdmin(ctx context.Context) error {
	n, err := s.roles.CountHolders(ctx, authz.RoleSuperAdmin)
	if err != nil {
		return fmt.Errorf("failed to count super admins: %w", err)
	}
	if n <= 1 {
		return authz.ErrLastSuperAdmin
	}
	return nil
}

func hasRole(roles []authz.Role, role authz.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func validateCoordinates(lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return fmt.Errorf("%w: latitude and longitude must be set together", authz.ErrInvalidInput)
	}
	if lat == nil {
		return nil
	}
	if !finite(*lat) || !finite(*lng) {
		return fmt.Errorf("%w: coordinates must be finite numbers", authz.ErrInvalidInput)
	}
	if *lat < -90 || *lat > 90 || *lng < -180 || *lng > 180 {
		return fmt.Errorf("%w: coordinates out of range", authz.ErrInvalidInput)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
