package services

import (
	"context"
	"errors"
	"strings"

	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
	"go.uber.org/zap"
)

// SuperAdminBootstrap provisions super admins from the command line. No API
// route can create the first one, since granting SUPER_ADMIN needs a super admin.
type SuperAdminBootstrap struct {
	users  UserRepository
	roles  authz.RoleStore
	logger *zap.Logger
}

func NewSuperAdminBootstrap(users UserRepository, roles authz.RoleStore, logger *zap.Logger) *SuperAdminBootstrap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SuperAdminBootstrap{users: users, roles: roles, logger: logger}
}

// Ensure makes the account with req.Email a super admin, creating it when no
// user has that email. An existing account keeps its password and profile.
// Running it again is a no-op. created reports whether a new user was made.
func (b *SuperAdminBootstrap) Ensure(ctx context.Context, req RegisterRequest) (u *db.User, created bool, err error) {
	u, err = b.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	switch {
	case err == nil:
		b.logger.Info("user already exists", zap.String("user_id", u.ID), zap.String("email", u.Email))
	case errors.Is(err, authz.ErrNotFound):
		candidate, err := newUser(req)
		if err != nil {
			return nil, false, err
		}
		if err := b.users.Create(ctx, candidate); err != nil {
			return nil, false, err
		}
		u, created = candidate, true
		b.logger.Info("user created", zap.String("user_id", u.ID), zap.String("email", u.Email))
	default:
		return nil, false, err
	}

	if hasRole(u.Roles, authz.RoleSuperAdmin) {
		b.logger.Info("user already holds super_admin", zap.String("user_id", u.ID))
		return u, created, nil
	}
	if err := b.roles.GrantRole(ctx, u.ID, authz.RoleSuperAdmin); err != nil {
		return nil, created, err
	}
	u.Roles = append(u.Roles, authz.RoleSuperAdmin)
	b.logger.Info("super_admin granted", zap.String("user_id", u.ID))
	return u, created, nil
}
