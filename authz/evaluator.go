package authz

import (
	"context"

	"go.uber.org/zap"
)

// Subject is the resolved view of an acting user. Its methods are pure
// decisions over that view.
type Subject struct {
	UserID    string
	Roles     RoleSet
	AdminOrgs OrgSet
}

func (s Subject) IsSuperAdmin() bool {
	return s.Roles.Has(RoleSuperAdmin)
}

// IsOrgAdmin reports whether the subject administers at least one organization.
func (s Subject) IsOrgAdmin() bool {
	return len(s.AdminOrgs) > 0
}

func (s Subject) CanManageOrganization(orgID string) bool {
	return s.IsSuperAdmin() || s.AdminOrgs.Has(orgID)
}

// CanManageUser allows super admins, the user themself, and any admin of an
// organization the target belongs to. One shared organization is enough.
func (s Subject) CanManageUser(targetUserID string, targetOrgs OrgSet) bool {
	if s.IsSuperAdmin() || s.UserID == targetUserID {
		return true
	}
	return s.AdminOrgs.Intersects(targetOrgs)
}

// CanAssignRole applies the same rule to granting and revoking global roles.
func (s Subject) CanAssignRole(targetUserID string, targetOrgs OrgSet, role Role) bool {
	if !role.Valid() {
		return false
	}
	if s.IsSuperAdmin() {
		return true
	}
	if role.Privileged() {
		return false
	}
	if s.IsOrgAdmin() {
		return s.CanManageUser(targetUserID, targetOrgs)
	}
	return s.UserID == targetUserID
}

// Authorizer answers the authorization questions asked by the service layer.
type Authorizer interface {
	Subject(ctx context.Context, id Identity) (Subject, bool)
	IsSuperAdmin(ctx context.Context, id Identity) bool
	CanManageOrganization(ctx context.Context, id Identity, orgID string) bool
	CanManageUser(ctx context.Context, id Identity, targetUserID string) bool
	CanAssignRole(ctx context.Context, id Identity, targetUserID string, role Role) bool
}

// Evaluator answers authorization questions for an Identity by resolving
// its roles fresh on every call. It never returns an error: a failed lookup
// is logged and treated as a denial.
type Evaluator struct {
	resolver Resolver
	logger   *zap.Logger
}

var _ Authorizer = (*Evaluator)(nil)

// NewEvaluator creates a new Evaluator
func NewEvaluator(resolver Resolver, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{resolver: resolver, logger: logger}
}

// Subject resolves the identity's global roles and admin organizations.
// ok is false when the lookup failed.
func (e *Evaluator) Subject(ctx context.Context, id Identity) (Subject, bool) {
	s := Subject{UserID: id.UserID, AdminOrgs: NewOrgSet()}
	if !id.Authenticated() {
		return s, true
	}

	roles, err := e.resolver.GlobalRoles(ctx, id.UserID)
	if err != nil {
		e.logger.Error("resolve global roles", zap.String("user_id", id.UserID), zap.Error(err))
		return s, false
	}
	s.Roles = roles

	// Super admins never need their organization list.
	if s.IsSuperAdmin() {
		return s, true
	}

	orgs, err := e.resolver.AdminOrganizationIDs(ctx, id.UserID)
	if err != nil {
		e.logger.Error("resolve admin organizations", zap.String("user_id", id.UserID), zap.Error(err))
		return s, false
	}
	s.AdminOrgs = orgs
	return s, true
}

func (e *Evaluator) IsSuperAdmin(ctx context.Context, id Identity) bool {
	s, ok := e.Subject(ctx, id)
	return ok && s.IsSuperAdmin()
}

func (e *Evaluator) CanManageOrganization(ctx context.Context, id Identity, orgID string) bool {
	s, ok := e.Subject(ctx, id)
	if !ok {
		return false
	}
	allowed := s.CanManageOrganization(orgID)
	if !allowed {
		e.logger.Info("authz denied",
			zap.String("user_id", id.UserID),
			zap.String("action", "manage_organization"),
			zap.String("organization_id", orgID))
	}
	return allowed
}

func (e *Evaluator) CanManageUser(ctx context.Context, id Identity, targetUserID string) bool {
	s, ok := e.Subject(ctx, id)
	if !ok {
		return false
	}
	targetOrgs, ok := e.targetOrgs(ctx, s, targetUserID)
	if !ok {
		return false
	}
	allowed := s.CanManageUser(targetUserID, targetOrgs)
	if !allowed {
		e.logger.Info("authz denied",
			zap.String("user_id", id.UserID),
			zap.String("action", "manage_user"),
			zap.String("target_user_id", targetUserID))
	}
	return allowed
}

func (e *Evaluator) CanAssignRole(ctx context.Context, id Identity, targetUserID string, role Role) bool {
	s, ok := e.Subject(ctx, id)
	if !ok {
		return false
	}
	targetOrgs, ok := e.targetOrgs(ctx, s, targetUserID)
	if !ok {
		return false
	}
	allowed := s.CanAssignRole(targetUserID, targetOrgs, role)
	if !allowed {
		e.logger.Info("authz denied",
			zap.String("user_id", id.UserID),
			zap.String("action", "assign_role"),
			zap.String("target_user_id", targetUserID),
			zap.Stringer("role", role))
	}
	return allowed
}

// targetOrgs skips the lookup when the answer cannot depend on it.
func (e *Evaluator) targetOrgs(ctx context.Context, s Subject, targetUserID string) (OrgSet, bool) {
	if s.IsSuperAdmin() || s.UserID == targetUserID || !s.IsOrgAdmin() {
		return NewOrgSet(), true
	}
	orgs, err := e.resolver.OrganizationIDs(ctx, targetUserID)
	if err != nil {
		e.logger.Error("resolve target organizations", zap.String("target_user_id", targetUserID), zap.Error(err))
		return nil, false
	}
	return orgs, true
}
