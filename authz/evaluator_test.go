package authz

import (
	"context"
	"errors"
	"testing"
)

// ============================================================================
// Mock Resolver
// ============================================================================

// MockResolver implements Resolver over in-memory maps
type MockResolver struct {
	Roles       map[string]RoleSet         // userID -> global roles
	Memberships map[string]map[string]Role // userID -> orgID -> role
	Err         error
	Calls       int
}

func NewMockResolver() *MockResolver {
	return &MockResolver{
		Roles:       make(map[string]RoleSet),
		Memberships: make(map[string]map[string]Role),
	}
}

func (m *MockResolver) Grant(userID string, role Role) {
	m.Roles[userID] = m.Roles[userID].With(role)
}

func (m *MockResolver) Revoke(userID string, role Role) {
	m.Roles[userID] = m.Roles[userID].Without(role)
}

func (m *MockResolver) Join(userID, orgID string, role Role) {
	if m.Memberships[userID] == nil {
		m.Memberships[userID] = make(map[string]Role)
	}
	m.Memberships[userID][orgID] = role
}

func (m *MockResolver) Leave(userID, orgID string) {
	delete(m.Memberships[userID], orgID)
}

func (m *MockResolver) GlobalRoles(ctx context.Context, userID string) (RoleSet, error) {
	m.Calls++
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Roles[userID], nil
}

func (m *MockResolver) AdminOrganizationIDs(ctx context.Context, userID string) (OrgSet, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	orgs := NewOrgSet()
	for orgID, role := range m.Memberships[userID] {
		if role == RoleAdmin {
			orgs[orgID] = struct{}{}
		}
	}
	return orgs, nil
}

func (m *MockResolver) OrganizationIDs(ctx context.Context, userID string) (OrgSet, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	orgs := NewOrgSet()
	for orgID := range m.Memberships[userID] {
		orgs[orgID] = struct{}{}
	}
	return orgs, nil
}

// ============================================================================
// Subject decisions
// ============================================================================

func TestSubject_CanManageOrganization(t *testing.T) {
	tests := []struct {
		name    string
		subject Subject
		orgID   string
		want    bool
	}{
		{"super admin without membership", Subject{UserID: "s", Roles: NewRoleSet(RoleSuperAdmin)}, "any-org", true},
		{"admin of org", Subject{UserID: "a", AdminOrgs: NewOrgSet("org-1")}, "org-1", true},
		{"admin of another org", Subject{UserID: "a", AdminOrgs: NewOrgSet("org-2")}, "org-1", false},
		{"global admin grant alone", Subject{UserID: "a", Roles: NewRoleSet(RoleAdmin)}, "org-1", false},
		{"no roles", Subject{UserID: "b"}, "org-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.subject.CanManageOrganization(tt.orgID); got != tt.want {
				t.Errorf("CanManageOrganization() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubject_CanManageUser(t *testing.T) {
	admin := Subject{UserID: "a", AdminOrgs: NewOrgSet("org-1", "org-2")}

	tests := []struct {
		name       string
		subject    Subject
		target     string
		targetOrgs OrgSet
		want       bool
	}{
		{"self with no roles", Subject{UserID: "u"}, "u", NewOrgSet(), true},
		{"super admin", Subject{UserID: "s", Roles: NewRoleSet(RoleSuperAdmin)}, "x", NewOrgSet(), true},
		{"admin of shared org", admin, "m", NewOrgSet("org-2"), true},
		{"admin sharing one of several orgs", admin, "m", NewOrgSet("org-9", "org-1"), true},
		{"admin with no shared org", admin, "x", NewOrgSet("org-3"), false},
		{"admin and target without orgs", admin, "x", NewOrgSet(), false},
		{"plain member of same org", Subject{UserID: "w"}, "m", NewOrgSet("org-1"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.subject.CanManageUser(tt.target, tt.targetOrgs); got != tt.want {
				t.Errorf("CanManageUser() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubject_CanAssignRole(t *testing.T) {
	super := Subject{UserID: "s", Roles: NewRoleSet(RoleSuperAdmin)}
	admin := Subject{UserID: "a", Roles: NewRoleSet(RoleAdmin), AdminOrgs: NewOrgSet("org-1")}
	plain := Subject{UserID: "u", Roles: NewRoleSet(RoleBeneficiary)}
	inOrg := NewOrgSet("org-1")
	outside := NewOrgSet("org-2")

	tests := []struct {
		name       string
		subject    Subject
		target     string
		targetOrgs OrgSet
		role       Role
		want       bool
	}{
		{"super admin grants super admin", super, "x", outside, RoleSuperAdmin, true},
		{"super admin grants admin to self", super, "s", NewOrgSet(), RoleAdmin, true},
		{"super admin grants worker", super, "x", outside, RoleWorker, true},

		{"org admin grants worker to member", admin, "m", inOrg, RoleWorker, true},
		{"org admin grants volunteer to self", admin, "a", NewOrgSet(), RoleVolunteer, true},
		{"org admin grants worker outside orgs", admin, "x", outside, RoleWorker, false},
		{"org admin grants admin to member", admin, "m", inOrg, RoleAdmin, false},
		{"org admin grants admin to self", admin, "a", inOrg, RoleAdmin, false},
		{"org admin grants super admin to self", admin, "a", inOrg, RoleSuperAdmin, false},

		{"plain user grants volunteer to self", plain, "u", NewOrgSet(), RoleVolunteer, true},
		{"plain user grants worker to other", plain, "x", NewOrgSet(), RoleWorker, false},
		{"plain user grants admin to self", plain, "u", NewOrgSet(), RoleAdmin, false},
		{"plain user grants super admin to self", plain, "u", NewOrgSet(), RoleSuperAdmin, false},

		{"invalid role", super, "x", outside, Role(0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.subject.CanAssignRole(tt.target, tt.targetOrgs, tt.role); got != tt.want {
				t.Errorf("CanAssignRole() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Evaluator over a resolver
// ============================================================================

func TestEvaluator_SuperAdminManagesEveryOrganization(t *testing.T) {
	r := NewMockResolver()
	r.Grant("s", RoleSuperAdmin)
	e := NewEvaluator(r, nil)
	ctx := context.Background()

	for _, org := range []string{"org-1", "org-2", "never-seen"} {
		if !e.CanManageOrganization(ctx, Identity{UserID: "s"}, org) {
			t.Errorf("super admin denied on %s", org)
		}
	}
}

func TestEvaluator_SelfManagementAlwaysAllowed(t *testing.T) {
	r := NewMockResolver()
	r.Join("admin", "org-1", RoleAdmin)
	r.Grant("worker", RoleWorker)
	e := NewEvaluator(r, nil)
	ctx := context.Background()

	for _, u := range []string{"nobody", "admin", "worker"} {
		if !e.CanManageUser(ctx, Identity{UserID: u}, u) {
			t.Errorf("CanManageUser(%s, %s) = false", u, u)
		}
	}
}

func TestEvaluator_NonAdminCannotManageOrganization(t *testing.T) {
	r := NewMockResolver()
	r.Join("w", "org-1", RoleWorker)
	r.Join("w", "org-2", RoleAdmin)
	r.Grant("w", RoleAdmin)
	e := NewEvaluator(r, nil)

	if e.CanManageOrganization(context.Background(), Identity{UserID: "w"}, "org-1") {
		t.Error("worker member of org-1 should not manage it")
	}
	if !e.CanManageOrganization(context.Background(), Identity{UserID: "w"}, "org-2") {
		t.Error("admin of org-2 should manage it")
	}
}

func TestEvaluator_AdminManagesMembersOfTheirOrganization(t *testing.T) {
	r := NewMockResolver()
	r.Join("a", "org-1", RoleAdmin)
	r.Join("m", "org-1", RoleVolunteer)
	r.Join("x", "org-2", RoleWorker)
	e := NewEvaluator(r, nil)
	ctx := context.Background()
	a := Identity{UserID: "a"}

	if !e.CanManageUser(ctx, a, "m") {
		t.Error("admin should manage a member of their organization")
	}
	if e.CanManageUser(ctx, a, "x") {
		t.Error("admin should not manage a user outside their organization")
	}

	// Roles are read fresh: once m leaves, a loses control.
	r.Leave("m", "org-1")
	if e.CanManageUser(ctx, a, "m") {
		t.Error("decision should reflect the membership change")
	}
}

func TestEvaluator_OrgAdminCannotGrantPrivilegedRoles(t *testing.T) {
	r := NewMockResolver()
	r.Join("a", "org-1", RoleAdmin)
	r.Grant("a", RoleAdmin)
	r.Join("m", "org-1", RoleWorker)
	e := NewEvaluator(r, nil)
	ctx := context.Background()

	for _, target := range []string{"a", "m", "outsider"} {
		for _, role := range []Role{RoleAdmin, RoleSuperAdmin} {
			if e.CanAssignRole(ctx, Identity{UserID: "a"}, target, role) {
				t.Errorf("org admin assigned %s to %s", role, target)
			}
		}
	}
	if !e.CanAssignRole(ctx, Identity{UserID: "a"}, "m", RoleVolunteer) {
		t.Error("org admin should assign volunteer to a member")
	}
}

func TestEvaluator_ResolverFailureDenies(t *testing.T) {
	r := NewMockResolver()
	r.Grant("s", RoleSuperAdmin)
	r.Err = errors.New("db down")
	e := NewEvaluator(r, nil)
	ctx := context.Background()
	s := Identity{UserID: "s"}

	if e.IsSuperAdmin(ctx, s) {
		t.Error("IsSuperAdmin should deny on resolver failure")
	}
	if e.CanManageOrganization(ctx, s, "org-1") {
		t.Error("CanManageOrganization should deny on resolver failure")
	}
	if e.CanManageUser(ctx, s, "s") {
		t.Error("CanManageUser should deny on resolver failure")
	}
	if e.CanAssignRole(ctx, s, "s", RoleWorker) {
		t.Error("CanAssignRole should deny on resolver failure")
	}
}

func TestEvaluator_SkipsTargetLookupWhenNotNeeded(t *testing.T) {
	r := NewMockResolver()
	r.Grant("s", RoleSuperAdmin)
	e := NewEvaluator(r, nil)

	e.CanManageUser(context.Background(), Identity{UserID: "s"}, "x")
	if r.Calls != 1 {
		t.Errorf("super admin decision made %d resolver calls, want 1", r.Calls)
	}
}
