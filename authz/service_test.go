package authz

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
)

// ============================================================================
// Mock Store
// ============================================================================

// MockStore keeps organizations, memberships and role grants in memory and
// implements Resolver, MembershipManager, RoleStore and OrgRepository over
// the same data, so authorization decisions see every mutation.
type MockStore struct {
	Orgs    map[string]*Organization
	Members map[string]map[string]*Membership // orgID -> userID -> membership
	Grants  map[string]RoleSet                // userID -> global roles
	Error   error
}

func NewMockStore() *MockStore {
	return &MockStore{
		Orgs:    make(map[string]*Organization),
		Members: make(map[string]map[string]*Membership),
		Grants:  make(map[string]RoleSet),
	}
}

var (
	_ Resolver          = (*MockStore)(nil)
	_ MembershipManager = (*MockStore)(nil)
	_ RoleStore         = (*MockStore)(nil)
	_ OrgRepository     = (*MockStore)(nil)
)

// Resolver

func (m *MockStore) GlobalRoles(ctx context.Context, userID string) (RoleSet, error) {
	return m.Grants[userID], nil
}

func (m *MockStore) AdminOrganizationIDs(ctx context.Context, userID string) (OrgSet, error) {
	orgs := NewOrgSet()
	for orgID, members := range m.Members {
		if mem, ok := members[userID]; ok && mem.Role == RoleAdmin {
			orgs[orgID] = struct{}{}
		}
	}
	return orgs, nil
}

func (m *MockStore) OrganizationIDs(ctx context.Context, userID string) (OrgSet, error) {
	orgs := NewOrgSet()
	for orgID, members := range m.Members {
		if _, ok := members[userID]; ok {
			orgs[orgID] = struct{}{}
		}
	}
	return orgs, nil
}

// MembershipManager

func (m *MockStore) AddMember(ctx context.Context, orgID, userID string, role Role) error {
	if m.Error != nil {
		return m.Error
	}
	if m.Members[orgID] == nil {
		m.Members[orgID] = make(map[string]*Membership)
	}
	if _, ok := m.Members[orgID][userID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now()
	m.Members[orgID][userID] = &Membership{OrganizationID: orgID, UserID: userID, Role: role, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (m *MockStore) UpdateMemberRole(ctx context.Context, orgID, userID string, role Role) error {
	mem, ok := m.Members[orgID][userID]
	if !ok {
		return ErrNotFound
	}
	mem.Role = role
	return nil
}

func (m *MockStore) RemoveMember(ctx context.Context, orgID, userID string) error {
	if _, ok := m.Members[orgID][userID]; !ok {
		return ErrNotFound
	}
	delete(m.Members[orgID], userID)
	return nil
}

func (m *MockStore) GetMembership(ctx context.Context, orgID, userID string) (*Membership, error) {
	mem, ok := m.Members[orgID][userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *MockStore) ListMembers(ctx context.Context, orgID string) ([]Membership, error) {
	out := make([]Membership, 0)
	for _, mem := range m.Members[orgID] {
		out = append(out, *mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MockStore) ListUserMemberships(ctx context.Context, userID string) ([]Membership, error) {
	out := make([]Membership, 0)
	for _, members := range m.Members {
		if mem, ok := members[userID]; ok {
			out = append(out, *mem)
		}
	}
	return out, nil
}

func (m *MockStore) CountAdmins(ctx context.Context, orgID string) (int, error) {
	n := 0
	for _, mem := range m.Members[orgID] {
		if mem.Role == RoleAdmin {
			n++
		}
	}
	return n, nil
}

func (m *MockStore) IsMember(ctx context.Context, orgID, userID string) bool {
	_, ok := m.Members[orgID][userID]
	return ok
}

// RoleStore

func (m *MockStore) GrantRole(ctx context.Context, userID string, role Role) error {
	m.Grants[userID] = m.Grants[userID].With(role)
	return nil
}

func (m *MockStore) RevokeRole(ctx context.Context, userID string, role Role) error {
	if !m.Grants[userID].Has(role) {
		return ErrNotFound
	}
	m.Grants[userID] = m.Grants[userID].Without(role)
	return nil
}

func (m *MockStore) CountHolders(ctx context.Context, role Role) (int, error) {
	n := 0
	for _, roles := range m.Grants {
		if roles.Has(role) {
			n++
		}
	}
	return n, nil
}

func (m *MockStore) CountByRole(ctx context.Context) (map[Role]int, error) {
	counts := make(map[Role]int)
	for _, r := range AllRoles {
		counts[r], _ = m.CountHolders(ctx, r)
	}
	return counts, nil
}

// OrgRepository

func (m *MockStore) Create(ctx context.Context, org *Organization) error {
	if m.NameExists(ctx, org.Name) {
		return ErrAlreadyExists
	}
	cp := *org
	m.Orgs[org.ID] = &cp
	return nil
}

func (m *MockStore) Get(ctx context.Context, id string) (*Organization, error) {
	org, ok := m.Orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (m *MockStore) GetByName(ctx context.Context, name string) (*Organization, error) {
	for _, org := range m.Orgs {
		if org.Name == name {
			cp := *org
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockStore) List(ctx context.Context, limit, offset int) ([]Organization, error) {
	out := make([]Organization, 0)
	for _, org := range m.Orgs {
		out = append(out, *org)
	}
	return out, nil
}

func (m *MockStore) ListByUser(ctx context.Context, userID string) ([]Organization, error) {
	out := make([]Organization, 0)
	for orgID, members := range m.Members {
		if _, ok := members[userID]; ok {
			out = append(out, *m.Orgs[orgID])
		}
	}
	return out, nil
}

func (m *MockStore) Search(ctx context.Context, query string, limit int) ([]Organization, error) {
	out := make([]Organization, 0)
	q := strings.ToLower(query)
	for _, org := range m.Orgs {
		if strings.Contains(strings.ToLower(org.Name), q) && len(out) < limit {
			out = append(out, *org)
		}
	}
	return out, nil
}

func (m *MockStore) Update(ctx context.Context, org *Organization) error {
	if _, ok := m.Orgs[org.ID]; !ok {
		return ErrNotFound
	}
	cp := *org
	m.Orgs[org.ID] = &cp
	return nil
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.Orgs[id]; !ok {
		return ErrNotFound
	}
	delete(m.Orgs, id)
	delete(m.Members, id)
	return nil
}

func (m *MockStore) Exists(ctx context.Context, id string) bool {
	_, ok := m.Orgs[id]
	return ok
}

func (m *MockStore) NameExists(ctx context.Context, name string) bool {
	for _, org := range m.Orgs {
		if org.Name == name {
			return true
		}
	}
	return false
}

func newTestOrgService() (*OrgService, *MockStore) {
	store := NewMockStore()
	svc := NewOrgService(NewEvaluator(store, nil), store, store, store, nil)
	return svc, store
}

func strPtr(s string) *string { return &s }

// ============================================================================
// OrgService Tests
// ============================================================================

func TestOrgService_CreateOrg(t *testing.T) {
	svc, store := newTestOrgService()
	ctx := context.Background()
	a := Identity{UserID: "user-a"}

	org, err := svc.CreateOrg(ctx, a, CreateOrgInput{Name: "  Food Bank ", Description: "Meals"})
	if err != nil {
		t.Fatalf("CreateOrg() error = %v", err)
	}
	if org.Name != "Food Bank" {
		t.Errorf("Name = %q, want trimmed", org.Name)
	}

	mem, err := store.GetMembership(ctx, org.ID, "user-a")
	if err != nil || mem.Role != RoleAdmin {
		t.Errorf("creator membership = %+v, %v; want admin", mem, err)
	}
	if !store.Grants["user-a"].Has(RoleAdmin) {
		t.Error("creator should receive the global admin grant")
	}

	if _, err := svc.CreateOrg(ctx, Identity{UserID: "user-b"}, CreateOrgInput{Name: "Food Bank"}); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate name error = %v, want ErrAlreadyExists", err)
	}
	if _, err := svc.CreateOrg(ctx, a, CreateOrgInput{Name: "   "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty name error = %v, want ErrInvalidInput", err)
	}
}

func TestOrgService_CreateOrg_RollsBackWhenMembershipFails(t *testing.T) {
	svc, store := newTestOrgService()
	store.Error = errors.New("insert failed")

	_, err := svc.CreateOrg(context.Background(), Identity{UserID: "user-a"}, CreateOrgInput{Name: "Food Bank"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(store.Orgs) != 0 {
		t.Errorf("organization left behind after failed membership: %v", store.Orgs)
	}
}

func TestOrgService_UpdateOrg(t *testing.T) {
	svc, store := newTestOrgService()
	ctx := context.Background()
	a := Identity{UserID: "user-a"}
	org, _ := svc.CreateOrg(ctx, a, CreateOrgInput{Name: "Food Bank"})
	_, _ = svc.CreateOrg(ctx, Identity{UserID: "user-z"}, CreateOrgInput{Name: "Clothes Drive"})
	store.Grants["root"] = NewRoleSet(RoleSuperAdmin)

	tests := []struct {
		name    string
		actor   Identity
		orgID   string
		input   UpdateOrgInput
		wantErr error
	}{
		{"admin updates description", a, org.ID, UpdateOrgInput{Description: strPtr("Hot meals")}, nil},
		{"stranger is forbidden", Identity{UserID: "user-b"}, org.ID, UpdateOrgInput{Description: strPtr("x")}, ErrForbidden},
		{"super admin updates", Identity{UserID: "root"}, org.ID, UpdateOrgInput{Name: strPtr("Food Bank DZ")}, nil},
		{"rename to taken name", a, org.ID, UpdateOrgInput{Name: strPtr("Clothes Drive")}, ErrAlreadyExists},
		{"super admin on missing org", Identity{UserID: "root"}, "missing", UpdateOrgInput{}, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateOrg(ctx, tt.actor, tt.orgID, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("UpdateOrg() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOrgService_DeleteOrg(t *testing.T) {
	svc, store := newTestOrgService()
	ctx := context.Background()
	a := Identity{UserID: "user-a"}
	org, _ := svc.CreateOrg(ctx, a, CreateOrgInput{Name: "Food Bank"})

	if err := svc.DeleteOrg(ctx, Identity{UserID: "user-b"}, org.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger delete error = %v, want ErrForbidden", err)
	}
	if err := svc.DeleteOrg(ctx, a, org.ID); err != nil {
		t.Fatalf("admin delete error = %v", err)
	}
	if store.Exists(ctx, org.ID) || store.IsMember(ctx, org.ID, "user-a") {
		t.Error("organization and memberships should be gone")
	}
}

func TestOrgService_AddMember(t *testing.T) {
	svc, _ := newTestOrgService()
	ctx := context.Background()
	a := Identity{UserID: "user-a"}
	org, _ := svc.CreateOrg(ctx, a, CreateOrgInput{Name: "Food Bank"})

	tests := []struct {
		name    string
		actor   Identity
		input   AddMemberInput
		wantErr error
	}{
		{"admin adds worker", a, AddMemberInput{UserID: "user-b", Role: RoleWorker}, nil},
		{"duplicate member", a, AddMemberInput{UserID: "user-b", Role: RoleVolunteer}, ErrAlreadyExists},
		{"second admin rejected", a, AddMemberInput{UserID: "user-c", Role: RoleAdmin}, ErrSingleAdmin},
		{"super admin is not an org role", a, AddMemberInput{UserID: "user-c", Role: RoleSuperAdmin}, ErrInvalidInput},
		{"missing user id", a, AddMemberInput{Role: RoleWorker}, ErrInvalidInput},
		{"worker cannot add members", Identity{UserID: "user-b"}, AddMemberInput{UserID: "user-d", Role: RoleWorker}, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddMember(ctx, tt.actor, org.ID, tt.input)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("AddMember() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("AddMember() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOrgService_UpdateMemberRole(t *testing.T) {
	svc, store := newTestOrgService()
	ctx := context.Background()
	a := Identity{UserID: "user-a"}
	org, _ := svc.CreateOrg(ctx, a, CreateOrgInput{Name: "Food Bank"})
	_, _ = svc.AddMember(ctx, a, org.ID, AddMemberInput{UserID: "user-b", Role: RoleWorker})

	mem, err := svc.UpdateMemberRole(ctx, a, org.ID, "user-b", RoleVolunteer)
	if err != nil || mem.Role != RoleVolunteer {
		t.Fatalf("UpdateMemberRole() = %+v, %v", mem, err)
	}
	if _, err := svc.UpdateMemberRole(ctx, a, org.ID, "user-b", RoleAdmin); !errors.Is(err, ErrSingleAdmin) {
		t.Errorf("promote to second admin error = %v, want ErrSingleAdmin", err)
	}
	if _, err := svc.UpdateMemberRole(ctx, a, org.ID, "user-a", RoleWorker); !errors.Is(err, ErrLastOrgAdmin) {
		t.Errorf("demote only admin error = %v, want ErrLastOrgAdmin", err)
	}
	if _, err := svc.UpdateMemberRole(ctx, a, org.ID, "ghost", RoleWorker); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing member error = %v, want ErrNotFound", err)
	}
	if store.Members[org.ID]["user-a"].Role != RoleAdmin {
		t.Error("admin role should be unchanged")
	}
}

func TestOrgService_RemoveMember(t *testing.T) {
	svc, _ := newTestOrgService()
	ctx := context.Background()
	a := Identity{UserID: "user-a"}
	org, _ := svc.CreateOrg(ctx, a, CreateOrgInput{Name: "Food Bank"})
	_, _ = svc.AddMember(ctx, a, org.ID, AddMemberInput{UserID: "user-b", Role: RoleWorker})
	_, _ = svc.AddMember(ctx, a, org.ID, AddMemberInput{UserID: "user-c", Role: RoleVolunteer})
	_, _ = svc.AddMember(ctx, a, org.ID, AddMemberInput{UserID: "user-d", Role: RoleVolunteer})

	tests := []struct {
		name    string
		actor   Identity
		target  string
		wantErr error
	}{
		{"member cannot remove another member", Identity{UserID: "user-b"}, "user-c", ErrForbidden},
		{"member removes themself", Identity{UserID: "user-b"}, "user-b", nil},
		{"admin removes member", a, "user-c", nil},
		{"admin cannot remove only admin", a, "user-a", ErrLastOrgAdmin},
		{"removed member is gone", a, "user-c", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.RemoveMember(ctx, tt.actor, org.ID, tt.target)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("RemoveMember() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("RemoveMember() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOrgService_ListMembers(t *testing.T) {
	svc, _ := newTestOrgService()
	ctx := context.Background()
	a := Identity{UserID: "user-a"}
	org, _ := svc.CreateOrg(ctx, a, CreateOrgInput{Name: "Food Bank"})
	_, _ = svc.AddMember(ctx, a, org.ID, AddMemberInput{UserID: "user-b", Role: RoleWorker})

	members, err := svc.ListMembers(ctx, org.ID)
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if len(members) != 2 {
		t.Errorf("got %d members, want 2", len(members))
	}

	if _, err := svc.ListMembers(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing org error = %v, want ErrNotFound", err)
	}
}

// TestOrgService_FoodBankScenario walks through registering an organization,
// a denied update by an outsider, adding a worker and a rejected second admin.
func TestOrgService_FoodBankScenario(t *testing.T) {
	svc, store := newTestOrgService()
	ctx := context.Background()
	a := Identity{UserID: "user-a"}
	b := Identity{UserID: "user-b"}

	org, err := svc.CreateOrg(ctx, a, CreateOrgInput{Name: "Food Bank"})
	if err != nil {
		t.Fatalf("CreateOrg() error = %v", err)
	}
	admins, _ := store.CountAdmins(ctx, org.ID)
	if admins != 1 || !store.Grants["user-a"].Has(RoleAdmin) {
		t.Fatalf("A should be sole admin with a global admin grant")
	}

	if _, err := svc.UpdateOrg(ctx, b, org.ID, UpdateOrgInput{Description: strPtr("hijacked")}); !errors.Is(err, ErrForbidden) {
		t.Errorf("B update error = %v, want ErrForbidden", err)
	}

	if _, err := svc.AddMember(ctx, a, org.ID, AddMemberInput{UserID: "user-b", Role: RoleWorker}); err != nil {
		t.Fatalf("A adds B as worker: %v", err)
	}

	store.Grants["user-c"] = NewRoleSet(RoleAdmin)
	if _, err := svc.AddMember(ctx, a, org.ID, AddMemberInput{UserID: "user-c", Role: RoleAdmin}); !errors.Is(err, ErrSingleAdmin) {
		t.Errorf("second admin error = %v, want ErrSingleAdmin", err)
	}
	if store.IsMember(ctx, org.ID, "user-c") {
		t.Error("C must not become a member")
	}
}
