package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
)

// ============================================================================
// Mock Directory
// ============================================================================

// MockDirectory holds users, global grants and memberships in memory. It
// implements Resolver, RoleStore and MembershipManager directly; Users()
// exposes the same data as a UserRepository.
type MockDirectory struct {
	mu      sync.Mutex
	users   map[string]*db.User
	grants  map[string]authz.RoleSet
	members map[string]map[string]authz.Role // orgID -> userID -> role
	oauth   map[string]string                // provider|subject -> userID
	seq     int
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		users:   make(map[string]*db.User),
		grants:  make(map[string]authz.RoleSet),
		members: make(map[string]map[string]authz.Role),
		oauth:   make(map[string]string),
	}
}

var (
	_ authz.Resolver          = (*MockDirectory)(nil)
	_ authz.RoleStore         = (*MockDirectory)(nil)
	_ authz.MembershipManager = (*MockDirectory)(nil)
	_ UserRepository          = (*MockUsers)(nil)
)

// AddUser seeds a user with global roles and returns its identity.
func (d *MockDirectory) AddUser(id string, roles ...authz.Role) authz.Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[id] = &db.User{ID: id, Email: id + "@example.dz", FullName: id}
	d.grants[id] = authz.NewRoleSet(roles...)
	return authz.Identity{UserID: id, Email: id + "@example.dz"}
}

// Join seeds a membership.
func (d *MockDirectory) Join(userID, orgID string, role authz.Role) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.members[orgID] == nil {
		d.members[orgID] = make(map[string]authz.Role)
	}
	d.members[orgID][userID] = role
}

func (d *MockDirectory) Evaluator() *authz.Evaluator {
	return authz.NewEvaluator(d, nil)
}

func (d *MockDirectory) Users() *MockUsers {
	return &MockUsers{d: d}
}

// Resolver

func (d *MockDirectory) GlobalRoles(ctx context.Context, userID string) (authz.RoleSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grants[userID], nil
}

func (d *MockDirectory) AdminOrganizationIDs(ctx context.Context, userID string) (authz.OrgSet, error) {
	return d.orgIDs(userID, func(r authz.Role) bool { return r == authz.RoleAdmin }), nil
}

func (d *MockDirectory) OrganizationIDs(ctx context.Context, userID string) (authz.OrgSet, error) {
	return d.orgIDs(userID, func(authz.Role) bool { return true }), nil
}

func (d *MockDirectory) orgIDs(userID string, match func(authz.Role) bool) authz.OrgSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	orgs := authz.NewOrgSet()
	for orgID, members := range d.members {
		if r, ok := members[userID]; ok && match(r) {
			orgs[orgID] = struct{}{}
		}
	}
	return orgs
}

// RoleStore

func (d *MockDirectory) GrantRole(ctx context.Context, userID string, role authz.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grants[userID] = d.grants[userID].With(role)
	return nil
}

func (d *MockDirectory) RevokeRole(ctx context.Context, userID string, role authz.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.grants[userID].Has(role) {
		return fmt.Errorf("%w: role grant", authz.ErrNotFound)
	}
	d.grants[userID] = d.grants[userID].Without(role)
	return nil
}

func (d *MockDirectory) CountHolders(ctx context.Context, role authz.Role) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, set := range d.grants {
		if set.Has(role) {
			n++
		}
	}
	return n, nil
}

func (d *MockDirectory) CountByRole(ctx context.Context) (map[authz.Role]int, error) {
	counts := make(map[authz.Role]int)
	for _, r := range authz.AllRoles {
		n, _ := d.CountHolders(ctx, r)
		counts[r] = n
	}
	return counts, nil
}

// MembershipManager

func (d *MockDirectory) AddMember(ctx context.Context, orgID, userID string, role authz.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.members[orgID][userID]; ok {
		return authz.ErrAlreadyExists
	}
	if d.members[orgID] == nil {
		d.members[orgID] = make(map[string]authz.Role)
	}
	d.members[orgID][userID] = role
	return nil
}

func (d *MockDirectory) UpdateMemberRole(ctx context.Context, orgID, userID string, role authz.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.members[orgID][userID]; !ok {
		return authz.ErrNotFound
	}
	d.members[orgID][userID] = role
	return nil
}

func (d *MockDirectory) RemoveMember(ctx context.Context, orgID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.members[orgID][userID]; !ok {
		return authz.ErrNotFound
	}
	delete(d.members[orgID], userID)
	return nil
}

func (d *MockDirectory) GetMembership(ctx context.Context, orgID, userID string) (*authz.Membership, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.members[orgID][userID]
	if !ok {
		return nil, authz.ErrNotFound
	}
	return &authz.Membership{OrganizationID: orgID, UserID: userID, Role: r}, nil
}

func (d *MockDirectory) ListMembers(ctx context.Context, orgID string) ([]authz.Membership, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]authz.Membership, 0)
	for userID, r := range d.members[orgID] {
		out = append(out, authz.Membership{OrganizationID: orgID, UserID: userID, Role: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (d *MockDirectory) ListUserMemberships(ctx context.Context, userID string) ([]authz.Membership, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]authz.Membership, 0)
	for orgID, members := range d.members {
		if r, ok := members[userID]; ok {
			out = append(out, authz.Membership{OrganizationID: orgID, UserID: userID, Role: r})
		}
	}
	return out, nil
}

func (d *MockDirectory) CountAdmins(ctx context.Context, orgID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.members[orgID] {
		if r == authz.RoleAdmin {
			n++
		}
	}
	return n, nil
}

func (d *MockDirectory) IsMember(ctx context.Context, orgID, userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.members[orgID][userID]
	return ok
}

// ============================================================================
// Mock Users
// ============================================================================

// MockUsers is the UserRepository view of a MockDirectory.
type MockUsers struct {
	d *MockDirectory
}

func (m *MockUsers) load(u *db.User) *db.User {
	cp := *u
	cp.Roles = m.d.grants[u.ID].Slice()
	return &cp
}

func (m *MockUsers) Create(ctx context.Context, u *db.User, roles ...authz.Role) error {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	for _, existing := range m.d.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("%w: email", authz.ErrAlreadyExists)
		}
	}
	if u.ID == "" {
		m.d.seq++
		u.ID = fmt.Sprintf("user-%d", m.d.seq)
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	u.Roles = authz.NewRoleSet(roles...).Slice()
	cp := *u
	m.d.users[u.ID] = &cp
	m.d.grants[u.ID] = authz.NewRoleSet(roles...)
	return nil
}

func (m *MockUsers) GetByID(ctx context.Context, id string) (*db.User, error) {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	u, ok := m.d.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user", authz.ErrNotFound)
	}
	return m.load(u), nil
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	for _, u := range m.d.users {
		if strings.EqualFold(u.Email, email) {
			return m.load(u), nil
		}
	}
	return nil, fmt.Errorf("%w: user", authz.ErrNotFound)
}

func (m *MockUsers) Exists(ctx context.Context, id string) bool {
	_, err := m.GetByID(ctx, id)
	return err == nil
}

func (m *MockUsers) EmailExists(ctx context.Context, email string) bool {
	_, err := m.GetByEmail(ctx, email)
	return err == nil
}

func (m *MockUsers) Update(ctx context.Context, u *db.User) error {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	if _, ok := m.d.users[u.ID]; !ok {
		return fmt.Errorf("%w: user", authz.ErrNotFound)
	}
	cp := *u
	m.d.users[u.ID] = &cp
	return nil
}

func (m *MockUsers) UpdateTwoFactor(ctx context.Context, u *db.User) error {
	return m.Update(ctx, u)
}

func (m *MockUsers) TouchLastLogin(ctx context.Context, id string) error {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	u, ok := m.d.users[id]
	if !ok {
		return fmt.Errorf("%w: user", authz.ErrNotFound)
	}
	now := time.Now()
	u.LastLogin = &now
	return nil
}

func (m *MockUsers) Delete(ctx context.Context, id string) error {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	if _, ok := m.d.users[id]; !ok {
		return fmt.Errorf("%w: user", authz.ErrNotFound)
	}
	delete(m.d.users, id)
	delete(m.d.grants, id)
	for _, members := range m.d.members {
		delete(members, id)
	}
	return nil
}

func (m *MockUsers) sorted(match func(*db.User) bool) []db.User {
	out := make([]db.User, 0)
	for _, u := range m.d.users {
		if match(u) {
			out = append(out, *m.load(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func page(users []db.User, limit, offset int) []db.User {
	if offset >= len(users) {
		return make([]db.User, 0)
	}
	users = users[offset:]
	if limit < len(users) {
		users = users[:limit]
	}
	return users
}

func (m *MockUsers) List(ctx context.Context, limit, offset int) ([]db.User, error) {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	return page(m.sorted(func(*db.User) bool { return true }), limit, offset), nil
}

func (m *MockUsers) ListByOrganizations(ctx context.Context, orgIDs []string, limit, offset int) ([]db.User, error) {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	in := make(map[string]bool)
	for _, orgID := range orgIDs {
		for userID := range m.d.members[orgID] {
			in[userID] = true
		}
	}
	return page(m.sorted(func(u *db.User) bool { return in[u.ID] }), limit, offset), nil
}

func (m *MockUsers) Search(ctx context.Context, query string, limit int) ([]db.User, error) {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	q := strings.ToLower(query)
	return page(m.sorted(func(u *db.User) bool {
		return strings.Contains(strings.ToLower(u.FullName+" "+u.Email), q)
	}), limit, 0), nil
}

func (m *MockUsers) ListByRole(ctx context.Context, role authz.Role) ([]db.User, error) {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	return m.sorted(func(u *db.User) bool { return m.d.grants[u.ID].Has(role) }), nil
}

func (m *MockUsers) GetByOAuth(ctx context.Context, provider, providerUserID string) (*db.User, error) {
	m.d.mu.Lock()
	userID, ok := m.d.oauth[provider+"|"+providerUserID]
	m.d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: oauth connection", authz.ErrNotFound)
	}
	return m.GetByID(ctx, userID)
}

func (m *MockUsers) LinkOAuth(ctx context.Context, conn *db.OAuthConnection) error {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	m.d.oauth[conn.Provider+"|"+conn.ProviderUserID] = conn.UserID
	return nil
}

// ============================================================================
// Recording Notifier
// ============================================================================

type sentNotification struct {
	UserID, Title, Content, Type, EventID string
}

type RecordingNotifier struct {
	mu   sync.Mutex
	Sent []sentNotification
}

func (n *RecordingNotifier) Notify(ctx context.Context, userID, title, content, notificationType, eventID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, sentNotification{userID, title, content, notificationType, eventID})
	return nil
}

func (n *RecordingNotifier) To(userID string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentNotification, 0)
	for _, s := range n.Sent {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

// ============================================================================
// Mock Organizations / Events / Resources
// ============================================================================

// MockOrgs only tracks which organizations exist; the evaluator never reads it.
type MockOrgs struct {
	orgs map[string]authz.Organization
}

var _ authz.OrgRepository = (*MockOrgs)(nil)

func NewMockOrgs(orgs ...authz.Organization) *MockOrgs {
	m := &MockOrgs{orgs: make(map[string]authz.Organization)}
	for _, o := range orgs {
		m.orgs[o.ID] = o
	}
	return m
}

func (m *MockOrgs) Create(ctx context.Context, org *authz.Organization) error {
	m.orgs[org.ID] = *org
	return nil
}

func (m *MockOrgs) Get(ctx context.Context, id string) (*authz.Organization, error) {
	o, ok := m.orgs[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	return &o, nil
}

func (m *MockOrgs) GetByName(ctx context.Context, name string) (*authz.Organization, error) {
	for _, o := range m.orgs {
		if o.Name == name {
			return &o, nil
		}
	}
	return nil, authz.ErrNotFound
}

func (m *MockOrgs) all(match func(authz.Organization) bool) []authz.Organization {
	out := make([]authz.Organization, 0)
	for _, o := range m.orgs {
		if match(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *MockOrgs) List(ctx context.Context, limit, offset int) ([]authz.Organization, error) {
	return m.all(func(authz.Organization) bool { return true }), nil
}

func (m *MockOrgs) ListByUser(ctx context.Context, userID string) ([]authz.Organization, error) {
	return make([]authz.Organization, 0), nil
}

func (m *MockOrgs) Search(ctx context.Context, query string, limit int) ([]authz.Organization, error) {
	q := strings.ToLower(query)
	return m.all(func(o authz.Organization) bool {
		return strings.Contains(strings.ToLower(o.Name+" "+o.Description+" "+o.Location), q)
	}), nil
}

func (m *MockOrgs) Update(ctx context.Context, org *authz.Organization) error {
	m.orgs[org.ID] = *org
	return nil
}

func (m *MockOrgs) Delete(ctx context.Context, id string) error {
	delete(m.orgs, id)
	return nil
}

func (m *MockOrgs) Exists(ctx context.Context, id string) bool {
	_, ok := m.orgs[id]
	return ok
}

func (m *MockOrgs) NameExists(ctx context.Context, name string) bool {
	_, err := m.GetByName(ctx, name)
	return err == nil
}

type MockEvents struct {
	mu            sync.Mutex
	events        map[string]*db.Event
	collaborators map[string][]string
	beneficiaries map[string][]db.EventBeneficiary
	seq           int
}

var _ EventRepository = (*MockEvents)(nil)

func NewMockEvents(events ...db.Event) *MockEvents {
	m := &MockEvents{
		events:        make(map[string]*db.Event),
		collaborators: make(map[string][]string),
		beneficiaries: make(map[string][]db.EventBeneficiary),
	}
	for i := range events {
		e := events[i]
		m.events[e.ID] = &e
	}
	return m
}

func (m *MockEvents) Create(ctx context.Context, e *db.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		m.seq++
		e.ID = fmt.Sprintf("event-%d", m.seq)
	}
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *MockEvents) Get(ctx context.Context, id string) (*db.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event", authz.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (m *MockEvents) Update(ctx context.Context, e *db.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *MockEvents) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return fmt.Errorf("%w: event", authz.ErrNotFound)
	}
	delete(m.events, id)
	return nil
}

func (m *MockEvents) filter(match func(*db.Event) bool) []db.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.Event, 0)
	for _, e := range m.events {
		if match(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *MockEvents) List(ctx context.Context, limit, offset int) ([]db.Event, error) {
	return m.filter(func(*db.Event) bool { return true }), nil
}

func (m *MockEvents) Upcoming(ctx context.Context, now time.Time, limit, offset int) ([]db.Event, error) {
	return m.filter(func(e *db.Event) bool { return e.StartTime.After(now) }), nil
}

func (m *MockEvents) ByOrganization(ctx context.Context, orgID string) ([]db.Event, error) {
	return m.filter(func(e *db.Event) bool { return e.OrganizationID == orgID }), nil
}

func (m *MockEvents) Search(ctx context.Context, f EventFilter) ([]db.Event, error) {
	q := strings.ToLower(f.Query)
	return m.filter(func(e *db.Event) bool {
		return strings.Contains(strings.ToLower(e.Title+" "+e.Description), q) &&
			(f.EventType == "" || e.EventType == f.EventType)
	}), nil
}

func (m *MockEvents) Located(ctx context.Context, since time.Time) ([]db.Event, error) {
	return m.filter(func(e *db.Event) bool {
		return e.Latitude != nil && e.Longitude != nil && e.EndTime.After(since)
	}), nil
}

func (m *MockEvents) AddCollaborator(ctx context.Context, eventID, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.collaborators[eventID] {
		if id == orgID {
			return authz.ErrAlreadyExists
		}
	}
	m.collaborators[eventID] = append(m.collaborators[eventID], orgID)
	return nil
}

func (m *MockEvents) RemoveCollaborator(ctx context.Context, eventID, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.collaborators[eventID]
	for i, id := range ids {
		if id == orgID {
			m.collaborators[eventID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return authz.ErrNotFound
}

func (m *MockEvents) ListCollaborators(ctx context.Context, eventID string) ([]db.EventCollaborator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.EventCollaborator, 0)
	for _, orgID := range m.collaborators[eventID] {
		out = append(out, db.EventCollaborator{EventID: eventID, OrganizationID: orgID})
	}
	return out, nil
}

func (m *MockEvents) AddBeneficiary(ctx context.Context, b *db.EventBeneficiary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.BenefitTime.IsZero() {
		b.BenefitTime = time.Now()
	}
	m.beneficiaries[b.EventID] = append(m.beneficiaries[b.EventID], *b)
	return nil
}

func (m *MockEvents) ListBeneficiaries(ctx context.Context, eventID string) ([]db.EventBeneficiary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(make([]db.EventBeneficiary, 0), m.beneficiaries[eventID]...), nil
}

type MockResources struct {
	mu            sync.Mutex
	requests      map[string]*db.ResourceRequest
	contributions map[string]*db.ResourceContribution
	seq           int
}

var _ ResourceRepository = (*MockResources)(nil)

func NewMockResources(requests ...db.ResourceRequest) *MockResources {
	m := &MockResources{
		requests:      make(map[string]*db.ResourceRequest),
		contributions: make(map[string]*db.ResourceContribution),
	}
	for i := range requests {
		r := requests[i]
		m.requests[r.ID] = &r
	}
	return m
}

func (m *MockResources) CreateRequest(ctx context.Context, r *db.ResourceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	r.ID = fmt.Sprintf("request-%d", m.seq)
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MockResources) GetRequest(ctx context.Context, id string) (*db.ResourceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: resource request", authz.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *MockResources) UpdateRequest(ctx context.Context, r *db.ResourceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MockResources) DeleteRequest(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, id)
	return nil
}

func (m *MockResources) matching(match func(*db.ResourceRequest) bool) []db.ResourceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.ResourceRequest, 0)
	for _, r := range m.requests {
		if match(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockResources) ListRequestsByEvent(ctx context.Context, eventID string) ([]db.ResourceRequest, error) {
	return m.matching(func(r *db.ResourceRequest) bool { return r.EventID == eventID }), nil
}

func (m *MockResources) SearchRequests(ctx context.Context, f ResourceFilter) ([]db.ResourceRequest, error) {
	return m.matching(func(r *db.ResourceRequest) bool {
		return (f.ResourceType == "" || r.ResourceType == f.ResourceType) && r.UrgencyLevel >= f.MinUrgency
	}), nil
}

func (m *MockResources) CreateContribution(ctx context.Context, c *db.ResourceContribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[c.RequestID]
	if !ok {
		return fmt.Errorf("%w: resource request", authz.ErrNotFound)
	}
	r.QuantityReceived += c.Quantity
	m.seq++
	c.ID = fmt.Sprintf("contribution-%d", m.seq)
	cp := *c
	m.contributions[c.ID] = &cp
	return nil
}

func (m *MockResources) GetContribution(ctx context.Context, id string) (*db.ResourceContribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contributions[id]
	if !ok {
		return nil, fmt.Errorf("%w: contribution", authz.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *MockResources) contributionsWhere(match func(*db.ResourceContribution) bool) []db.ResourceContribution {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.ResourceContribution, 0)
	for _, c := range m.contributions {
		if match(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockResources) ListContributionsByUser(ctx context.Context, userID string) ([]db.ResourceContribution, error) {
	return m.contributionsWhere(func(c *db.ResourceContribution) bool { return c.UserID == userID }), nil
}

func (m *MockResources) ListContributionsByRequest(ctx context.Context, requestID string) ([]db.ResourceContribution, error) {
	return m.contributionsWhere(func(c *db.ResourceContribution) bool { return c.RequestID == requestID }), nil
}

func (m *MockResources) ConfirmDelivery(ctx context.Context, contributionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contributions[contributionID]
	if !ok {
		return fmt.Errorf("%w: contribution", authz.ErrNotFound)
	}
	c.DeliveryConfirmed = true
	return nil
}
