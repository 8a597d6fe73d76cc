package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ============================================================================
// SimpleOrgRepository - SQL implementation of OrgRepository
// ============================================================================

// SimpleOrgRepository implements OrgRepository using SQL
type SimpleOrgRepository struct {
	db *sql.DB
}

// NewSimpleOrgRepository creates a new SimpleOrgRepository
func NewSimpleOrgRepository(db *sql.DB) *SimpleOrgRepository {
	return &SimpleOrgRepository{db: db}
}

var _ OrgRepository = (*SimpleOrgRepository)(nil)

const orgColumns = `id, name, COALESCE(description, ''), COALESCE(location, ''), latitude, longitude, created_at, updated_at`

// Create creates a new organization
func (r *SimpleOrgRepository) Create(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	now := time.Now()
	org.CreatedAt = now
	org.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, description, location, latitude, longitude, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, org.ID, org.Name, nullString(org.Description), nullString(org.Location), org.Latitude, org.Longitude, org.CreatedAt, org.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: organization name already taken", ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// Get retrieves an organization by ID
func (r *SimpleOrgRepository) Get(ctx context.Context, id string) (*Organization, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id)
	return scanOrganization(row)
}

// GetByName retrieves an organization by name
func (r *SimpleOrgRepository) GetByName(ctx context.Context, name string) (*Organization, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE name = $1`, name)
	return scanOrganization(row)
}

// List returns organizations ordered by name
func (r *SimpleOrgRepository) List(ctx context.Context, limit, offset int) ([]Organization, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orgColumns+`
		FROM organizations
		ORDER BY name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	return scanOrganizations(rows)
}

// ListByUser returns organizations the user is a member of
func (r *SimpleOrgRepository) ListByUser(ctx context.Context, userID string) ([]Organization, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.name, COALESCE(o.description, ''), COALESCE(o.location, ''), o.latitude, o.longitude, o.created_at, o.updated_at
		FROM organizations o
		JOIN organization_members m ON m.organization_id = o.id
		WHERE m.user_id = $1
		ORDER BY o.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user organizations: %w", err)
	}
	defer rows.Close()

	return scanOrganizations(rows)
}

// Search matches name, description or location case-insensitively
func (r *SimpleOrgRepository) Search(ctx context.Context, query string, limit int) ([]Organization, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orgColumns+`
		FROM organizations
		WHERE name ILIKE $1 OR description ILIKE $1 OR location ILIKE $1
		ORDER BY name
		LIMIT $2
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search organizations: %w", err)
	}
	defer rows.Close()

	return scanOrganizations(rows)
}

// Update updates an organization
func (r *SimpleOrgRepository) Update(ctx context.Context, org *Organization) error {
	org.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE organizations
		SET name = $2, description = $3, location = $4, latitude = $5, longitude = $6, updated_at = $7
		WHERE id = $1
	`, org.ID, org.Name, nullString(org.Description), nullString(org.Location), org.Latitude, org.Longitude, org.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: organization name already taken", ErrAlreadyExists)
		}
		return fmt.Errorf("failed to update organization: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete deletes an organization
func (r *SimpleOrgRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Exists checks if an organization exists
func (r *SimpleOrgRepository) Exists(ctx context.Context, id string) bool {
	var exists bool
	_ = r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM organizations WHERE id = $1)`, id).Scan(&exists)
	return exists
}

// NameExists checks if a name is already taken
func (r *SimpleOrgRepository) NameExists(ctx context.Context, name string) bool {
	var exists bool
	_ = r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM organizations WHERE name = $1)`, name).Scan(&exists)
	return exists
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (*Organization, error) {
	var org Organization
	var lat, lng sql.NullFloat64
	err := row.Scan(&org.ID, &org.Name, &org.Description, &org.Location, &lat, &lng, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan organization: %w", err)
	}
	org.Latitude = floatPtr(lat)
	org.Longitude = floatPtr(lng)
	return &org, nil
}

// Helper function to scan organization rows
func scanOrganizations(rows *sql.Rows) ([]Organization, error) {
	orgs := make([]Organization, 0) // JSON: [] not null
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *org)
	}
	return orgs, rows.Err()
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ============================================================================
// Postgres error helpers
// ============================================================================

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == "23505"
}

// isMissingReference covers foreign key violations and ids that are not
// valid UUIDs; both mean the referenced row does not exist.
func isMissingReference(err error) bool {
	code := pqCode(err)
	return code == "23503" || code == "22P02"
}

func violatedConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// ============================================================================
// Factory
// ============================================================================

// Backend bundles the SQL implementations of this package.
type Backend struct {
	Resolver  *SimpleResolver
	Evaluator *Evaluator
	Members   *SimpleMembershipManager
	Roles     *SimpleRoleStore
	Orgs      *SimpleOrgRepository
}

// NewSimpleBackend creates all simple implementations at once
func NewSimpleBackend(db *sql.DB, logger *zap.Logger) *Backend {
	resolver := NewSimpleResolver(db)
	return &Backend{
		Resolver:  resolver,
		Evaluator: NewEvaluator(resolver, logger),
		Members:   NewSimpleMembershipManager(db, logger),
		Roles:     NewSimpleRoleStore(db),
		Orgs:      NewSimpleOrgRepository(db),
	}
}
