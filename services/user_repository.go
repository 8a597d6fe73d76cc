package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
)

// UserRepository is the data access layer for users and their OAuth links.
// It performs no authorization.
type UserRepository interface {
	// Create inserts the user and its initial global role grants in one transaction
	Create(ctx context.Context, u *db.User, roles ...authz.Role) error
	GetByID(ctx context.Context, id string) (*db.User, error)
	GetByEmail(ctx context.Context, email string) (*db.User, error)
	Exists(ctx context.Context, id string) bool
	EmailExists(ctx context.Context, email string) bool

	// Update writes profile fields (name, phone, location, coordinates)
	Update(ctx context.Context, u *db.User) error
	// UpdateTwoFactor writes the 2FA fields and phone
	UpdateTwoFactor(ctx context.Context, u *db.User) error
	TouchLastLogin(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error

	List(ctx context.Context, limit, offset int) ([]db.User, error)
	// ListByOrganizations returns distinct members of any of the organizations
	ListByOrganizations(ctx context.Context, orgIDs []string, limit, offset int) ([]db.User, error)
	Search(ctx context.Context, query string, limit int) ([]db.User, error)
	ListByRole(ctx context.Context, role authz.Role) ([]db.User, error)

	GetByOAuth(ctx context.Context, provider, providerUserID string) (*db.User, error)
	// LinkOAuth upserts the connection on (provider, provider_user_id)
	LinkOAuth(ctx context.Context, conn *db.OAuthConnection) error
}

type SimpleUserRepository struct {
	db *sql.DB
}

func NewSimpleUserRepository(db *sql.DB) *SimpleUserRepository {
	return &SimpleUserRepository{db: db}
}

var _ UserRepository = (*SimpleUserRepository)(nil)

const userColumns = `u.id, u.email, COALESCE(u.phone, ''), u.password_hash, u.full_name,
	COALESCE(u.location, ''), u.latitude, u.longitude,
	u.two_factor_enabled, COALESCE(u.two_factor_secret, ''), COALESCE(u.two_factor_method, ''),
	u.last_login, u.created_at, u.updated_at,
	ARRAY(SELECT ur.role FROM user_roles ur WHERE ur.user_id = u.id ORDER BY ur.role) AS roles`

func (r *SimpleUserRepository) Create(ctx context.Context, u *db.User, roles ...authz.Role) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, phone, password_hash, full_name, location, latitude, longitude, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Email, nullString(u.Phone), u.PasswordHash, u.FullName, nullString(u.Location),
		u.Latitude, u.Longitude, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "email or phone already registered")
	}

	for _, role := range roles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role, created_at) VALUES ($1, $2, $3)`,
			u.ID, role, now,
		); err != nil {
			return fmt.Errorf("failed to grant %s: %w", role, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user: %w", err)
	}
	u.Roles = append([]authz.Role(nil), roles...)
	return nil
}

func (r *SimpleUserRepository) GetByID(ctx context.Context, id string) (*db.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id)
	return scanUser(row)
}

func (r *SimpleUserRepository) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE LOWER(u.email) = LOWER($1)`, email)
	return scanUser(row)
}

func (r *SimpleUserRepository) Exists(ctx context.Context, id string) bool {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return err == nil && exists
}

func (r *SimpleUserRepository) EmailExists(ctx context.Context, email string) bool {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email).Scan(&exists)
	return err == nil && exists
}

func (r *SimpleUserRepository) Update(ctx context.Context, u *db.User) error {
	u.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET full_name = $2, phone = $3, location = $4, latitude = $5, longitude = $6, updated_at = $7
		WHERE id = $1
	`, u.ID, u.FullName, nullString(u.Phone), nullString(u.Location), u.Latitude, u.Longitude, u.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "phone already registered")
	}
	return expectOneRow(result, "user")
}

func (r *SimpleUserRepository) UpdateTwoFactor(ctx context.Context, u *db.User) error {
	u.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET two_factor_enabled = $2, two_factor_secret = $3, two_factor_method = $4, phone = $5, updated_at = $6
		WHERE id = $1
	`, u.ID, u.TwoFactorEnabled, nullString(u.TwoFactorSecret), nullString(string(u.TwoFactorMethod)),
		nullString(u.Phone), u.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "phone already registered")
	}
	return expectOneRow(result, "user")
}

func (r *SimpleUserRepository) TouchLastLogin(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, id)
	return err
}

func (r *SimpleUserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectOneRow(result, "user")
}

func (r *SimpleUserRepository) List(ctx context.Context, limit, offset int) ([]db.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		ORDER BY u.created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *SimpleUserRepository) ListByOrganizations(ctx context.Context, orgIDs []string, limit, offset int) ([]db.User, error) {
	if len(orgIDs) == 0 {
		return make([]db.User, 0), nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		WHERE u.id IN (SELECT m.user_id FROM organization_members m WHERE m.organization_id = ANY($1))
		ORDER BY u.created_at DESC
		LIMIT $2 OFFSET $3
	`, pq.Array(orgIDs), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *SimpleUserRepository) Search(ctx context.Context, query string, limit int) ([]db.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		WHERE u.full_name ILIKE $1 OR u.email ILIKE $1 OR u.location ILIKE $1
		ORDER BY u.full_name
		LIMIT $2
	`, likePattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *SimpleUserRepository) ListByRole(ctx context.Context, role authz.Role) ([]db.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		JOIN user_roles g ON g.user_id = u.id
		WHERE g.role = $1
		ORDER BY u.full_name
	`, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *SimpleUserRepository) GetByOAuth(ctx context.Context, provider, providerUserID string) (*db.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		JOIN oauth_connections c ON c.user_id = u.id
		WHERE c.provider = $1 AND c.provider_user_id = $2
	`, provider, providerUserID)
	return scanUser(row)
}

func (r *SimpleUserRepository) LinkOAuth(ctx context.Context, conn *db.OAuthConnection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	now := time.Now()
	conn.CreatedAt, conn.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_connections (id, user_id, provider, provider_user_id, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider, provider_user_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = COALESCE(EXCLUDED.refresh_token, oauth_connections.refresh_token),
		    expires_at = EXCLUDED.expires_at,
		    updated_at = EXCLUDED.updated_at
	`, conn.ID, conn.UserID, conn.Provider, conn.ProviderUserID, nullString(conn.AccessToken),
		nullString(conn.RefreshToken), conn.ExpiresAt, conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "oauth connection")
	}
	return nil
}

// ============================================================================
// Scan helpers
// ============================================================================

func scanUser(row rowScanner) (*db.User, error) {
	var u db.User
	var lat, lng sql.NullFloat64
	var lastLogin sql.NullTime
	var method string
	var roles []string

	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.PasswordHash, &u.FullName,
		&u.Location, &lat, &lng,
		&u.TwoFactorEnabled, &u.TwoFactorSecret, &method,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt, pq.Array(&roles))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.Latitude = floatPtr(lat)
	u.Longitude = floatPtr(lng)
	u.LastLogin = timePtr(lastLogin)
	u.TwoFactorMethod = db.TwoFactorMethod(method)
	u.Roles = parseRoles(roles)
	return &u, nil
}

func scanUsers(rows *sql.Rows) ([]db.User, error) {
	users := make([]db.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func expectOneRow(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", authz.ErrNotFound, what)
	}
	return nil
}
