package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
)

// EventFilter narrows event searches. Zero values are ignored.
type EventFilter struct {
	Query     string
	EventType db.EventType
	From      *time.Time
	To        *time.Time
	Limit     int
}

type EventRepository interface {
	Create(ctx context.Context, e *db.Event) error
	Get(ctx context.Context, id string) (*db.Event, error)
	Update(ctx context.Context, e *db.Event) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]db.Event, error)
	Upcoming(ctx context.Context, now time.Time, limit, offset int) ([]db.Event, error)
	ByOrganization(ctx context.Context, orgID string) ([]db.Event, error)
	Search(ctx context.Context, f EventFilter) ([]db.Event, error)
	// Located returns events with coordinates that end after since
	Located(ctx context.Context, since time.Time) ([]db.Event, error)

	AddCollaborator(ctx context.Context, eventID, orgID string) error
	RemoveCollaborator(ctx context.Context, eventID, orgID string) error
	ListCollaborators(ctx context.Context, eventID string) ([]db.EventCollaborator, error)

	AddBeneficiary(ctx context.Context, b *db.EventBeneficiary) error
	ListBeneficiaries(ctx context.Context, eventID string) ([]db.EventBeneficiary, error)
}

type SimpleEventRepository struct {
	db *sql.DB
}

func NewSimpleEventRepository(db *sql.DB) *SimpleEventRepository {
	return &SimpleEventRepository{db: db}
}

var _ EventRepository = (*SimpleEventRepository)(nil)

const eventColumns = `id, organization_id, title, COALESCE(description, ''), event_type,
	COALESCE(location, ''), latitude, longitude, start_time, end_time,
	is_emergency, COALESCE(emergency_contact, ''), created_at, updated_at`

func (r *SimpleEventRepository) Create(ctx context.Context, e *db.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, organization_id, title, description, event_type, location, latitude, longitude,
			start_time, end_time, is_emergency, emergency_contact, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, e.ID, e.OrganizationID, e.Title, nullString(e.Description), e.EventType, nullString(e.Location),
		e.Latitude, e.Longitude, e.StartTime, e.EndTime, e.IsEmergency, nullString(e.EmergencyContact),
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "event")
	}
	return nil
}

func (r *SimpleEventRepository) Get(ctx context.Context, id string) (*db.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, authz.ErrNotFound) {
		return nil, fmt.Errorf("%w: event", authz.ErrNotFound)
	}
	return e, err
}

func (r *SimpleEventRepository) Update(ctx context.Context, e *db.Event) error {
	e.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET title = $2, description = $3, event_type = $4, location = $5, latitude = $6, longitude = $7,
			start_time = $8, end_time = $9, is_emergency = $10, emergency_contact = $11, updated_at = $12
		WHERE id = $1
	`, e.ID, e.Title, nullString(e.Description), e.EventType, nullString(e.Location), e.Latitude, e.Longitude,
		e.StartTime, e.EndTime, e.IsEmergency, nullString(e.EmergencyContact), e.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "event")
	}
	return expectOneRow(result, "event")
}

func (r *SimpleEventRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return expectOneRow(result, "event")
}

func (r *SimpleEventRepository) List(ctx context.Context, limit, offset int) ([]db.Event, error) {
	return r.query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY start_time DESC LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *SimpleEventRepository) Upcoming(ctx context.Context, now time.Time, limit, offset int) ([]db.Event, error) {
	return r.query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE start_time >= $1
		ORDER BY start_time
		LIMIT $2 OFFSET $3
	`, now, limit, offset)
}

func (r *SimpleEventRepository) ByOrganization(ctx context.Context, orgID string) ([]db.Event, error) {
	return r.query(ctx, `SELECT `+eventColumns+` FROM events WHERE organization_id = $1 ORDER BY start_time DESC`, orgID)
}

func (r *SimpleEventRepository) Search(ctx context.Context, f EventFilter) ([]db.Event, error) {
	var where []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if q := strings.TrimSpace(f.Query); q != "" {
		add("(title ILIKE ? OR description ILIKE ? OR location ILIKE ?)", likePattern(q))
	}
	if f.EventType != "" {
		add("event_type = ?", f.EventType)
	}
	if f.From != nil {
		add("start_time >= ?", *f.From)
	}
	if f.To != nil {
		add("start_time <= ?", *f.To)
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, clampLimit(f.Limit, 20, 100))
	query += ` ORDER BY start_time LIMIT $` + strconv.Itoa(len(args))

	return r.query(ctx, query, args...)
}

func (r *SimpleEventRepository) Located(ctx context.Context, since time.Time) ([]db.Event, error) {
	return r.query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL AND end_time >= $1
	`, since)
}

func (r *SimpleEventRepository) AddCollaborator(ctx context.Context, eventID, orgID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_collaborators (event_id, organization_id, created_at) VALUES ($1, $2, NOW())`,
		eventID, orgID)
	if err != nil {
		return mapWriteError(err, "collaborator")
	}
	return nil
}

func (r *SimpleEventRepository) RemoveCollaborator(ctx context.Context, eventID, orgID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM event_collaborators WHERE event_id = $1 AND organization_id = $2`, eventID, orgID)
	if err != nil {
		return fmt.Errorf("failed to remove collaborator: %w", err)
	}
	return expectOneRow(result, "collaborator")
}

func (r *SimpleEventRepository) ListCollaborators(ctx context.Context, eventID string) ([]db.EventCollaborator, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.event_id, c.organization_id, o.name, c.created_at
		FROM event_collaborators c
		JOIN organizations o ON o.id = c.organization_id
		WHERE c.event_id = $1
		ORDER BY o.name
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborators: %w", err)
	}
	defer rows.Close()

	out := make([]db.EventCollaborator, 0)
	for rows.Next() {
		var c db.EventCollaborator
		if err := rows.Scan(&c.EventID, &c.OrganizationID, &c.OrganizationName, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SimpleEventRepository) AddBeneficiary(ctx context.Context, b *db.EventBeneficiary) error {
	if b.BenefitTime.IsZero() {
		b.BenefitTime = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_beneficiaries (event_id, user_id, benefit_time) VALUES ($1, $2, $3)`,
		b.EventID, b.UserID, b.BenefitTime)
	if err != nil {
		return mapWriteError(err, "beneficiary")
	}
	return nil
}

func (r *SimpleEventRepository) ListBeneficiaries(ctx context.Context, eventID string) ([]db.EventBeneficiary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT b.event_id, b.user_id, u.full_name, b.benefit_time
		FROM event_beneficiaries b
		JOIN users u ON u.id = b.user_id
		WHERE b.event_id = $1
		ORDER BY b.benefit_time
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list beneficiaries: %w", err)
	}
	defer rows.Close()

	out := make([]db.EventBeneficiary, 0)
	for rows.Next() {
		var b db.EventBeneficiary
		if err := rows.Scan(&b.EventID, &b.UserID, &b.FullName, &b.BenefitTime); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SimpleEventRepository) query(ctx context.Context, query string, args ...any) ([]db.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]db.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func scanEvent(row rowScanner) (*db.Event, error) {
	var e db.Event
	var eventType string
	var lat, lng sql.NullFloat64
	err := row.Scan(&e.ID, &e.OrganizationID, &e.Title, &e.Description, &eventType,
		&e.Location, &lat, &lng, &e.StartTime, &e.EndTime,
		&e.IsEmergency, &e.EmergencyContact, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	e.EventType = db.EventType(eventType)
	e.Latitude = floatPtr(lat)
	e.Longitude = floatPtr(lng)
	return &e, nil
}
