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
	"go.uber.org/zap"
)

const defaultUrgency = 3

// ResourceFilter narrows resource request searches. Zero values are ignored.
type ResourceFilter struct {
	Query        string // matched against the resource type
	ResourceType db.ResourceType
	MinUrgency   int
	Limit        int
}

type ResourceRepository interface {
	CreateRequest(ctx context.Context, r *db.ResourceRequest) error
	GetRequest(ctx context.Context, id string) (*db.ResourceRequest, error)
	UpdateRequest(ctx context.Context, r *db.ResourceRequest) error
	DeleteRequest(ctx context.Context, id string) error
	ListRequestsByEvent(ctx context.Context, eventID string) ([]db.ResourceRequest, error)
	SearchRequests(ctx context.Context, f ResourceFilter) ([]db.ResourceRequest, error)

	// CreateContribution inserts the contribution and adds its quantity to the
	// request in one transaction
	CreateContribution(ctx context.Context, c *db.ResourceContribution) error
	GetContribution(ctx context.Context, id string) (*db.ResourceContribution, error)
	ListContributionsByUser(ctx context.Context, userID string) ([]db.ResourceContribution, error)
	ListContributionsByRequest(ctx context.Context, requestID string) ([]db.ResourceContribution, error)
	ConfirmDelivery(ctx context.Context, contributionID string) error
}

// ============================================================================
// SQL repository
// ============================================================================

type SimpleResourceRepository struct {
	db *sql.DB
}

func NewSimpleResourceRepository(db *sql.DB) *SimpleResourceRepository {
	return &SimpleResourceRepository{db: db}
}

var _ ResourceRepository = (*SimpleResourceRepository)(nil)

const (
	requestColumns      = `id, event_id, resource_type, quantity_needed, quantity_received, urgency_level, created_at, updated_at`
	contributionColumns = `id, request_id, user_id, quantity, contribution_date, delivery_confirmed`
)

func (r *SimpleResourceRepository) CreateRequest(ctx context.Context, req *db.ResourceRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	now := time.Now()
	req.CreatedAt, req.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resource_requests (id, event_id, resource_type, quantity_needed, quantity_received, urgency_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7)
	`, req.ID, req.EventID, req.ResourceType, req.QuantityNeeded, req.UrgencyLevel, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "resource request")
	}
	req.QuantityReceived = 0
	return nil
}

func (r *SimpleResourceRepository) GetRequest(ctx context.Context, id string) (*db.ResourceRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM resource_requests WHERE id = $1`, id)
	return scanRequest(row)
}

func (r *SimpleResourceRepository) UpdateRequest(ctx context.Context, req *db.ResourceRequest) error {
	req.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE resource_requests
		SET resource_type = $2, quantity_needed = $3, urgency_level = $4, updated_at = $5
		WHERE id = $1
	`, req.ID, req.ResourceType, req.QuantityNeeded, req.UrgencyLevel, req.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "resource request")
	}
	return expectOneRow(result, "resource request")
}

func (r *SimpleResourceRepository) DeleteRequest(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM resource_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete resource request: %w", err)
	}
	return expectOneRow(result, "resource request")
}

func (r *SimpleResourceRepository) ListRequestsByEvent(ctx context.Context, eventID string) ([]db.ResourceRequest, error) {
	return r.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM resource_requests
		WHERE event_id = $1
		ORDER BY urgency_level DESC, created_at
	`, eventID)
}

func (r *SimpleResourceRepository) SearchRequests(ctx context.Context, f ResourceFilter) ([]db.ResourceRequest, error) {
	var where []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if q := strings.TrimSpace(f.Query); q != "" {
		add("resource_type ILIKE ?", likePattern(q))
	}
	if f.ResourceType != "" {
		add("resource_type = ?", f.ResourceType)
	}
	if f.MinUrgency > 0 {
		add("urgency_level >= ?", f.MinUrgency)
	}

	query := `SELECT ` + requestColumns + ` FROM resource_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, clampLimit(f.Limit, 20, 100))
	query += ` ORDER BY urgency_level DESC, created_at LIMIT $` + strconv.Itoa(len(args))

	return r.queryRequests(ctx, query, args...)
}

func (r *SimpleResourceRepository) CreateContribution(ctx context.Context, c *db.ResourceContribution) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.ContributionDate.IsZero() {
		c.ContributionDate = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE resource_requests
		SET quantity_received = quantity_received + $2, updated_at = NOW()
		WHERE id = $1
	`, c.RequestID, c.Quantity)
	if err != nil {
		return fmt.Errorf("failed to update received quantity: %w", err)
	}
	if err := expectOneRow(result, "resource request"); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO resource_contributions (id, request_id, user_id, quantity, contribution_date, delivery_confirmed)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`, c.ID, c.RequestID, c.UserID, c.Quantity, c.ContributionDate)
	if err != nil {
		return mapWriteError(err, "contribution")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contribution: %w", err)
	}
	return nil
}

func (r *SimpleResourceRepository) GetContribution(ctx context.Context, id string) (*db.ResourceContribution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+contributionColumns+` FROM resource_contributions WHERE id = $1`, id)
	return scanContribution(row)
}

func (r *SimpleResourceRepository) ListContributionsByUser(ctx context.Context, userID string) ([]db.ResourceContribution, error) {
	return r.queryContributions(ctx, `
		SELECT `+contributionColumns+`
		FROM resource_contributions
		WHERE user_id = $1
		ORDER BY contribution_date DESC
	`, userID)
}

func (r *SimpleResourceRepository) ListContributionsByRequest(ctx context.Context, requestID string) ([]db.ResourceContribution, error) {
	return r.queryContributions(ctx, `
		SELECT `+contributionColumns+`
		FROM resource_contributions
		WHERE request_id = $1
		ORDER BY contribution_date DESC
	`, requestID)
}

func (r *SimpleResourceRepository) ConfirmDelivery(ctx context.Context, contributionID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE resource_contributions SET delivery_confirmed = TRUE WHERE id = $1`, contributionID)
	if err != nil {
		return fmt.Errorf("failed to confirm delivery: %w", err)
	}
	return expectOneRow(result, "contribution")
}

func (r *SimpleResourceRepository) queryRequests(ctx context.Context, query string, args ...any) ([]db.ResourceRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resource requests: %w", err)
	}
	defer rows.Close()

	out := make([]db.ResourceRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (r *SimpleResourceRepository) queryContributions(ctx context.Context, query string, args ...any) ([]db.ResourceContribution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributions: %w", err)
	}
	defer rows.Close()

	out := make([]db.ResourceContribution, 0)
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanRequest(row rowScanner) (*db.ResourceRequest, error) {
	var r db.ResourceRequest
	var resourceType string
	err := row.Scan(&r.ID, &r.EventID, &resourceType, &r.QuantityNeeded, &r.QuantityReceived,
		&r.UrgencyLevel, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: resource request", authz.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan resource request: %w", err)
	}
	r.ResourceType = db.ResourceType(resourceType)
	return &r, nil
}

func scanContribution(row rowScanner) (*db.ResourceContribution, error) {
	var c db.ResourceContribution
	err := row.Scan(&c.ID, &c.RequestID, &c.UserID, &c.Quantity, &c.ContributionDate, &c.DeliveryConfirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: contribution", authz.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan contribution: %w", err)
	}
	return &c, nil
}

// ============================================================================
// Service
// ============================================================================

// ResourceService tracks what events need and what volunteers give
type ResourceService struct {
	authz     authz.Authorizer
	resources ResourceRepository
	events    EventRepository
	members   authz.MembershipManager
	notifier  Notifier
	logger    *zap.Logger
}

func NewResourceService(az authz.Authorizer, resources ResourceRepository, events EventRepository, members authz.MembershipManager, notifier Notifier, logger *zap.Logger) *ResourceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceService{
		authz:     az,
		resources: resources,
		events:    events,
		members:   members,
		notifier:  notifier,
		logger:    logger,
	}
}

func validateRequest(r *db.ResourceRequest) error {
	if !r.ResourceType.Valid() {
		return fmt.Errorf("%w: resource_type must be Food, Money, Materials or Volunteer Time", authz.ErrInvalidInput)
	}
	if r.QuantityNeeded <= 0 {
		return fmt.Errorf("%w: quantity_needed must be positive", authz.ErrInvalidInput)
	}
	if r.UrgencyLevel < 1 || r.UrgencyLevel > 5 {
		return fmt.Errorf("%w: urgency_level must be between 1 and 5", authz.ErrInvalidInput)
	}
	return nil
}

// eventFor loads the event behind a request and checks the caller manages its organization
func (s *ResourceService) eventFor(ctx context.Context, id authz.Identity, eventID string) (*db.Event, error) {
	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanManageOrganization(ctx, id, e.OrganizationID) {
		return nil, authz.ErrForbidden
	}
	return e, nil
}

func (s *ResourceService) CreateRequest(ctx context.Context, id authz.Identity, eventID string, req db.CreateResourceRequest) (*db.ResourceRequest, error) {
	if _, err := s.eventFor(ctx, id, eventID); err != nil {
		return nil, err
	}

	r := &db.ResourceRequest{
		EventID:        eventID,
		ResourceType:   req.ResourceType,
		QuantityNeeded: req.QuantityNeeded,
		UrgencyLevel:   req.UrgencyLevel,
	}
	if r.UrgencyLevel == 0 {
		r.UrgencyLevel = defaultUrgency
	}
	if err := validateRequest(r); err != nil {
		return nil, err
	}

	if err := s.resources.CreateRequest(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ResourceService) GetRequest(ctx context.Context, requestID string) (*db.ResourceRequest, error) {
	return s.resources.GetRequest(ctx, requestID)
}

func (s *ResourceService) ListByEvent(ctx context.Context, eventID string) ([]db.ResourceRequest, error) {
	if _, err := s.events.Get(ctx, eventID); err != nil {
		return nil, err
	}
	return s.resources.ListRequestsByEvent(ctx, eventID)
}

func (s *ResourceService) UpdateRequest(ctx context.Context, id authz.Identity, requestID string, req db.UpdateResourceRequest) (*db.ResourceRequest, error) {
	r, err := s.resources.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if _, err := s.eventFor(ctx, id, r.EventID); err != nil {
		return nil, err
	}

	if req.ResourceType != nil {
		r.ResourceType = *req.ResourceType
	}
	if req.QuantityNeeded != nil {
		r.QuantityNeeded = *req.QuantityNeeded
	}
	if req.UrgencyLevel != nil {
		r.UrgencyLevel = *req.UrgencyLevel
	}
	if err := validateRequest(r); err != nil {
		return nil, err
	}

	if err := s.resources.UpdateRequest(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ResourceService) DeleteRequest(ctx context.Context, id authz.Identity, requestID string) error {
	r, err := s.resources.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if _, err := s.eventFor(ctx, id, r.EventID); err != nil {
		return err
	}
	return s.resources.DeleteRequest(ctx, requestID)
}

// Contribute records a contribution from any signed-in user and tells the
// organization's admin about it.
func (s *ResourceService) Contribute(ctx context.Context, id authz.Identity, req db.CreateContributionRequest) (*db.ResourceContribution, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthorized
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", authz.ErrInvalidInput)
	}

	r, err := s.resources.GetRequest(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}

	c := &db.ResourceContribution{
		RequestID: r.ID,
		UserID:    id.UserID,
		Quantity:  req.Quantity,
	}
	if err := s.resources.CreateContribution(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("contribution recorded",
		zap.String("contribution_id", c.ID),
		zap.String("request_id", r.ID),
		zap.Int("quantity", c.Quantity))

	s.notifyAdmins(ctx, r, c)
	return c, nil
}

func (s *ResourceService) notifyAdmins(ctx context.Context, r *db.ResourceRequest, c *db.ResourceContribution) {
	e, err := s.events.Get(ctx, r.EventID)
	if err != nil {
		s.logger.Warn("could not load event for contribution notice", zap.String("request_id", r.ID), zap.Error(err))
		return
	}
	members, err := s.members.ListMembers(ctx, e.OrganizationID)
	if err != nil {
		s.logger.Warn("could not load admins for contribution notice", zap.String("event_id", e.ID), zap.Error(err))
		return
	}

	admins := make([]string, 0, 1)
	for _, m := range members {
		if m.Role == authz.RoleAdmin {
			admins = append(admins, m.UserID)
		}
	}
	content := fmt.Sprintf("%d of %s pledged for %s", c.Quantity, r.ResourceType, e.Title)
	notifyAll(ctx, s.notifier, s.logger, admins, "New contribution", content, db.NotificationContribution, e.ID)
}

func (s *ResourceService) MyContributions(ctx context.Context, id authz.Identity) ([]db.ResourceContribution, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthorized
	}
	return s.resources.ListContributionsByUser(ctx, id.UserID)
}

func (s *ResourceService) ContributionsByRequest(ctx context.Context, requestID string) ([]db.ResourceContribution, error) {
	if _, err := s.resources.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return s.resources.ListContributionsByRequest(ctx, requestID)
}

// ConfirmDelivery marks a contribution as received. Only managers of the
// event's organization may confirm.
func (s *ResourceService) ConfirmDelivery(ctx context.Context, id authz.Identity, contributionID string) (*db.ResourceContribution, error) {
	c, err := s.resources.GetContribution(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	r, err := s.resources.GetRequest(ctx, c.RequestID)
	if err != nil {
		return nil, err
	}
	e, err := s.eventFor(ctx, id, r.EventID)
	if err != nil {
		return nil, err
	}

	if err := s.resources.ConfirmDelivery(ctx, contributionID); err != nil {
		return nil, err
	}
	c.DeliveryConfirmed = true

	notifyAll(ctx, s.notifier, s.logger, []string{c.UserID}, "Delivery confirmed",
		fmt.Sprintf("Your contribution to %s was received. Thank you!", e.Title),
		db.NotificationDeliveryConfirm, e.ID)
	return c, nil
}
