package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
	"go.uber.org/zap"
)

// EventService runs the event lifecycle. Mutations require managing the
// event's organization.
type EventService struct {
	authz    authz.Authorizer
	events   EventRepository
	orgs     authz.OrgRepository
	members  authz.MembershipManager
	users    UserRepository
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewEventService(az authz.Authorizer, events EventRepository, orgs authz.OrgRepository, members authz.MembershipManager, users UserRepository, notifier Notifier, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{
		authz:    az,
		events:   events,
		orgs:     orgs,
		members:  members,
		users:    users,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func validateEvent(e *db.Event) error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", authz.ErrInvalidInput)
	}
	if !e.EventType.Valid() {
		return fmt.Errorf("%w: event_type must be Iftar, Cleanup, Emergency or Workshop", authz.ErrInvalidInput)
	}
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return fmt.Errorf("%w: start_time and end_time are required", authz.ErrInvalidInput)
	}
	if e.EndTime.Before(e.StartTime) {
		return fmt.Errorf("%w: end_time must not be before start_time", authz.ErrInvalidInput)
	}
	return validateCoordinates(e.Latitude, e.Longitude)
}

// Create stores the event and notifies the organization's other members
func (s *EventService) Create(ctx context.Context, id authz.Identity, req db.CreateEventRequest) (*db.Event, error) {
	if !s.authz.CanManageOrganization(ctx, id, req.OrganizationID) {
		return nil, authz.ErrForbidden
	}

	e := &db.Event{
		OrganizationID:   req.OrganizationID,
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		EventType:        req.EventType,
		Location:         req.Location,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		IsEmergency:      req.IsEmergency || req.EventType == db.EventTypeEmergency,
		EmergencyContact: req.EmergencyContact,
	}
	if err := validateEvent(e); err != nil {
		return nil, err
	}
	if !s.orgs.Exists(ctx, e.OrganizationID) {
		return nil, fmt.Errorf("%w: organization", authz.ErrNotFound)
	}

	if err := s.events.Create(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("event created",
		zap.String("event_id", e.ID),
		zap.String("organization_id", e.OrganizationID),
		zap.String("by", id.UserID))

	s.notifyMembers(ctx, e, id.UserID)
	return e, nil
}

func (s *EventService) notifyMembers(ctx context.Context, e *db.Event, actorID string) {
	members, err := s.members.ListMembers(ctx, e.OrganizationID)
	if err != nil {
		s.logger.Warn("could not load members to notify", zap.String("event_id", e.ID), zap.Error(err))
		return
	}
	recipients := make([]string, 0, len(members))
	for _, m := range members {
		if m.UserID != actorID {
			recipients = append(recipients, m.UserID)
		}
	}

	title := "New event: " + e.Title
	content := fmt.Sprintf("%s starts %s", e.Title, e.StartTime.Format("2006-01-02 15:04"))
	if e.Location != "" {
		content += " at " + e.Location
	}
	notifyAll(ctx, s.notifier, s.logger, recipients, title, content, db.NotificationEventCreated, e.ID)
}

func (s *EventService) Get(ctx context.Context, eventID string) (*db.Event, error) {
	return s.events.Get(ctx, eventID)
}

func (s *EventService) List(ctx context.Context, limit, offset int) ([]db.Event, error) {
	return s.events.List(ctx, clampLimit(limit, 20, 100), offset)
}

func (s *EventService) Upcoming(ctx context.Context, limit, offset int) ([]db.Event, error) {
	return s.events.Upcoming(ctx, s.now(), clampLimit(limit, 20, 100), offset)
}

func (s *EventService) ByOrganization(ctx context.Context, orgID string) ([]db.Event, error) {
	if !s.orgs.Exists(ctx, orgID) {
		return nil, fmt.Errorf("%w: organization", authz.ErrNotFound)
	}
	return s.events.ByOrganization(ctx, orgID)
}

// manageable loads the event and checks the caller manages its organization
func (s *EventService) manageable(ctx context.Context, id authz.Identity, eventID string) (*db.Event, error) {
	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanManageOrganization(ctx, id, e.OrganizationID) {
		return nil, authz.ErrForbidden
	}
	return e, nil
}

func (s *EventService) Update(ctx context.Context, id authz.Identity, eventID string, req db.UpdateEventRequest) (*db.Event, error) {
	e, err := s.manageable(ctx, id, eventID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		e.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		e.Description = *req.Description
	}
	if req.EventType != nil {
		e.EventType = *req.EventType
	}
	if req.Location != nil {
		e.Location = *req.Location
	}
	if req.Latitude != nil {
		e.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		e.Longitude = req.Longitude
	}
	if req.StartTime != nil {
		e.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		e.EndTime = *req.EndTime
	}
	if req.IsEmergency != nil {
		e.IsEmergency = *req.IsEmergency
	}
	if req.EmergencyContact != nil {
		e.EmergencyContact = *req.EmergencyContact
	}
	if err := validateEvent(e); err != nil {
		return nil, err
	}

	if err := s.events.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *EventService) Delete(ctx context.Context, id authz.Identity, eventID string) error {
	if _, err := s.manageable(ctx, id, eventID); err != nil {
		return err
	}
	if err := s.events.Delete(ctx, eventID); err != nil {
		return err
	}
	s.logger.Info("event deleted", zap.String("event_id", eventID), zap.String("by", id.UserID))
	return nil
}

// ============================================================================
// Collaborators
// ============================================================================

func (s *EventService) AddCollaborator(ctx context.Context, id authz.Identity, eventID, orgID string) error {
	e, err := s.manageable(ctx, id, eventID)
	if err != nil {
		return err
	}
	if orgID == "" {
		return fmt.Errorf("%w: organization_id is required", authz.ErrInvalidInput)
	}
	if orgID == e.OrganizationID {
		return fmt.Errorf("%w: the owning organization cannot collaborate on its own event", authz.ErrInvalidInput)
	}
	if !s.orgs.Exists(ctx, orgID) {
		return fmt.Errorf("%w: organization", authz.ErrNotFound)
	}
	return s.events.AddCollaborator(ctx, eventID, orgID)
}

func (s *EventService) RemoveCollaborator(ctx context.Context, id authz.Identity, eventID, orgID string) error {
	if _, err := s.manageable(ctx, id, eventID); err != nil {
		return err
	}
	return s.events.RemoveCollaborator(ctx, eventID, orgID)
}

func (s *EventService) ListCollaborators(ctx context.Context, eventID string) ([]db.EventCollaborator, error) {
	if _, err := s.events.Get(ctx, eventID); err != nil {
		return nil, err
	}
	return s.events.ListCollaborators(ctx, eventID)
}

// ============================================================================
// Beneficiaries
// ============================================================================

func (s *EventService) AddBeneficiary(ctx context.Context, id authz.Identity, eventID string, req db.AddBeneficiaryRequest) (*db.EventBeneficiary, error) {
	if _, err := s.manageable(ctx, id, eventID); err != nil {
		return nil, err
	}
	if !s.users.Exists(ctx, req.UserID) {
		return nil, fmt.Errorf("%w: user", authz.ErrNotFound)
	}

	b := &db.EventBeneficiary{EventID: eventID, UserID: req.UserID}
	if req.BenefitTime != nil {
		b.BenefitTime = *req.BenefitTime
	}
	if err := s.events.AddBeneficiary(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *EventService) ListBeneficiaries(ctx context.Context, id authz.Identity, eventID string) ([]db.EventBeneficiary, error) {
	if _, err := s.manageable(ctx, id, eventID); err != nil {
		return nil, err
	}
	return s.events.ListBeneficiaries(ctx, eventID)
}
