package db

import (
	"time"

	"github.com/moxer-mmh/Tweeza/authz"
)

// ===========================
// ENUMERATIONS
// ===========================

type EventType string

const (
	EventTypeIftar     EventType = "Iftar"
	EventTypeCleanup   EventType = "Cleanup"
	EventTypeEmergency EventType = "Emergency"
	EventTypeWorkshop  EventType = "Workshop"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTypeIftar, EventTypeCleanup, EventTypeEmergency, EventTypeWorkshop:
		return true
	}
	return false
}

type ResourceType string

const (
	ResourceTypeFood          ResourceType = "Food"
	ResourceTypeMoney         ResourceType = "Money"
	ResourceTypeMaterials     ResourceType = "Materials"
	ResourceTypeVolunteerTime ResourceType = "Volunteer Time"
)

func (t ResourceType) Valid() bool {
	switch t {
	case ResourceTypeFood, ResourceTypeMoney, ResourceTypeMaterials, ResourceTypeVolunteerTime:
		return true
	}
	return false
}

// PushStatus tracks delivery of a notification to the user's devices
type PushStatus string

const (
	PushStatusPending PushStatus = "pending"
	PushStatusSent    PushStatus = "sent"
	PushStatusFailed  PushStatus = "failed"
	PushStatusSkipped PushStatus = "skipped" // user has no registered device
)

type TwoFactorMethod string

const (
	TwoFactorTOTP TwoFactorMethod = "totp"
	TwoFactorSMS  TwoFactorMethod = "sms"
)

func (m TwoFactorMethod) Valid() bool {
	return m == TwoFactorTOTP || m == TwoFactorSMS
}

// Notification types
const (
	NotificationEventCreated    = "event_created"
	NotificationContribution    = "contribution"
	NotificationDeliveryConfirm = "delivery_confirmed"
	NotificationRoleChanged     = "role_changed"
)

// ===========================
// USER MODELS
// ===========================

type User struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	Phone            string          `json:"phone,omitempty"`
	PasswordHash     string          `json:"-"`
	FullName         string          `json:"full_name"`
	Location         string          `json:"location,omitempty"`
	Latitude         *float64        `json:"latitude,omitempty"`
	Longitude        *float64        `json:"longitude,omitempty"`
	TwoFactorEnabled bool            `json:"two_factor_enabled"`
	TwoFactorSecret  string          `json:"-"`
	TwoFactorMethod  TwoFactorMethod `json:"two_factor_method,omitempty"`
	LastLogin        *time.Time      `json:"last_login,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Populated from user_roles
	Roles []authz.Role `json:"roles"`
}

// HasPassword reports whether password login is possible (OAuth-only users have none)
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

type UpdateUserRequest struct {
	FullName  *string  `json:"full_name,omitempty"`
	Phone     *string  `json:"phone,omitempty"`
	Location  *string  `json:"location,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type OAuthConnection struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Provider       string     `json:"provider"` // google, facebook
	ProviderUserID string     `json:"provider_user_id"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type DeviceToken struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"` // android, ios, web
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform"`
}

// ===========================
// EVENT MODELS
// ===========================

type Event struct {
	ID               string    `json:"id"`
	OrganizationID   string    `json:"organization_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	EventType        EventType `json:"event_type"`
	Location         string    `json:"location,omitempty"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	IsEmergency      bool      `json:"is_emergency"`
	EmergencyContact string    `json:"emergency_contact,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// For search responses
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

type CreateEventRequest struct {
	OrganizationID   string    `json:"organization_id" binding:"required,uuid"`
	Title            string    `json:"title" binding:"required"`
	Description      string    `json:"description"`
	EventType        EventType `json:"event_type" binding:"required"`
	Location         string    `json:"location"`
	Latitude         *float64  `json:"latitude"`
	Longitude        *float64  `json:"longitude"`
	StartTime        time.Time `json:"start_time" binding:"required"`
	EndTime          time.Time `json:"end_time" binding:"required"`
	IsEmergency      bool      `json:"is_emergency"`
	EmergencyContact string    `json:"emergency_contact"`
}

type UpdateEventRequest struct {
	Title            *string    `json:"title,omitempty"`
	Description      *string    `json:"description,omitempty"`
	EventType        *EventType `json:"event_type,omitempty"`
	Location         *string    `json:"location,omitempty"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	IsEmergency      *bool      `json:"is_emergency,omitempty"`
	EmergencyContact *string    `json:"emergency_contact,omitempty"`
}

type EventCollaborator struct {
	EventID          string    `json:"event_id"`
	OrganizationID   string    `json:"organization_id"`
	OrganizationName string    `json:"organization_name,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type EventBeneficiary struct {
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	FullName    string    `json:"full_name,omitempty"`
	BenefitTime time.Time `json:"benefit_time"`
}

type AddBeneficiaryRequest struct {
	UserID      string     `json:"user_id" binding:"required,uuid"`
	BenefitTime *time.Time `json:"benefit_time"`
}

// ===========================
// RESOURCE MODELS
// ===========================

type ResourceRequest struct {
	ID               string       `json:"id"`
	EventID          string       `json:"event_id"`
	ResourceType     ResourceType `json:"resource_type"`
	QuantityNeeded   int          `json:"quantity_needed"`
	QuantityReceived int          `json:"quantity_received"`
	UrgencyLevel     int          `json:"urgency_level"` // 1 (low) .. 5 (critical)
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Remaining returns how much of the request is still open
func (r *ResourceRequest) Remaining() int {
	if r.QuantityReceived >= r.QuantityNeeded {
		return 0
	}
	return r.QuantityNeeded - r.QuantityReceived
}

type CreateResourceRequest struct {
	ResourceType   ResourceType `json:"resource_type" binding:"required"`
	QuantityNeeded int          `json:"quantity_needed" binding:"required"`
	UrgencyLevel   int          `json:"urgency_level"`
}

type UpdateResourceRequest struct {
	ResourceType   *ResourceType `json:"resource_type,omitempty"`
	QuantityNeeded *int          `json:"quantity_needed,omitempty"`
	UrgencyLevel   *int          `json:"urgency_level,omitempty"`
}

type ResourceContribution struct {
	ID                string    `json:"id"`
	RequestID         string    `json:"request_id"`
	UserID            string    `json:"user_id"`
	Quantity          int       `json:"quantity"`
	ContributionDate  time.Time `json:"contribution_date"`
	DeliveryConfirmed bool      `json:"delivery_confirmed"`
}

type CreateContributionRequest struct {
	RequestID string `json:"request_id" binding:"required,uuid"`
	Quantity  int    `json:"quantity" binding:"required"`
}

// ===========================
// NOTIFICATION MODELS
// ===========================

type Notification struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	NotificationType string     `json:"notification_type"`
	IsRead           bool       `json:"is_read"`
	RelatedEventID   string     `json:"related_event_id,omitempty"`
	PushStatus       PushStatus `json:"push_status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
