package authz

import (
	"context"
	"time"
)

// Organization is a group of users that runs events
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OrgRepository handles CRUD operations for organizations.
// This is purely a data access layer - no authorization logic.
type OrgRepository interface {
	// Create creates a new organization
	Create(ctx context.Context, org *Organization) error

	// Get retrieves an organization by ID
	Get(ctx context.Context, id string) (*Organization, error)

	// GetByName retrieves an organization by its unique name
	GetByName(ctx context.Context, name string) (*Organization, error)

	// List returns organizations ordered by name
	List(ctx context.Context, limit, offset int) ([]Organization, error)

	// ListByUser returns organizations the user is a member of
	ListByUser(ctx context.Context, userID string) ([]Organization, error)

	// Search matches name, description or location case-insensitively
	Search(ctx context.Context, query string, limit int) ([]Organization, error)

	// Update updates an organization
	Update(ctx context.Context, org *Organization) error

	// Delete deletes an organization (cascades to memberships and events)
	Delete(ctx context.Context, id string) error

	// Exists checks if an organization exists
	Exists(ctx context.Context, id string) bool

	// NameExists checks if a name is already taken
	NameExists(ctx context.Context, name string) bool
}
