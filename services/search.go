package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	earthRadiusKm         = 6371.0
	defaultNearbyRadiusKm = 10.0
)

// CombinedResults groups a free-text search across entity kinds
type CombinedResults struct {
	Organizations []authz.Organization `json:"organizations"`
	Events        []db.Event           `json:"events"`
	Resources     []db.ResourceRequest `json:"resources"`
}

type SearchService struct {
	authz     authz.Authorizer
	users     UserRepository
	orgs      authz.OrgRepository
	events    EventRepository
	resources ResourceRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewSearchService(az authz.Authorizer, users UserRepository, orgs authz.OrgRepository, events EventRepository, resources ResourceRepository, logger *zap.Logger) *SearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchService{
		authz:     az,
		users:     users,
		orgs:      orgs,
		events:    events,
		resources: resources,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *SearchService) Users(ctx context.Context, id authz.Identity, query string, limit int) ([]db.User, error) {
	if !s.authz.IsSuperAdmin(ctx, id) {
		return nil, authz.ErrForbidden
	}
	return s.users.Search(ctx, strings.TrimSpace(query), clampLimit(limit, 20, 100))
}

func (s *SearchService) Organizations(ctx context.Context, query string, limit int) ([]authz.Organization, error) {
	return s.orgs.Search(ctx, strings.TrimSpace(query), clampLimit(limit, 20, 100))
}

func (s *SearchService) Events(ctx context.Context, f EventFilter) ([]db.Event, error) {
	if f.EventType != "" && !f.EventType.Valid() {
		return nil, fmt.Errorf("%w: unknown event_type %q", authz.ErrInvalidInput, f.EventType)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, fmt.Errorf("%w: end date must not be before start date", authz.ErrInvalidInput)
	}
	return s.events.Search(ctx, f)
}

func (s *SearchService) Resources(ctx context.Context, f ResourceFilter) ([]db.ResourceRequest, error) {
	if f.ResourceType != "" && !f.ResourceType.Valid() {
		return nil, fmt.Errorf("%w: unknown resource_type %q", authz.ErrInvalidInput, f.ResourceType)
	}
	if f.MinUrgency < 0 || f.MinUrgency > 5 {
		return nil, fmt.Errorf("%w: min_urgency must be between 1 and 5", authz.ErrInvalidInput)
	}
	return s.resources.SearchRequests(ctx, f)
}

// Combined runs the organization, event and resource searches concurrently
func (s *SearchService) Combined(ctx context.Context, query string, limit int) (*CombinedResults, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", authz.ErrInvalidInput)
	}
	limit = clampLimit(limit, 10, 50)

	var res CombinedResults
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res.Organizations, err = s.orgs.Search(gctx, query, limit)
		return err
	})
	g.Go(func() error {
		var err error
		res.Events, err = s.events.Search(gctx, EventFilter{Query: query, Limit: limit})
		return err
	})
	g.Go(func() error {
		var err error
		res.Resources, err = s.resources.SearchRequests(gctx, ResourceFilter{Query: query, Limit: limit})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &res, nil
}

// NearbyEvents returns events that have not ended within radiusKm of the
// point, nearest first. A zero radius means the default of 10 km.
func (s *SearchService) NearbyEvents(ctx context.Context, lat, lng, radiusKm float64) ([]db.Event, error) {
	if err := validateCoordinates(&lat, &lng); err != nil {
		return nil, err
	}
	if radiusKm < 0 || !finite(radiusKm) {
		return nil, fmt.Errorf("%w: radius must be a positive number", authz.ErrInvalidInput)
	}
	if radiusKm == 0 {
		radiusKm = defaultNearbyRadiusKm
	}

	located, err := s.events.Located(ctx, s.now())
	if err != nil {
		return nil, err
	}

	nearby := make([]db.Event, 0)
	for _, e := range located {
		d := HaversineKm(lat, lng, *e.Latitude, *e.Longitude)
		if d > radiusKm {
			continue
		}
		e.DistanceKm = &d
		nearby = append(nearby, e)
	}
	sort.SliceStable(nearby, func(i, j int) bool {
		return *nearby[i].DistanceKm < *nearby[j].DistanceKm
	})
	return nearby, nil
}

// HaversineKm is the great-circle distance between two points in kilometres
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
