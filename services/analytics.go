package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/moxer-mmh/Tweeza/authz"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EntityCounts holds the dashboard totals
type EntityCounts struct {
	Users            int `json:"users"`
	Organizations    int `json:"organizations"`
	Events           int `json:"events"`
	ResourceRequests int `json:"resource_requests"`
	Contributions    int `json:"contributions"`
}

// Bucket is one point of a time series
type Bucket struct {
	Period time.Time `json:"period"`
	Count  int       `json:"count"`
}

type LocationCount struct {
	Location string `json:"location"`
	Count    int    `json:"count"`
}

type Dashboard struct {
	Counts             EntityCounts    `json:"counts"`
	WeeklyRegistration []Bucket        `json:"weekly_registrations"`
	RoleDistribution   map[string]int  `json:"role_distribution"`
	GeoDistribution    []LocationCount `json:"geo_distribution"`
}

type ContributionTypeStats struct {
	ResourceType  string `json:"resource_type"`
	Contributions int    `json:"contributions"`
	Quantity      int    `json:"quantity"`
	Confirmed     int    `json:"confirmed"`
}

type AttendanceStats struct {
	Events                   int     `json:"events"`
	EmergencyEvents          int     `json:"emergency_events"`
	Beneficiaries            int     `json:"beneficiaries"`
	AvgBeneficiariesPerEvent float64 `json:"avg_beneficiaries_per_event"`
}

var registrationIntervals = map[string]bool{"day": true, "week": true, "month": true}

// AnalyticsService runs read-only aggregate queries for administrators
type AnalyticsService struct {
	db     *sql.DB
	authz  authz.Authorizer
	roles  authz.RoleStore
	logger *zap.Logger
	now    func() time.Time
}

func NewAnalyticsService(database *sql.DB, az authz.Authorizer, roles authz.RoleStore, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{db: database, authz: az, roles: roles, logger: logger, now: time.Now}
}

// allowed requires a global ADMIN or SUPER_ADMIN grant
func (s *AnalyticsService) allowed(ctx context.Context, id authz.Identity) error {
	subject, ok := s.authz.Subject(ctx, id)
	if !ok {
		return authz.ErrForbidden
	}
	if subject.Roles.Has(authz.RoleAdmin) || subject.Roles.Has(authz.RoleSuperAdmin) {
		return nil
	}
	return authz.ErrForbidden
}

func (s *AnalyticsService) count(ctx context.Context, table string, dst *int) error {
	// table names come from a fixed list below
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(dst); err != nil {
		return fmt.Errorf("failed to count %s: %w", table, err)
	}
	return nil
}

func (s *AnalyticsService) Dashboard(ctx context.Context, id authz.Identity) (*Dashboard, error) {
	if err := s.allowed(ctx, id); err != nil {
		return nil, err
	}

	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	for table, dst := range map[string]*int{
		"users":                  &d.Counts.Users,
		"organizations":          &d.Counts.Organizations,
		"events":                 &d.Counts.Events,
		"resource_requests":      &d.Counts.ResourceRequests,
		"resource_contributions": &d.Counts.Contributions,
	} {
		g.Go(func() error { return s.count(gctx, table, dst) })
	}
	g.Go(func() error {
		end := s.now()
		var err error
		d.WeeklyRegistration, err = s.registrations(gctx, end.AddDate(0, 0, -7*12), end, "week")
		return err
	})
	g.Go(func() error {
		byRole, err := s.roles.CountByRole(gctx)
		if err != nil {
			return err
		}
		d.RoleDistribution = make(map[string]int, len(byRole))
		for r, n := range byRole {
			d.RoleDistribution[r.String()] = n
		}
		return nil
	})
	g.Go(func() error {
		var err error
		d.GeoDistribution, err = s.geoDistribution(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Registrations buckets new users by day, week or month between start and end
func (s *AnalyticsService) Registrations(ctx context.Context, id authz.Identity, start, end time.Time, interval string) ([]Bucket, error) {
	if err := s.allowed(ctx, id); err != nil {
		return nil, err
	}
	if !registrationIntervals[interval] {
		return nil, fmt.Errorf("%w: interval must be day, week or month", authz.ErrInvalidInput)
	}
	if end.IsZero() {
		end = s.now()
	}
	if start.IsZero() {
		start = end.AddDate(0, -1, 0)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end must not be before start", authz.ErrInvalidInput)
	}
	return s.registrations(ctx, start, end, interval)
}

func (s *AnalyticsService) registrations(ctx context.Context, start, end time.Time, interval string) ([]Bucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date_trunc($1, created_at) AS period, COUNT(*)
		FROM users
		WHERE created_at BETWEEN $2 AND $3
		GROUP BY period
		ORDER BY period
	`, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}
	defer rows.Close()

	out := make([]Bucket, 0)
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Period, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *AnalyticsService) geoDistribution(ctx context.Context) ([]LocationCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(location, ''), 'unknown') AS loc, COUNT(*)
		FROM users
		GROUP BY loc
		ORDER BY COUNT(*) DESC
		LIMIT 20
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	out := make([]LocationCount, 0)
	for rows.Next() {
		var lc LocationCount
		if err := rows.Scan(&lc.Location, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func (s *AnalyticsService) ContributionsByType(ctx context.Context, id authz.Identity) ([]ContributionTypeStats, error) {
	if err := s.allowed(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.resource_type, COUNT(c.id), COALESCE(SUM(c.quantity), 0),
			COUNT(c.id) FILTER (WHERE c.delivery_confirmed)
		FROM resource_requests r
		LEFT JOIN resource_contributions c ON c.request_id = r.id
		GROUP BY r.resource_type
		ORDER BY r.resource_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributions by type: %w", err)
	}
	defer rows.Close()

	out := make([]ContributionTypeStats, 0)
	for rows.Next() {
		var st ContributionTypeStats
		if err := rows.Scan(&st.ResourceType, &st.Contributions, &st.Quantity, &st.Confirmed); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *AnalyticsService) EventAttendance(ctx context.Context, id authz.Identity) (*AttendanceStats, error) {
	if err := s.allowed(ctx, id); err != nil {
		return nil, err
	}

	var st AttendanceStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM events WHERE is_emergency),
			(SELECT COUNT(*) FROM event_beneficiaries)
	`).Scan(&st.Events, &st.EmergencyEvents, &st.Beneficiaries)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	if st.Events > 0 {
		st.AvgBeneficiariesPerEvent = float64(st.Beneficiaries) / float64(st.Events)
	}
	return &st, nil
}
