package stats

import (
	"context"
	"fmt"

	"github.com/AutoSentinel/AutoSentinel/internal/crowd"
	"github.com/AutoSentinel/AutoSentinel/internal/history"
	"github.com/AutoSentinel/AutoSentinel/internal/report"
	"github.com/AutoSentinel/AutoSentinel/internal/telemetry"
	"github.com/AutoSentinel/AutoSentinel/internal/user"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

// Service computes the dashboard aggregates. All numbers come straight from
// the repos; nothing here is cached.
type Service struct {
	vehicles  *vehicle.Repo
	search    *vehicle.SearchService
	histories *history.Repo
	crowds    *crowd.Repo
	reports   *report.Repo
	traces    *telemetry.Repo
	users     *user.Repo
}

func NewService(vehicles *vehicle.Repo, search *vehicle.SearchService, histories *history.Repo,
	crowds *crowd.Repo, reports *report.Repo, traces *telemetry.Repo, users *user.Repo) *Service {
	return &Service{
		vehicles:  vehicles,
		search:    search,
		histories: histories,
		crowds:    crowds,
		reports:   reports,
		traces:    traces,
		users:     users,
	}
}

// Home is the public landing-page counter block.
type Home struct {
	Vehicles         int64 `json:"vehicles"`
	CompletedReports int64 `json:"completed_reports"`
	StolenVehicles   int64 `json:"stolen_vehicles"`
	TrackedVehicles  int64 `json:"tracked_vehicles"`
}

func (s *Service) Home(ctx context.Context) (*Home, error) {
	if s == nil || s.vehicles == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	h := &Home{}
	var err error
	if h.Vehicles, err = s.vehicles.Count(ctx); err != nil {
		return nil, err
	}
	if h.CompletedReports, err = s.reports.CountByStatus(ctx, report.StatusCompleted); err != nil {
		return nil, err
	}
	if h.StolenVehicles, err = s.vehicles.CountStolen(ctx); err != nil {
		return nil, err
	}
	if h.TrackedVehicles, err = s.vehicles.CountTracked(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Statistics is the public statistics page payload.
type Statistics struct {
	Home

	VehiclesByMake        []vehicle.GroupCount `json:"vehicles_by_make"`
	VehiclesByYear        []vehicle.GroupCount `json:"vehicles_by_year"`
	VehiclesByTitleStatus []vehicle.GroupCount `json:"vehicles_by_title_status"`
	AccidentsBySeverity   []vehicle.GroupCount `json:"accidents_by_severity"`
	SearchesByType        []vehicle.GroupCount `json:"searches_by_type"`

	RollbackSuspected int64 `json:"rollback_suspected_readings"`
}

func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	home, err := s.Home(ctx)
	if err != nil {
		return nil, err
	}
	st := &Statistics{Home: *home}

	if st.VehiclesByMake, err = s.vehicles.CountByMake(ctx, 10); err != nil {
		return nil, err
	}
	if st.VehiclesByYear, err = s.vehicles.CountByYear(ctx, 10); err != nil {
		return nil, err
	}
	if st.VehiclesByTitleStatus, err = s.vehicles.CountByTitleStatus(ctx); err != nil {
		return nil, err
	}
	if st.AccidentsBySeverity, err = s.histories.CountAccidentsBySeverity(ctx); err != nil {
		return nil, err
	}
	if st.SearchesByType, err = s.search.CountByType(ctx); err != nil {
		return nil, err
	}
	if st.RollbackSuspected, err = s.histories.CountRollbackSuspected(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// Dashboard is the admin variant with operational counters.
type Dashboard struct {
	Statistics

	Users              int64   `json:"users"`
	PendingCrowdReview int64   `json:"pending_crowd_reports"`
	PendingReports     int64   `json:"pending_reports"`
	FailedReports      int64   `json:"failed_reports"`
	TelemetryTraces    int64   `json:"telemetry_traces"`
	Revenue            float64 `json:"revenue"`
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	st, err := s.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	d := &Dashboard{Statistics: *st}

	if d.Users, err = s.users.Count(ctx); err != nil {
		return nil, err
	}
	if d.PendingCrowdReview, err = s.crowds.CountByStatus(ctx, crowd.StatusPending); err != nil {
		return nil, err
	}
	if d.PendingReports, err = s.reports.CountByStatus(ctx, report.StatusPending); err != nil {
		return nil, err
	}
	if d.FailedReports, err = s.reports.CountByStatus(ctx, report.StatusFailed); err != nil {
		return nil, err
	}
	if d.TelemetryTraces, err = s.traces.Count(ctx); err != nil {
		return nil, err
	}
	if d.Revenue, err = s.reports.Revenue(ctx); err != nil {
		return nil, err
	}
	return d, nil
}
