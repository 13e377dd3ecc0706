package crowd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

// Service handles submission and moderation of crowdsourced reports.
type Service struct {
	repo     *Repo
	vehicles *vehicle.Service
	log      logger.Logger
}

func NewService(repo *Repo, vehicles *vehicle.Service, log logger.Logger) *Service {
	return &Service{repo: repo, vehicles: vehicles, log: log}
}

func (s *Service) Repo() *Repo { return s.repo }

// SubmitInput is one user submission.
type SubmitInput struct {
	Type          ReportType
	ReportDate    time.Time
	Description   string
	LocationCity  string
	LocationState string
}

// Submit files a new report in pending status.
func (s *Service) Submit(ctx context.Context, vin, userID string, in SubmitInput) (*Report, error) {
	if s == nil || s.repo == nil || s.vehicles == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	v, err := s.vehicles.GetByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	if !ValidReportType(in.Type) {
		return nil, fmt.Errorf("unknown report type: %s", in.Type)
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, fmt.Errorf("description required")
	}
	if in.ReportDate.IsZero() {
		in.ReportDate = time.Now()
	}

	rep := &Report{
		ID:            uuid.NewString(),
		VehicleID:     v.ID,
		SubmittedByID: userID,
		ReportType:    in.Type,
		Status:        StatusPending,
		ReportDate:    in.ReportDate,
		Description:   desc,
		LocationCity:  strings.TrimSpace(in.LocationCity),
		LocationState: strings.ToUpper(strings.TrimSpace(in.LocationState)),
	}
	if err := s.repo.Create(ctx, rep); err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{
		"report_id": rep.ID,
		"vin":       v.VIN,
		"type":      rep.ReportType,
	}).Info("crowdsourced report submitted")
	return rep, nil
}

// Moderate moves a pending report to verified, rejected or duplicate and
// records the moderator.
func (s *Service) Moderate(ctx context.Context, reportID, verifierID string, to Status) (*Report, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	rep, err := s.repo.FindByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := ApplyTransition(rep, to, verifierID, time.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, rep); err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{
		"report_id": rep.ID,
		"status":    rep.Status,
		"moderator": verifierID,
	}).Info("crowdsourced report moderated")
	return rep, nil
}

// ListForVIN resolves the VIN and lists its reports.
func (s *Service) ListForVIN(ctx context.Context, vin string, f ListFilter) ([]Report, int64, error) {
	if s == nil || s.repo == nil || s.vehicles == nil {
		return nil, 0, fmt.Errorf("service not initialized")
	}
	v, err := s.vehicles.GetByVIN(ctx, vin)
	if err != nil {
		return nil, 0, err
	}
	f.VehicleID = v.ID
	return s.repo.List(ctx, f)
}
