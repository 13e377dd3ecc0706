package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

// Service appends history records and keeps the vehicle's denormalized
// fields (title status, stolen flag, mileage, owner count) in sync.
type Service struct {
	repo     *Repo
	vehicles *vehicle.Service
	log      logger.Logger
}

func NewService(repo *Repo, vehicles *vehicle.Service, log logger.Logger) *Service {
	return &Service{repo: repo, vehicles: vehicles, log: log}
}

func (s *Service) Repo() *Repo { return s.repo }

func (s *Service) vehicleByVIN(ctx context.Context, vin string) (*vehicle.Vehicle, error) {
	if s == nil || s.repo == nil || s.vehicles == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.vehicles.GetByVIN(ctx, vin)
}

// TitleEventInput is one title history entry.
type TitleEventInput struct {
	EventType   TitleEventType
	EventDate   time.Time
	TitleStatus vehicle.TitleStatus
	State       string
	TitleNumber string
	Odometer    int
	Notes       string
	Source      string
}

// AddTitleEvent appends a title event. The vehicle's current title brand
// follows the newest event.
func (s *Service) AddTitleEvent(ctx context.Context, vin string, in TitleEventInput) (*TitleEvent, error) {
	v, err := s.vehicleByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	if !ValidTitleEventType(in.EventType) {
		return nil, fmt.Errorf("unknown title event type: %s", in.EventType)
	}
	if !vehicle.ValidTitleStatus(in.TitleStatus) {
		return nil, fmt.Errorf("unknown title status: %s", in.TitleStatus)
	}
	if in.EventDate.IsZero() {
		return nil, fmt.Errorf("event_date required")
	}
	state := strings.ToUpper(strings.TrimSpace(in.State))
	if state == "" {
		return nil, fmt.Errorf("state required")
	}

	e := &TitleEvent{
		ID:              uuid.NewString(),
		VehicleID:       v.ID,
		EventType:       in.EventType,
		EventDate:       in.EventDate,
		TitleStatus:     string(in.TitleStatus),
		State:           state,
		TitleNumber:     strings.TrimSpace(in.TitleNumber),
		OdometerReading: in.Odometer,
		OdometerUnit:    "miles",
		Notes:           in.Notes,
		Source:          strings.TrimSpace(in.Source),
	}
	if err := s.repo.CreateTitleEvent(ctx, e); err != nil {
		return nil, err
	}

	if _, err := s.vehicles.Upsert(ctx, vehicle.UpsertInput{
		VIN:         v.VIN,
		TitleStatus: in.TitleStatus,
	}); err != nil {
		s.log.Errorf("title brand sync failed for %s: %v", v.VIN, err)
	}
	return e, nil
}

// AccidentInput is one accident report.
type AccidentInput struct {
	AccidentDate        time.Time
	Severity            AccidentSeverity
	Source              RecordSource
	DamageDescription   string
	EstimatedDamageCost float64
	LocationCity        string
	LocationState       string
	AirbagDeployed      bool
	IsStructuralDamage  bool
	ReportNumber        string
	Verified            bool
}

func (s *Service) AddAccident(ctx context.Context, vin string, in AccidentInput) (*AccidentRecord, error) {
	v, err := s.vehicleByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	if !ValidSeverity(in.Severity) {
		return nil, fmt.Errorf("unknown severity: %s", in.Severity)
	}
	if in.AccidentDate.IsZero() {
		return nil, fmt.Errorf("accident_date required")
	}
	if in.EstimatedDamageCost < 0 {
		return nil, fmt.Errorf("damage cost must not be negative")
	}

	a := &AccidentRecord{
		ID:                  uuid.NewString(),
		VehicleID:           v.ID,
		AccidentDate:        in.AccidentDate,
		Severity:            in.Severity,
		Source:              in.Source,
		DamageDescription:   in.DamageDescription,
		EstimatedDamageCost: in.EstimatedDamageCost,
		LocationCity:        strings.TrimSpace(in.LocationCity),
		LocationState:       strings.ToUpper(strings.TrimSpace(in.LocationState)),
		AirbagDeployed:      in.AirbagDeployed,
		IsStructuralDamage:  in.IsStructuralDamage,
		ReportNumber:        strings.TrimSpace(in.ReportNumber),
		Verified:            in.Verified,
	}
	if err := s.repo.CreateAccident(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// MileageInput is one odometer reading.
type MileageInput struct {
	RecordedDate time.Time
	Mileage      int
	Source       RecordSource
	SourceDetail string
	Verified     bool
}

// AddMileage appends an odometer reading. A reading below the latest prior
// verified reading is stored flagged as rollback-suspected; higher readings
// advance the vehicle's current mileage.
func (s *Service) AddMileage(ctx context.Context, vin string, in MileageInput) (*MileageRecord, error) {
	v, err := s.vehicleByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	if in.Mileage < 0 {
		return nil, fmt.Errorf("mileage must not be negative")
	}
	if in.RecordedDate.IsZero() {
		return nil, fmt.Errorf("recorded_date required")
	}

	latest, err := s.repo.LatestVerifiedMileage(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	rollback := latest != nil && in.Mileage < latest.Mileage

	m := &MileageRecord{
		ID:                  uuid.NewString(),
		VehicleID:           v.ID,
		RecordedDate:        in.RecordedDate,
		Mileage:             in.Mileage,
		Unit:                "miles",
		Source:              in.Source,
		SourceDetail:        strings.TrimSpace(in.SourceDetail),
		IsRollbackSuspected: rollback,
		Verified:            in.Verified,
	}
	if err := s.repo.CreateMileage(ctx, m); err != nil {
		return nil, err
	}
	if rollback {
		s.log.Warnf("rollback-suspected reading for %s: %d < %d", v.VIN, in.Mileage, latest.Mileage)
	}

	if in.Mileage > v.CurrentMileage {
		if _, err := s.vehicles.Upsert(ctx, vehicle.UpsertInput{
			VIN:            v.VIN,
			CurrentMileage: in.Mileage,
		}); err != nil {
			s.log.Errorf("mileage sync failed for %s: %v", v.VIN, err)
		}
	}
	return m, nil
}

// OwnershipInput is one owner in the anonymized chain.
type OwnershipInput struct {
	OwnerType           OwnerType
	OwnershipStart      time.Time
	OwnershipEnd        *time.Time
	IsCurrent           bool
	State               string
	OwnerHash           string
	ConsentedToTracking bool
}

// AddOwnership appends the next owner in sequence.
func (s *Service) AddOwnership(ctx context.Context, vin string, in OwnershipInput) (*OwnershipRecord, error) {
	v, err := s.vehicleByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	if !ValidOwnerType(in.OwnerType) {
		return nil, fmt.Errorf("unknown owner type: %s", in.OwnerType)
	}
	if in.OwnershipStart.IsZero() {
		return nil, fmt.Errorf("ownership_start required")
	}

	seq, err := s.repo.MaxOwnerSequence(ctx, v.ID)
	if err != nil {
		return nil, err
	}

	o := &OwnershipRecord{
		ID:                  uuid.NewString(),
		VehicleID:           v.ID,
		OwnerSequence:       seq + 1,
		OwnerType:           in.OwnerType,
		OwnershipStart:      in.OwnershipStart,
		OwnershipEnd:        in.OwnershipEnd,
		IsCurrent:           in.IsCurrent,
		State:               strings.ToUpper(strings.TrimSpace(in.State)),
		OwnerHash:           strings.TrimSpace(in.OwnerHash),
		ConsentedToTracking: in.ConsentedToTracking,
	}
	if in.OwnershipEnd != nil {
		o.OwnershipDurationDays = int(in.OwnershipEnd.Sub(in.OwnershipStart).Hours() / 24)
	}
	if err := s.repo.CreateOwnership(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// TheftInput is one theft report.
type TheftInput struct {
	ReportedDate    time.Time
	ReportingAgency string
	CaseNumber      string
	LocationCity    string
	LocationState   string
	Notes           string
}

// AddTheft files a theft report in reported status and flags the vehicle
// stolen.
func (s *Service) AddTheft(ctx context.Context, vin string, in TheftInput) (*TheftRecord, error) {
	v, err := s.vehicleByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	agency := strings.TrimSpace(in.ReportingAgency)
	if agency == "" {
		return nil, fmt.Errorf("reporting_agency required")
	}
	if in.ReportedDate.IsZero() {
		return nil, fmt.Errorf("reported_date required")
	}

	t := &TheftRecord{
		ID:                 uuid.NewString(),
		VehicleID:          v.ID,
		Status:             TheftReported,
		ReportedDate:       in.ReportedDate,
		ReportingAgency:    agency,
		CaseNumber:         strings.TrimSpace(in.CaseNumber),
		TheftLocationCity:  strings.TrimSpace(in.LocationCity),
		TheftLocationState: strings.ToUpper(strings.TrimSpace(in.LocationState)),
		Notes:              in.Notes,
	}
	if err := s.repo.CreateTheft(ctx, t); err != nil {
		return nil, err
	}

	if err := s.setStolen(ctx, v, true); err != nil {
		s.log.Errorf("stolen flag sync failed for %s: %v", v.VIN, err)
	}
	return t, nil
}

// UpdateTheftStatus moves a theft case to recovered or closed. The vehicle's
// stolen flag clears only once no case remains in reported status.
func (s *Service) UpdateTheftStatus(ctx context.Context, theftID string, status TheftStatus, recoveredDate *time.Time) (*TheftRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	if !ValidTheftStatus(status) {
		return nil, fmt.Errorf("unknown theft status: %s", status)
	}

	t, err := s.repo.FindTheft(ctx, theftID)
	if err != nil {
		return nil, err
	}
	t.Status = status
	if status == TheftRecovered {
		if recoveredDate == nil {
			now := time.Now()
			recoveredDate = &now
		}
		t.RecoveredDate = recoveredDate
	}
	if err := s.repo.UpdateTheft(ctx, t); err != nil {
		return nil, err
	}

	if status == TheftRecovered || status == TheftClosed {
		open, err := s.repo.HasOpenTheft(ctx, t.VehicleID)
		if err != nil {
			return nil, err
		}
		if !open {
			v, err := s.vehicles.Repo().FindByID(ctx, t.VehicleID)
			if err != nil {
				return nil, err
			}
			if err := s.setStolen(ctx, v, false); err != nil {
				s.log.Errorf("stolen flag sync failed for %s: %v", v.VIN, err)
			}
		}
	}
	return t, nil
}

func (s *Service) setStolen(ctx context.Context, v *vehicle.Vehicle, stolen bool) error {
	if v.IsStolen == stolen {
		return nil
	}
	v.IsStolen = stolen
	return s.vehicles.Repo().Upsert(ctx, v)
}

// VehicleHistory bundles every history stream for one vehicle. Used by the
// detail endpoint and the report assembler.
type VehicleHistory struct {
	TitleEvents      []TitleEvent      `json:"title_events"`
	Accidents        []AccidentRecord  `json:"accidents"`
	MileageRecords   []MileageRecord   `json:"mileage_records"`
	OwnershipRecords []OwnershipRecord `json:"ownership_records"`
	TheftRecords     []TheftRecord     `json:"theft_records"`
}

func (s *Service) VehicleHistory(ctx context.Context, vehicleID string) (*VehicleHistory, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	h := &VehicleHistory{}
	var err error
	if h.TitleEvents, err = s.repo.TitleEvents(ctx, vehicleID); err != nil {
		return nil, err
	}
	if h.Accidents, err = s.repo.Accidents(ctx, vehicleID); err != nil {
		return nil, err
	}
	if h.MileageRecords, err = s.repo.MileageRecords(ctx, vehicleID); err != nil {
		return nil, err
	}
	if h.OwnershipRecords, err = s.repo.OwnershipRecords(ctx, vehicleID); err != nil {
		return nil, err
	}
	if h.TheftRecords, err = s.repo.TheftRecords(ctx, vehicleID); err != nil {
		return nil, err
	}
	return h, nil
}
