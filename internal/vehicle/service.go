package vehicle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service wraps the vehicle registry use cases.
type Service struct {
	repo   *Repo
	search *SearchService
}

func NewService(repo *Repo, search *SearchService) *Service {
	return &Service{repo: repo, search: search}
}

func (s *Service) Repo() *Repo { return s.repo }

// UpsertInput carries the writable vehicle fields. Zero values leave the
// stored value untouched on update.
type UpsertInput struct {
	VIN       string
	Make      string
	Model     string
	Year      int
	Trim      string
	BodyStyle string
	Color     string

	Engine       string
	Transmission string
	Drivetrain   string
	FuelType     string
	Displacement float64
	Cylinders    int

	ManufactureCountry string
	ManufacturePlant   string

	CurrentMileage int
	TitleStatus    TitleStatus
}

// Upsert creates or updates a vehicle keyed by VIN.
func (s *Service) Upsert(ctx context.Context, in UpsertInput) (*Vehicle, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	vin, err := NormalizeVIN(in.VIN)
	if err != nil {
		return nil, err
	}
	if in.Year != 0 && (in.Year < 1900 || in.Year > 2100) {
		return nil, fmt.Errorf("year out of range: %d", in.Year)
	}
	if in.CurrentMileage < 0 {
		return nil, fmt.Errorf("mileage must not be negative")
	}
	if in.TitleStatus != "" && !ValidTitleStatus(in.TitleStatus) {
		return nil, fmt.Errorf("unknown title status: %s", in.TitleStatus)
	}

	v, err := s.repo.FindByVIN(ctx, vin)
	if err != nil {
		v = &Vehicle{
			ID:                 uuid.NewString(),
			VIN:                vin,
			CurrentTitleStatus: TitleClean,
			CurrentOwnerCount:  1,
		}
	}

	applyNonZero(v, in)

	if err := s.repo.Upsert(ctx, v); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.Invalidate()
	}
	return v, nil
}

func applyNonZero(v *Vehicle, in UpsertInput) {
	setStr := func(dst *string, val string) {
		if val = strings.TrimSpace(val); val != "" {
			*dst = val
		}
	}
	setStr(&v.Make, in.Make)
	setStr(&v.Model, in.Model)
	setStr(&v.Trim, in.Trim)
	setStr(&v.BodyStyle, in.BodyStyle)
	setStr(&v.Color, in.Color)
	setStr(&v.Engine, in.Engine)
	setStr(&v.Transmission, in.Transmission)
	setStr(&v.Drivetrain, in.Drivetrain)
	setStr(&v.FuelType, in.FuelType)
	setStr(&v.ManufactureCountry, in.ManufactureCountry)
	setStr(&v.ManufacturePlant, in.ManufacturePlant)
	if in.Year != 0 {
		v.Year = in.Year
	}
	if in.Displacement != 0 {
		v.Displacement = in.Displacement
	}
	if in.Cylinders != 0 {
		v.Cylinders = in.Cylinders
	}
	if in.CurrentMileage > v.CurrentMileage {
		v.CurrentMileage = in.CurrentMileage
	}
	if in.TitleStatus != "" {
		v.CurrentTitleStatus = in.TitleStatus
	}
}

// GetByVIN returns the vehicle for a full, valid VIN.
func (s *Service) GetByVIN(ctx context.Context, vin string) (*Vehicle, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	vin, err := NormalizeVIN(vin)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByVIN(ctx, vin)
}

// SetTrackingConsent flips the telemetry consent flag and stamps the
// consent time.
func (s *Service) SetTrackingConsent(ctx context.Context, vin string, consent bool) (*Vehicle, error) {
	v, err := s.GetByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	if v.TrackingConsent != consent {
		v.TrackingConsent = consent
		if consent {
			now := time.Now()
			v.TrackingConsentAt = &now
		} else {
			v.TrackingConsentAt = nil
		}
		if err := s.repo.Upsert(ctx, v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// AddRegistrationInput is one plate record.
type AddRegistrationInput struct {
	PlateNumber string
	State       string
	Country     string
	IssuedDate  time.Time
	ExpiryDate  *time.Time
	IsCurrent   bool
}

// AddRegistration attaches a plate to the vehicle.
func (s *Service) AddRegistration(ctx context.Context, vin string, in AddRegistrationInput) (*Registration, error) {
	v, err := s.GetByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	plate := strings.ToUpper(strings.TrimSpace(in.PlateNumber))
	state := strings.ToUpper(strings.TrimSpace(in.State))
	if plate == "" || state == "" {
		return nil, fmt.Errorf("plate_number/state required")
	}
	country := strings.ToUpper(strings.TrimSpace(in.Country))
	if country == "" {
		country = "US"
	}
	if in.IssuedDate.IsZero() {
		return nil, fmt.Errorf("issued_date required")
	}

	reg := &Registration{
		ID:          uuid.NewString(),
		VehicleID:   v.ID,
		PlateNumber: plate,
		State:       state,
		Country:     country,
		IssuedDate:  in.IssuedDate,
		ExpiryDate:  in.ExpiryDate,
		IsCurrent:   in.IsCurrent,
	}
	if err := s.repo.AddRegistration(ctx, reg); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.Invalidate()
	}
	return reg, nil
}
