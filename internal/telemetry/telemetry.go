package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

// ErrNoConsent is returned when a vehicle has not opted into tracking.
var ErrNoConsent = errors.New("vehicle has not consented to tracking")

// Trace is one GPS/telemetry data point.
type Trace struct {
	ID        string `gorm:"primaryKey;size:36"`
	VehicleID string `gorm:"index:idx_trace_vehicle_ts;size:36;not null"`

	Timestamp time.Time `gorm:"index:idx_trace_vehicle_ts;index;not null"`

	Latitude  float64 `gorm:"type:decimal(9,6);not null"`
	Longitude float64 `gorm:"type:decimal(9,6);not null"`
	Accuracy  float64

	Speed    float64
	Heading  float64
	Altitude float64
	Odometer int

	DeviceID string `gorm:"size:100"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Trace) TableName() string { return "telemetry_traces" }

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) CreateBatch(ctx context.Context, traces []Trace) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if len(traces) == 0 {
		return nil
	}
	return db.CreateInBatches(traces, 500).Error
}

// Recent returns the newest traces first.
func (r *Repo) Recent(ctx context.Context, vehicleID string, limit int) ([]Trace, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []Trace
	err := db.Where("vehicle_id = ?", vehicleID).
		Order("timestamp DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *Repo) Count(ctx context.Context) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&Trace{}).Count(&n).Error
	return n, err
}

// TraceInput is one incoming data point.
type TraceInput struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Altitude  float64   `json:"altitude"`
	Odometer  int       `json:"odometer"`
	DeviceID  string    `json:"device_id"`
}

// Service gates all telemetry access on the vehicle's tracking consent.
type Service struct {
	repo     *Repo
	vehicles *vehicle.Service
	log      logger.Logger
}

func NewService(repo *Repo, vehicles *vehicle.Service, log logger.Logger) *Service {
	return &Service{repo: repo, vehicles: vehicles, log: log}
}

func (s *Service) Repo() *Repo { return s.repo }

func (s *Service) consentedVehicle(ctx context.Context, vin string) (*vehicle.Vehicle, error) {
	if s == nil || s.repo == nil || s.vehicles == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	v, err := s.vehicles.GetByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	if !v.TrackingConsent {
		return nil, ErrNoConsent
	}
	return v, nil
}

// Ingest stores a batch of traces for a consenting vehicle.
func (s *Service) Ingest(ctx context.Context, vin string, inputs []TraceInput) (int, error) {
	v, err := s.consentedVehicle(ctx, vin)
	if err != nil {
		return 0, err
	}
	if len(inputs) == 0 {
		return 0, fmt.Errorf("no traces in batch")
	}

	traces := make([]Trace, 0, len(inputs))
	for _, in := range inputs {
		if in.Timestamp.IsZero() {
			return 0, fmt.Errorf("trace timestamp required")
		}
		if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
			return 0, fmt.Errorf("coordinates out of range: %f, %f", in.Latitude, in.Longitude)
		}
		traces = append(traces, Trace{
			ID:        uuid.NewString(),
			VehicleID: v.ID,
			Timestamp: in.Timestamp,
			Latitude:  in.Latitude,
			Longitude: in.Longitude,
			Accuracy:  in.Accuracy,
			Speed:     in.Speed,
			Heading:   in.Heading,
			Altitude:  in.Altitude,
			Odometer:  in.Odometer,
			DeviceID:  in.DeviceID,
		})
	}
	if err := s.repo.CreateBatch(ctx, traces); err != nil {
		return 0, err
	}
	s.log.WithFields(map[string]interface{}{
		"vin":   v.VIN,
		"count": len(traces),
	}).Debug("telemetry batch stored")
	return len(traces), nil
}

// Recent returns the newest traces, consent-gated like Ingest.
func (s *Service) Recent(ctx context.Context, vin string, limit int) ([]Trace, error) {
	v, err := s.consentedVehicle(ctx, vin)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.repo.Recent(ctx, v.ID, limit)
}
