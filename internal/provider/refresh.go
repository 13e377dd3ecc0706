package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/history"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

// RefreshService pulls fresh data for a vehicle from every active provider
// and folds the responses into the registry and history tables. Each call
// out is logged as a Feed row.
type RefreshService struct {
	repo      *Repo
	vehicles  *vehicle.Service
	histories *history.Service

	decoder *VINDecoderClient
	dmv     *DMVClient
	theft   *TheftClient

	log logger.Logger
}

func NewRefreshService(repo *Repo, vehicles *vehicle.Service, histories *history.Service,
	decoder *VINDecoderClient, dmv *DMVClient, theft *TheftClient, log logger.Logger) *RefreshService {
	return &RefreshService{
		repo:      repo,
		vehicles:  vehicles,
		histories: histories,
		decoder:   decoder,
		dmv:       dmv,
		theft:     theft,
		log:       log,
	}
}

func (s *RefreshService) Repo() *Repo { return s.repo }

// EnsureRegistered seeds the provider registry rows for the configured
// clients. Existing rows keep their settings.
func (s *RefreshService) EnsureRegistered(ctx context.Context) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	seed := []DataProvider{
		{Name: "vin_decoder", Type: TypeVINDecoder, IsActive: s.decoder != nil},
		{Name: "dmv", Type: TypeDMV, IsActive: s.dmv != nil},
		{Name: "ncib", Type: TypeNCIB, IsActive: s.theft != nil},
	}
	for _, p := range seed {
		if _, err := s.repo.FindByName(ctx, p.Name); err == nil {
			continue
		} else if err != gorm.ErrRecordNotFound {
			return err
		}
		p.ID = uuid.NewString()
		p.RateLimitPerHour = 1000
		if err := s.repo.Upsert(ctx, &p); err != nil {
			return err
		}
	}
	return nil
}

// RefreshVehicle enriches one vehicle from all active providers. Individual
// provider failures are recorded on their feed rows and do not abort the
// other providers.
func (s *RefreshService) RefreshVehicle(ctx context.Context, vin string) error {
	if s == nil || s.repo == nil || s.vehicles == nil {
		return fmt.Errorf("service not initialized")
	}
	v, err := s.vehicles.GetByVIN(ctx, vin)
	if err != nil {
		return err
	}

	var firstErr error
	if s.decoder != nil {
		if err := s.runFeed(ctx, "vin_decoder", v, s.applyDecode); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.dmv != nil {
		if err := s.runFeed(ctx, "dmv", v, s.applyDMV); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.theft != nil {
		if err := s.runFeed(ctx, "ncib", v, s.applyTheft); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// feedFn fetches from one provider and applies the result. It returns the
// raw response for the feed log.
type feedFn func(ctx context.Context, v *vehicle.Vehicle) (json.RawMessage, error)

func (s *RefreshService) runFeed(ctx context.Context, providerName string, v *vehicle.Vehicle, fn feedFn) error {
	p, err := s.repo.FindByName(ctx, providerName)
	if err != nil {
		return err
	}
	if !p.IsActive {
		return nil
	}

	reqPayload, _ := json.Marshal(map[string]string{"vin": v.VIN})
	feed := &Feed{
		ID:             uuid.NewString(),
		ProviderID:     p.ID,
		VehicleID:      v.ID,
		Status:         FeedProcessing,
		RequestPayload: reqPayload,
	}
	if err := s.repo.CreateFeed(ctx, feed); err != nil {
		return err
	}

	resp, err := fn(ctx, v)
	now := time.Now()
	feed.CompletedAt = &now
	if err != nil {
		feed.Status = FeedFailed
		feed.ErrorMessage = err.Error()
		if uerr := s.repo.UpdateFeed(ctx, feed); uerr != nil {
			s.log.Errorf("feed %s not persisted: %v", feed.ID, uerr)
		}
		s.log.Warnf("provider %s refresh failed for %s: %v", providerName, v.VIN, err)
		return err
	}
	feed.Status = FeedCompleted
	feed.ResponseData = resp
	return s.repo.UpdateFeed(ctx, feed)
}

func (s *RefreshService) applyDecode(ctx context.Context, v *vehicle.Vehicle) (json.RawMessage, error) {
	res, err := s.decoder.Decode(ctx, v.VIN)
	if err != nil {
		return nil, err
	}
	if _, err := s.vehicles.Upsert(ctx, vehicle.UpsertInput{
		VIN:                v.VIN,
		Make:               res.Make,
		Model:              res.Model,
		Year:               res.Year,
		Trim:               res.Trim,
		BodyStyle:          res.BodyStyle,
		Engine:             res.Engine,
		Transmission:       res.Transmission,
		Drivetrain:         res.Drivetrain,
		FuelType:           res.FuelType,
		Displacement:       res.Displacement,
		Cylinders:          res.Cylinders,
		ManufactureCountry: res.ManufactureCountry,
		ManufacturePlant:   res.ManufacturePlant,
	}); err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (s *RefreshService) applyDMV(ctx context.Context, v *vehicle.Vehicle) (json.RawMessage, error) {
	records, err := s.dmv.TitleHistory(ctx, v.VIN)
	if err != nil {
		return nil, err
	}
	existing, err := s.histories.Repo().TitleEvents(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[titleEventKey(e.EventDate.Format("2006-01-02"), string(e.EventType), e.State)] = true
	}

	for _, rec := range records {
		date, err := time.Parse("2006-01-02", rec.EventDate)
		if err != nil {
			s.log.Warnf("dmv record for %s has bad date %q", v.VIN, rec.EventDate)
			continue
		}
		if seen[titleEventKey(rec.EventDate, rec.EventType, rec.State)] {
			continue
		}
		if _, err := s.histories.AddTitleEvent(ctx, v.VIN, history.TitleEventInput{
			EventType:   history.TitleEventType(rec.EventType),
			EventDate:   date,
			TitleStatus: vehicle.TitleStatus(rec.TitleStatus),
			State:       rec.State,
			TitleNumber: rec.TitleNumber,
			Odometer:    rec.Odometer,
			Source:      "dmv",
		}); err != nil {
			return nil, err
		}
		if rec.Odometer > 0 {
			if _, err := s.histories.AddMileage(ctx, v.VIN, history.MileageInput{
				RecordedDate: date,
				Mileage:      rec.Odometer,
				Source:       history.SourceDMV,
				Verified:     true,
			}); err != nil {
				return nil, err
			}
		}
	}
	return json.Marshal(map[string]interface{}{"records": records})
}

func titleEventKey(date, eventType, state string) string {
	return date + "|" + eventType + "|" + state
}

func (s *RefreshService) applyTheft(ctx context.Context, v *vehicle.Vehicle) (json.RawMessage, error) {
	res, err := s.theft.Lookup(ctx, v.VIN)
	if err != nil {
		return nil, err
	}
	if res.IsStolen && !v.IsStolen {
		date := time.Now()
		if d, err := time.Parse("2006-01-02", res.ReportDate); err == nil {
			date = d
		}
		agency := res.Agency
		if agency == "" {
			agency = "NCIB"
		}
		if _, err := s.histories.AddTheft(ctx, v.VIN, history.TheftInput{
			ReportedDate:    date,
			ReportingAgency: agency,
			CaseNumber:      res.CaseNumber,
			LocationCity:    res.City,
			LocationState:   res.State,
		}); err != nil {
			return nil, err
		}
	}
	return json.Marshal(res)
}

// RefreshTracked walks every consenting vehicle. Used by the periodic job.
func (s *RefreshService) RefreshTracked(ctx context.Context) error {
	if s == nil || s.vehicles == nil {
		return fmt.Errorf("service not initialized")
	}
	const pageSize = 100
	for offset := 0; ; offset += pageSize {
		vehicles, _, err := s.vehicles.Repo().List(ctx, vehicle.ListFilter{Offset: offset, Limit: pageSize})
		if err != nil {
			return err
		}
		if len(vehicles) == 0 {
			return nil
		}
		for i := range vehicles {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.RefreshVehicle(ctx, vehicles[i].VIN); err != nil {
				s.log.Warnf("refresh %s: %v", vehicles[i].VIN, err)
			}
		}
		if len(vehicles) < pageSize {
			return nil
		}
	}
}
