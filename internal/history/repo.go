package history

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

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

func (r *Repo) CreateTitleEvent(ctx context.Context, e *TitleEvent) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(e).Error
}

func (r *Repo) TitleEvents(ctx context.Context, vehicleID string) ([]TitleEvent, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []TitleEvent
	err := db.Where("vehicle_id = ?", vehicleID).Order("event_date DESC").Find(&out).Error
	return out, err
}

func (r *Repo) CreateAccident(ctx context.Context, a *AccidentRecord) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(a).Error
}

func (r *Repo) Accidents(ctx context.Context, vehicleID string) ([]AccidentRecord, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []AccidentRecord
	err := db.Where("vehicle_id = ?", vehicleID).Order("accident_date DESC").Find(&out).Error
	return out, err
}

func (r *Repo) CreateMileage(ctx context.Context, m *MileageRecord) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(m).Error
}

// MileageRecords returns readings in chronological order.
func (r *Repo) MileageRecords(ctx context.Context, vehicleID string) ([]MileageRecord, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []MileageRecord
	err := db.Where("vehicle_id = ?", vehicleID).Order("recorded_date ASC").Find(&out).Error
	return out, err
}

// LatestVerifiedMileage returns the most recent verified reading on or
// before date, or nil when none exists.
func (r *Repo) LatestVerifiedMileage(ctx context.Context, vehicleID string) (*MileageRecord, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var m MileageRecord
	err := db.Where("vehicle_id = ? AND verified = ?", vehicleID, true).
		Order("recorded_date DESC").First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repo) CreateOwnership(ctx context.Context, o *OwnershipRecord) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(o).Error
}

func (r *Repo) OwnershipRecords(ctx context.Context, vehicleID string) ([]OwnershipRecord, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []OwnershipRecord
	err := db.Where("vehicle_id = ?", vehicleID).Order("owner_sequence ASC").Find(&out).Error
	return out, err
}

func (r *Repo) MaxOwnerSequence(ctx context.Context, vehicleID string) (int, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var max int
	err := db.Model(&OwnershipRecord{}).
		Where("vehicle_id = ?", vehicleID).
		Select("COALESCE(MAX(owner_sequence), 0)").
		Scan(&max).Error
	return max, err
}

func (r *Repo) CreateTheft(ctx context.Context, t *TheftRecord) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(t).Error
}

func (r *Repo) UpdateTheft(ctx context.Context, t *TheftRecord) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(t).Error
}

func (r *Repo) FindTheft(ctx context.Context, id string) (*TheftRecord, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var t TheftRecord
	if err := db.Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repo) TheftRecords(ctx context.Context, vehicleID string) ([]TheftRecord, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []TheftRecord
	err := db.Where("vehicle_id = ?", vehicleID).Order("reported_date DESC").Find(&out).Error
	return out, err
}

// HasOpenTheft reports whether any theft case for the vehicle is still in
// reported status.
func (r *Repo) HasOpenTheft(ctx context.Context, vehicleID string) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&TheftRecord{}).
		Where("vehicle_id = ? AND status = ?", vehicleID, TheftReported).
		Count(&n).Error
	return n > 0, err
}

// Counts used by the stats endpoints.
func (r *Repo) CountAccidents(ctx context.Context) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&AccidentRecord{}).Count(&n).Error
	return n, err
}

func (r *Repo) CountAccidentsBySeverity(ctx context.Context) ([]vehicle.GroupCount, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []vehicle.GroupCount
	err := db.Model(&AccidentRecord{}).
		Select("severity AS grp, COUNT(*) AS cnt").
		Group("severity").
		Scan(&out).Error
	return out, err
}

func (r *Repo) CountRollbackSuspected(ctx context.Context) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&MileageRecord{}).Where("is_rollback_suspected = ?", true).Count(&n).Error
	return n, err
}
