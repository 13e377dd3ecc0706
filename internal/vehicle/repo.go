package vehicle

import (
	"context"
	"fmt"

	"gorm.io/gorm"
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

func (r *Repo) Upsert(ctx context.Context, v *Vehicle) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(v).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := db.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repo) FindByVIN(ctx context.Context, vin string) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := db.Where("vin = ?", vin).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ListFilter narrows the vehicle listing.
type ListFilter struct {
	Make        string
	Year        int
	TitleStatus TitleStatus
	StolenOnly  bool
	Offset      int
	Limit       int
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Vehicle, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := db.Model(&Vehicle{})
	if f.Make != "" {
		q = q.Where("make = ?", f.Make)
	}
	if f.Year > 0 {
		q = q.Where("year = ?", f.Year)
	}
	if f.TitleStatus != "" {
		q = q.Where("current_title_status = ?", f.TitleStatus)
	}
	if f.StolenOnly {
		q = q.Where("is_stolen = ?", true)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var vehicles []Vehicle
	if err := q.Order("created_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&vehicles).Error; err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

// SearchByVIN matches a VIN fragment.
func (r *Repo) SearchByVIN(ctx context.Context, fragment string, offset, limit int) ([]Vehicle, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	q := db.Model(&Vehicle{}).Where("vin LIKE ?", "%"+fragment+"%")
	return pageVehicles(q, offset, limit)
}

// SearchByPlate resolves plates to vehicles through the registrations table.
func (r *Repo) SearchByPlate(ctx context.Context, fragment string, offset, limit int) ([]Vehicle, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	q := db.Model(&Vehicle{}).
		Joins("JOIN registrations ON registrations.vehicle_id = vehicles.id").
		Where("registrations.plate_number LIKE ?", "%"+fragment+"%").
		Distinct("vehicles.*")
	return pageVehicles(q, offset, limit)
}

// SearchByMakeModel matches make or model.
func (r *Repo) SearchByMakeModel(ctx context.Context, fragment string, offset, limit int) ([]Vehicle, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	pat := "%" + fragment + "%"
	q := db.Model(&Vehicle{}).Where("make LIKE ? OR model LIKE ?", pat, pat)
	return pageVehicles(q, offset, limit)
}

func pageVehicles(q *gorm.DB, offset, limit int) ([]Vehicle, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var vehicles []Vehicle
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&vehicles).Error; err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

// AddRegistration inserts a plate record; a new current plate retires the
// previous current one.
func (r *Repo) AddRegistration(ctx context.Context, reg *Registration) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if reg.IsCurrent {
			if err := tx.Model(&Registration{}).
				Where("vehicle_id = ? AND is_current = ?", reg.VehicleID, true).
				Update("is_current", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(reg).Error
	})
}

func (r *Repo) Registrations(ctx context.Context, vehicleID string) ([]Registration, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var regs []Registration
	if err := db.Where("vehicle_id = ?", vehicleID).Order("issued_date DESC").Find(&regs).Error; err != nil {
		return nil, err
	}
	return regs, nil
}

// Counts used by the stats endpoints.
func (r *Repo) Count(ctx context.Context) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var total int64
	err := db.Model(&Vehicle{}).Count(&total).Error
	return total, err
}

func (r *Repo) CountStolen(ctx context.Context) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var total int64
	err := db.Model(&Vehicle{}).Where("is_stolen = ?", true).Count(&total).Error
	return total, err
}

func (r *Repo) CountTracked(ctx context.Context) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var total int64
	err := db.Model(&Vehicle{}).Where("tracking_consent = ?", true).Count(&total).Error
	return total, err
}

// GroupCount is one row of a grouped aggregate.
type GroupCount struct {
	Key   string `gorm:"column:grp"`
	Count int64  `gorm:"column:cnt"`
}

func (r *Repo) CountByMake(ctx context.Context, limit int) ([]GroupCount, error) {
	return r.groupCount(ctx, "make", limit)
}

func (r *Repo) CountByYear(ctx context.Context, limit int) ([]GroupCount, error) {
	return r.groupCount(ctx, "year", limit)
}

func (r *Repo) CountByTitleStatus(ctx context.Context) ([]GroupCount, error) {
	return r.groupCount(ctx, "current_title_status", 0)
}

func (r *Repo) groupCount(ctx context.Context, column string, limit int) ([]GroupCount, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	q := db.Model(&Vehicle{}).
		Select(column + " AS grp, COUNT(*) AS cnt").
		Group(column).
		Order("cnt DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []GroupCount
	if err := q.Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
