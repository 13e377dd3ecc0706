package crowd

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

func (r *Repo) Create(ctx context.Context, rep *Report) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(rep).Error
}

func (r *Repo) Update(ctx context.Context, rep *Report) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(rep).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Report, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rep Report
	if err := db.Where("id = ?", id).First(&rep).Error; err != nil {
		return nil, err
	}
	return &rep, nil
}

// ListFilter narrows the moderation queue.
type ListFilter struct {
	VehicleID string
	Status    Status
	Type      ReportType
	Offset    int
	Limit     int
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Report, int64, error) {
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

	q := db.Model(&Report{})
	if f.VehicleID != "" {
		q = q.Where("vehicle_id = ?", f.VehicleID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("report_type = ?", f.Type)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reports []Report
	if err := q.Order("created_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&reports).Error; err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// VerifiedForVehicle returns only moderated-through reports, for report
// assembly.
func (r *Repo) VerifiedForVehicle(ctx context.Context, vehicleID string) ([]Report, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var reports []Report
	err := db.Where("vehicle_id = ? AND status = ?", vehicleID, StatusVerified).
		Order("created_at DESC").Find(&reports).Error
	return reports, err
}

func (r *Repo) CountByStatus(ctx context.Context, status Status) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&Report{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
