package report

import (
	"context"
	"fmt"
	"time"

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

func (r *Repo) ListByUser(ctx context.Context, userID string, offset, limit int) ([]Report, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := db.Model(&Report{}).Where("requested_by_id = ?", userID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reports []Report
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&reports).Error; err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// ClaimNextPending atomically takes the oldest pending report and moves it
// to processing. Returns nil when the queue is empty.
func (r *Repo) ClaimNextPending(ctx context.Context, now time.Time) (*Report, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var claimed *Report
	err := db.Transaction(func(tx *gorm.DB) error {
		var rep Report
		err := tx.Where("status = ?", StatusPending).
			Order("created_at ASC").First(&rep).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if err := ApplyTransition(&rep, StatusProcessing, now); err != nil {
			return err
		}
		rep.Attempts++
		if err := tx.Save(&rep).Error; err != nil {
			return err
		}
		claimed = &rep
		return nil
	})
	return claimed, err
}

func (r *Repo) CreatePurchase(ctx context.Context, p *Purchase) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(p).Error
}

func (r *Repo) FindPurchaseByReport(ctx context.Context, reportID string) (*Purchase, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var p Purchase
	if err := db.Where("report_id = ?", reportID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Counts and sums used by the stats endpoints.
func (r *Repo) CountByStatus(ctx context.Context, status Status) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&Report{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

func (r *Repo) Count(ctx context.Context) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&Report{}).Count(&n).Error
	return n, err
}

func (r *Repo) Revenue(ctx context.Context) (float64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var total float64
	err := db.Model(&Purchase{}).
		Where("payment_status = ?", PaymentCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
