package provider

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

func (r *Repo) Upsert(ctx context.Context, p *DataProvider) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(p).Error
}

func (r *Repo) FindByName(ctx context.Context, name string) (*DataProvider, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var p DataProvider
	if err := db.Where("name = ?", name).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) ListActive(ctx context.Context) ([]DataProvider, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []DataProvider
	err := db.Where("is_active = ?", true).Order("name ASC").Find(&out).Error
	return out, err
}

func (r *Repo) List(ctx context.Context) ([]DataProvider, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []DataProvider
	err := db.Order("name ASC").Find(&out).Error
	return out, err
}

func (r *Repo) CreateFeed(ctx context.Context, f *Feed) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(f).Error
}

func (r *Repo) UpdateFeed(ctx context.Context, f *Feed) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(f).Error
}

func (r *Repo) Feeds(ctx context.Context, providerID string, limit int) ([]Feed, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := db.Model(&Feed{})
	if providerID != "" {
		q = q.Where("provider_id = ?", providerID)
	}
	var out []Feed
	err := q.Order("requested_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// FeedsSince counts a provider's requests in the lookback window, for rate
// limit accounting.
func (r *Repo) FeedsSince(ctx context.Context, providerID string, since time.Time) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&Feed{}).
		Where("provider_id = ? AND requested_at >= ?", providerID, since).
		Count(&n).Error
	return n, err
}
