package vehicle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	gocache "github.com/patrickmn/go-cache"
)

// SearchType selects the lookup strategy.
type SearchType string

const (
	SearchByVIN       SearchType = "vin"
	SearchByPlate     SearchType = "plate"
	SearchByMakeModel SearchType = "make_model"
)

// SearchQuery records every search for analytics and cache tuning.
type SearchQuery struct {
	ID     string `gorm:"primaryKey;size:36"`
	UserID string `gorm:"index;size:36"` // empty for anonymous searches

	SearchType SearchType `gorm:"type:varchar(20);not null"`
	QueryText  string     `gorm:"index;size:255;not null"`

	VehicleFoundID string `gorm:"size:36"` // first hit, if any
	ResultsCount   int    `gorm:"not null;default:0"`

	ResponseTimeMS int
	CacheHit       bool `gorm:"not null;default:false"`

	IPAddress string `gorm:"size:45"`

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

// SearchInput is one search request.
type SearchInput struct {
	Type   SearchType
	Query  string
	Offset int
	Limit  int

	// attribution, recorded on the SearchQuery row
	UserID    string
	IPAddress string
}

// SearchResult is the page returned to the caller.
type SearchResult struct {
	Vehicles []Vehicle
	Total    int64
	CacheHit bool
}

// SearchService is the cache-aside layer in front of the vehicle repo.
// Result pages are cached per (type, query, page); every request is logged
// to the search_queries table, including misses.
type SearchService struct {
	repo  *Repo
	db    *gorm.DB
	cache *gocache.Cache
	ttl   time.Duration
}

func NewSearchService(repo *Repo, db *gorm.DB, ttl, purge time.Duration) *SearchService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if purge <= 0 {
		purge = 2 * ttl
	}
	return &SearchService{
		repo:  repo,
		db:    db,
		cache: gocache.New(ttl, purge),
		ttl:   ttl,
	}
}

func (s *SearchService) Search(ctx context.Context, in SearchInput) (*SearchResult, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, fmt.Errorf("query required")
	}
	if in.Limit <= 0 || in.Limit > 200 {
		in.Limit = 20
	}
	if in.Offset < 0 {
		in.Offset = 0
	}

	start := time.Now()
	key := cacheKey(in.Type, query, in.Offset, in.Limit)

	if cached, ok := s.cache.Get(key); ok {
		res := cached.(*SearchResult)
		out := &SearchResult{Vehicles: res.Vehicles, Total: res.Total, CacheHit: true}
		s.logQuery(ctx, in, query, out, time.Since(start))
		return out, nil
	}

	var (
		vehicles []Vehicle
		total    int64
		err      error
	)
	switch in.Type {
	case SearchByPlate:
		vehicles, total, err = s.repo.SearchByPlate(ctx, query, in.Offset, in.Limit)
	case SearchByMakeModel:
		vehicles, total, err = s.repo.SearchByMakeModel(ctx, query, in.Offset, in.Limit)
	case SearchByVIN, "":
		vehicles, total, err = s.repo.SearchByVIN(ctx, strings.ToUpper(query), in.Offset, in.Limit)
	default:
		return nil, fmt.Errorf("unknown search type: %s", in.Type)
	}
	if err != nil {
		return nil, err
	}

	res := &SearchResult{Vehicles: vehicles, Total: total}
	s.cache.Set(key, res, s.ttl)
	s.logQuery(ctx, in, query, res, time.Since(start))
	return res, nil
}

// Invalidate drops all cached pages. Called after writes that change
// search results (vehicle upsert, registration change).
func (s *SearchService) Invalidate() {
	if s != nil && s.cache != nil {
		s.cache.Flush()
	}
}

func (s *SearchService) logQuery(ctx context.Context, in SearchInput, query string, res *SearchResult, cost time.Duration) {
	if s.db == nil {
		return
	}
	st := in.Type
	if st == "" {
		st = SearchByVIN
	}
	row := &SearchQuery{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		SearchType:     st,
		QueryText:      query,
		ResultsCount:   int(res.Total),
		ResponseTimeMS: int(cost.Milliseconds()),
		CacheHit:       res.CacheHit,
		IPAddress:      in.IPAddress,
	}
	if len(res.Vehicles) > 0 {
		row.VehicleFoundID = res.Vehicles[0].ID
	}
	// analytics row; a failed insert must not fail the search
	_ = s.db.WithContext(ctx).Create(row).Error
}

// RecentSearches returns the latest logged queries.
func (s *SearchService) RecentSearches(ctx context.Context, limit int) ([]SearchQuery, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var rows []SearchQuery
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountByType groups logged searches by type.
func (s *SearchService) CountByType(ctx context.Context) ([]GroupCount, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	var out []GroupCount
	err := s.db.WithContext(ctx).Model(&SearchQuery{}).
		Select("search_type AS grp, COUNT(*) AS cnt").
		Group("search_type").
		Scan(&out).Error
	return out, err
}

// Count returns the total number of logged searches, optionally per user.
func (s *SearchService) Count(ctx context.Context, userID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("service not initialized")
	}
	q := s.db.WithContext(ctx).Model(&SearchQuery{})
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

func cacheKey(t SearchType, query string, offset, limit int) string {
	return fmt.Sprintf("search:%s:%s:%d:%d", t, strings.ToLower(query), offset, limit)
}
