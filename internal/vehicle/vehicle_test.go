package vehicle

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Vehicle{}, &Registration{}, &SearchQuery{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestNormalizeVIN(t *testing.T) {
	vin, err := NormalizeVIN("  1hgcm82633a004352 ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if vin != "1HGCM82633A004352" {
		t.Fatalf("got %q", vin)
	}

	bad := []string{
		"",
		"1HGCM82633A00435",   // 16 chars
		"1HGCM82633A0043522", // 18 chars
		"IHGCM82633A004352",  // contains I
		"OHGCM82633A004352",  // contains O
		"QHGCM82633A004352",  // contains Q
	}
	for _, v := range bad {
		if _, err := NormalizeVIN(v); err == nil {
			t.Errorf("expected error for %q", v)
		}
	}
}

func TestUpsertCreateAndUpdate(t *testing.T) {
	db := testDB(t)
	repo := NewRepo(db)
	svc := NewService(repo, nil)
	ctx := context.Background()

	v, err := svc.Upsert(ctx, UpsertInput{
		VIN:            "1HGCM82633A004352",
		Make:           "Honda",
		Model:          "Accord",
		Year:           2003,
		CurrentMileage: 120000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.CurrentTitleStatus != TitleClean {
		t.Fatalf("default title = %s, want clean", v.CurrentTitleStatus)
	}

	// update: lower mileage must not stick, title brand does
	v2, err := svc.Upsert(ctx, UpsertInput{
		VIN:            "1hgcm82633a004352",
		CurrentMileage: 90000,
		TitleStatus:    TitleSalvage,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if v2.ID != v.ID {
		t.Fatalf("update created a new row")
	}
	if v2.CurrentMileage != 120000 {
		t.Fatalf("mileage rolled back to %d", v2.CurrentMileage)
	}
	if v2.CurrentTitleStatus != TitleSalvage {
		t.Fatalf("title = %s, want salvage", v2.CurrentTitleStatus)
	}
	if v2.Make != "Honda" {
		t.Fatalf("make lost on partial update: %q", v2.Make)
	}
}

func TestUpsertValidation(t *testing.T) {
	db := testDB(t)
	svc := NewService(NewRepo(db), nil)
	ctx := context.Background()

	cases := []UpsertInput{
		{VIN: "short"},
		{VIN: "1HGCM82633A004352", Year: 1850},
		{VIN: "1HGCM82633A004352", CurrentMileage: -5},
		{VIN: "1HGCM82633A004352", TitleStatus: "totaled"},
	}
	for i, in := range cases {
		if _, err := svc.Upsert(ctx, in); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestAddRegistrationRetiresCurrentPlate(t *testing.T) {
	db := testDB(t)
	repo := NewRepo(db)
	svc := NewService(repo, nil)
	ctx := context.Background()

	v, err := svc.Upsert(ctx, UpsertInput{VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Year: 2003})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	issued := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	if _, err := svc.AddRegistration(ctx, v.VIN, AddRegistrationInput{
		PlateNumber: "abc1234", State: "ca", IssuedDate: issued, IsCurrent: true,
	}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := svc.AddRegistration(ctx, v.VIN, AddRegistrationInput{
		PlateNumber: "XYZ9876", State: "NV", IssuedDate: issued.AddDate(2, 0, 0), IsCurrent: true,
	}); err != nil {
		t.Fatalf("second registration: %v", err)
	}

	regs, err := repo.Registrations(ctx, v.ID)
	if err != nil {
		t.Fatalf("registrations: %v", err)
	}
	if len(regs) != 2 {
		t.Fatalf("got %d registrations", len(regs))
	}
	current := 0
	for _, r := range regs {
		if r.IsCurrent {
			current++
			if r.PlateNumber != "XYZ9876" {
				t.Fatalf("current plate = %s", r.PlateNumber)
			}
		}
	}
	if current != 1 {
		t.Fatalf("%d current plates, want 1", current)
	}
}

func TestSearchCacheAndLogging(t *testing.T) {
	db := testDB(t)
	repo := NewRepo(db)
	search := NewSearchService(repo, db, time.Minute, 2*time.Minute)
	svc := NewService(repo, search)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, UpsertInput{VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Year: 2003}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	in := SearchInput{Type: SearchByVIN, Query: "1HGCM", UserID: "u-1", IPAddress: "10.0.0.1"}
	res, err := search.Search(ctx, in)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.CacheHit {
		t.Fatal("first search must miss")
	}
	if res.Total != 1 || len(res.Vehicles) != 1 {
		t.Fatalf("total=%d len=%d", res.Total, len(res.Vehicles))
	}

	res2, err := search.Search(ctx, in)
	if err != nil {
		t.Fatalf("search again: %v", err)
	}
	if !res2.CacheHit {
		t.Fatal("second search must hit the cache")
	}

	rows, err := search.RecentSearches(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("logged %d queries, want 2", len(rows))
	}
	hits := 0
	for _, q := range rows {
		if q.CacheHit {
			hits++
		}
		if q.UserID != "u-1" || q.IPAddress != "10.0.0.1" {
			t.Fatalf("attribution lost: %+v", q)
		}
	}
	if hits != 1 {
		t.Fatalf("%d cache hits logged, want 1", hits)
	}

	// a write flushes the cache
	if _, err := svc.Upsert(ctx, UpsertInput{VIN: "1HGCM82633A004352", Color: "Blue"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	res3, err := search.Search(ctx, in)
	if err != nil {
		t.Fatalf("search after write: %v", err)
	}
	if res3.CacheHit {
		t.Fatal("cache must be invalidated after upsert")
	}
}

func TestSearchByPlate(t *testing.T) {
	db := testDB(t)
	repo := NewRepo(db)
	search := NewSearchService(repo, db, time.Minute, 2*time.Minute)
	svc := NewService(repo, search)
	ctx := context.Background()

	v, err := svc.Upsert(ctx, UpsertInput{VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Year: 2003})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	issued := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.AddRegistration(ctx, v.VIN, AddRegistrationInput{
		PlateNumber: "ABC1234", State: "CA", IssuedDate: issued, IsCurrent: true,
	}); err != nil {
		t.Fatalf("registration: %v", err)
	}

	res, err := search.Search(ctx, SearchInput{Type: SearchByPlate, Query: "ABC1234"})
	if err != nil {
		t.Fatalf("plate search: %v", err)
	}
	if res.Total != 1 || len(res.Vehicles) != 1 || res.Vehicles[0].VIN != v.VIN {
		t.Fatalf("plate search result: total=%d", res.Total)
	}

	if _, err := search.Search(ctx, SearchInput{Type: "bogus", Query: "x"}); err == nil {
		t.Fatal("unknown search type must error")
	}
}
