package stats

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/crowd"
	"github.com/AutoSentinel/AutoSentinel/internal/history"
	"github.com/AutoSentinel/AutoSentinel/internal/report"
	"github.com/AutoSentinel/AutoSentinel/internal/telemetry"
	"github.com/AutoSentinel/AutoSentinel/internal/user"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

func TestAggregates(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&user.User{},
		&vehicle.Vehicle{}, &vehicle.Registration{}, &vehicle.SearchQuery{},
		&history.TitleEvent{}, &history.AccidentRecord{}, &history.MileageRecord{},
		&history.OwnershipRecord{}, &history.TheftRecord{},
		&crowd.Report{}, &telemetry.Trace{},
		&report.Report{}, &report.Purchase{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.NewLogrusLogger("error", "text", "stdout", "")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	ctx := context.Background()

	vrepo := vehicle.NewRepo(db)
	search := vehicle.NewSearchService(vrepo, db, time.Minute, 2*time.Minute)
	vsvc := vehicle.NewService(vrepo, search)
	hsvc := history.NewService(history.NewRepo(db), vsvc, log)
	csvc := crowd.NewService(crowd.NewRepo(db), vsvc, log)

	v, err := vsvc.Upsert(ctx, vehicle.UpsertInput{VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Year: 2003})
	if err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	if _, err := vsvc.Upsert(ctx, vehicle.UpsertInput{VIN: "5YJ3E1EA7KF317000", Make: "Tesla", Model: "Model 3", Year: 2019}); err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	if _, err := hsvc.AddAccident(ctx, v.VIN, history.AccidentInput{
		AccidentDate: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		Severity:     history.SeveritySevere,
		Source:       history.SourcePolice,
	}); err != nil {
		t.Fatalf("seed accident: %v", err)
	}
	if _, err := hsvc.AddTheft(ctx, v.VIN, history.TheftInput{
		ReportedDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), ReportingAgency: "LAPD",
	}); err != nil {
		t.Fatalf("seed theft: %v", err)
	}
	if _, err := csvc.Submit(ctx, v.VIN, "u-1", crowd.SubmitInput{Type: crowd.TypeSighting, Description: "seen"}); err != nil {
		t.Fatalf("seed crowd: %v", err)
	}
	if _, err := search.Search(ctx, vehicle.SearchInput{Type: vehicle.SearchByVIN, Query: "1HGCM"}); err != nil {
		t.Fatalf("seed search: %v", err)
	}

	svc := NewService(vrepo, search, history.NewRepo(db), crowd.NewRepo(db),
		report.NewRepo(db), telemetry.NewRepo(db), user.NewRepo(db))

	home, err := svc.Home(ctx)
	if err != nil {
		t.Fatalf("home: %v", err)
	}
	if home.Vehicles != 2 || home.StolenVehicles != 1 {
		t.Fatalf("home: %+v", home)
	}

	st, err := svc.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if len(st.VehiclesByMake) != 2 || len(st.AccidentsBySeverity) != 1 {
		t.Fatalf("statistics groups: %+v", st)
	}
	if len(st.SearchesByType) != 1 || st.SearchesByType[0].Key != "vin" {
		t.Fatalf("searches by type: %+v", st.SearchesByType)
	}

	d, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.PendingCrowdReview != 1 || d.Users != 0 || d.Revenue != 0 {
		t.Fatalf("dashboard: %+v", d)
	}
}
