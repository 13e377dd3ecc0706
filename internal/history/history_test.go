package history

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

func setup(t *testing.T) (*Service, *vehicle.Service, *vehicle.Vehicle) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&vehicle.Vehicle{}, &vehicle.Registration{},
		&TitleEvent{}, &AccidentRecord{}, &MileageRecord{}, &OwnershipRecord{}, &TheftRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log, err := logger.NewLogrusLogger("error", "text", "stdout", "")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	vsvc := vehicle.NewService(vehicle.NewRepo(db), nil)
	v, err := vsvc.Upsert(context.Background(), vehicle.UpsertInput{
		VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Year: 2003,
	})
	if err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return NewService(NewRepo(db), vsvc, log), vsvc, v
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRollbackDetection(t *testing.T) {
	svc, vsvc, v := setup(t)
	ctx := context.Background()

	first, err := svc.AddMileage(ctx, v.VIN, MileageInput{
		RecordedDate: date(2020, 1, 1), Mileage: 80000, Source: SourceDMV, Verified: true,
	})
	if err != nil {
		t.Fatalf("first reading: %v", err)
	}
	if first.IsRollbackSuspected {
		t.Fatal("first reading must not be suspected")
	}

	// lower than the verified 80k reading
	rb, err := svc.AddMileage(ctx, v.VIN, MileageInput{
		RecordedDate: date(2021, 1, 1), Mileage: 50000, Source: SourceDealer, Verified: true,
	})
	if err != nil {
		t.Fatalf("rollback reading: %v", err)
	}
	if !rb.IsRollbackSuspected {
		t.Fatal("lower reading must be flagged rollback-suspected")
	}

	// higher reading advances the vehicle's current mileage
	if _, err := svc.AddMileage(ctx, v.VIN, MileageInput{
		RecordedDate: date(2022, 1, 1), Mileage: 95000, Source: SourceInspection, Verified: true,
	}); err != nil {
		t.Fatalf("third reading: %v", err)
	}
	got, err := vsvc.GetByVIN(ctx, v.VIN)
	if err != nil {
		t.Fatalf("reload vehicle: %v", err)
	}
	if got.CurrentMileage != 95000 {
		t.Fatalf("vehicle mileage = %d, want 95000", got.CurrentMileage)
	}

	recs, err := svc.Repo().MileageRecords(ctx, v.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records", len(recs))
	}
	// chronological order
	if !recs[0].RecordedDate.Before(recs[1].RecordedDate) {
		t.Fatal("mileage records must be ordered ascending by date")
	}
}

func TestUnverifiedReadingIgnoredForRollback(t *testing.T) {
	svc, _, v := setup(t)
	ctx := context.Background()

	if _, err := svc.AddMileage(ctx, v.VIN, MileageInput{
		RecordedDate: date(2020, 1, 1), Mileage: 90000, Source: SourceCrowdsourced, Verified: false,
	}); err != nil {
		t.Fatalf("unverified reading: %v", err)
	}

	// lower than the unverified 90k, but there is no verified baseline
	m, err := svc.AddMileage(ctx, v.VIN, MileageInput{
		RecordedDate: date(2020, 6, 1), Mileage: 40000, Source: SourceDMV, Verified: true,
	})
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if m.IsRollbackSuspected {
		t.Fatal("unverified readings must not set the rollback baseline")
	}
}

func TestTheftFlagLifecycle(t *testing.T) {
	svc, vsvc, v := setup(t)
	ctx := context.Background()

	t1, err := svc.AddTheft(ctx, v.VIN, TheftInput{
		ReportedDate: date(2023, 3, 1), ReportingAgency: "LAPD", CaseNumber: "C-100",
	})
	if err != nil {
		t.Fatalf("first theft: %v", err)
	}
	t2, err := svc.AddTheft(ctx, v.VIN, TheftInput{
		ReportedDate: date(2023, 4, 1), ReportingAgency: "CHP",
	})
	if err != nil {
		t.Fatalf("second theft: %v", err)
	}

	got, _ := vsvc.GetByVIN(ctx, v.VIN)
	if !got.IsStolen {
		t.Fatal("vehicle must be flagged stolen after a report")
	}

	// closing one of two open cases keeps the flag
	if _, err := svc.UpdateTheftStatus(ctx, t1.ID, TheftClosed, nil); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, _ = vsvc.GetByVIN(ctx, v.VIN)
	if !got.IsStolen {
		t.Fatal("flag must persist while a case is still open")
	}

	// recovering the last open case clears it
	rec, err := svc.UpdateTheftStatus(ctx, t2.ID, TheftRecovered, nil)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if rec.RecoveredDate == nil {
		t.Fatal("recovered date must be stamped")
	}
	got, _ = vsvc.GetByVIN(ctx, v.VIN)
	if got.IsStolen {
		t.Fatal("flag must clear once no case is open")
	}
}

func TestTitleEventUpdatesBrand(t *testing.T) {
	svc, vsvc, v := setup(t)
	ctx := context.Background()

	if _, err := svc.AddTitleEvent(ctx, v.VIN, TitleEventInput{
		EventType:   TitleEventBrandChange,
		EventDate:   date(2022, 7, 1),
		TitleStatus: vehicle.TitleSalvage,
		State:       "tx",
		Source:      "dmv",
	}); err != nil {
		t.Fatalf("title event: %v", err)
	}

	got, _ := vsvc.GetByVIN(ctx, v.VIN)
	if got.CurrentTitleStatus != vehicle.TitleSalvage {
		t.Fatalf("brand = %s, want salvage", got.CurrentTitleStatus)
	}

	events, err := svc.Repo().TitleEvents(ctx, v.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].State != "TX" {
		t.Fatalf("unexpected events: %+v", events)
	}

	if _, err := svc.AddTitleEvent(ctx, v.VIN, TitleEventInput{
		EventType: "bogus", EventDate: date(2022, 7, 1), TitleStatus: vehicle.TitleClean, State: "TX",
	}); err == nil {
		t.Fatal("unknown event type must error")
	}
}

func TestOwnershipSequence(t *testing.T) {
	svc, _, v := setup(t)
	ctx := context.Background()

	end := date(2019, 5, 1)
	o1, err := svc.AddOwnership(ctx, v.VIN, OwnershipInput{
		OwnerType: OwnerIndividual, OwnershipStart: date(2015, 5, 1), OwnershipEnd: &end, State: "ca",
	})
	if err != nil {
		t.Fatalf("first owner: %v", err)
	}
	if o1.OwnerSequence != 1 {
		t.Fatalf("sequence = %d, want 1", o1.OwnerSequence)
	}
	if o1.OwnershipDurationDays == 0 {
		t.Fatal("duration must be derived from start/end")
	}

	o2, err := svc.AddOwnership(ctx, v.VIN, OwnershipInput{
		OwnerType: OwnerFleet, OwnershipStart: end, IsCurrent: true,
	})
	if err != nil {
		t.Fatalf("second owner: %v", err)
	}
	if o2.OwnerSequence != 2 {
		t.Fatalf("sequence = %d, want 2", o2.OwnerSequence)
	}
}

func TestVehicleHistoryAggregate(t *testing.T) {
	svc, _, v := setup(t)
	ctx := context.Background()

	if _, err := svc.AddAccident(ctx, v.VIN, AccidentInput{
		AccidentDate: date(2021, 2, 14), Severity: SeverityModerate, Source: SourceInsurance,
		EstimatedDamageCost: 4200.50, AirbagDeployed: true,
	}); err != nil {
		t.Fatalf("accident: %v", err)
	}
	if _, err := svc.AddMileage(ctx, v.VIN, MileageInput{
		RecordedDate: date(2021, 3, 1), Mileage: 60000, Source: SourceService, Verified: true,
	}); err != nil {
		t.Fatalf("mileage: %v", err)
	}

	h, err := svc.VehicleHistory(ctx, v.ID)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(h.Accidents) != 1 || len(h.MileageRecords) != 1 {
		t.Fatalf("aggregate incomplete: %+v", h)
	}
	if len(h.TitleEvents) != 0 || len(h.TheftRecords) != 0 || len(h.OwnershipRecords) != 0 {
		t.Fatal("empty streams must be empty slices")
	}
}
