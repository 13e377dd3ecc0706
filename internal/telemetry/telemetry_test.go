package telemetry

import (
	"context"
	"errors"
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
	if err := db.AutoMigrate(&vehicle.Vehicle{}, &vehicle.Registration{}, &Trace{}); err != nil {
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

func trace(ts time.Time) TraceInput {
	return TraceInput{Timestamp: ts, Latitude: 34.0522, Longitude: -118.2437, Speed: 32.5, DeviceID: "obd-1"}
}

func TestIngestRequiresConsent(t *testing.T) {
	svc, vsvc, v := setup(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, v.VIN, []TraceInput{trace(time.Now())})
	if !errors.Is(err, ErrNoConsent) {
		t.Fatalf("err = %v, want ErrNoConsent", err)
	}
	if _, err := svc.Recent(ctx, v.VIN, 10); !errors.Is(err, ErrNoConsent) {
		t.Fatalf("read err = %v, want ErrNoConsent", err)
	}

	if _, err := vsvc.SetTrackingConsent(ctx, v.VIN, true); err != nil {
		t.Fatalf("consent: %v", err)
	}
	n, err := svc.Ingest(ctx, v.VIN, []TraceInput{trace(time.Now())})
	if err != nil || n != 1 {
		t.Fatalf("ingest after consent: n=%d err=%v", n, err)
	}

	// revoking consent blocks reads again
	if _, err := vsvc.SetTrackingConsent(ctx, v.VIN, false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Recent(ctx, v.VIN, 10); !errors.Is(err, ErrNoConsent) {
		t.Fatalf("read after revoke = %v, want ErrNoConsent", err)
	}
}

func TestIngestValidation(t *testing.T) {
	svc, vsvc, v := setup(t)
	ctx := context.Background()
	if _, err := vsvc.SetTrackingConsent(ctx, v.VIN, true); err != nil {
		t.Fatalf("consent: %v", err)
	}

	if _, err := svc.Ingest(ctx, v.VIN, nil); err == nil {
		t.Fatal("empty batch must error")
	}
	if _, err := svc.Ingest(ctx, v.VIN, []TraceInput{{Latitude: 1, Longitude: 1}}); err == nil {
		t.Fatal("missing timestamp must error")
	}
	bad := trace(time.Now())
	bad.Latitude = 91
	if _, err := svc.Ingest(ctx, v.VIN, []TraceInput{bad}); err == nil {
		t.Fatal("out-of-range latitude must error")
	}
}

func TestRecentOrderAndDefaultLimit(t *testing.T) {
	svc, vsvc, v := setup(t)
	ctx := context.Background()
	if _, err := vsvc.SetTrackingConsent(ctx, v.VIN, true); err != nil {
		t.Fatalf("consent: %v", err)
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	batch := make([]TraceInput, 0, 120)
	for i := 0; i < 120; i++ {
		batch = append(batch, trace(base.Add(time.Duration(i)*time.Minute)))
	}
	if n, err := svc.Ingest(ctx, v.VIN, batch); err != nil || n != 120 {
		t.Fatalf("ingest: n=%d err=%v", n, err)
	}

	traces, err := svc.Recent(ctx, v.VIN, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(traces) != 100 {
		t.Fatalf("default limit returned %d traces, want 100", len(traces))
	}
	if !traces[0].Timestamp.After(traces[1].Timestamp) {
		t.Fatal("traces must be newest first")
	}
}
