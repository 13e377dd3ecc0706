package report

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/crowd"
	"github.com/AutoSentinel/AutoSentinel/internal/history"
	"github.com/AutoSentinel/AutoSentinel/internal/storage"
	"github.com/AutoSentinel/AutoSentinel/internal/telemetry"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusFailed, StatusPending, true},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusPending, StatusCompleted, false},
		{StatusFailed, StatusCompleted, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestApplyTransitionTiming(t *testing.T) {
	now := time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC)
	rep := &Report{Status: StatusPending}

	if err := ApplyTransition(rep, StatusProcessing, now); err != nil {
		t.Fatalf("to processing: %v", err)
	}
	if rep.GenerationStartedAt == nil {
		t.Fatal("start time must be stamped")
	}
	if err := ApplyTransition(rep, StatusFailed, now.Add(time.Minute)); err != nil {
		t.Fatalf("to failed: %v", err)
	}
	if rep.GenerationCompletedAt == nil {
		t.Fatal("completion time must be stamped on failure too")
	}

	// requeue clears the previous attempt
	rep.ErrorMessage = "boom"
	if err := ApplyTransition(rep, StatusPending, now.Add(2*time.Minute)); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if rep.GenerationStartedAt != nil || rep.GenerationCompletedAt != nil || rep.ErrorMessage != "" {
		t.Fatalf("requeue must reset attempt fields: %+v", rep)
	}
}

type recordingNotifier struct {
	titles []string
}

func (n *recordingNotifier) Send(title, _ string) error {
	n.titles = append(n.titles, title)
	return nil
}

type env struct {
	svc      *Service
	vehicles *vehicle.Service
	history  *history.Service
	notifier *recordingNotifier
	store    storage.Store
	vin      string
}

func setup(t *testing.T) *env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&vehicle.Vehicle{}, &vehicle.Registration{},
		&history.TitleEvent{}, &history.AccidentRecord{}, &history.MileageRecord{},
		&history.OwnershipRecord{}, &history.TheftRecord{},
		&crowd.Report{}, &telemetry.Trace{},
		&Report{}, &Purchase{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.NewLogrusLogger("error", "text", "stdout", "")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	vsvc := vehicle.NewService(vehicle.NewRepo(db), nil)
	hsvc := history.NewService(history.NewRepo(db), vsvc, log)
	csvc := crowd.NewService(crowd.NewRepo(db), vsvc, log)
	tsvc := telemetry.NewService(telemetry.NewRepo(db), vsvc, log)
	asm := NewAssembler(vsvc, hsvc, csvc, tsvc)
	notifier := &recordingNotifier{}
	svc := NewService(NewRepo(db), vsvc, asm, store, notifier, log)

	ctx := context.Background()
	v, err := vsvc.Upsert(ctx, vehicle.UpsertInput{
		VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Year: 2003, CurrentMileage: 88000,
	})
	if err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	if _, err := hsvc.AddAccident(ctx, v.VIN, history.AccidentInput{
		AccidentDate: time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC),
		Severity:     history.SeverityMinor,
		Source:       history.SourceInsurance,
	}); err != nil {
		t.Fatalf("seed accident: %v", err)
	}

	return &env{svc: svc, vehicles: vsvc, history: hsvc, notifier: notifier, store: store, vin: v.VIN}
}

func TestRequestAndGenerate(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	rep, err := e.svc.Request(ctx, e.vin, "buyer-1", RequestInput{IncludeOwnerHistory: true})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if rep.Status != StatusPending || rep.Price != DefaultPrice {
		t.Fatalf("queued report: %+v", rep)
	}

	worked, err := e.svc.GenerateNext(ctx)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !worked {
		t.Fatal("queue must not be empty")
	}

	got, err := e.svc.Get(ctx, rep.ID, "buyer-1", false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (err=%s)", got.Status, got.ErrorMessage)
	}
	if len(got.JSONData) == 0 || got.PDFKey == "" || got.Attempts != 1 {
		t.Fatalf("payload missing: %+v", got)
	}

	pdfBytes, err := e.store.Get(ctx, got.PDFKey)
	if err != nil {
		t.Fatalf("pdf from store: %v", err)
	}
	if !bytes.HasPrefix(pdfBytes, []byte("%PDF")) {
		t.Fatal("stored file is not a PDF")
	}
	if len(e.notifier.titles) != 1 {
		t.Fatalf("got %d notifications, want 1", len(e.notifier.titles))
	}

	// idle queue
	worked, err = e.svc.GenerateNext(ctx)
	if err != nil || worked {
		t.Fatalf("empty queue: worked=%v err=%v", worked, err)
	}
}

func TestAccessControl(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	rep, err := e.svc.Request(ctx, e.vin, "buyer-1", RequestInput{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := e.svc.Get(ctx, rep.ID, "someone-else", false); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger access = %v, want ErrForbidden", err)
	}
	if _, err := e.svc.Get(ctx, rep.ID, "auditor-1", true); err != nil {
		t.Fatalf("admin access: %v", err)
	}
	if _, err := e.svc.Get(ctx, rep.ID, "buyer-1", false); err != nil {
		t.Fatalf("owner access: %v", err)
	}
}

func TestPurchaseOncePerReport(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	rep, err := e.svc.Request(ctx, e.vin, "buyer-1", RequestInput{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	p, err := e.svc.Purchase(ctx, rep.ID, "buyer-1", "")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if p.PaymentStatus != PaymentCompleted || p.Amount != DefaultPrice {
		t.Fatalf("purchase: %+v", p)
	}
	if p.TransactionID == "" || p.PaymentMethod != "credit_card" {
		t.Fatalf("simulated payment fields: %+v", p)
	}

	got, _ := e.svc.Get(ctx, rep.ID, "buyer-1", false)
	if !got.IsPaid {
		t.Fatal("report must be marked paid")
	}

	if _, err := e.svc.Purchase(ctx, rep.ID, "buyer-1", ""); !errors.Is(err, ErrAlreadyPurchased) {
		t.Fatalf("second purchase = %v, want ErrAlreadyPurchased", err)
	}

	revenue, err := e.svc.Repo().Revenue(ctx)
	if err != nil || revenue != DefaultPrice {
		t.Fatalf("revenue = %f err=%v", revenue, err)
	}
}

func TestFailedReportRetry(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	// a report pointing at a vehicle that no longer exists fails assembly
	rep := &Report{
		ID:            uuid.NewString(),
		VehicleID:     uuid.NewString(),
		RequestedByID: "buyer-1",
		Status:        StatusPending,
		Price:         DefaultPrice,
	}
	if err := e.svc.Repo().Create(ctx, rep); err != nil {
		t.Fatalf("create: %v", err)
	}

	worked, err := e.svc.GenerateNext(ctx)
	if !worked || err == nil {
		t.Fatalf("generation must fail: worked=%v err=%v", worked, err)
	}

	got, _ := e.svc.Get(ctx, rep.ID, "buyer-1", false)
	if got.Status != StatusFailed || got.ErrorMessage == "" {
		t.Fatalf("failure not recorded: %+v", got)
	}

	requeued, err := e.svc.Retry(ctx, rep.ID, "buyer-1", false)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if requeued.Status != StatusPending || requeued.ErrorMessage != "" {
		t.Fatalf("requeue: %+v", requeued)
	}
}

func TestTelemetrySectionConsentGated(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	// request telemetry without consent: section omitted, report still completes
	rep, err := e.svc.Request(ctx, e.vin, "buyer-1", RequestInput{IncludeTelemetry: true})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := e.svc.GenerateNext(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	got, _ := e.svc.Get(ctx, rep.ID, "buyer-1", false)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s (err=%s)", got.Status, got.ErrorMessage)
	}
	if bytes.Contains(got.JSONData, []byte(`"telemetry"`)) {
		t.Fatal("telemetry section must be omitted without consent")
	}
}
