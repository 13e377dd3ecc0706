package crowd

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

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusVerified, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusDuplicate, true},
		{StatusPending, StatusPending, true},
		{StatusVerified, StatusRejected, false},
		{StatusRejected, StatusPending, false},
		{StatusDuplicate, StatusVerified, false},
		{Status("bogus"), StatusVerified, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestApplyTransitionStampsModerator(t *testing.T) {
	now := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	rep := &Report{Status: StatusPending}

	if err := ApplyTransition(rep, StatusVerified, "mod-1", now); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if rep.Status != StatusVerified || rep.VerifiedByID != "mod-1" {
		t.Fatalf("moderation fields not set: %+v", rep)
	}
	if rep.VerifiedAt == nil || !rep.VerifiedAt.Equal(now) {
		t.Fatal("verified_at must be stamped")
	}

	// terminal state is frozen
	if err := ApplyTransition(rep, StatusRejected, "mod-2", now); err == nil {
		t.Fatal("verified -> rejected must fail")
	}
	if err := ApplyTransition(nil, StatusVerified, "mod-1", now); err == nil {
		t.Fatal("nil report must fail")
	}
}

func setup(t *testing.T) (*Service, *vehicle.Vehicle) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&vehicle.Vehicle{}, &vehicle.Registration{}, &Report{}); err != nil {
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
	return NewService(NewRepo(db), vsvc, log), v
}

func TestSubmitAndModerate(t *testing.T) {
	svc, v := setup(t)
	ctx := context.Background()

	rep, err := svc.Submit(ctx, v.VIN, "user-1", SubmitInput{
		Type:        TypeSighting,
		Description: "Seen at a dealer lot in Reno",
		LocationState: "nv",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rep.Status != StatusPending {
		t.Fatalf("status = %s, want pending", rep.Status)
	}
	if rep.LocationState != "NV" {
		t.Fatalf("state not normalized: %q", rep.LocationState)
	}
	if rep.ReportDate.IsZero() {
		t.Fatal("report date must default to now")
	}

	got, err := svc.Moderate(ctx, rep.ID, "mod-1", StatusVerified)
	if err != nil {
		t.Fatalf("moderate: %v", err)
	}
	if got.Status != StatusVerified || got.VerifiedByID != "mod-1" || got.VerifiedAt == nil {
		t.Fatalf("moderation not recorded: %+v", got)
	}

	// second moderation of a terminal report fails
	if _, err := svc.Moderate(ctx, rep.ID, "mod-2", StatusRejected); err == nil {
		t.Fatal("re-moderation must fail")
	}

	verified, err := svc.Repo().VerifiedForVehicle(ctx, v.ID)
	if err != nil {
		t.Fatalf("verified list: %v", err)
	}
	if len(verified) != 1 {
		t.Fatalf("got %d verified reports", len(verified))
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, v := setup(t)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, v.VIN, "user-1", SubmitInput{Type: "bogus", Description: "x"}); err == nil {
		t.Fatal("unknown type must error")
	}
	if _, err := svc.Submit(ctx, v.VIN, "user-1", SubmitInput{Type: TypeOther, Description: "   "}); err == nil {
		t.Fatal("blank description must error")
	}
	if _, err := svc.Submit(ctx, "1HGCM82633A999999", "user-1", SubmitInput{Type: TypeOther, Description: "x"}); err == nil {
		t.Fatal("unknown vehicle must error")
	}
}

func TestListFilterByStatus(t *testing.T) {
	svc, v := setup(t)
	ctx := context.Background()

	r1, _ := svc.Submit(ctx, v.VIN, "u1", SubmitInput{Type: TypeSighting, Description: "a"})
	if _, err := svc.Submit(ctx, v.VIN, "u2", SubmitInput{Type: TypeTheft, Description: "b"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Moderate(ctx, r1.ID, "mod", StatusDuplicate); err != nil {
		t.Fatalf("moderate: %v", err)
	}

	pending, total, err := svc.ListForVIN(ctx, v.VIN, ListFilter{Status: StatusPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(pending) != 1 || pending[0].ReportType != TypeTheft {
		t.Fatalf("pending filter: total=%d", total)
	}

	all, total, err := svc.ListForVIN(ctx, v.VIN, ListFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Fatalf("all: total=%d", total)
	}
}
