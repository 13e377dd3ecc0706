package audit

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
)

func setup(t *testing.T) *Repo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Log{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepo(db)
}

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewLogrusLogger("error", "text", "stdout", "")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestRecorderPersistsAsync(t *testing.T) {
	repo := setup(t)
	rec := NewRecorder(repo, testLogger(t), 16)

	rec.Record(Entry{
		UserID:       "u-1",
		Action:       ActionView,
		ResourceType: "report",
		ResourceID:   "r-1",
		IPAddress:    "10.0.0.9",
		Metadata:     map[string]interface{}{"path": "/api/v1/reports/r-1"},
	})
	rec.Record(Entry{UserID: "u-2", Action: ActionExport, ResourceType: "report"})
	rec.Close()

	logs, total, err := repo.Query(context.Background(), QueryFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 2 || len(logs) != 2 {
		t.Fatalf("persisted %d rows, want 2", total)
	}

	// Record after Close is a no-op, not a panic
	rec.Record(Entry{UserID: "u-3", Action: ActionView, ResourceType: "report"})
}

func TestQueryFilters(t *testing.T) {
	repo := setup(t)
	rec := NewRecorder(repo, testLogger(t), 16)

	rec.Record(Entry{UserID: "u-1", Action: ActionView, ResourceType: "report"})
	rec.Record(Entry{UserID: "u-1", Action: ActionSearch, ResourceType: "vehicle"})
	rec.Record(Entry{UserID: "u-2", Action: ActionView, ResourceType: "telemetry", VehicleID: "v-9"})
	rec.Close()

	ctx := context.Background()

	_, total, err := repo.Query(ctx, QueryFilter{UserID: "u-1"})
	if err != nil || total != 2 {
		t.Fatalf("user filter: total=%d err=%v", total, err)
	}
	logs, total, err := repo.Query(ctx, QueryFilter{Action: ActionView, VehicleID: "v-9"})
	if err != nil || total != 1 || logs[0].UserID != "u-2" {
		t.Fatalf("combined filter: total=%d err=%v", total, err)
	}
	_, total, err = repo.Query(ctx, QueryFilter{Since: time.Now().Add(time.Hour)})
	if err != nil || total != 0 {
		t.Fatalf("since filter: total=%d err=%v", total, err)
	}
}
