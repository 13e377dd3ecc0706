package provider

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AutoSentinel/AutoSentinel/internal/common/config"
	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/history"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

const testVIN = "1HGCM82633A004352"

func setup(t *testing.T) (*RefreshService, *vehicle.Service, *history.Service) {
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
		&DataProvider{}, &Feed{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.NewLogrusLogger("error", "text", "stdout", "")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	vsvc := vehicle.NewService(vehicle.NewRepo(db), nil)
	hsvc := history.NewService(history.NewRepo(db), vsvc, log)

	ep := func(base string) config.ProviderEndpoint {
		return config.ProviderEndpoint{BaseURL: base, TimeoutSeconds: 2, RateLimitPerHour: 100}
	}
	decoder := NewVINDecoderClient(ep("https://decoder.test"), 1, log)
	dmv := NewDMVClient(ep("https://dmv.test"), 1, log)
	theft := NewTheftClient(ep("https://ncib.test"), 1, log)

	httpmock.ActivateNonDefault(decoder.httpClient)
	httpmock.ActivateNonDefault(dmv.httpClient)
	httpmock.ActivateNonDefault(theft.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	svc := NewRefreshService(NewRepo(db), vsvc, hsvc, decoder, dmv, theft, log)
	ctx := context.Background()
	if err := svc.EnsureRegistered(ctx); err != nil {
		t.Fatalf("register providers: %v", err)
	}
	if _, err := vsvc.Upsert(ctx, vehicle.UpsertInput{VIN: testVIN}); err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return svc, vsvc, hsvc
}

func mockDecoder(t *testing.T) {
	t.Helper()
	httpmock.RegisterResponder("GET", "https://decoder.test/api/v1/decode/"+testVIN,
		httpmock.NewJsonResponderOrPanic(200, map[string]interface{}{
			"vin": testVIN, "make": "Honda", "model": "Accord", "year": 2003,
			"engine": "2.4L I4", "fuel_type": "gasoline", "cylinders": 4,
		}))
}

func mockDMV(t *testing.T) {
	t.Helper()
	httpmock.RegisterResponder("GET", "https://dmv.test/api/v1/titles/"+testVIN,
		httpmock.NewJsonResponderOrPanic(200, map[string]interface{}{
			"records": []map[string]interface{}{
				{"event_type": "initial", "event_date": "2003-09-01", "title_status": "clean", "state": "CA", "odometer": 12},
				{"event_type": "transfer", "event_date": "2010-04-15", "title_status": "clean", "state": "NV", "odometer": 61000},
			},
		}))
}

func mockTheft(t *testing.T, stolen bool) {
	t.Helper()
	httpmock.RegisterResponder("GET", "https://ncib.test/api/v1/theft/"+testVIN,
		httpmock.NewJsonResponderOrPanic(200, map[string]interface{}{
			"vin": testVIN, "is_stolen": stolen, "report_date": "2023-11-02",
			"agency": "LAPD", "case_number": "C-42", "state": "CA",
		}))
}

func TestRefreshVehicleAppliesAllFeeds(t *testing.T) {
	svc, vsvc, hsvc := setup(t)
	ctx := context.Background()
	mockDecoder(t)
	mockDMV(t)
	mockTheft(t, true)

	if err := svc.RefreshVehicle(ctx, testVIN); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	v, err := vsvc.GetByVIN(ctx, testVIN)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if v.Make != "Honda" || v.Year != 2003 || v.Engine != "2.4L I4" {
		t.Fatalf("decode not applied: %+v", v)
	}
	if !v.IsStolen {
		t.Fatal("theft lookup must flag the vehicle")
	}
	if v.CurrentMileage != 61000 {
		t.Fatalf("mileage = %d, want 61000", v.CurrentMileage)
	}

	events, err := hsvc.Repo().TitleEvents(ctx, v.ID)
	if err != nil || len(events) != 2 {
		t.Fatalf("title events = %d err=%v", len(events), err)
	}

	feeds, err := svc.Repo().Feeds(ctx, "", 50)
	if err != nil {
		t.Fatalf("feeds: %v", err)
	}
	if len(feeds) != 3 {
		t.Fatalf("got %d feed rows, want 3", len(feeds))
	}
	for _, f := range feeds {
		if f.Status != FeedCompleted || f.CompletedAt == nil || len(f.ResponseData) == 0 {
			t.Fatalf("feed not completed: %+v", f)
		}
	}
}

func TestRefreshIdempotentTitleEvents(t *testing.T) {
	svc, vsvc, hsvc := setup(t)
	ctx := context.Background()
	mockDecoder(t)
	mockDMV(t)
	mockTheft(t, false)

	if err := svc.RefreshVehicle(ctx, testVIN); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if err := svc.RefreshVehicle(ctx, testVIN); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	v, _ := vsvc.GetByVIN(ctx, testVIN)
	events, err := hsvc.Repo().TitleEvents(ctx, v.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("title events duplicated: %d", len(events))
	}
	if v.IsStolen {
		t.Fatal("clean theft lookup must not flag the vehicle")
	}
}

func TestProviderFailureRecordedOnFeed(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	mockDecoder(t)
	mockTheft(t, false)
	httpmock.RegisterResponder("GET", "https://dmv.test/api/v1/titles/"+testVIN,
		httpmock.NewStringResponder(403, "forbidden"))

	err := svc.RefreshVehicle(ctx, testVIN)
	if err == nil {
		t.Fatal("dmv failure must surface")
	}

	feeds, ferr := svc.Repo().Feeds(ctx, "", 50)
	if ferr != nil {
		t.Fatalf("feeds: %v", ferr)
	}
	failed := 0
	for _, f := range feeds {
		if f.Status == FeedFailed {
			failed++
			if f.ErrorMessage == "" {
				t.Fatal("failed feed must record the error")
			}
		}
	}
	if failed != 1 {
		t.Fatalf("%d failed feeds, want 1", failed)
	}
}

func TestClientCachesResponses(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	mockDecoder(t)

	if _, err := svc.decoder.Decode(ctx, testVIN); err != nil {
		t.Fatalf("first decode: %v", err)
	}
	if _, err := svc.decoder.Decode(ctx, testVIN); err != nil {
		t.Fatalf("second decode: %v", err)
	}
	if n := httpmock.GetTotalCallCount(); n != 1 {
		t.Fatalf("decoder hit upstream %d times, want 1", n)
	}
}

func TestTransientErrorsRetried(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	calls := 0
	httpmock.RegisterResponder("GET", "https://decoder.test/api/v1/decode/"+testVIN,
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(500, "upstream down"), nil
			}
			return httpmock.NewJsonResponse(200, map[string]interface{}{
				"vin": testVIN, "make": "Honda", "model": "Accord", "year": 2003,
			})
		})

	res, err := svc.decoder.Decode(ctx, testVIN)
	if err != nil {
		t.Fatalf("decode with retry: %v", err)
	}
	if res.Make != "Honda" || calls != 2 {
		t.Fatalf("retry path: calls=%d res=%+v", calls, res)
	}
}
