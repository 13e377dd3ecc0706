package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/AutoSentinel/AutoSentinel/internal/audit"
	"github.com/AutoSentinel/AutoSentinel/internal/common/config"
	"github.com/AutoSentinel/AutoSentinel/internal/common/db"
	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/common/server"
	"github.com/AutoSentinel/AutoSentinel/internal/common/tracing"
	"github.com/AutoSentinel/AutoSentinel/internal/crowd"
	"github.com/AutoSentinel/AutoSentinel/internal/history"
	"github.com/AutoSentinel/AutoSentinel/internal/notify"
	"github.com/AutoSentinel/AutoSentinel/internal/provider"
	"github.com/AutoSentinel/AutoSentinel/internal/report"
	"github.com/AutoSentinel/AutoSentinel/internal/stats"
	"github.com/AutoSentinel/AutoSentinel/internal/storage"
	"github.com/AutoSentinel/AutoSentinel/internal/telemetry"
	"github.com/AutoSentinel/AutoSentinel/internal/user"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

var (
	configPath = flag.String("config", "configs/autosentinel.json", "config file path")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Backend, cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := gormDB.AutoMigrate(
		&user.User{},
		&vehicle.Vehicle{}, &vehicle.Registration{}, &vehicle.SearchQuery{},
		&history.TitleEvent{}, &history.AccidentRecord{}, &history.MileageRecord{},
		&history.OwnershipRecord{}, &history.TheftRecord{},
		&crowd.Report{}, &telemetry.Trace{},
		&report.Report{}, &report.Purchase{},
		&provider.DataProvider{}, &provider.Feed{},
		&audit.Log{},
	); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	store, err := storage.NewFileStore(cfg.Storage.Root)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	notifier, err := notify.New(cfg.Notify.URL, log)
	if err != nil {
		log.Fatalf("failed to init notifier: %v", err)
	}

	vrepo := vehicle.NewRepo(gormDB)
	search := vehicle.NewSearchService(vrepo, gormDB,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second,
		time.Duration(cfg.Cache.PurgeSeconds)*time.Second,
	)
	vsvc := vehicle.NewService(vrepo, search)

	hrepo := history.NewRepo(gormDB)
	hsvc := history.NewService(hrepo, vsvc, log)

	crepo := crowd.NewRepo(gormDB)
	csvc := crowd.NewService(crepo, vsvc, log)

	trepo := telemetry.NewRepo(gormDB)
	tsvc := telemetry.NewService(trepo, vsvc, log)

	urepo := user.NewRepo(gormDB)
	usvc := user.NewService(urepo, cfg.Auth)

	rrepo := report.NewRepo(gormDB)
	rsvc := report.NewService(rrepo, vsvc,
		report.NewAssembler(vsvc, hsvc, csvc, tsvc), store, notifier, log)

	prepo := provider.NewRepo(gormDB)
	refresh := provider.NewRefreshService(prepo, vsvc, hsvc,
		provider.NewVINDecoderClient(cfg.Providers.VINDecoder, cfg.Providers.MaxRetries, log),
		provider.NewDMVClient(cfg.Providers.DMV, cfg.Providers.MaxRetries, log),
		provider.NewTheftClient(cfg.Providers.Theft, cfg.Providers.MaxRetries, log),
		log,
	)
	if err := refresh.EnsureRegistered(context.Background()); err != nil {
		log.Warnf("failed to register data providers: %v", err)
	}

	ssvc := stats.NewService(vrepo, search, hrepo, crepo, rrepo, trepo, urepo)

	arepo := audit.NewRepo(gormDB)
	recorder := audit.NewRecorder(arepo, log, 1024)
	defer recorder.Close()

	if err := server.RunHTTPServer(cfg, log, func(e *echo.Echo) error {
		api := e.Group("/api/v1")
		user.NewHTTPHandler(usvc).Register(api, user.AdminRoles...)
		vehicle.NewHTTPHandler(vsvc, search).Register(api)
		history.NewHTTPHandler(hsvc).Register(api)
		crowd.NewHTTPHandler(csvc).Register(api)
		stats.NewHTTPHandler(ssvc).Register(api)
		provider.NewHTTPHandler(refresh).Register(api)

		// Restricted resources get an audit trail per request.
		report.NewHTTPHandler(rsvc).Register(e.Group("/api/v1", audit.Middleware(recorder, "report")))
		telemetry.NewHTTPHandler(tsvc).Register(e.Group("/api/v1", audit.Middleware(recorder, "telemetry")))
		audit.NewHTTPHandler(arepo).Register(e.Group("/api/v1", audit.Middleware(recorder, "audit")))
		return nil
	}); err != nil {
		log.Fatalf("autosentinel-server exited with error: %v", err)
	}
}
