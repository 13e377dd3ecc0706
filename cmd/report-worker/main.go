package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AutoSentinel/AutoSentinel/internal/common/config"
	"github.com/AutoSentinel/AutoSentinel/internal/common/db"
	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/crowd"
	"github.com/AutoSentinel/AutoSentinel/internal/history"
	"github.com/AutoSentinel/AutoSentinel/internal/jobs"
	"github.com/AutoSentinel/AutoSentinel/internal/notify"
	"github.com/AutoSentinel/AutoSentinel/internal/provider"
	"github.com/AutoSentinel/AutoSentinel/internal/report"
	"github.com/AutoSentinel/AutoSentinel/internal/storage"
	"github.com/AutoSentinel/AutoSentinel/internal/telemetry"
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

	store, err := storage.NewFileStore(cfg.Storage.Root)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	notifier, err := notify.New(cfg.Notify.URL, log)
	if err != nil {
		log.Fatalf("failed to init notifier: %v", err)
	}

	vrepo := vehicle.NewRepo(gormDB)
	vsvc := vehicle.NewService(vrepo, nil)
	hsvc := history.NewService(history.NewRepo(gormDB), vsvc, log)
	csvc := crowd.NewService(crowd.NewRepo(gormDB), vsvc, log)
	tsvc := telemetry.NewService(telemetry.NewRepo(gormDB), vsvc, log)
	rsvc := report.NewService(report.NewRepo(gormDB), vsvc,
		report.NewAssembler(vsvc, hsvc, csvc, tsvc), store, notifier, log)

	refresh := provider.NewRefreshService(provider.NewRepo(gormDB), vsvc, hsvc,
		provider.NewVINDecoderClient(cfg.Providers.VINDecoder, cfg.Providers.MaxRetries, log),
		provider.NewDMVClient(cfg.Providers.DMV, cfg.Providers.MaxRetries, log),
		provider.NewTheftClient(cfg.Providers.Theft, cfg.Providers.MaxRetries, log),
		log,
	)

	ctx := context.Background()

	worker := jobs.NewReportWorker(rsvc,
		cfg.Worker.Concurrency,
		time.Duration(cfg.Worker.PollIntervalSeconds)*time.Second,
		log,
	)
	worker.Start(ctx)

	refreshJob := jobs.NewRefreshJob(refresh,
		time.Duration(cfg.Providers.RefreshIntervalHours)*time.Hour,
		log,
	)
	refreshJob.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Infof("received signal %v, shutting down...", sig)

	refreshJob.Stop()
	worker.Stop()
}
