package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/provider"
	"github.com/AutoSentinel/AutoSentinel/internal/report"
)

// ReportWorker polls the pending-report queue with a small pool of
// goroutines and runs the generation pipeline for each claimed report.
type ReportWorker struct {
	reports      *report.Service
	concurrency  int
	pollInterval time.Duration
	log          logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReportWorker(reports *report.Service, concurrency int, pollInterval time.Duration, log logger.Logger) *ReportWorker {
	if concurrency <= 0 {
		concurrency = 2
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &ReportWorker{
		reports:      reports,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		log:          log,
	}
}

// Start launches the pool. Workers drain the queue back to back and fall
// back to polling when it is empty.
func (w *ReportWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.log.Infof("report worker starting: %d workers, poll every %s", w.concurrency, w.pollInterval)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.run(ctx, id)
		}(i)
	}
}

func (w *ReportWorker) run(ctx context.Context, id int) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		worked, err := w.reports.GenerateNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Errorf("worker %d: %v", id, err)
		}
		if worked {
			// queue may have more; skip the wait
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the workers and waits for in-flight generations.
func (w *ReportWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info("report worker stopped")
}

// RefreshJob re-pulls provider data for the fleet on a fixed interval.
type RefreshJob struct {
	refresh  *provider.RefreshService
	interval time.Duration
	log      logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRefreshJob(refresh *provider.RefreshService, interval time.Duration, log logger.Logger) *RefreshJob {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RefreshJob{refresh: refresh, interval: interval, log: log}
}

func (j *RefreshJob) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.log.Infof("provider refresh job starting: every %s", j.interval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := j.refresh.RefreshTracked(ctx); err != nil && ctx.Err() == nil {
					j.log.Errorf("provider refresh pass failed: %v", err)
				}
				j.log.Infof("provider refresh pass done in %s", time.Since(start))
			}
		}
	}()
}

func (j *RefreshJob) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
	j.log.Info("provider refresh job stopped")
}
