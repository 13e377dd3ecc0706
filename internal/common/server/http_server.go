package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AutoSentinel/AutoSentinel/internal/common/config"
	"github.com/AutoSentinel/AutoSentinel/internal/common/discovery"
	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/common/middleware"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterFunc mounts the application routes onto the echo engine.
type RegisterFunc func(e *echo.Echo) error

type RunHTTPOptions struct {
	ShutdownTimeout time.Duration
	EnableMetrics   bool
}

func defaultRunHTTPOptions() RunHTTPOptions {
	return RunHTTPOptions{
		ShutdownTimeout: 5 * time.Second,
		EnableMetrics:   true,
	}
}

// RunHTTPServer is the shared HTTP service template:
// - echo engine with the standard middleware chain (recovery, tracing,
//   metrics, access log, rate limit, JWT auth)
// - /healthz and /metrics endpoints
// - registration with Consul (HTTP check)
// - graceful shutdown on SIGINT/SIGTERM
func RunHTTPServer(cfg *config.Config, log logger.Logger, register RegisterFunc, opts ...func(*RunHTTPOptions)) error {
	if cfg == nil {
		return fmt.Errorf("cfg is nil")
	}
	if log == nil {
		return fmt.Errorf("log is nil")
	}

	o := defaultRunHTTPOptions()
	for _, apply := range opts {
		if apply != nil {
			apply(&o)
		}
	}

	// Consul is optional; a missing agent must not block startup.
	consulClient, err := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port)
	if err != nil {
		log.Warnf("failed to connect to Consul: %v", err)
		consulClient = nil
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	var limiter middleware.RateLimiter
	if cfg.Server.RateLimitRPS > 0 {
		size := cfg.Server.RateLimitSize
		if size <= 0 {
			size = cfg.Server.RateLimitRPS
		}
		limiter = middleware.NewTokenBucket(int64(size), int64(cfg.Server.RateLimitRPS))
	}

	e.Use(
		Recovery(log),
		Tracing(cfg.Server.Name),
		Metrics(),
		AccessLog(log),
		RateLimit(limiter),
		JWTAuth(cfg.Auth, log),
	)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if o.EnableMetrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	if register != nil {
		if err := register(e); err != nil {
			return fmt.Errorf("failed to register http routes: %w", err)
		}
	}

	// Register with Consul; deregister only if registration succeeded.
	if consulClient != nil {
		serviceID := fmt.Sprintf("%s-%s", cfg.Server.Name, uuid.New().String())
		registry := discovery.NewServiceRegistry(
			consulClient,
			serviceID,
			cfg.Server.Name,
			cfg.Server.Host,
			cfg.Server.HTTPPort,
			[]string{"http"},
		)
		if err := registry.Register(); err != nil {
			log.Warnf("failed to register service to Consul: %v", err)
		} else {
			log.Infof("Service registered to Consul: %s", serviceID)
			defer func() {
				if err := registry.Deregister(); err != nil {
					log.Warnf("failed to deregister service from Consul: %v", err)
				}
			}()
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	log.Infof("%s starting on %s", cfg.Server.Name, addr)

	serveErr := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("received signal %v, shutting down...", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http serve failed: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Warnf("http shutdown timeout, forcing close: %v", err)
		return e.Close()
	}
	log.Info("http server stopped gracefully")
	return nil
}

// WithShutdownTimeout adjusts the graceful shutdown wait.
func WithShutdownTimeout(d time.Duration) func(*RunHTTPOptions) {
	return func(o *RunHTTPOptions) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}

// WithMetrics toggles the /metrics endpoint.
func WithMetrics(enable bool) func(*RunHTTPOptions) {
	return func(o *RunHTTPOptions) {
		o.EnableMetrics = enable
	}
}
