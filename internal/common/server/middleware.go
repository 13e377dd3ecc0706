package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/AutoSentinel/AutoSentinel/internal/common/auth"
	"github.com/AutoSentinel/AutoSentinel/internal/common/config"
	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/common/middleware"
	"github.com/labstack/echo/v4"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const authContextKey = "auth_info"

// SetAuthInfo stores the validated identity on the request context.
func SetAuthInfo(c echo.Context, ai auth.AuthInfo) {
	c.Set(authContextKey, ai)
}

// AuthInfoFrom returns the identity placed by the JWT middleware.
func AuthInfoFrom(c echo.Context) (auth.AuthInfo, bool) {
	v := c.Get(authContextKey)
	if v == nil {
		return auth.AuthInfo{}, false
	}
	ai, ok := v.(auth.AuthInfo)
	return ai, ok
}

// Recovery keeps a handler panic from killing the process and logs the stack.
func Recovery(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if log != nil {
						log.Errorf("panic in http handler path=%s err=%v stack=%s",
							c.Path(), r, string(debug.Stack()))
					}
					err = echo.NewHTTPError(http.StatusInternalServerError, "internal error")
				}
			}()
			return next(c)
		}
	}
}

// AccessLog records method, path, status and latency for every request.
func AccessLog(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			cost := time.Since(start)

			if log != nil {
				fields := map[string]interface{}{
					"method": c.Request().Method,
					"path":   c.Request().URL.Path,
					"status": c.Response().Status,
					"ip":     c.RealIP(),
					"cost":   cost.String(),
				}
				if err != nil {
					fields["error"] = err.Error()
					log.WithFields(fields).Warn("http request failed")
				} else {
					log.WithFields(fields).Info("http request ok")
				}
			}

			return err
		}
	}
}

// Tracing starts a server span per request. The parent span context, if any,
// is extracted from the inbound HTTP headers.
func Tracing(serviceName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tracer := opentracing.GlobalTracer()
			req := c.Request()

			var parent opentracing.SpanContext
			if sc, err := tracer.Extract(opentracing.HTTPHeaders,
				opentracing.HTTPHeadersCarrier(req.Header)); err == nil {
				parent = sc
			}

			operation := fmt.Sprintf("HTTP %s %s", req.Method, c.Path())

			var span opentracing.Span
			if parent != nil {
				span = tracer.StartSpan(operation, ext.RPCServerOption(parent))
			} else {
				span = tracer.StartSpan(operation)
			}
			defer span.Finish()

			ext.SpanKindRPCServer.Set(span)
			ext.HTTPMethod.Set(span, req.Method)
			ext.HTTPUrl.Set(span, req.URL.Path)
			if serviceName != "" {
				span.SetTag("service", serviceName)
			}

			c.SetRequest(req.WithContext(opentracing.ContextWithSpan(req.Context(), span)))
			err := next(c)
			ext.HTTPStatusCode.Set(span, uint16(c.Response().Status))
			if err != nil {
				ext.Error.Set(span, true)
			}
			return err
		}
	}
}

// JWTAuth validates `Authorization: Bearer <token>` and stores the identity
// on the context. Paths under cfg.PublicPaths pass through untouched; a
// token present on a public path is still parsed so handlers can attribute
// the request (search logging, audit).
func JWTAuth(cfg config.AuthConfig, log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Enabled {
				return next(c)
			}

			public := isPublicPath(cfg.PublicPaths, c.Request().URL.Path)

			raw := strings.TrimSpace(c.Request().Header.Get("Authorization"))
			if raw == "" {
				if public {
					return next(c)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization")
			}
			if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
				raw = strings.TrimSpace(raw[len("bearer "):])
			}

			if strings.TrimSpace(cfg.JWTSecret) == "" {
				if log != nil {
					log.Warn("auth enabled but jwt_secret is empty")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "auth not configured")
			}

			ai, err := auth.ParseAccessToken(cfg, raw)
			if err != nil {
				if public {
					return next(c)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			SetAuthInfo(c, ai)
			return next(c)
		}
	}
}

// RequireRoles gates a route group: the identity must carry at least one of
// the given roles.
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ai, ok := AuthInfoFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing auth context")
			}
			if len(roles) == 0 || ai.HasAnyRole(roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "permission denied")
		}
	}
}

// RateLimit rejects requests with 429 once the limiter runs dry.
func RateLimit(limiter middleware.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter != nil && !limiter.Allow(c.Request().Context()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autosentinel_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autosentinel_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Metrics observes request counts and latency for Prometheus.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			httpRequestsTotal.WithLabelValues(method, route, fmt.Sprintf("%d", c.Response().Status)).Inc()
			httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func isPublicPath(public []string, path string) bool {
	if path == "" || len(public) == 0 {
		return false
	}
	for _, p := range public {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") || strings.HasPrefix(path, p+"?") {
			return true
		}
	}
	return false
}
