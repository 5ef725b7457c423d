package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/examprep/practice-api/internal/config"
	"github.com/examprep/practice-api/internal/database"
	mw "github.com/examprep/practice-api/internal/middleware"
	inats "github.com/examprep/practice-api/internal/nats"
	iredis "github.com/examprep/practice-api/internal/redis"
)

const readinessTimeout = 3 * time.Second

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Free trial
	FreeTrialStatus        http.HandlerFunc
	RecordFreeTrialUsage   http.HandlerFunc
	GetFreeTrialPolicy     http.HandlerFunc
	ReplaceFreeTrialPolicy http.HandlerFunc
	ListFreeTrialPolicies  http.HandlerFunc

	// Retakes
	GetRetakeLimit   http.HandlerFunc
	SetRetakeLimit   http.HandlerFunc
	ClearRetakeLimit http.HandlerFunc
	ListRetakeLimits http.HandlerFunc
	Retake           http.HandlerFunc

	AuthMiddleware  func(http.Handler) http.Handler
	AdminMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORS config.CORSConfig
	// RateLimiter guards /api/v1 when set.
	RateLimiter func(http.Handler) http.Handler
}

// NewRouter builds the HTTP surface. Nil dependencies are reported as
// "not configured" by the readiness probe.
func NewRouter(pool *pgxpool.Pool, rdb redis.Cmdable, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORS)))

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		var (
			mu     sync.Mutex
			status = http.StatusOK
			health = map[string]string{
				"status":   "healthy",
				"database": "not configured",
				"redis":    "not configured",
				"nats":     "not configured",
			}
		)
		report := func(component string, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				health[component] = "healthy"
				return
			}
			health[component] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var g errgroup.Group
		if pool != nil {
			g.Go(func() error {
				report("database", database.HealthCheck(ctx, pool))
				return nil
			})
		}
		if rdb != nil {
			g.Go(func() error {
				report("redis", iredis.HealthCheck(ctx, rdb))
				return nil
			})
		}
		g.Wait()

		// NATS is reported but never fails readiness.
		if natsClient != nil {
			health["nats"] = "healthy"
			if !natsClient.Healthy() {
				health["nats"] = "unhealthy"
			}
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter)
		}
		r.Use(h.AuthMiddleware)

		r.Get("/free-trial-status", h.FreeTrialStatus)
		r.Post("/free-trial-usage", h.RecordFreeTrialUsage)
		r.Get("/retake-limit", h.GetRetakeLimit)
		r.Post("/retake", h.Retake)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(h.AdminMiddleware)

			r.Post("/retake-limit", h.SetRetakeLimit)
			r.Delete("/retake-limit", h.ClearRetakeLimit)
			r.Get("/retake-limits", h.ListRetakeLimits)

			r.Get("/free-trial-policy", h.GetFreeTrialPolicy)
			r.Put("/free-trial-policy", h.ReplaceFreeTrialPolicy)
			r.Get("/free-trial-policies", h.ListFreeTrialPolicies)
		})
	})

	return r
}
