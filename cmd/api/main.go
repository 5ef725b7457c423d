package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/examprep/practice-api/internal/api"
	"github.com/examprep/practice-api/internal/auth"
	"github.com/examprep/practice-api/internal/clock"
	"github.com/examprep/practice-api/internal/config"
	"github.com/examprep/practice-api/internal/database"
	"github.com/examprep/practice-api/internal/freetrial"
	mw "github.com/examprep/practice-api/internal/middleware"
	inats "github.com/examprep/practice-api/internal/nats"
	iredis "github.com/examprep/practice-api/internal/redis"
	"github.com/examprep/practice-api/internal/retake"
	"github.com/examprep/practice-api/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	if cfg.DB.AutoMigrate {
		if err := database.RunMigrations(cfg.DB.DSN()); err != nil {
			slog.Error("running migrations", "error", err)
			os.Exit(1)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional). A nil publisher drops events.
	var natsClient *inats.Client
	var events *inats.Publisher
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		events = natsClient.Publisher()
	}

	// Auth
	verifier := auth.NewVerifier(cfg.Auth.TokenSecret, cfg.Auth.Issuer, cfg.Auth.AdminRole)

	// Free trial
	freeTrialSvc := freetrial.NewService(
		freetrial.NewRepository(pool),
		freetrial.NewPolicyCache(redisClient, cfg.FreeTrial.PolicyCacheTTL),
		clock.System,
		cfg.FreeTrial.Location(),
		events,
	)
	freeTrialHandler := freetrial.NewHandler(freeTrialSvc)

	// Retakes
	retakeSvc := retake.NewService(
		retake.NewRepository(pool),
		retake.ParseCountSource(cfg.Retake.CountSource),
		clock.System,
		events,
	)
	retakeHandler := retake.NewHandler(retakeSvc)

	routerCfg := api.RouterConfig{CORS: cfg.CORS}
	if cfg.RateLimit.MaxRequests > 0 {
		limiter := mw.NewRateLimiter(redisClient, "api", cfg.RateLimit.MaxRequests, cfg.RateLimit.WindowSec)
		routerCfg.RateLimiter = limiter.Middleware
	}

	// Router
	router := api.NewRouter(pool, redisClient, natsClient, routerCfg, api.HandlerSet{
		FreeTrialStatus:        freeTrialHandler.Status,
		RecordFreeTrialUsage:   freeTrialHandler.RecordUsage,
		GetFreeTrialPolicy:     freeTrialHandler.GetPolicy,
		ReplaceFreeTrialPolicy: freeTrialHandler.ReplacePolicy,
		ListFreeTrialPolicies:  freeTrialHandler.ListPolicies,

		GetRetakeLimit:   retakeHandler.GetLimit,
		SetRetakeLimit:   retakeHandler.SetLimit,
		ClearRetakeLimit: retakeHandler.ClearLimit,
		ListRetakeLimits: retakeHandler.ListLimits,
		Retake:           retakeHandler.Retake,

		AuthMiddleware:  auth.Middleware(verifier),
		AdminMiddleware: auth.RequireAdmin,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
