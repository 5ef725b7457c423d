package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/examprep/practice-api/internal/clock"
	"github.com/examprep/practice-api/internal/config"
	"github.com/examprep/practice-api/internal/database"
	"github.com/examprep/practice-api/internal/freetrial"
	iredis "github.com/examprep/practice-api/internal/redis"
	"github.com/examprep/practice-api/internal/retake"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "examprepctl",
		Short:        "Operate the exam-prep practice API",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if v, _ := cmd.Flags().GetBool("verbose"); v {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "Log connection details and debug output")
	root.PersistentFlags().String("actor", "examprepctl", "Actor id recorded on admin changes")

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newPolicyCmd())
	root.AddCommand(newRetakeLimitCmd())
	return root
}

// loadConfig reads the same .env/environment configuration as the API.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// backend holds the connections admin commands run against.
type backend struct {
	pool  *pgxpool.Pool
	rdb   *redis.Client
	cfg   *config.Config
	trial *freetrial.Service
	retk  *retake.Service
}

func openBackend(ctx context.Context) (*backend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Policy changes must reach the API's cache, so Redis is required too.
	rdb, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &backend{
		pool: pool,
		rdb:  rdb,
		cfg:  cfg,
		trial: freetrial.NewService(
			freetrial.NewRepository(pool),
			freetrial.NewPolicyCache(rdb, cfg.FreeTrial.PolicyCacheTTL),
			clock.System,
			cfg.FreeTrial.Location(),
			nil,
		),
		retk: retake.NewService(
			retake.NewRepository(pool),
			retake.ParseCountSource(cfg.Retake.CountSource),
			clock.System,
			nil,
		),
	}, nil
}

func (b *backend) Close() {
	b.rdb.Close()
	b.pool.Close()
}

func actor(cmd *cobra.Command) string {
	a, _ := cmd.Flags().GetString("actor")
	return a
}
