//go:build integration

package freetrial

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examprep/practice-api/internal/clock"
	"github.com/examprep/practice-api/internal/database/dbtest"
)

func TestPostgresRepository(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("no active policy", func(t *testing.T) {
		p, err := repo.ActivePolicy(ctx)
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("replace policy keeps one active", func(t *testing.T) {
		now := time.Now().UTC()
		for i, limit := range []int{5, 8} {
			err := repo.ReplacePolicy(ctx, &Policy{
				ID: uuid.New(), DailyLimit: limit, AllowedCategories: []int64{7, 9},
				CreatedBy: "admin_1", CreatedAt: now.Add(time.Duration(i) * time.Second), UpdatedAt: now,
			})
			require.NoError(t, err)
		}

		p, err := repo.ActivePolicy(ctx)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, 8, p.DailyLimit)
		assert.Equal(t, []int64{7, 9}, p.AllowedCategories)

		policies, total, err := repo.ListPolicies(ctx, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.True(t, policies[0].Active)
		assert.False(t, policies[1].Active)
	})

	t.Run("usage accumulates per day", func(t *testing.T) {
		require.NoError(t, repo.AddUsage(ctx, "u1", 7, day, 3))
		require.NoError(t, repo.AddUsage(ctx, "u1", 7, day, 2))
		require.NoError(t, repo.AddUsage(ctx, "u1", 9, day, 1))
		require.NoError(t, repo.AddUsage(ctx, "u1", 7, day.AddDate(0, 0, 1), 4))

		used, err := repo.UsedOn(ctx, "u1", day)
		require.NoError(t, err)
		assert.Equal(t, 6, used)

		var rows int
		err = pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM free_trial_usage WHERE user_id = 'u1' AND category_id = 7 AND day = $1`, day).Scan(&rows)
		require.NoError(t, err)
		assert.Equal(t, 1, rows)
	})

	t.Run("duplicate rows are summed", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := pool.Exec(ctx,
				`INSERT INTO free_trial_usage (id, user_id, category_id, day, count) VALUES ($1, 'u2', 7, $2, 2)`,
				uuid.New(), day)
			require.NoError(t, err)
		}
		used, err := repo.UsedOn(ctx, "u2", day)
		require.NoError(t, err)
		assert.Equal(t, 4, used)
	})
}

func TestPostgresRepository_ConsumeNeverOvershoots(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	clk := clock.NewFake(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc := NewService(repo, nil, clk, time.UTC, nil)
	_, err := svc.ReplacePolicy(ctx, "admin_1", 5, []int64{7})
	require.NoError(t, err)
	day := svc.Today()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Consume(ctx, "u1", 7, 1, day)
		}()
	}
	wg.Wait()

	used, err := repo.UsedOn(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 5, used)
}

func TestPostgresRepository_ConcurrentReplaceKeepsOneActive(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(limit int) {
			defer wg.Done()
			now := time.Now().UTC()
			errs <- repo.ReplacePolicy(ctx, &Policy{
				ID: uuid.New(), DailyLimit: limit, AllowedCategories: []int64{1},
				CreatedAt: now, UpdatedAt: now,
			})
		}(i + 1)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrPolicyConflict)
	}
	assert.GreaterOrEqual(t, succeeded, 1)

	var active int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM free_trial_policies WHERE active`).Scan(&active))
	assert.Equal(t, 1, active)
}
