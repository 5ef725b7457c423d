package freetrial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examprep/practice-api/internal/database"
)

// UsageStore reads and writes usage records.
type UsageStore interface {
	// UsedOn sums every record of userID for day, across categories.
	UsedOn(ctx context.Context, userID string, day time.Time) (int, error)
	// AddUsage increments the first record for (userID, categoryID, day) or
	// creates one. It is not idempotent.
	AddUsage(ctx context.Context, userID string, categoryID int64, day time.Time, count int) error
}

type Repository interface {
	UsageStore

	// ActivePolicy returns nil, nil when no policy is active.
	ActivePolicy(ctx context.Context) (*Policy, error)
	// ReplacePolicy deactivates every policy and stores p as the active one,
	// atomically.
	ReplacePolicy(ctx context.Context, p *Policy) error
	ListPolicies(ctx context.Context, limit, offset int) ([]*Policy, int64, error)

	// WithUserDay runs fn against a UsageStore that is serialized with every
	// other WithUserDay call for the same user and day.
	WithUserDay(ctx context.Context, userID string, day time.Time, fn func(UsageStore) error) error
}

type postgresRepository struct {
	usageQueries
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{
		usageQueries: usageQueries{q: pool},
		pool:         pool,
	}
}

type usageQueries struct {
	q database.Querier
}

func (u usageQueries) UsedOn(ctx context.Context, userID string, day time.Time) (int, error) {
	query := `SELECT COALESCE(SUM(count), 0) FROM free_trial_usage WHERE user_id = $1 AND day = $2`

	var used int64
	if err := u.q.QueryRow(ctx, query, userID, day).Scan(&used); err != nil {
		return 0, fmt.Errorf("summing free trial usage: %w", err)
	}
	return int(used), nil
}

func (u usageQueries) AddUsage(ctx context.Context, userID string, categoryID int64, day time.Time, count int) error {
	update := `
		UPDATE free_trial_usage
		SET count = count + $4, updated_at = NOW()
		WHERE id = (
			SELECT id FROM free_trial_usage
			WHERE user_id = $1 AND category_id = $2 AND day = $3
			ORDER BY created_at
			LIMIT 1
		)`

	tag, err := u.q.Exec(ctx, update, userID, categoryID, day, count)
	if err != nil {
		return fmt.Errorf("incrementing free trial usage: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	insert := `
		INSERT INTO free_trial_usage (id, user_id, category_id, day, count)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := u.q.Exec(ctx, insert, uuid.New(), userID, categoryID, day, count); err != nil {
		return fmt.Errorf("inserting free trial usage: %w", err)
	}
	return nil
}

func (r *postgresRepository) WithUserDay(ctx context.Context, userID string, day time.Time, fn func(UsageStore) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		lockKey := userID + "|" + day.Format(time.DateOnly)
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
			return fmt.Errorf("locking free trial usage: %w", err)
		}
		return fn(usageQueries{q: tx})
	})
}

const policyColumns = `id, daily_limit, allowed_categories, active, created_by, created_at, updated_at`

func scanPolicy(row pgx.Row) (*Policy, error) {
	p := &Policy{}
	err := row.Scan(&p.ID, &p.DailyLimit, &p.AllowedCategories, &p.Active, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.AllowedCategories == nil {
		p.AllowedCategories = []int64{}
	}
	return p, nil
}

func (r *postgresRepository) ActivePolicy(ctx context.Context) (*Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM free_trial_policies WHERE active ORDER BY updated_at DESC LIMIT 1`

	p, err := scanPolicy(r.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying active free trial policy: %w", err)
	}
	return p, nil
}

func (r *postgresRepository) ReplacePolicy(ctx context.Context, p *Policy) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE free_trial_policies SET active = FALSE, updated_at = NOW() WHERE active`); err != nil {
			return fmt.Errorf("deactivating free trial policies: %w", err)
		}

		insert := `
			INSERT INTO free_trial_policies (id, daily_limit, allowed_categories, active, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, TRUE, $4, $5, $6)`

		if _, err := tx.Exec(ctx, insert,
			p.ID, p.DailyLimit, p.AllowedCategories, p.CreatedBy, p.CreatedAt, p.UpdatedAt); err != nil {
			// A concurrent replacement committed its active row first.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return ErrPolicyConflict
			}
			return fmt.Errorf("inserting free trial policy: %w", err)
		}
		return nil
	})
}

func (r *postgresRepository) ListPolicies(ctx context.Context, limit, offset int) ([]*Policy, int64, error) {
	query := `SELECT ` + policyColumns + ` FROM free_trial_policies ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing free trial policies: %w", err)
	}
	defer rows.Close()

	var policies []*Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning free trial policy: %w", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM free_trial_policies`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting free trial policies: %w", err)
	}
	return policies, total, nil
}
