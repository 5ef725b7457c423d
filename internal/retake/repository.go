package retake

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examprep/practice-api/internal/database"
)

type Repository interface {
	// GetLimit returns nil, nil when the user has no override.
	GetLimit(ctx context.Context, userID string) (*Limit, error)
	UpsertLimit(ctx context.Context, l *Limit) error
	// DeleteLimit reports whether an override existed.
	DeleteLimit(ctx context.Context, userID string) (bool, error)
	ListLimits(ctx context.Context, limit, offset int) ([]*Limit, int64, error)

	// GetInstance returns nil, nil when the instance does not exist.
	GetInstance(ctx context.Context, id uuid.UUID) (*Instance, error)
	CreateInstance(ctx context.Context, inst *Instance) error

	// CreateRetake locks the lineage of sourceID, hands the freshly read
	// source and its owner's override (nil when absent) to build and stores
	// the instance it returns, incrementing the root's retake count. Both
	// are read on the locking transaction; build must not touch the
	// repository. An error from build aborts without writing.
	// ErrNotFound is returned when sourceID does not exist.
	CreateRetake(ctx context.Context, sourceID uuid.UUID, build func(source *Instance, limit *Limit) (*Instance, error)) (*Instance, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func getLimit(ctx context.Context, q database.Querier, userID string) (*Limit, error) {
	query := `SELECT user_id, max_retakes, updated_by, updated_at FROM retake_limits WHERE user_id = $1`

	l := &Limit{}
	err := q.QueryRow(ctx, query, userID).Scan(&l.UserID, &l.MaxRetakes, &l.UpdatedBy, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying retake limit: %w", err)
	}
	return l, nil
}

func (r *postgresRepository) GetLimit(ctx context.Context, userID string) (*Limit, error) {
	return getLimit(ctx, r.pool, userID)
}

func (r *postgresRepository) UpsertLimit(ctx context.Context, l *Limit) error {
	query := `
		INSERT INTO retake_limits (user_id, max_retakes, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET max_retakes = EXCLUDED.max_retakes,
		    updated_by = EXCLUDED.updated_by,
		    updated_at = EXCLUDED.updated_at`

	if _, err := r.pool.Exec(ctx, query, l.UserID, l.MaxRetakes, l.UpdatedBy, l.UpdatedAt); err != nil {
		return fmt.Errorf("upserting retake limit: %w", err)
	}
	return nil
}

func (r *postgresRepository) DeleteLimit(ctx context.Context, userID string) (bool, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM retake_limits WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("deleting retake limit: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *postgresRepository) ListLimits(ctx context.Context, limit, offset int) ([]*Limit, int64, error) {
	query := `
		SELECT user_id, max_retakes, updated_by, updated_at
		FROM retake_limits
		ORDER BY updated_at DESC, user_id
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing retake limits: %w", err)
	}
	defer rows.Close()

	var limits []*Limit
	for rows.Next() {
		l := &Limit{}
		if err := rows.Scan(&l.UserID, &l.MaxRetakes, &l.UpdatedBy, &l.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning retake limit: %w", err)
		}
		limits = append(limits, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM retake_limits`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting retake limits: %w", err)
	}
	return limits, total, nil
}

// The lineage count always comes from the root row.
const instanceQuery = `
	SELECT i.id, i.user_id, i.root_id, i.parent_id, i.test_type, i.question_ids,
	       i.total_questions, i.attempt_number, r.lineage_retake_count, i.created_at
	FROM test_instances i
	JOIN test_instances r ON r.id = i.root_id
	WHERE i.id = $1`

func getInstance(ctx context.Context, q database.Querier, id uuid.UUID) (*Instance, error) {
	inst := &Instance{}
	err := q.QueryRow(ctx, instanceQuery, id).Scan(
		&inst.ID, &inst.UserID, &inst.RootID, &inst.ParentID, &inst.TestType, &inst.QuestionIDs,
		&inst.TotalQuestions, &inst.AttemptNumber, &inst.LineageRetakeCount, &inst.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying test instance: %w", err)
	}
	if inst.QuestionIDs == nil {
		inst.QuestionIDs = []int64{}
	}
	return inst, nil
}

func (r *postgresRepository) GetInstance(ctx context.Context, id uuid.UUID) (*Instance, error) {
	return getInstance(ctx, r.pool, id)
}

func insertInstance(ctx context.Context, q database.Querier, inst *Instance, lineageCount int) error {
	query := `
		INSERT INTO test_instances (id, user_id, root_id, parent_id, test_type, question_ids,
		                            total_questions, attempt_number, lineage_retake_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := q.Exec(ctx, query,
		inst.ID, inst.UserID, inst.RootID, inst.ParentID, inst.TestType, inst.QuestionIDs,
		inst.TotalQuestions, inst.AttemptNumber, lineageCount, inst.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting test instance: %w", err)
	}
	return nil
}

func (r *postgresRepository) CreateInstance(ctx context.Context, inst *Instance) error {
	return insertInstance(ctx, r.pool, inst, inst.LineageRetakeCount)
}

func (r *postgresRepository) CreateRetake(ctx context.Context, sourceID uuid.UUID, build func(*Instance, *Limit) (*Instance, error)) (*Instance, error) {
	var created *Instance
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var rootID uuid.UUID
		err := tx.QueryRow(ctx, `SELECT root_id FROM test_instances WHERE id = $1`, sourceID).Scan(&rootID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("querying lineage root: %w", err)
		}

		// Every retake in the lineage serializes on the root row.
		if _, err := tx.Exec(ctx, `SELECT id FROM test_instances WHERE id = $1 FOR UPDATE`, rootID); err != nil {
			return fmt.Errorf("locking lineage root: %w", err)
		}

		source, err := getInstance(ctx, tx, sourceID)
		if err != nil {
			return err
		}
		if source == nil {
			return ErrNotFound
		}

		// Read on tx: the root lock is held, so going back to the pool here
		// can starve it.
		limit, err := getLimit(ctx, tx, source.UserID)
		if err != nil {
			return err
		}

		next, err := build(source, limit)
		if err != nil {
			return err
		}

		// Only the root carries the lineage count.
		if err := insertInstance(ctx, tx, next, 0); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE test_instances SET lineage_retake_count = lineage_retake_count + 1 WHERE id = $1`, rootID); err != nil {
			return fmt.Errorf("incrementing lineage retake count: %w", err)
		}

		created = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
