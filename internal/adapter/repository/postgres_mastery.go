package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/repository"
)

type postgresMasteryRow struct {
	UserID         int64       `db:"user_id"`
	Operation      string      `db:"operation"`
	OperandA       int         `db:"operand_a"`
	OperandB       int         `db:"operand_b"`
	IntervalDays   int         `db:"interval_days"`
	Repetitions    int         `db:"repetitions"`
	NextReviewOn   pgtype.Date `db:"next_review_on"`
	LastReviewedAt time.Time   `db:"last_reviewed_at"`
	Version        int64       `db:"version"`
}

func mapPostgresMasteryRow(row postgresMasteryRow) entity.MasteryRecord {
	return entity.MasteryRecord{
		UserID: row.UserID,
		Fact: entity.Fact{
			OperandA:  row.OperandA,
			OperandB:  row.OperandB,
			Operation: entity.Operation(row.Operation),
		},
		IntervalDays:   row.IntervalDays,
		Repetitions:    row.Repetitions,
		NextReviewOn:   entity.CivilDate(row.NextReviewOn.Time, time.UTC),
		LastReviewedAt: row.LastReviewedAt,
		Version:        row.Version,
	}
}

func toPgDate(day time.Time) pgtype.Date {
	return pgtype.Date{Time: day, Valid: true}
}

type postgresMasteryRepository struct {
	pool *pgxpool.Pool
	opts masteryStoreOptions
}

// NewPostgresMasteryRepository constructs a pgx-backed mastery store.
func NewPostgresMasteryRepository(pool *pgxpool.Pool, opts ...MasteryStoreOption) repository.MasteryRepository {
	return &postgresMasteryRepository{pool: pool, opts: newMasteryStoreOptions(opts)}
}

func (r *postgresMasteryRepository) Upsert(ctx context.Context, userID int64, fact entity.Fact, mutate repository.MasteryMutation) (*entity.MasteryRecord, error) {
	return casUpsert(ctx, r.opts.retries, userID, fact, mutate, func(ctx context.Context) (*entity.MasteryRecord, error) {
		record, err := r.Get(ctx, userID, fact)
		if errors.Is(err, entity.ErrMasteryNotFound) {
			return nil, nil
		}
		return record, err
	}, r.write)
}

func (r *postgresMasteryRepository) write(ctx context.Context, next entity.MasteryRecord) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO mastery_records (`+masteryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, operation, operand_a, operand_b) DO UPDATE SET
			interval_days = excluded.interval_days,
			repetitions = excluded.repetitions,
			next_review_on = excluded.next_review_on,
			last_reviewed_at = excluded.last_reviewed_at,
			version = excluded.version
		WHERE mastery_records.version = excluded.version - 1`,
		next.UserID, string(next.Fact.Operation), next.Fact.OperandA, next.Fact.OperandB,
		next.IntervalDays, next.Repetitions, toPgDate(next.NextReviewOn), next.LastReviewedAt, next.Version)
	if err != nil {
		return false, translateStoreError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *postgresMasteryRepository) Get(ctx context.Context, userID int64, fact entity.Fact) (*entity.MasteryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+masteryColumns+` FROM mastery_records
		WHERE user_id = $1 AND operation = $2 AND operand_a = $3 AND operand_b = $4`,
		userID, string(fact.Operation), fact.OperandA, fact.OperandB)
	if err != nil {
		return nil, fmt.Errorf("get mastery record: %w", translateStoreError(err))
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[postgresMasteryRow])
	if err != nil {
		err = translateStoreError(err)
		if errors.Is(err, entity.ErrMasteryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get mastery record: %w", err)
	}
	record := mapPostgresMasteryRow(row)
	return &record, nil
}

func (r *postgresMasteryRepository) ListDue(ctx context.Context, userID int64, day time.Time) ([]entity.MasteryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+masteryColumns+` FROM mastery_records
		WHERE user_id = $1 AND next_review_on <= $2
		ORDER BY next_review_on, operation, operand_b, operand_a`, userID, toPgDate(day))
	if err != nil {
		return nil, fmt.Errorf("list due mastery records: %w", translateStoreError(err))
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[postgresMasteryRow])
	if err != nil {
		return nil, fmt.Errorf("list due mastery records: %w", translateStoreError(err))
	}
	records := make([]entity.MasteryRecord, 0, len(items))
	for _, item := range items {
		records = append(records, mapPostgresMasteryRow(item))
	}
	return records, nil
}

func (r *postgresMasteryRepository) CountDue(ctx context.Context, userID int64, day time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM mastery_records WHERE user_id = $1 AND next_review_on <= $2`,
		userID, toPgDate(day)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count due mastery records: %w", translateStoreError(err))
	}
	return count, nil
}
