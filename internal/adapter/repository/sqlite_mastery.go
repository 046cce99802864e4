package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/repository"
)

type sqliteMasteryRow struct {
	UserID         int64     `db:"user_id"`
	Operation      string    `db:"operation"`
	OperandA       int       `db:"operand_a"`
	OperandB       int       `db:"operand_b"`
	IntervalDays   int       `db:"interval_days"`
	Repetitions    int       `db:"repetitions"`
	NextReviewOn   string    `db:"next_review_on"`
	LastReviewedAt time.Time `db:"last_reviewed_at"`
	Version        int64     `db:"version"`
}

func toSQLiteMasteryRow(m entity.MasteryRecord) sqliteMasteryRow {
	return sqliteMasteryRow{
		UserID:         m.UserID,
		Operation:      string(m.Fact.Operation),
		OperandA:       m.Fact.OperandA,
		OperandB:       m.Fact.OperandB,
		IntervalDays:   m.IntervalDays,
		Repetitions:    m.Repetitions,
		NextReviewOn:   m.NextReviewOn.Format(entity.DateLayout),
		LastReviewedAt: m.LastReviewedAt.UTC(),
		Version:        m.Version,
	}
}

func mapSQLiteMasteryRow(row sqliteMasteryRow) (entity.MasteryRecord, error) {
	next, err := time.Parse(entity.DateLayout, row.NextReviewOn)
	if err != nil {
		return entity.MasteryRecord{}, fmt.Errorf("parse next_review_on %q: %w", row.NextReviewOn, err)
	}
	return entity.MasteryRecord{
		UserID: row.UserID,
		Fact: entity.Fact{
			OperandA:  row.OperandA,
			OperandB:  row.OperandB,
			Operation: entity.Operation(row.Operation),
		},
		IntervalDays:   row.IntervalDays,
		Repetitions:    row.Repetitions,
		NextReviewOn:   next,
		LastReviewedAt: row.LastReviewedAt,
		Version:        row.Version,
	}, nil
}

type sqliteMasteryRepository struct {
	db   *sqlx.DB
	opts masteryStoreOptions
}

// NewSQLiteMasteryRepository constructs a sqlx-backed mastery store.
func NewSQLiteMasteryRepository(db *sqlx.DB, opts ...MasteryStoreOption) repository.MasteryRepository {
	return &sqliteMasteryRepository{db: db, opts: newMasteryStoreOptions(opts)}
}

func (r *sqliteMasteryRepository) Upsert(ctx context.Context, userID int64, fact entity.Fact, mutate repository.MasteryMutation) (*entity.MasteryRecord, error) {
	return casUpsert(ctx, r.opts.retries, userID, fact, mutate, func(ctx context.Context) (*entity.MasteryRecord, error) {
		record, err := r.Get(ctx, userID, fact)
		if errors.Is(err, entity.ErrMasteryNotFound) {
			return nil, nil
		}
		return record, err
	}, r.write)
}

func (r *sqliteMasteryRepository) write(ctx context.Context, next entity.MasteryRecord) (bool, error) {
	res, err := r.db.NamedExecContext(ctx, `INSERT INTO mastery_records (`+masteryColumns+`)
		VALUES (:user_id, :operation, :operand_a, :operand_b, :interval_days, :repetitions, :next_review_on, :last_reviewed_at, :version)
		ON CONFLICT (user_id, operation, operand_a, operand_b) DO UPDATE SET
			interval_days = excluded.interval_days,
			repetitions = excluded.repetitions,
			next_review_on = excluded.next_review_on,
			last_reviewed_at = excluded.last_reviewed_at,
			version = excluded.version
		WHERE mastery_records.version = excluded.version - 1`, toSQLiteMasteryRow(next))
	if err != nil {
		return false, translateStoreError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *sqliteMasteryRepository) Get(ctx context.Context, userID int64, fact entity.Fact) (*entity.MasteryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row sqliteMasteryRow
	err := r.db.GetContext(ctx, &row, `SELECT `+masteryColumns+` FROM mastery_records
		WHERE user_id = ? AND operation = ? AND operand_a = ? AND operand_b = ?`,
		userID, string(fact.Operation), fact.OperandA, fact.OperandB)
	if err != nil {
		err = translateStoreError(err)
		if errors.Is(err, entity.ErrMasteryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get mastery record: %w", err)
	}
	record, err := mapSQLiteMasteryRow(row)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *sqliteMasteryRepository) ListDue(ctx context.Context, userID int64, day time.Time) ([]entity.MasteryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []sqliteMasteryRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+masteryColumns+` FROM mastery_records
		WHERE user_id = ? AND next_review_on <= ?
		ORDER BY next_review_on, operation, operand_b, operand_a`,
		userID, day.Format(entity.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list due mastery records: %w", translateStoreError(err))
	}
	records := make([]entity.MasteryRecord, 0, len(rows))
	for _, row := range rows {
		record, err := mapSQLiteMasteryRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *sqliteMasteryRepository) CountDue(ctx context.Context, userID int64, day time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM mastery_records WHERE user_id = ? AND next_review_on <= ?`,
		userID, day.Format(entity.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("count due mastery records: %w", translateStoreError(err))
	}
	return count, nil
}
