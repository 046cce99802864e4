package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/repository"
)

type sqliteAttemptRepository struct {
	db *sqlx.DB
}

// NewSQLiteAttemptRepository constructs a sqlx-backed attempt log.
func NewSQLiteAttemptRepository(db *sqlx.DB) repository.AttemptRepository {
	return &sqliteAttemptRepository{db: db}
}

func (r *sqliteAttemptRepository) Append(ctx context.Context, attempt *entity.AttemptRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateAttempt(attempt); err != nil {
		return err
	}
	res, err := r.db.NamedExecContext(ctx, `INSERT INTO attempts
		(user_id, operation, operand_a, operand_b, is_correct, latency_ms, attempted_at)
		VALUES (:user_id, :operation, :operand_a, :operand_b, :is_correct, :latency_ms, :attempted_at)`,
		toAttemptRow(attempt))
	if err != nil {
		return fmt.Errorf("insert attempt: %w", translateStoreError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	attempt.ID = id
	return nil
}

func (r *sqliteAttemptRepository) TallyByFact(ctx context.Context, query repository.TallyQuery) ([]entity.FactTally, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	where := []string{"user_id = ?"}
	args := []any{query.UserID}
	if query.Operation != nil {
		where = append(where, "operation = ?")
		args = append(args, string(*query.Operation))
	}
	if len(query.Tables) > 0 {
		where = append(where, "operand_b IN (?)")
		args = append(args, query.Tables)
	}
	if query.Since != nil {
		where = append(where, "attempted_at >= ?")
		args = append(args, query.Since.UTC())
	}
	if query.After != nil {
		where = append(where, "attempted_at > ?")
		args = append(args, query.After.UTC())
	}

	stmt, args, err := sqlx.In(fmt.Sprintf(tallySelect, "SUM(latency_ms)", strings.Join(where, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("build tally query: %w", err)
	}
	var rows []tallyRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(stmt), args...); err != nil {
		return nil, fmt.Errorf("tally attempts: %w", translateStoreError(err))
	}
	return lo.Map(rows, func(row tallyRow, _ int) entity.FactTally { return mapTallyRow(row) }), nil
}
