package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/repository"
)

type postgresAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAttemptRepository constructs a pgx-backed attempt log.
func NewPostgresAttemptRepository(pool *pgxpool.Pool) repository.AttemptRepository {
	return &postgresAttemptRepository{pool: pool}
}

func (r *postgresAttemptRepository) Append(ctx context.Context, attempt *entity.AttemptRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateAttempt(attempt); err != nil {
		return err
	}
	row := toAttemptRow(attempt)
	err := r.pool.QueryRow(ctx, `INSERT INTO attempts
		(user_id, operation, operand_a, operand_b, is_correct, latency_ms, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		row.UserID, row.Operation, row.OperandA, row.OperandB, row.IsCorrect, row.LatencyMS, row.AttemptedAt,
	).Scan(&attempt.ID)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", translateStoreError(err))
	}
	return nil
}

func (r *postgresAttemptRepository) TallyByFact(ctx context.Context, query repository.TallyQuery) ([]entity.FactTally, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := []any{query.UserID}
	where := []string{"user_id = $1"}
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if query.Operation != nil {
		add("operation = $%d", string(*query.Operation))
	}
	if len(query.Tables) > 0 {
		add("operand_b = ANY($%d)", query.Tables)
	}
	if query.Since != nil {
		add("attempted_at >= $%d", *query.Since)
	}
	if query.After != nil {
		add("attempted_at > $%d", *query.After)
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(tallySelect, "SUM(latency_ms)::BIGINT", strings.Join(where, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("tally attempts: %w", translateStoreError(err))
	}
	tallies, err := pgx.CollectRows(rows, pgx.RowToStructByName[tallyRow])
	if err != nil {
		return nil, fmt.Errorf("tally attempts: %w", translateStoreError(err))
	}
	return lo.Map(tallies, func(row tallyRow, _ int) entity.FactTally { return mapTallyRow(row) }), nil
}
