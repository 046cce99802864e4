package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/repository"
)

const defaultUpsertRetries = 16

// MasteryStoreOption tunes the mastery repositories.
type MasteryStoreOption func(*masteryStoreOptions)

type masteryStoreOptions struct {
	retries int
}

// WithUpsertRetries bounds how often a lost compare-and-swap is retried
// before Upsert gives up with entity.ErrConcurrentUpdate.
func WithUpsertRetries(n int) MasteryStoreOption {
	return func(o *masteryStoreOptions) {
		if n > 0 {
			o.retries = n
		}
	}
}

func newMasteryStoreOptions(opts []MasteryStoreOption) masteryStoreOptions {
	o := masteryStoreOptions{retries: defaultUpsertRetries}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// casUpsert runs read, mutate, conditional write until the write lands.
// load returns nil when no record exists; write reports whether the row
// was stored, which fails when another writer bumped the version first.
func casUpsert(
	ctx context.Context,
	retries int,
	userID int64,
	fact entity.Fact,
	mutate repository.MasteryMutation,
	load func(context.Context) (*entity.MasteryRecord, error),
	write func(context.Context, entity.MasteryRecord) (bool, error),
) (*entity.MasteryRecord, error) {
	for attempt := 0; attempt < retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load mastery record: %w", err)
		}
		next := mutate(current)
		next.UserID = userID
		next.Fact = fact
		next.Version = 1
		if current != nil {
			next.Version = current.Version + 1
		}
		stored, err := write(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("store mastery record: %w", err)
		}
		if stored {
			return &next, nil
		}
	}
	return nil, entity.ErrConcurrentUpdate
}

func translateStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return entity.ErrMasteryNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", entity.ErrConcurrentUpdate, pgErr.Message)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && (liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %s", entity.ErrConcurrentUpdate, liteErr.Error())
	}
	return err
}

type tallyRow struct {
	Operation      string `db:"operation"`
	OperandA       int    `db:"operand_a"`
	OperandB       int    `db:"operand_b"`
	TimesSeen      int    `db:"times_seen"`
	TimesIncorrect int    `db:"times_incorrect"`
	TotalLatencyMS int64  `db:"total_latency_ms"`
}

func mapTallyRow(row tallyRow) entity.FactTally {
	return entity.FactTally{
		Fact: entity.Fact{
			OperandA:  row.OperandA,
			OperandB:  row.OperandB,
			Operation: entity.Operation(row.Operation),
		},
		TimesSeen:      row.TimesSeen,
		TimesIncorrect: row.TimesIncorrect,
		TotalLatency:   time.Duration(row.TotalLatencyMS) * time.Millisecond,
	}
}

type attemptRow struct {
	UserID      int64     `db:"user_id"`
	Operation   string    `db:"operation"`
	OperandA    int       `db:"operand_a"`
	OperandB    int       `db:"operand_b"`
	IsCorrect   bool      `db:"is_correct"`
	LatencyMS   int64     `db:"latency_ms"`
	AttemptedAt time.Time `db:"attempted_at"`
}

func toAttemptRow(a *entity.AttemptRecord) attemptRow {
	return attemptRow{
		UserID:      a.UserID,
		Operation:   string(a.Fact.Operation),
		OperandA:    a.Fact.OperandA,
		OperandB:    a.Fact.OperandB,
		IsCorrect:   a.IsCorrect,
		LatencyMS:   a.Latency.Milliseconds(),
		AttemptedAt: a.AttemptedAt.UTC(),
	}
}

func validateAttempt(a *entity.AttemptRecord) error {
	if a == nil {
		return errors.New("attempt is required")
	}
	if a.UserID <= 0 {
		return entity.ErrInvalidUserID
	}
	return a.Fact.Validate()
}

const tallySelect = `SELECT operation, operand_a, operand_b,
	COUNT(*) AS times_seen,
	SUM(CASE WHEN is_correct THEN 0 ELSE 1 END) AS times_incorrect,
	%s AS total_latency_ms
FROM attempts
WHERE %s
GROUP BY operation, operand_a, operand_b
ORDER BY operation, operand_b, operand_a`

const masteryColumns = `user_id, operation, operand_a, operand_b, interval_days, repetitions, next_review_on, last_reviewed_at, version`
