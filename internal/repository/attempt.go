package repository

import (
	"context"
	"time"

	"github.com/eslsoft/factdrill/internal/entity"
)

// TallyQuery narrows the attempts aggregated by TallyByFact.
type TallyQuery struct {
	UserID    int64
	Operation *entity.Operation
	Tables    []int
	// Since restricts the tally to attempts made at or after this instant.
	Since *time.Time
	// After is the strict form of Since.
	After *time.Time
}

// AttemptRepository stores the append-only answer history.
type AttemptRepository interface {
	Append(ctx context.Context, attempt *entity.AttemptRecord) error
	// TallyByFact groups a user's attempts by fact.
	TallyByFact(ctx context.Context, query TallyQuery) ([]entity.FactTally, error)
}

// WeakFactQuery holds parameters for listing a user's weak facts. Pointer and
// slice fields are optional filters, usually bound from a CEL expression.
type WeakFactQuery struct {
	UserID int64
	// Limit caps the result; zero or negative means unlimited.
	Limit int

	Operation   *entity.Operation
	Tables      []int
	// MaxAccuracy keeps accuracy <= the value, AccuracyBelow keeps < it.
	MaxAccuracy   *float64
	AccuracyBelow *float64
	MinSeen       *int
	Since         *time.Time
	After         *time.Time
}

// Tally converts the storage-side part of the query.
func (q *WeakFactQuery) Tally() TallyQuery {
	return TallyQuery{
		UserID:    q.UserID,
		Operation: q.Operation,
		Tables:    q.Tables,
		Since:     q.Since,
		After:     q.After,
	}
}
