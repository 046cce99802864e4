package repository

import (
	"context"
	"time"

	"github.com/eslsoft/factdrill/internal/entity"
)

// MasteryMutation maps the stored record (nil when the fact was never
// reviewed) to its replacement. It may be invoked more than once when a
// concurrent writer wins the race, so it must not have side effects.
type MasteryMutation func(current *entity.MasteryRecord) entity.MasteryRecord

// MasteryRepository persists spaced-repetition state per user and fact.
type MasteryRepository interface {
	// Upsert atomically applies mutate to the record for (userID, fact).
	Upsert(ctx context.Context, userID int64, fact entity.Fact, mutate MasteryMutation) (*entity.MasteryRecord, error)
	Get(ctx context.Context, userID int64, fact entity.Fact) (*entity.MasteryRecord, error)
	// ListDue returns records whose next review date is on or before day.
	ListDue(ctx context.Context, userID int64, day time.Time) ([]entity.MasteryRecord, error)
	CountDue(ctx context.Context, userID int64, day time.Time) (int, error)
}
