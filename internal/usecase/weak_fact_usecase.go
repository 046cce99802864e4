package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/repository"
)

const (
	defaultMinSeen    = 2
	defaultEnoughData = 5
)

// WeakFactUsecase ranks facts by how often a user gets them wrong.
type WeakFactUsecase interface {
	GetWeakFacts(ctx context.Context, userID int64, limit int) ([]entity.WeakFactSummary, error)
	ListWeakFacts(ctx context.Context, query *repository.WeakFactQuery) ([]entity.WeakFactSummary, error)
	HasEnoughData(ctx context.Context, userID int64) (bool, error)
}

// WeakFactOption customises a WeakFactUsecase.
type WeakFactOption func(*weakFactUsecase)

// WithMinSeen sets how many attempts a fact needs before it can rank as weak.
func WithMinSeen(n int) WeakFactOption {
	return func(u *weakFactUsecase) {
		if n > 0 {
			u.minSeen = n
		}
	}
}

// WithEnoughData sets how many weak facts make adaptive practice worthwhile.
func WithEnoughData(n int) WeakFactOption {
	return func(u *weakFactUsecase) {
		if n > 0 {
			u.enoughData = n
		}
	}
}

// NewWeakFactUsecase wires the attempt repository with default thresholds.
func NewWeakFactUsecase(attempts repository.AttemptRepository, opts ...WeakFactOption) WeakFactUsecase {
	u := &weakFactUsecase{
		attempts:   attempts,
		minSeen:    defaultMinSeen,
		enoughData: defaultEnoughData,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type weakFactUsecase struct {
	attempts   repository.AttemptRepository
	minSeen    int
	enoughData int
}

func (u *weakFactUsecase) GetWeakFacts(ctx context.Context, userID int64, limit int) ([]entity.WeakFactSummary, error) {
	return u.ListWeakFacts(ctx, &repository.WeakFactQuery{UserID: userID, Limit: limit})
}

func (u *weakFactUsecase) ListWeakFacts(ctx context.Context, query *repository.WeakFactQuery) ([]entity.WeakFactSummary, error) {
	if query == nil {
		return nil, fmt.Errorf("%w: weak fact query required", entity.ErrInvalidConfig)
	}
	if query.UserID <= 0 {
		return nil, entity.ErrInvalidUserID
	}

	tallies, err := u.attempts.TallyByFact(ctx, query.Tally())
	if err != nil {
		return nil, fmt.Errorf("tally attempts: %w", err)
	}

	minSeen := u.minSeen
	if query.MinSeen != nil && *query.MinSeen > minSeen {
		minSeen = *query.MinSeen
	}
	ranked := RankWeakFacts(tallies, minSeen)
	if query.MaxAccuracy != nil {
		maxAccuracy := *query.MaxAccuracy
		ranked = lo.Filter(ranked, func(s entity.WeakFactSummary, _ int) bool {
			return s.AccuracyRate <= maxAccuracy
		})
	}
	if query.AccuracyBelow != nil {
		below := *query.AccuracyBelow
		ranked = lo.Filter(ranked, func(s entity.WeakFactSummary, _ int) bool {
			return s.AccuracyRate < below
		})
	}
	if query.Limit > 0 && len(ranked) > query.Limit {
		ranked = ranked[:query.Limit]
	}
	return ranked, nil
}

func (u *weakFactUsecase) HasEnoughData(ctx context.Context, userID int64) (bool, error) {
	weak, err := u.GetWeakFacts(ctx, userID, 0)
	if err != nil {
		return false, err
	}
	return len(weak) >= u.enoughData, nil
}

// RankWeakFacts keeps facts seen at least minSeen times and orders them by
// ascending accuracy, then descending error count, then by fact.
func RankWeakFacts(tallies []entity.FactTally, minSeen int) []entity.WeakFactSummary {
	summaries := lo.FilterMap(tallies, func(t entity.FactTally, _ int) (entity.WeakFactSummary, bool) {
		return t.Summary(), t.TimesSeen >= minSeen
	})
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.AccuracyRate != b.AccuracyRate {
			return a.AccuracyRate < b.AccuracyRate
		}
		if a.TimesIncorrect != b.TimesIncorrect {
			return a.TimesIncorrect > b.TimesIncorrect
		}
		return a.Fact.Less(b.Fact)
	})
	return summaries
}
