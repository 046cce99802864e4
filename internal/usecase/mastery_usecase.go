package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/repository"
	"github.com/eslsoft/factdrill/pkg/srs"
)

// MasteryUsecase schedules fact reviews on the interval ladder.
type MasteryUsecase interface {
	RecordAnswer(ctx context.Context, userID int64, fact entity.Fact, correct bool) (*entity.MasteryRecord, error)
	GetDueFacts(ctx context.Context, userID int64) ([]entity.Fact, error)
	GetDueRecords(ctx context.Context, userID int64) ([]entity.MasteryRecord, error)
	GetDueCount(ctx context.Context, userID int64) (int, error)
	Today() time.Time
}

// MasteryOption customises a MasteryUsecase.
type MasteryOption func(*masteryUsecase)

// WithLadder replaces the default review ladder. Invalid ladders are rejected by NewMasteryUsecase.
func WithLadder(ladder srs.Ladder) MasteryOption {
	return func(u *masteryUsecase) {
		u.ladder = ladder
	}
}

// WithLocation sets the time zone that decides where one day ends.
func WithLocation(loc *time.Location) MasteryOption {
	return func(u *masteryUsecase) {
		if loc != nil {
			u.loc = loc
		}
	}
}

// NewMasteryUsecase wires the mastery repository with the default ladder in UTC.
func NewMasteryUsecase(repo repository.MasteryRepository, opts ...MasteryOption) (MasteryUsecase, error) {
	u := &masteryUsecase{
		repo:   repo,
		ladder: srs.DefaultLadder(),
		loc:    time.UTC,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	if err := u.ladder.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidConfig, err)
	}
	return u, nil
}

type masteryUsecase struct {
	repo   repository.MasteryRepository
	ladder srs.Ladder
	loc    *time.Location
	clock  func() time.Time
}

func (u *masteryUsecase) Today() time.Time {
	return entity.CivilDate(u.clock(), u.loc)
}

func (u *masteryUsecase) RecordAnswer(ctx context.Context, userID int64, fact entity.Fact, correct bool) (*entity.MasteryRecord, error) {
	if userID <= 0 {
		return nil, entity.ErrInvalidUserID
	}
	if err := fact.Validate(); err != nil {
		return nil, err
	}

	now := u.clock()
	today := entity.CivilDate(now, u.loc)
	return u.repo.Upsert(ctx, userID, fact, func(current *entity.MasteryRecord) entity.MasteryRecord {
		next := entity.MasteryRecord{UserID: userID, Fact: fact}
		var state srs.State
		if current != nil {
			next = *current
			state = srs.State{IntervalDays: current.IntervalDays, Repetitions: current.Repetitions}
		}
		state = u.ladder.Next(state, correct)
		next.IntervalDays = state.IntervalDays
		next.Repetitions = state.Repetitions
		next.NextReviewOn = today.AddDate(0, 0, state.IntervalDays)
		next.LastReviewedAt = now
		return next
	})
}

func (u *masteryUsecase) GetDueRecords(ctx context.Context, userID int64) ([]entity.MasteryRecord, error) {
	if userID <= 0 {
		return nil, entity.ErrInvalidUserID
	}
	records, err := u.repo.ListDue(ctx, userID, u.Today())
	if err != nil {
		return nil, fmt.Errorf("list due facts: %w", err)
	}
	return records, nil
}

func (u *masteryUsecase) GetDueFacts(ctx context.Context, userID int64) ([]entity.Fact, error) {
	records, err := u.GetDueRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lo.Map(records, func(r entity.MasteryRecord, _ int) entity.Fact { return r.Fact }), nil
}

func (u *masteryUsecase) GetDueCount(ctx context.Context, userID int64) (int, error) {
	if userID <= 0 {
		return 0, entity.ErrInvalidUserID
	}
	count, err := u.repo.CountDue(ctx, userID, u.Today())
	if err != nil {
		return 0, fmt.Errorf("count due facts: %w", err)
	}
	return count, nil
}
