package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/repository"
)

// Answer is one response given during a session.
type Answer struct {
	Fact    entity.Fact
	Correct bool
	Latency time.Duration
}

// AnswerResult reports what was stored for an answer.
type AnswerResult struct {
	Attempt entity.AttemptRecord
	Mastery *entity.MasteryRecord
}

// PracticeUsecase records answers in the attempt log and the review schedule.
type PracticeUsecase interface {
	SubmitAnswer(ctx context.Context, userID int64, answer Answer) (*AnswerResult, error)
}

// NewPracticeUsecase wires the attempt log with the mastery scheduler.
func NewPracticeUsecase(attempts repository.AttemptRepository, mastery MasteryUsecase) PracticeUsecase {
	return &practiceUsecase{
		attempts: attempts,
		mastery:  mastery,
		clock:    time.Now,
	}
}

type practiceUsecase struct {
	attempts repository.AttemptRepository
	mastery  MasteryUsecase
	clock    func() time.Time
}

func (u *practiceUsecase) SubmitAnswer(ctx context.Context, userID int64, answer Answer) (*AnswerResult, error) {
	if userID <= 0 {
		return nil, entity.ErrInvalidUserID
	}
	if err := answer.Fact.Validate(); err != nil {
		return nil, err
	}
	if answer.Latency < 0 {
		answer.Latency = 0
	}

	attempt := entity.AttemptRecord{
		UserID:      userID,
		Fact:        answer.Fact,
		IsCorrect:   answer.Correct,
		Latency:     answer.Latency,
		AttemptedAt: u.clock().UTC(),
	}
	if err := u.attempts.Append(ctx, &attempt); err != nil {
		return nil, fmt.Errorf("append attempt: %w", err)
	}

	record, err := u.mastery.RecordAnswer(ctx, userID, answer.Fact, answer.Correct)
	if err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}
	return &AnswerResult{Attempt: attempt, Mastery: record}, nil
}
