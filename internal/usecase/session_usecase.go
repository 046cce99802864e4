package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/factdrill/internal/entity"
)

// SessionRequest asks for one practice session.
type SessionRequest struct {
	Mode   entity.SessionMode
	Config entity.SessionConfig
}

// SessionUsecase prepares question lists for the game runner.
type SessionUsecase interface {
	Prepare(ctx context.Context, userID int64, req SessionRequest) (*entity.Session, error)
}

// NewSessionUsecase wires the composer with the weak-fact and mastery sources.
func NewSessionUsecase(
	generator QuestionGenerator,
	composer SessionComposer,
	weak WeakFactUsecase,
	mastery MasteryUsecase,
	logger logrus.FieldLogger,
) SessionUsecase {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &sessionUsecase{
		generator: generator,
		composer:  composer,
		weak:      weak,
		mastery:   mastery,
		logger:    logger,
	}
}

type sessionUsecase struct {
	generator QuestionGenerator
	composer  SessionComposer
	weak      WeakFactUsecase
	mastery   MasteryUsecase
	logger    logrus.FieldLogger
}

func (u *sessionUsecase) Prepare(ctx context.Context, userID int64, req SessionRequest) (*entity.Session, error) {
	cfg := req.Config
	session := &entity.Session{
		Mode:            req.Mode,
		TimePerQuestion: cfg.TimePerQuestion,
	}
	if session.Mode == "" {
		session.Mode = entity.SessionModePlain
	}

	if len(cfg.PreGenerated) > 0 {
		for i, q := range cfg.PreGenerated {
			if err := q.Check(); err != nil {
				return nil, fmt.Errorf("pre-generated question %d: %w", i, err)
			}
		}
		session.Questions = append([]entity.Question(nil), cfg.PreGenerated...)
		return session, nil
	}

	if session.Mode != entity.SessionModePlain && userID <= 0 {
		return nil, entity.ErrInvalidUserID
	}

	log := u.logger.WithFields(logrus.Fields{"user_id": userID, "mode": session.Mode})

	var (
		questions []entity.Question
		err       error
		composed  bool
	)
	switch session.Mode {
	case entity.SessionModeAdaptive:
		questions, composed, err = u.composeAdaptive(ctx, log, userID, cfg)
	case entity.SessionModeDue:
		questions, composed, err = u.composeDue(ctx, log, userID, cfg)
	}
	if err != nil {
		return nil, err
	}
	if !composed {
		if session.Mode != entity.SessionModePlain {
			session.FellBack = true
		}
		questions, err = u.composer.ComposePlain(cfg)
		if err != nil {
			return nil, err
		}
	}

	if entity.HasDuplicateFacts(questions) {
		log.WithField("count", len(questions)).Warn("session contains repeated facts")
	}
	if cfg.IncreasingDifficulty {
		sort.SliceStable(questions, func(i, j int) bool {
			return u.generator.DifficultyOf(questions[i].Fact) < u.generator.DifficultyOf(questions[j].Fact)
		})
	}
	session.Questions = questions
	return session, nil
}

// composeAdaptive reports composed=false when plain practice should be used instead.
func (u *sessionUsecase) composeAdaptive(ctx context.Context, log logrus.FieldLogger, userID int64, cfg entity.SessionConfig) ([]entity.Question, bool, error) {
	enough, err := u.weak.HasEnoughData(ctx, userID)
	if err != nil {
		log.WithError(err).Warn("weak facts unavailable, falling back to plain practice")
		return nil, false, nil
	}
	if !enough {
		log.Info("not enough attempt history for adaptive practice")
		return nil, false, nil
	}
	weak, err := u.weak.GetWeakFacts(ctx, userID, 0)
	if err != nil {
		log.WithError(err).Warn("weak facts unavailable, falling back to plain practice")
		return nil, false, nil
	}
	questions, err := u.composer.ComposeAdaptive(cfg, weak)
	if err != nil {
		return nil, false, err
	}
	return questions, true, nil
}

func (u *sessionUsecase) composeDue(ctx context.Context, log logrus.FieldLogger, userID int64, cfg entity.SessionConfig) ([]entity.Question, bool, error) {
	due, err := u.mastery.GetDueFacts(ctx, userID)
	if err != nil {
		log.WithError(err).Warn("due facts unavailable, falling back to plain practice")
		return nil, false, nil
	}
	if len(due) == 0 {
		log.Info("no facts due for review")
		return nil, false, nil
	}
	questions, err := u.composer.ComposeDue(cfg, due)
	if err != nil {
		return nil, false, err
	}
	return questions, true, nil
}
