package app

import (
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/factdrill/internal/infrastructure/config"
	"github.com/eslsoft/factdrill/internal/repository"
	"github.com/eslsoft/factdrill/internal/usecase"
)

// ProvideQuestionGenerator applies the engine.* tuning to the generator.
func ProvideQuestionGenerator(cfg *config.Config, logger logrus.FieldLogger) usecase.QuestionGenerator {
	return usecase.NewQuestionGenerator(
		usecase.WithMaxAttempts(cfg.Engine.MaxAttempts),
		usecase.WithGeneratorLogger(logger),
	)
}

func ProvideSessionComposer(cfg *config.Config, generator usecase.QuestionGenerator) usecase.SessionComposer {
	return usecase.NewSessionComposer(generator,
		usecase.WithAdaptiveRatio(cfg.Engine.AdaptiveRatio),
		usecase.WithMultiplierRange(cfg.Engine.MultiplierMin, cfg.Engine.MultiplierMax),
		usecase.WithTopUpAttempts(cfg.Engine.MaxAttempts),
	)
}

func ProvideWeakFactUsecase(cfg *config.Config, attempts repository.AttemptRepository) usecase.WeakFactUsecase {
	return usecase.NewWeakFactUsecase(attempts,
		usecase.WithMinSeen(cfg.Engine.MinSeen),
		usecase.WithEnoughData(cfg.Engine.EnoughData),
	)
}

// ProvideMasteryUsecase resolves the configured time zone and ladder.
func ProvideMasteryUsecase(cfg *config.Config, mastery repository.MasteryRepository) (usecase.MasteryUsecase, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return usecase.NewMasteryUsecase(mastery,
		usecase.WithLadder(cfg.Ladder()),
		usecase.WithLocation(loc),
	)
}
