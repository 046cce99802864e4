//go:build !wireinject
// +build !wireinject

// Initialize mirrors the provider sets in wire.go and is kept in sync by
// hand; go generate replaces this file with wire's own output.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire

package app

import (
	"github.com/eslsoft/factdrill/internal/adapter/repository"
	"github.com/eslsoft/factdrill/internal/infrastructure/config"
	"github.com/eslsoft/factdrill/internal/infrastructure/logging"
	"github.com/eslsoft/factdrill/internal/usecase"
)

// Initialize builds the application container.
func Initialize() (*Container, func(), error) {
	configConfig, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(configConfig)
	if err != nil {
		return nil, nil, err
	}
	store, cleanup, err := repository.NewStore(configConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	questionGenerator := ProvideQuestionGenerator(configConfig, logger)
	sessionComposer := ProvideSessionComposer(configConfig, questionGenerator)
	attemptRepository := store.Attempts
	weakFactUsecase := ProvideWeakFactUsecase(configConfig, attemptRepository)
	masteryRepository := store.Mastery
	masteryUsecase, err := ProvideMasteryUsecase(configConfig, masteryRepository)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	sessionUsecase := usecase.NewSessionUsecase(questionGenerator, sessionComposer, weakFactUsecase, masteryUsecase, logger)
	practiceUsecase := usecase.NewPracticeUsecase(attemptRepository, masteryUsecase)
	container := &Container{
		Config:    configConfig,
		Logger:    logger,
		Generator: questionGenerator,
		Sessions:  sessionUsecase,
		Practice:  practiceUsecase,
		WeakFacts: weakFactUsecase,
		Mastery:   masteryUsecase,
	}
	return container, func() {
		cleanup()
	}, nil
}
