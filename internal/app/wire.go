//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/factdrill/internal/adapter/repository"
	"github.com/eslsoft/factdrill/internal/infrastructure/config"
	"github.com/eslsoft/factdrill/internal/infrastructure/logging"
	"github.com/eslsoft/factdrill/internal/usecase"
)

var configSet = wire.NewSet(
	config.Load,
)

var loggingSet = wire.NewSet(
	logging.NewLogger,
	wire.Bind(new(logrus.FieldLogger), new(*logrus.Logger)),
)

var repositorySet = wire.NewSet(
	repository.NewStore,
	wire.FieldsOf(new(*repository.Store), "Attempts", "Mastery"),
)

var usecaseSet = wire.NewSet(
	ProvideQuestionGenerator,
	ProvideSessionComposer,
	ProvideWeakFactUsecase,
	ProvideMasteryUsecase,
	usecase.NewSessionUsecase,
	usecase.NewPracticeUsecase,
)

// Initialize builds the application container using Wire.
func Initialize() (*Container, func(), error) {
	wire.Build(
		configSet,
		loggingSet,
		repositorySet,
		usecaseSet,
		wire.Struct(new(Container), "*"),
	)
	return nil, nil, nil
}
