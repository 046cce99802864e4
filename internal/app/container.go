package app

import (
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/factdrill/internal/infrastructure/config"
	"github.com/eslsoft/factdrill/internal/usecase"
)

// Container aggregates the application dependencies produced by Wire.
type Container struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Generator usecase.QuestionGenerator
	Sessions  usecase.SessionUsecase
	Practice  usecase.PracticeUsecase
	WeakFacts usecase.WeakFactUsecase
	Mastery   usecase.MasteryUsecase
}
