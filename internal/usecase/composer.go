package usecase

import (
	"math"

	"github.com/eslsoft/factdrill/internal/entity"
)

const defaultAdaptiveRatio = 0.7

// SeverityBand gives facts below MaxAccuracy the sampling Weight.
type SeverityBand struct {
	MaxAccuracy float64
	Weight      int
}

// DefaultSeverityBands weight facts under 50%, 75% and 90% accuracy by 10, 5 and 3.
func DefaultSeverityBands() []SeverityBand {
	return []SeverityBand{
		{MaxAccuracy: 0.5, Weight: 10},
		{MaxAccuracy: 0.75, Weight: 5},
		{MaxAccuracy: 0.9, Weight: 3},
	}
}

// SessionComposer turns weak or due facts into a question list.
type SessionComposer interface {
	ComposePlain(cfg entity.SessionConfig) ([]entity.Question, error)
	ComposeAdaptive(cfg entity.SessionConfig, weak []entity.WeakFactSummary) ([]entity.Question, error)
	ComposeDue(cfg entity.SessionConfig, due []entity.Fact) ([]entity.Question, error)
}

// ComposerOption customises a SessionComposer.
type ComposerOption func(*sessionComposer)

// WithAdaptiveRatio sets the share of an adaptive session drawn from weak facts.
func WithAdaptiveRatio(ratio float64) ComposerOption {
	return func(c *sessionComposer) {
		if ratio >= 0 && ratio <= 1 {
			c.adaptiveRatio = ratio
		}
	}
}

// WithMultiplierRange bounds the multipliers of generated questions.
func WithMultiplierRange(lower, upper int) ComposerOption {
	return func(c *sessionComposer) {
		c.multiplierMin, c.multiplierMax = lower, upper
	}
}

// WithTopUpAttempts bounds the single-question redraws used to fill a session.
func WithTopUpAttempts(n int) ComposerOption {
	return func(c *sessionComposer) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// NewSessionComposer builds a composer on top of generator.
func NewSessionComposer(generator QuestionGenerator, opts ...ComposerOption) SessionComposer {
	c := &sessionComposer{
		generator:     generator,
		adaptiveRatio: defaultAdaptiveRatio,
		bands:         DefaultSeverityBands(),
		maxAttempts:   defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sessionComposer struct {
	generator     QuestionGenerator
	adaptiveRatio float64
	bands         []SeverityBand
	multiplierMin int
	multiplierMax int
	maxAttempts   int
}

func (c *sessionComposer) generateConfig(cfg entity.SessionConfig, count int) GenerateConfig {
	return GenerateConfig{
		Tables:        cfg.Tables,
		Operations:    cfg.Operations,
		MultiplierMin: c.multiplierMin,
		MultiplierMax: c.multiplierMax,
		Count:         count,
	}
}

func (c *sessionComposer) severity(accuracy float64) int {
	for _, band := range c.bands {
		if accuracy < band.MaxAccuracy {
			return band.Weight
		}
	}
	return 1
}

func (c *sessionComposer) ComposePlain(cfg entity.SessionConfig) ([]entity.Question, error) {
	return c.generator.Generate(c.generateConfig(cfg, cfg.QuestionCount))
}

func (c *sessionComposer) ComposeAdaptive(cfg entity.SessionConfig, weak []entity.WeakFactSummary) ([]entity.Question, error) {
	gen := c.generateConfig(cfg, cfg.QuestionCount)
	if err := gen.Validate(); err != nil {
		return nil, err
	}
	if len(weak) == 0 {
		return c.generator.Generate(gen)
	}

	count := cfg.QuestionCount
	weakTarget := int(math.Round(c.adaptiveRatio * float64(count)))

	pool := make([]entity.Question, 0, len(weak)*c.severity(0))
	for _, summary := range weak {
		if err := summary.Fact.Validate(); err != nil {
			return nil, err
		}
		q := entity.NewQuestion(summary.Fact)
		for i := 0; i < c.severity(summary.AccuracyRate); i++ {
			pool = append(pool, q)
		}
	}
	c.generator.Shuffle(pool)

	seen := make(map[entity.FactKey]struct{}, count)
	questions := make([]entity.Question, 0, count)
	for _, q := range pool {
		if len(questions) == weakTarget {
			break
		}
		if _, dup := seen[q.Key()]; dup {
			continue
		}
		seen[q.Key()] = struct{}{}
		questions = append(questions, q)
	}

	if normal := count - weakTarget; normal > 0 {
		gen.Count = normal
		extra, err := c.generator.Generate(gen)
		if err != nil {
			return nil, err
		}
		for _, q := range extra {
			if _, dup := seen[q.Key()]; dup {
				continue
			}
			seen[q.Key()] = struct{}{}
			questions = append(questions, q)
		}
	}

	for len(questions) < count {
		q, err := c.drawUnique(cfg, seen)
		if err != nil {
			return nil, err
		}
		seen[q.Key()] = struct{}{}
		questions = append(questions, q)
	}

	c.generator.Shuffle(questions)
	return questions, nil
}

// drawUnique returns the first single draw not in seen, or the last draw
// once maxAttempts is exhausted.
func (c *sessionComposer) drawUnique(cfg entity.SessionConfig, seen map[entity.FactKey]struct{}) (entity.Question, error) {
	var q entity.Question
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		var err error
		q, err = c.generator.GenerateOne(c.generateConfig(cfg, 1))
		if err != nil {
			return entity.Question{}, err
		}
		if _, dup := seen[q.Key()]; !dup {
			break
		}
	}
	return q, nil
}

// ComposeDue validates cfg like the other modes, but due facts are served
// regardless of the selected tables and operations.
func (c *sessionComposer) ComposeDue(cfg entity.SessionConfig, due []entity.Fact) ([]entity.Question, error) {
	if err := c.generateConfig(cfg, cfg.QuestionCount).Validate(); err != nil {
		return nil, err
	}
	questions := make([]entity.Question, 0, min(len(due), cfg.QuestionCount))
	for _, f := range due {
		if len(questions) == cfg.QuestionCount {
			break
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		questions = append(questions, entity.NewQuestion(f))
	}
	c.generator.Shuffle(questions)
	return questions, nil
}
