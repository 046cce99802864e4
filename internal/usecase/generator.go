package usecase

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/factdrill/internal/entity"
)

const (
	defaultMultiplierMin = 1
	defaultMultiplierMax = 10
	defaultMaxAttempts   = 1000
)

// WeightConfig assigns a sampling weight to every operand value. The weight
// of a (multiplier, table) combination is the product of both values' weights.
type WeightConfig struct {
	Easy          []int
	EasyWeight    float64
	Medium        []int
	MediumWeight  float64
	HardMin       int
	HardMax       int
	HardWeight    float64
	DefaultWeight float64
}

// DefaultWeights skews sampling toward the 3..9 tables.
func DefaultWeights() WeightConfig {
	return WeightConfig{
		Easy:          []int{1, 10},
		EasyWeight:    0.5,
		Medium:        []int{2},
		MediumWeight:  1,
		HardMin:       3,
		HardMax:       9,
		HardWeight:    5,
		DefaultWeight: 1,
	}
}

// Of returns the weight of a single operand value.
func (w WeightConfig) Of(value int) float64 {
	switch {
	case lo.Contains(w.Easy, value):
		return w.EasyWeight
	case lo.Contains(w.Medium, value):
		return w.MediumWeight
	case value >= w.HardMin && value <= w.HardMax:
		return w.HardWeight
	default:
		return w.DefaultWeight
	}
}

func (w WeightConfig) validate() error {
	if w.EasyWeight <= 0 || w.MediumWeight <= 0 || w.HardWeight <= 0 || w.DefaultWeight <= 0 {
		return fmt.Errorf("%w: weights must be positive", entity.ErrInvalidConfig)
	}
	return nil
}

// GenerateConfig describes one batch of plain practice questions.
type GenerateConfig struct {
	Tables     []int
	Operations []entity.Operation
	// MultiplierMin and MultiplierMax bound the multiplier; both zero means 1..10.
	MultiplierMin int
	MultiplierMax int
	Count         int
}

func (c GenerateConfig) multiplierRange() (int, int) {
	if c.MultiplierMin == 0 && c.MultiplierMax == 0 {
		return defaultMultiplierMin, defaultMultiplierMax
	}
	return c.MultiplierMin, c.MultiplierMax
}

// Validate rejects configurations the generator cannot sample from.
func (c GenerateConfig) Validate() error {
	if len(c.Tables) == 0 {
		return fmt.Errorf("%w: at least one table is required", entity.ErrInvalidConfig)
	}
	if len(c.Operations) == 0 {
		return fmt.Errorf("%w: at least one operation is required", entity.ErrInvalidConfig)
	}
	if c.Count <= 0 {
		return fmt.Errorf("%w: question count must be positive, got %d", entity.ErrInvalidConfig, c.Count)
	}
	for _, t := range c.Tables {
		if t <= 0 {
			return fmt.Errorf("%w: table must be positive, got %d", entity.ErrInvalidConfig, t)
		}
	}
	for _, op := range c.Operations {
		if !op.Valid() {
			return fmt.Errorf("%w: unknown operation %q", entity.ErrInvalidConfig, string(op))
		}
	}
	mMin, mMax := c.multiplierRange()
	if mMin < 1 || mMax < mMin {
		return fmt.Errorf("%w: multiplier range %d..%d", entity.ErrInvalidConfig, mMin, mMax)
	}
	return nil
}

// QuestionGenerator samples arithmetic facts with a skew toward hard tables.
type QuestionGenerator interface {
	Generate(cfg GenerateConfig) ([]entity.Question, error)
	GenerateOne(cfg GenerateConfig) (entity.Question, error)
	DifficultyOf(fact entity.Fact) float64
	Shuffle(questions []entity.Question)
}

// GeneratorOption customises a QuestionGenerator.
type GeneratorOption func(*questionGenerator)

// WithRand injects the random source, typically a seeded one in tests.
func WithRand(rnd *rand.Rand) GeneratorOption {
	return func(g *questionGenerator) {
		if rnd != nil {
			g.rnd = newLockedRand(rnd)
		}
	}
}

// WithWeights replaces the default operand weights.
func WithWeights(weights WeightConfig) GeneratorOption {
	return func(g *questionGenerator) {
		g.weights = weights
	}
}

// WithMaxAttempts bounds the weighted redraws made per missing question.
func WithMaxAttempts(n int) GeneratorOption {
	return func(g *questionGenerator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithGeneratorLogger routes degraded-outcome warnings to logger.
func WithGeneratorLogger(logger logrus.FieldLogger) GeneratorOption {
	return func(g *questionGenerator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewQuestionGenerator builds a generator with the default weights and a time-seeded source.
func NewQuestionGenerator(opts ...GeneratorOption) QuestionGenerator {
	g := &questionGenerator{
		rnd:         newLockedRand(nil),
		weights:     DefaultWeights(),
		maxAttempts: defaultMaxAttempts,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type questionGenerator struct {
	rnd         *lockedRand
	weights     WeightConfig
	maxAttempts int
	logger      logrus.FieldLogger
}

type combination struct {
	multiplier int
	table      int
	op         entity.Operation
	weight     float64
}

func (c combination) fact() entity.Fact {
	if c.op == entity.OperationDivide {
		return entity.DivideFact(c.multiplier, c.table)
	}
	return entity.MultiplyFact(c.multiplier, c.table)
}

func (g *questionGenerator) Generate(cfg GenerateConfig) ([]entity.Question, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := g.weights.validate(); err != nil {
		return nil, err
	}

	combos := g.combinations(cfg)
	pool := make([]combination, 0, len(combos)*4)
	for _, c := range combos {
		copies := int(math.Round(c.weight))
		for i := 0; i < copies; i++ {
			pool = append(pool, c)
		}
	}
	g.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	seen := make(map[entity.FactKey]struct{}, cfg.Count)
	questions := make([]entity.Question, 0, cfg.Count)
	for _, c := range pool {
		if len(questions) == cfg.Count {
			break
		}
		f := c.fact()
		if _, dup := seen[f.Key()]; dup {
			continue
		}
		seen[f.Key()] = struct{}{}
		questions = append(questions, entity.NewQuestion(f))
	}

	if len(questions) < cfg.Count {
		questions = g.fillWeighted(questions, seen, combos, cfg.Count)
	}

	for _, q := range questions {
		if err := q.Check(); err != nil {
			return nil, err
		}
	}
	g.Shuffle(questions)
	return questions, nil
}

// fillWeighted tops up the list with weighted draws. After maxAttempts
// duplicate draws for one slot the last draw is accepted as is.
func (g *questionGenerator) fillWeighted(questions []entity.Question, seen map[entity.FactKey]struct{}, combos []combination, count int) []entity.Question {
	cumulative := make([]float64, len(combos))
	total := 0.0
	for i, c := range combos {
		total += c.weight
		cumulative[i] = total
	}

	duplicates := 0
	for len(questions) < count {
		var f entity.Fact
		unique := false
		for attempt := 0; attempt < g.maxAttempts; attempt++ {
			target := g.rnd.Float64() * total
			idx := sort.SearchFloat64s(cumulative, target)
			if idx >= len(combos) {
				idx = len(combos) - 1
			}
			f = combos[idx].fact()
			if _, dup := seen[f.Key()]; !dup {
				unique = true
				break
			}
		}
		if !unique {
			duplicates++
		}
		seen[f.Key()] = struct{}{}
		questions = append(questions, entity.NewQuestion(f))
	}
	if duplicates > 0 {
		g.logger.WithFields(logrus.Fields{
			"requested":  count,
			"duplicates": duplicates,
		}).Warn("not enough distinct facts, session contains repeated questions")
	}
	return questions
}

func (g *questionGenerator) combinations(cfg GenerateConfig) []combination {
	mMin, mMax := cfg.multiplierRange()
	tables := lo.Uniq(cfg.Tables)
	ops := lo.Uniq(cfg.Operations)
	combos := make([]combination, 0, len(ops)*len(tables)*(mMax-mMin+1))
	for _, op := range ops {
		for m := mMin; m <= mMax; m++ {
			for _, t := range tables {
				combos = append(combos, combination{
					multiplier: m,
					table:      t,
					op:         op,
					weight:     g.weights.Of(t) * g.weights.Of(m),
				})
			}
		}
	}
	return combos
}

// GenerateOne draws a single unweighted question within cfg's tables,
// operations and multiplier range. cfg.Count is ignored.
func (g *questionGenerator) GenerateOne(cfg GenerateConfig) (entity.Question, error) {
	cfg.Count = 1
	if err := cfg.Validate(); err != nil {
		return entity.Question{}, err
	}
	mMin, mMax := cfg.multiplierRange()
	c := combination{
		op:         cfg.Operations[g.rnd.Intn(len(cfg.Operations))],
		multiplier: mMin + g.rnd.Intn(mMax-mMin+1),
		table:      cfg.Tables[g.rnd.Intn(len(cfg.Tables))],
	}
	q := entity.NewQuestion(c.fact())
	if err := q.Check(); err != nil {
		return entity.Question{}, err
	}
	return q, nil
}

// DifficultyOf is the sampling weight of the fact's (multiplier, table) pair.
func (g *questionGenerator) DifficultyOf(fact entity.Fact) float64 {
	return g.weights.Of(fact.Table()) * g.weights.Of(fact.Multiplier())
}

func (g *questionGenerator) Shuffle(questions []entity.Question) {
	g.rnd.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
}
