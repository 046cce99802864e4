package usecase

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/repository"
)

type fakeAttemptRepo struct {
	mu       sync.RWMutex
	seq      int64
	items    []entity.AttemptRecord
	tallyErr error
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{}
}

func (r *fakeAttemptRepo) Append(ctx context.Context, attempt *entity.AttemptRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	attempt.ID = r.seq
	r.items = append(r.items, *attempt)
	return nil
}

func (r *fakeAttemptRepo) TallyByFact(ctx context.Context, query repository.TallyQuery) ([]entity.FactTally, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.tallyErr != nil {
		return nil, r.tallyErr
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	index := make(map[entity.FactKey]int)
	var tallies []entity.FactTally
	for _, a := range r.items {
		if a.UserID != query.UserID {
			continue
		}
		if query.Operation != nil && a.Fact.Operation != *query.Operation {
			continue
		}
		if len(query.Tables) > 0 && !lo.Contains(query.Tables, a.Fact.Table()) {
			continue
		}
		if query.Since != nil && a.AttemptedAt.Before(*query.Since) {
			continue
		}
		if query.After != nil && !a.AttemptedAt.After(*query.After) {
			continue
		}
		i, ok := index[a.Fact.Key()]
		if !ok {
			i = len(tallies)
			index[a.Fact.Key()] = i
			tallies = append(tallies, entity.FactTally{Fact: a.Fact})
		}
		tallies[i].TimesSeen++
		if !a.IsCorrect {
			tallies[i].TimesIncorrect++
		}
		tallies[i].TotalLatency += a.Latency
	}
	return tallies, nil
}

func (r *fakeAttemptRepo) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// record appends attempts for fact following the given outcomes.
func (r *fakeAttemptRepo) record(userID int64, fact entity.Fact, outcomes ...bool) {
	for _, ok := range outcomes {
		_ = r.Append(context.Background(), &entity.AttemptRecord{
			UserID:      userID,
			Fact:        fact,
			IsCorrect:   ok,
			Latency:     time.Second,
			AttemptedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		})
	}
}

type masteryKey struct {
	userID int64
	fact   entity.FactKey
}

type fakeMasteryRepo struct {
	mu      sync.RWMutex
	items   map[masteryKey]entity.MasteryRecord
	listErr error
}

func newFakeMasteryRepo() *fakeMasteryRepo {
	return &fakeMasteryRepo{items: make(map[masteryKey]entity.MasteryRecord)}
}

func (r *fakeMasteryRepo) Upsert(ctx context.Context, userID int64, fact entity.Fact, mutate repository.MasteryMutation) (*entity.MasteryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := masteryKey{userID: userID, fact: fact.Key()}
	var current *entity.MasteryRecord
	if existing, ok := r.items[key]; ok {
		current = &existing
	}
	next := mutate(current)
	next.UserID = userID
	next.Fact = fact
	if current != nil {
		next.Version = current.Version + 1
	} else {
		next.Version = 1
	}
	r.items[key] = next
	return &next, nil
}

func (r *fakeMasteryRepo) Get(ctx context.Context, userID int64, fact entity.Fact) (*entity.MasteryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.items[masteryKey{userID: userID, fact: fact.Key()}]
	if !ok {
		return nil, entity.ErrMasteryNotFound
	}
	return &record, nil
}

func (r *fakeMasteryRepo) ListDue(ctx context.Context, userID int64, day time.Time) ([]entity.MasteryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var due []entity.MasteryRecord
	for key, record := range r.items {
		if key.userID == userID && record.IsDue(day) {
			due = append(due, record)
		}
	}
	return due, nil
}

func (r *fakeMasteryRepo) CountDue(ctx context.Context, userID int64, day time.Time) (int, error) {
	due, err := r.ListDue(ctx, userID, day)
	return len(due), err
}

// put stores a record directly, bypassing the scheduler.
func (r *fakeMasteryRepo) put(record entity.MasteryRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[masteryKey{userID: record.UserID, fact: record.Fact.Key()}] = record
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seededGenerator(seed int64, opts ...GeneratorOption) QuestionGenerator {
	return NewQuestionGenerator(append([]GeneratorOption{WithRand(rand.New(rand.NewSource(seed)))}, opts...)...)
}

func allTables() []int {
	return []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
}

func factKeys(questions []entity.Question) map[entity.FactKey]int {
	keys := make(map[entity.FactKey]int, len(questions))
	for _, q := range questions {
		keys[q.Key()]++
	}
	return keys
}
