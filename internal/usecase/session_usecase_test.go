package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/eslsoft/factdrill/internal/entity"
)

type sessionFixture struct {
	attempts *fakeAttemptRepo
	mastery  *fakeMasteryRepo
	hook     *logtest.Hook
	uc       SessionUsecase
}

func newSessionFixture(t *testing.T, now time.Time) *sessionFixture {
	t.Helper()
	attempts := newFakeAttemptRepo()
	masteryRepo := newFakeMasteryRepo()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	gen := seededGenerator(21)
	mastery := newTestMasteryUsecase(t, masteryRepo, now)
	uc := NewSessionUsecase(gen, NewSessionComposer(gen), NewWeakFactUsecase(attempts), mastery, logger)
	return &sessionFixture{attempts: attempts, mastery: masteryRepo, hook: hook, uc: uc}
}

func practiceConfig(count int) entity.SessionConfig {
	return entity.SessionConfig{
		Tables:          allTables(),
		Operations:      entity.Operations,
		QuestionCount:   count,
		TimePerQuestion: 8 * time.Second,
	}
}

func hasWarning(hook *logtest.Hook) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			return true
		}
	}
	return false
}

func TestPreparePlain(t *testing.T) {
	f := newSessionFixture(t, time.Now())
	session, err := f.uc.Prepare(context.Background(), 0, SessionRequest{Config: practiceConfig(15)})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if session.Mode != entity.SessionModePlain || session.FellBack {
		t.Fatalf("unexpected session header %+v", session)
	}
	if len(session.Questions) != 15 || entity.HasDuplicateFacts(session.Questions) {
		t.Fatalf("expected 15 unique questions, got %d", len(session.Questions))
	}
	if session.TimePerQuestion != 8*time.Second {
		t.Fatalf("time per question not carried over: %v", session.TimePerQuestion)
	}
}

func TestPreparePreGeneratedBypassesGenerator(t *testing.T) {
	f := newSessionFixture(t, time.Now())
	pre := []entity.Question{
		entity.NewQuestion(entity.MultiplyFact(1, 1)),
		entity.NewQuestion(entity.DivideFact(9, 9)),
	}
	cfg := practiceConfig(20)
	cfg.PreGenerated = pre

	session, err := f.uc.Prepare(context.Background(), 1, SessionRequest{Mode: entity.SessionModeAdaptive, Config: cfg})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if len(session.Questions) != 2 || session.Questions[0] != pre[0] || session.Questions[1] != pre[1] {
		t.Fatalf("pre-generated questions not returned verbatim: %+v", session.Questions)
	}

	cfg.PreGenerated = []entity.Question{{Fact: entity.MultiplyFact(2, 2), Answer: 5}}
	if _, err := f.uc.Prepare(context.Background(), 1, SessionRequest{Config: cfg}); !errors.Is(err, entity.ErrInconsistentQuestion) {
		t.Fatalf("expected ErrInconsistentQuestion, got %v", err)
	}
}

func TestPrepareAdaptiveFallsBackWithoutHistory(t *testing.T) {
	f := newSessionFixture(t, time.Now())
	f.attempts.record(1, entity.MultiplyFact(7, 8), false, false)

	session, err := f.uc.Prepare(context.Background(), 1, SessionRequest{Mode: entity.SessionModeAdaptive, Config: practiceConfig(10)})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if !session.FellBack || len(session.Questions) != 10 {
		t.Fatalf("expected plain fallback with 10 questions, got fellBack=%v len=%d", session.FellBack, len(session.Questions))
	}
}

func TestPrepareAdaptiveFallsBackOnStorageError(t *testing.T) {
	f := newSessionFixture(t, time.Now())
	f.attempts.tallyErr = errors.New("database is locked")

	session, err := f.uc.Prepare(context.Background(), 1, SessionRequest{Mode: entity.SessionModeAdaptive, Config: practiceConfig(10)})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if !session.FellBack || len(session.Questions) != 10 {
		t.Fatalf("expected plain fallback with 10 questions, got fellBack=%v len=%d", session.FellBack, len(session.Questions))
	}
	if !hasWarning(f.hook) {
		t.Fatal("expected a warning to be logged for the storage failure")
	}
}

func TestPrepareAdaptiveUsesWeakFacts(t *testing.T) {
	f := newSessionFixture(t, time.Now())
	var weak []entity.Fact
	for m := 2; m <= 7; m++ {
		fact := entity.MultiplyFact(m, 9)
		weak = append(weak, fact)
		f.attempts.record(1, fact, false, false, true)
	}

	session, err := f.uc.Prepare(context.Background(), 1, SessionRequest{Mode: entity.SessionModeAdaptive, Config: practiceConfig(10)})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if session.FellBack {
		t.Fatal("adaptive session should not fall back with enough history")
	}
	if len(session.Questions) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(session.Questions))
	}
	keys := factKeys(session.Questions)
	for _, fact := range weak {
		if keys[fact.Key()] == 0 {
			t.Fatalf("weak fact %s missing from adaptive session", fact)
		}
	}
}

func TestPrepareDue(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newSessionFixture(t, now)
	today := entity.CivilDate(now, time.UTC)
	due := entity.DivideFact(7, 6)
	f.mastery.put(entity.MasteryRecord{UserID: 1, Fact: due, IntervalDays: 1, NextReviewOn: today})
	f.mastery.put(entity.MasteryRecord{UserID: 1, Fact: entity.MultiplyFact(2, 2), IntervalDays: 4, NextReviewOn: today.AddDate(0, 0, 2)})

	session, err := f.uc.Prepare(context.Background(), 1, SessionRequest{Mode: entity.SessionModeDue, Config: practiceConfig(10)})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if session.FellBack || len(session.Questions) != 1 || session.Questions[0].Fact != due {
		t.Fatalf("expected only the due fact, got %+v", session)
	}
}

func TestPrepareDueFallsBack(t *testing.T) {
	f := newSessionFixture(t, time.Now())

	session, err := f.uc.Prepare(context.Background(), 1, SessionRequest{Mode: entity.SessionModeDue, Config: practiceConfig(5)})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if !session.FellBack || len(session.Questions) != 5 {
		t.Fatalf("expected fallback when nothing is due, got %+v", session)
	}

	f.mastery.listErr = errors.New("timeout")
	session, err = f.uc.Prepare(context.Background(), 1, SessionRequest{Mode: entity.SessionModeDue, Config: practiceConfig(5)})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if !session.FellBack || !hasWarning(f.hook) {
		t.Fatalf("expected logged fallback on storage error, got %+v", session)
	}
}

func TestPrepareIncreasingDifficulty(t *testing.T) {
	f := newSessionFixture(t, time.Now())
	cfg := practiceConfig(20)
	cfg.IncreasingDifficulty = true

	session, err := f.uc.Prepare(context.Background(), 0, SessionRequest{Config: cfg})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	gen := NewQuestionGenerator()
	for i := 1; i < len(session.Questions); i++ {
		prev := gen.DifficultyOf(session.Questions[i-1].Fact)
		cur := gen.DifficultyOf(session.Questions[i].Fact)
		if cur < prev {
			t.Fatalf("question %d is easier than its predecessor (%v < %v)", i, cur, prev)
		}
	}
}

func TestPrepareErrors(t *testing.T) {
	f := newSessionFixture(t, time.Now())

	cfg := practiceConfig(10)
	cfg.Tables = nil
	if _, err := f.uc.Prepare(context.Background(), 0, SessionRequest{Config: cfg}); !errors.Is(err, entity.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := f.uc.Prepare(context.Background(), 0, SessionRequest{Mode: entity.SessionModeAdaptive, Config: practiceConfig(5)}); !errors.Is(err, entity.ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}
