package repository

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/infrastructure/database"
	"github.com/eslsoft/factdrill/internal/repository"
)

// requireSQLite opens a migrated database in a temp dir, skipping when the
// binary was built without cgo.
func requireSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "drill.db") + "?_busy_timeout=5000"
	db, cleanup, err := database.OpenSQLite(dsn)
	if err != nil {
		if strings.Contains(err.Error(), "CGO_ENABLED=0") {
			t.Skip("sqlite3 requires cgo")
		}
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(cleanup)
	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func appendAttempt(t *testing.T, repo repository.AttemptRepository, userID int64, fact entity.Fact, correct bool, latency time.Duration, at time.Time) {
	t.Helper()
	attempt := &entity.AttemptRecord{
		UserID:      userID,
		Fact:        fact,
		IsCorrect:   correct,
		Latency:     latency,
		AttemptedAt: at,
	}
	if err := repo.Append(context.Background(), attempt); err != nil {
		t.Fatalf("Append(%s) returned error: %v", fact, err)
	}
	if attempt.ID == 0 {
		t.Fatalf("Append(%s) did not assign an id", fact)
	}
}

func TestSQLiteAttemptTally(t *testing.T) {
	db := requireSQLite(t)
	repo := NewSQLiteAttemptRepository(db)
	ctx := context.Background()
	day1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	seven := entity.MultiplyFact(7, 8)
	appendAttempt(t, repo, 1, seven, false, 3*time.Second, day1)
	appendAttempt(t, repo, 1, seven, false, 2*time.Second, day1)
	appendAttempt(t, repo, 1, seven, true, time.Second, day2)
	appendAttempt(t, repo, 1, entity.DivideFact(6, 3), true, time.Second, day2)
	appendAttempt(t, repo, 2, seven, true, time.Second, day2)

	tallies, err := repo.TallyByFact(ctx, repository.TallyQuery{UserID: 1})
	if err != nil {
		t.Fatalf("TallyByFact returned error: %v", err)
	}
	if len(tallies) != 2 {
		t.Fatalf("expected 2 tallies, got %+v", tallies)
	}
	byKey := make(map[entity.FactKey]entity.FactTally, len(tallies))
	for _, tally := range tallies {
		byKey[tally.Fact.Key()] = tally
	}
	got := byKey[seven.Key()]
	if got.TimesSeen != 3 || got.TimesIncorrect != 2 || got.TotalLatency != 6*time.Second {
		t.Fatalf("unexpected tally for %s: %+v", seven, got)
	}

	divide := entity.OperationDivide
	filtered, err := repo.TallyByFact(ctx, repository.TallyQuery{UserID: 1, Operation: &divide})
	if err != nil {
		t.Fatalf("TallyByFact(operation) returned error: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Fact != entity.DivideFact(6, 3) {
		t.Fatalf("operation filter not applied: %+v", filtered)
	}

	byTable, err := repo.TallyByFact(ctx, repository.TallyQuery{UserID: 1, Tables: []int{8, 9}})
	if err != nil {
		t.Fatalf("TallyByFact(tables) returned error: %v", err)
	}
	if len(byTable) != 1 || byTable[0].Fact != seven {
		t.Fatalf("table filter not applied: %+v", byTable)
	}

	since, err := repo.TallyByFact(ctx, repository.TallyQuery{UserID: 1, Since: &day2})
	if err != nil {
		t.Fatalf("TallyByFact(since) returned error: %v", err)
	}
	for _, tally := range since {
		if tally.Fact == seven && (tally.TimesSeen != 1 || tally.TimesIncorrect != 0) {
			t.Fatalf("since filter not applied: %+v", tally)
		}
	}

	after, err := repo.TallyByFact(ctx, repository.TallyQuery{UserID: 1, After: &day2})
	if err != nil {
		t.Fatalf("TallyByFact(after) returned error: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("after filter must exclude attempts at the boundary: %+v", after)
	}
}

func TestSQLiteAttemptAppendValidates(t *testing.T) {
	repo := NewSQLiteAttemptRepository(requireSQLite(t))
	err := repo.Append(context.Background(), &entity.AttemptRecord{UserID: 0, Fact: entity.MultiplyFact(2, 3)})
	if !errors.Is(err, entity.ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	err = repo.Append(context.Background(), &entity.AttemptRecord{UserID: 1, Fact: entity.Fact{OperandA: 7, OperandB: 2, Operation: entity.OperationDivide}})
	if !errors.Is(err, entity.ErrInvalidFact) {
		t.Fatalf("expected ErrInvalidFact, got %v", err)
	}
}

func bump(day time.Time) repository.MasteryMutation {
	return func(current *entity.MasteryRecord) entity.MasteryRecord {
		next := entity.MasteryRecord{IntervalDays: 1}
		if current != nil {
			next = *current
		}
		next.Repetitions++
		next.NextReviewOn = day
		next.LastReviewedAt = day.Add(9 * time.Hour)
		return next
	}
}

func TestSQLiteMasteryUpsertAndDue(t *testing.T) {
	repo := NewSQLiteMasteryRepository(requireSQLite(t))
	ctx := context.Background()
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	fact := entity.MultiplyFact(7, 8)

	if _, err := repo.Get(ctx, 1, fact); !errors.Is(err, entity.ErrMasteryNotFound) {
		t.Fatalf("expected ErrMasteryNotFound, got %v", err)
	}

	first, err := repo.Upsert(ctx, 1, fact, bump(today))
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if first.Version != 1 || first.Repetitions != 1 {
		t.Fatalf("unexpected first record %+v", first)
	}
	second, err := repo.Upsert(ctx, 1, fact, bump(today.AddDate(0, 0, 3)))
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if second.Version != 2 || second.Repetitions != 2 {
		t.Fatalf("unexpected second record %+v", second)
	}

	stored, err := repo.Get(ctx, 1, fact)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !stored.NextReviewOn.Equal(today.AddDate(0, 0, 3)) || stored.Version != 2 || stored.Fact != fact {
		t.Fatalf("unexpected stored record %+v", stored)
	}
	if !stored.LastReviewedAt.Equal(today.AddDate(0, 0, 3).Add(9 * time.Hour)) {
		t.Fatalf("last reviewed not round-tripped: %v", stored.LastReviewedAt)
	}

	if _, err := repo.Upsert(ctx, 1, entity.DivideFact(4, 6), bump(today)); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if _, err := repo.Upsert(ctx, 2, fact, bump(today)); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	due, err := repo.ListDue(ctx, 1, today)
	if err != nil {
		t.Fatalf("ListDue returned error: %v", err)
	}
	if len(due) != 1 || due[0].Fact != entity.DivideFact(4, 6) {
		t.Fatalf("unexpected due records %+v", due)
	}
	count, err := repo.CountDue(ctx, 1, today.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("CountDue returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 due records, got %d", count)
	}
}

func TestSQLiteMasteryConcurrentUpsertsDoNotLoseUpdates(t *testing.T) {
	const writers = 12
	repo := NewSQLiteMasteryRepository(requireSQLite(t), WithUpsertRetries(writers+1))
	ctx := context.Background()
	fact := entity.MultiplyFact(6, 7)
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Upsert(ctx, 1, fact, bump(today)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Upsert failed: %v", err)
	}

	stored, err := repo.Get(ctx, 1, fact)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.Repetitions != writers || stored.Version != writers {
		t.Fatalf("expected %d repetitions and version, got %+v", writers, stored)
	}
}

func TestCASUpsertGivesUpAfterRetries(t *testing.T) {
	calls := 0
	_, err := casUpsert(context.Background(), 3, 1, entity.MultiplyFact(2, 2), bump(time.Now()),
		func(context.Context) (*entity.MasteryRecord, error) { return nil, nil },
		func(context.Context, entity.MasteryRecord) (bool, error) {
			calls++
			return false, nil
		})
	if !errors.Is(err, entity.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 write attempts, got %d", calls)
	}
}
