package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	repoadapter "github.com/eslsoft/factdrill/internal/adapter/repository"
	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/internal/infrastructure/config"
	"github.com/eslsoft/factdrill/internal/infrastructure/database"
	"github.com/eslsoft/factdrill/internal/repository"
)

type sqliteTarget struct {
	db  *sqlx.DB
	dsn string
}

func requireSQLite(t *testing.T, name string) sqliteTarget {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), name) + "?_busy_timeout=5000"
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
	return sqliteTarget{db: db, dsn: dsn}
}

func seed(t *testing.T, db *sqlx.DB) {
	t.Helper()
	ctx := context.Background()
	attempts := repoadapter.NewSQLiteAttemptRepository(db)
	mastery := repoadapter.NewSQLiteMasteryRepository(db)
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	for i, ok := range []bool{false, false, true} {
		err := attempts.Append(ctx, &entity.AttemptRecord{
			UserID:      1,
			Fact:        entity.MultiplyFact(7, 8),
			IsCorrect:   ok,
			Latency:     time.Duration(i+1) * time.Second,
			AttemptedAt: at.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("seed attempt: %v", err)
		}
	}
	err := attempts.Append(ctx, &entity.AttemptRecord{
		UserID: 1, Fact: entity.DivideFact(6, 9), IsCorrect: true, Latency: 1500 * time.Millisecond, AttemptedAt: at,
	})
	if err != nil {
		t.Fatalf("seed attempt: %v", err)
	}

	for i := 0; i < 2; i++ {
		_, err := mastery.Upsert(ctx, 1, entity.MultiplyFact(7, 8), func(current *entity.MasteryRecord) entity.MasteryRecord {
			next := entity.MasteryRecord{IntervalDays: 1}
			if current != nil {
				next = *current
				next.IntervalDays = 3
			}
			next.Repetitions++
			next.NextReviewOn = time.Date(2024, 3, 2+next.IntervalDays, 0, 0, 0, 0, time.UTC)
			next.LastReviewedAt = at
			return next
		})
		if err != nil {
			t.Fatalf("seed mastery: %v", err)
		}
	}
}

func exportTo(t *testing.T, svc *Service, opts ...ExportOption) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := svc.Export(context.Background(), &buf, opts...); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	return &buf
}

type countingProgress struct {
	started  map[string]int
	rows     map[string]int
	finished []string
}

func (p *countingProgress) StartTable(table string, total int) { p.started[table] = total }
func (p *countingProgress) Increment(table string, delta int)  { p.rows[table] += delta }
func (p *countingProgress) FinishTable(table string)           { p.finished = append(p.finished, table) }

func TestExportImportRoundTrip(t *testing.T) {
	src := requireSQLite(t, "src.db")
	dst := requireSQLite(t, "dst.db")
	seed(t, src.db)

	exporter, err := NewService(config.DriverSQLite, src.dsn, WithBatchSize(2))
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	progress := &countingProgress{started: map[string]int{}, rows: map[string]int{}}
	buf := exportTo(t, exporter, WithProgressReporter(progress))

	if progress.started["attempts"] != 4 || progress.rows["attempts"] != 4 {
		t.Fatalf("unexpected attempt progress %+v", progress)
	}
	if progress.rows["mastery_records"] != 1 || len(progress.finished) != 2 {
		t.Fatalf("unexpected mastery progress %+v", progress)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected meta plus 5 rows, got %d lines", len(lines))
	}
	var meta rawRecord
	if err := json.Unmarshal([]byte(lines[0]), &meta); err != nil || meta.Type != "meta" || meta.Version != formatVersion {
		t.Fatalf("unexpected meta line %s (%v)", lines[0], err)
	}

	importer, err := NewService(config.DriverSQLite, dst.dsn)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	if err := importer.Import(context.Background(), bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	// A second import of the same backup changes nothing.
	if err := importer.Import(context.Background(), bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("repeated Import returned error: %v", err)
	}

	ctx := context.Background()
	query := repository.TallyQuery{UserID: 1}
	want, err := repoadapter.NewSQLiteAttemptRepository(src.db).TallyByFact(ctx, query)
	if err != nil {
		t.Fatalf("source tally: %v", err)
	}
	got, err := repoadapter.NewSQLiteAttemptRepository(dst.db).TallyByFact(ctx, query)
	if err != nil {
		t.Fatalf("imported tally: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("tally mismatch: got %+v want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tally %d mismatch: got %+v want %+v", i, got[i], want[i])
		}
	}

	record, err := repoadapter.NewSQLiteMasteryRepository(dst.db).Get(ctx, 1, entity.MultiplyFact(7, 8))
	if err != nil {
		t.Fatalf("imported mastery: %v", err)
	}
	if record.Version != 2 || record.Repetitions != 2 || record.IntervalDays != 3 {
		t.Fatalf("unexpected imported mastery %+v", record)
	}
	if !record.NextReviewOn.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("next review not preserved: %v", record.NextReviewOn)
	}
}

func TestImportKeepsNewerMastery(t *testing.T) {
	src := requireSQLite(t, "src.db")
	dst := requireSQLite(t, "dst.db")
	seed(t, src.db)
	seed(t, dst.db)

	ctx := context.Background()
	mastery := repoadapter.NewSQLiteMasteryRepository(dst.db)
	_, err := mastery.Upsert(ctx, 1, entity.MultiplyFact(7, 8), func(current *entity.MasteryRecord) entity.MasteryRecord {
		next := *current
		next.Repetitions = 9
		return next
	})
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	exporter, _ := NewService(config.DriverSQLite, src.dsn)
	importer, _ := NewService(config.DriverSQLite, dst.dsn)
	buf := exportTo(t, exporter, WithTables([]string{"mastery_records"}))
	if err := importer.Import(ctx, buf); err != nil {
		t.Fatalf("Import returned error: %v", err)
	}

	record, err := mastery.Get(ctx, 1, entity.MultiplyFact(7, 8))
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.Version != 3 || record.Repetitions != 9 {
		t.Fatalf("older backup overwrote newer mastery: %+v", record)
	}
}

func TestImportTableFilter(t *testing.T) {
	src := requireSQLite(t, "src.db")
	dst := requireSQLite(t, "dst.db")
	seed(t, src.db)

	exporter, _ := NewService(config.DriverSQLite, src.dsn)
	importer, _ := NewService(config.DriverSQLite, dst.dsn)
	buf := exportTo(t, exporter)
	if err := importer.Import(context.Background(), buf, WithImportTables([]string{"mastery_records"})); err != nil {
		t.Fatalf("Import returned error: %v", err)
	}

	var attempts, mastery int
	if err := dst.db.Get(&attempts, "SELECT COUNT(*) FROM attempts"); err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if err := dst.db.Get(&mastery, "SELECT COUNT(*) FROM mastery_records"); err != nil {
		t.Fatalf("count mastery: %v", err)
	}
	if attempts != 0 || mastery != 1 {
		t.Fatalf("expected only mastery rows, got attempts=%d mastery=%d", attempts, mastery)
	}
}

func TestImportRejectsBadInput(t *testing.T) {
	dst := requireSQLite(t, "dst.db")
	svc, _ := NewService(config.DriverSQLite, dst.dsn)
	ctx := context.Background()

	cases := map[string]string{
		"missing meta":   `{"type":"attempts","payload":{"id":1}}` + "\n",
		"bad version":    `{"type":"meta","version":99,"schema_hash":"` + svc.schemaHash + `"}` + "\n",
		"schema drift":   `{"type":"meta","version":1,"schema_hash":"nope"}` + "\n",
		"empty backup":   "",
		"malformed line": "{not json}\n",
	}
	for name, input := range cases {
		if err := svc.Import(ctx, strings.NewReader(input)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSelectTables(t *testing.T) {
	svc, err := NewService("sqlite3", "file::memory:")
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	if _, err := svc.selectTables([]string{"words"}); err == nil {
		t.Fatal("expected unsupported table error")
	}
	if _, err := svc.selectTables([]string{" "}); err != errNoTablesSelected {
		t.Fatalf("expected errNoTablesSelected, got %v", err)
	}
	tables, err := svc.selectTables([]string{"Mastery_Records"})
	if err != nil || len(tables) != 1 || tables[0].Name != "mastery_records" {
		t.Fatalf("unexpected selection %+v (%v)", tables, err)
	}
	if _, err := NewService("", "x"); err == nil {
		t.Fatal("expected driver error")
	}
	if _, err := NewService("sqlite3", " "); err == nil {
		t.Fatal("expected DSN error")
	}
}

func TestBuildUpsertClause(t *testing.T) {
	attempts, mastery := catalogue[0], catalogue[1]
	if got := buildUpsertClause(attempts, attempts.columnNames()); got != " ON CONFLICT (id) DO NOTHING" {
		t.Fatalf("unexpected attempts clause %q", got)
	}
	got := buildUpsertClause(mastery, mastery.columnNames())
	if !strings.Contains(got, "DO UPDATE SET interval_days = excluded.interval_days") ||
		strings.Contains(got, "user_id = excluded.user_id") ||
		!strings.HasSuffix(got, "WHERE excluded.version > mastery_records.version") {
		t.Fatalf("unexpected mastery clause %q", got)
	}
}
