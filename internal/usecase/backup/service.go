package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/lo"

	"github.com/eslsoft/factdrill/internal/entity"
)

const (
	defaultBatchSize = 512
	formatVersion    = 1
)

var errNoTablesSelected = errors.New("backup: no tables selected")

type ProgressReporter interface {
	StartTable(table string, total int)
	Increment(table string, delta int)
	FinishTable(table string)
}

type noopProgress struct{}

func (noopProgress) StartTable(string, int) {}
func (noopProgress) Increment(string, int)  {}
func (noopProgress) FinishTable(string)     {}

// Service streams the practice history to and from NDJSON.
type Service struct {
	driver     string
	dsn        string
	batchSize  int
	tables     []table
	schemaHash string
}

type Option func(*Service)

func WithBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// NewService returns a Service that opens its own connection per call.
func NewService(driver, dsn string, opts ...Option) (*Service, error) {
	driver = strings.TrimSpace(strings.ToLower(driver))
	if driver == "" {
		return nil, errors.New("backup: driver is required")
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("backup: DSN is required")
	}
	svc := &Service{
		driver:     driver,
		dsn:        dsn,
		batchSize:  defaultBatchSize,
		tables:     catalogue,
		schemaHash: computeSchemaHash(catalogue),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

type ExportOption func(*exportConfig)

type exportConfig struct {
	tables   []string
	reporter ProgressReporter
}

// WithTables limits the export to the named tables.
func WithTables(tables []string) ExportOption {
	return func(cfg *exportConfig) {
		if len(tables) == 0 {
			return
		}
		cfg.tables = append([]string{}, tables...)
	}
}

func WithProgressReporter(reporter ProgressReporter) ExportOption {
	return func(cfg *exportConfig) {
		cfg.reporter = reporter
	}
}

type ImportOption func(*importConfig)

type importConfig struct {
	tables []string
}

// WithImportTables skips records of any other table.
func WithImportTables(tables []string) ImportOption {
	return func(cfg *importConfig) {
		if len(tables) == 0 {
			return
		}
		cfg.tables = append([]string{}, tables...)
	}
}

type record struct {
	Type       string         `json:"type"`
	Version    int            `json:"version,omitempty"`
	ExportedAt *time.Time     `json:"exported_at,omitempty"`
	SchemaHash string         `json:"schema_hash,omitempty"`
	Tables     []string       `json:"tables,omitempty"`
	RowCounts  map[string]int `json:"row_counts,omitempty"`
	Payload    any            `json:"payload,omitempty"`
}

type rawRecord struct {
	Type       string          `json:"type"`
	Version    int             `json:"version"`
	SchemaHash string          `json:"schema_hash"`
	Payload    json.RawMessage `json:"payload"`
}

func (s *Service) Export(ctx context.Context, w io.Writer, opts ...ExportOption) error {
	cfg := exportConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	tables, err := s.selectTables(cfg.tables)
	if err != nil {
		return err
	}
	reporter := cfg.reporter
	if reporter == nil {
		reporter = noopProgress{}
	}

	db, err := s.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	counts := make(map[string]int, len(tables))
	for _, tbl := range tables {
		var count int
		if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+tbl.Name); err != nil {
			return fmt.Errorf("count table %s: %w", tbl.Name, err)
		}
		counts[tbl.Name] = count
	}

	writer := bufio.NewWriter(w)
	defer writer.Flush()

	now := time.Now().UTC()
	meta := record{
		Type:       "meta",
		Version:    formatVersion,
		ExportedAt: &now,
		SchemaHash: s.schemaHash,
		Tables:     lo.Map(tables, func(t table, _ int) string { return t.Name }),
		RowCounts:  counts,
	}
	if err := writeRecord(writer, meta); err != nil {
		return err
	}

	for _, tbl := range tables {
		reporter.StartTable(tbl.Name, counts[tbl.Name])
		if err := s.exportTable(ctx, db, tbl, reporter, writer); err != nil {
			return err
		}
		reporter.FinishTable(tbl.Name)
	}
	return writer.Flush()
}

func (s *Service) Import(ctx context.Context, r io.Reader, opts ...ImportOption) error {
	cfg := importConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	tables, err := s.selectTables(cfg.tables)
	if err != nil {
		return err
	}
	tableFilter := lo.KeyBy(tables, func(t table) string { return t.Name })

	db, err := s.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	br := bufio.NewReader(r)
	var (
		metaSeen bool
		maxID    = make(map[string]int64)
	)
	for {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read backup: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var rec rawRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			if rec.Type == "meta" {
				if rec.Version != formatVersion {
					return fmt.Errorf("backup: unsupported format version %d", rec.Version)
				}
				if rec.SchemaHash != s.schemaHash {
					return fmt.Errorf("backup: schema hash %q does not match %q", rec.SchemaHash, s.schemaHash)
				}
				metaSeen = true
			} else if tbl, ok := tableFilter[rec.Type]; ok {
				if !metaSeen {
					return errors.New("backup: meta record must come first")
				}
				if len(rec.Payload) == 0 {
					return fmt.Errorf("backup: missing payload for table %s", rec.Type)
				}
				if err := s.importRow(ctx, tx, tbl, rec.Payload, maxID); err != nil {
					return err
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	if !metaSeen {
		return errors.New("backup: missing meta record")
	}

	if err := s.syncSequences(ctx, tx, maxID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	commit = true
	return nil
}

func (s *Service) exportTable(ctx context.Context, db *sqlx.DB, tbl table, reporter ProgressReporter, w io.Writer) error {
	columns := tbl.columnNames()
	batch := s.batchSize
	for offset := 0; ; offset += batch {
		query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT %d OFFSET %d",
			strings.Join(columns, ", "), tbl.Name, strings.Join(tbl.Key, ", "), batch, offset)
		rows, err := db.QueryxContext(ctx, query)
		if err != nil {
			return fmt.Errorf("query %s: %w", tbl.Name, err)
		}

		rowCount := 0
		for rows.Next() {
			values := make(map[string]any, len(columns))
			if err := rows.MapScan(values); err != nil {
				rows.Close()
				return fmt.Errorf("scan %s: %w", tbl.Name, err)
			}
			payload, err := convertRow(tbl, values)
			if err != nil {
				rows.Close()
				return err
			}
			if err := writeRecord(w, record{Type: tbl.Name, Payload: payload}); err != nil {
				rows.Close()
				return err
			}
			reporter.Increment(tbl.Name, 1)
			rowCount++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate %s: %w", tbl.Name, err)
		}
		rows.Close()
		if rowCount < batch {
			return nil
		}
	}
}

func (s *Service) importRow(ctx context.Context, tx *sqlx.Tx, tbl table, payload json.RawMessage, maxID map[string]int64) error {
	values, err := decodePayload(tbl, payload)
	if err != nil {
		return fmt.Errorf("decode payload for %s: %w", tbl.Name, err)
	}

	cols := make([]string, 0, len(tbl.Columns))
	args := make([]any, 0, len(tbl.Columns))
	for _, col := range tbl.Columns {
		val, ok := values[col.Name]
		if !ok || val == nil {
			return fmt.Errorf("backup: missing required value for %s.%s", tbl.Name, col.Name)
		}
		cols = append(cols, col.Name)
		args = append(args, val)
		if col.Serial {
			if id, ok := val.(int64); ok && id > maxID[tbl.Name] {
				maxID[tbl.Name] = id
			}
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)%s",
		tbl.Name,
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
		buildUpsertClause(tbl, cols),
	)
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("insert into %s: %w", tbl.Name, err)
	}
	return nil
}

// buildUpsertClause skips rows already present, or for versioned tables
// replaces them only with a newer version.
func buildUpsertClause(tbl table, cols []string) string {
	conflict := fmt.Sprintf(" ON CONFLICT (%s)", strings.Join(tbl.Key, ", "))
	if tbl.KeepNewer == "" {
		return conflict + " DO NOTHING"
	}
	updates := lo.FilterMap(cols, func(c string, _ int) (string, bool) {
		return fmt.Sprintf("%s = excluded.%s", c, c), !tbl.isKey(c)
	})
	return fmt.Sprintf("%s DO UPDATE SET %s WHERE excluded.%s > %s.%s",
		conflict, strings.Join(updates, ", "), tbl.KeepNewer, tbl.Name, tbl.KeepNewer)
}

func (s *Service) syncSequences(ctx context.Context, tx *sqlx.Tx, maxID map[string]int64) error {
	if s.driver != "postgres" && s.driver != "postgresql" {
		return nil
	}
	for _, tbl := range s.tables {
		for _, col := range tbl.Columns {
			if !col.Serial || maxID[tbl.Name] <= 0 {
				continue
			}
			query := fmt.Sprintf(
				"SELECT setval(pg_get_serial_sequence('%s', '%s'), GREATEST($1, (SELECT COALESCE(MAX(%s), 0) FROM %s)))",
				tbl.Name, col.Name, col.Name, tbl.Name)
			if _, err := tx.ExecContext(ctx, query, maxID[tbl.Name]); err != nil {
				return fmt.Errorf("sync sequence for %s.%s: %w", tbl.Name, col.Name, err)
			}
		}
	}
	return nil
}

func (s *Service) selectTables(requested []string) ([]table, error) {
	if len(requested) == 0 {
		return append([]table(nil), s.tables...), nil
	}
	set := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		n := strings.TrimSpace(strings.ToLower(name))
		if n == "" {
			continue
		}
		if !lo.ContainsBy(s.tables, func(t table) bool { return t.Name == n }) {
			return nil, fmt.Errorf("backup: unsupported table %q", name)
		}
		set[n] = struct{}{}
	}
	if len(set) == 0 {
		return nil, errNoTablesSelected
	}
	return lo.Filter(s.tables, func(t table, _ int) bool {
		_, ok := set[t.Name]
		return ok
	}), nil
}

func (s *Service) openDB(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, s.driver, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if s.driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func writeRecord(w io.Writer, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return err
	}
	return nil
}

func convertRow(tbl table, values map[string]any) (map[string]any, error) {
	result := make(map[string]any, len(values))
	for name, value := range values {
		col, ok := tbl.column(name)
		if !ok {
			return nil, fmt.Errorf("column %s not found in table %s", name, tbl.Name)
		}
		converted, err := convertDBValue(col, value)
		if err != nil {
			return nil, fmt.Errorf("convert %s.%s: %w", tbl.Name, name, err)
		}
		result[name] = converted
	}
	return result, nil
}

func convertDBValue(col column, value any) (any, error) {
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	if value == nil {
		return nil, nil
	}
	switch col.Kind {
	case kindInt:
		return toInt64(value)
	case kindBool:
		return toBool(value)
	case kindTime:
		t, err := toTime(value, time.RFC3339Nano)
		if err != nil {
			return nil, err
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	case kindDate:
		t, err := toTime(value, entity.DateLayout)
		if err != nil {
			return nil, err
		}
		return t.Format(entity.DateLayout), nil
	default:
		return fmt.Sprint(value), nil
	}
}

func decodePayload(tbl table, payload json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	result := make(map[string]any, len(raw))
	for key, val := range raw {
		col, ok := tbl.column(key)
		if !ok {
			return nil, fmt.Errorf("column %s not found in table %s", key, tbl.Name)
		}
		converted, err := convertJSONValue(col, val)
		if err != nil {
			return nil, fmt.Errorf("convert %s.%s: %w", tbl.Name, key, err)
		}
		result[key] = converted
	}
	return result, nil
}

func convertJSONValue(col column, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch col.Kind {
	case kindInt:
		return toInt64(value)
	case kindBool:
		return toBool(value)
	case kindTime:
		return toTime(value, time.RFC3339Nano)
	case kindDate:
		// Dates travel as text; both drivers accept the ISO form.
		t, err := toTime(value, entity.DateLayout)
		if err != nil {
			return nil, err
		}
		return t.Format(entity.DateLayout), nil
	default:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return s, nil
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported integer value %T", value)
	}
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case json.Number:
		n, err := v.Int64()
		return n != 0, err
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("unsupported boolean value %T", value)
	}
}

func toTime(value any, layout string) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		t, err := time.Parse(layout, v)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", value)
	}
}
