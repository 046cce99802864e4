package backup

import (
	"crypto/sha256"
	"encoding/base64"
	"sort"
	"strings"
)

type columnKind string

const (
	kindInt  columnKind = "int"
	kindBool columnKind = "bool"
	kindText columnKind = "text"
	kindTime columnKind = "time"
	kindDate columnKind = "date"
)

type column struct {
	Name string
	Kind columnKind
	// Serial columns feed the postgres sequence sync after import.
	Serial bool
}

type table struct {
	Name    string
	Columns []column
	Key     []string
	// KeepNewer guards updates on import; rows only replace older versions.
	KeepNewer string
}

var catalogue = []table{
	{
		Name: "attempts",
		Columns: []column{
			{Name: "id", Kind: kindInt, Serial: true},
			{Name: "user_id", Kind: kindInt},
			{Name: "operation", Kind: kindText},
			{Name: "operand_a", Kind: kindInt},
			{Name: "operand_b", Kind: kindInt},
			{Name: "is_correct", Kind: kindBool},
			{Name: "latency_ms", Kind: kindInt},
			{Name: "attempted_at", Kind: kindTime},
		},
		Key: []string{"id"},
	},
	{
		Name: "mastery_records",
		Columns: []column{
			{Name: "user_id", Kind: kindInt},
			{Name: "operation", Kind: kindText},
			{Name: "operand_a", Kind: kindInt},
			{Name: "operand_b", Kind: kindInt},
			{Name: "interval_days", Kind: kindInt},
			{Name: "repetitions", Kind: kindInt},
			{Name: "next_review_on", Kind: kindDate},
			{Name: "last_reviewed_at", Kind: kindTime},
			{Name: "version", Kind: kindInt},
		},
		Key:       []string{"user_id", "operation", "operand_a", "operand_b"},
		KeepNewer: "version",
	},
}

func (t table) columnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (t table) column(name string) (column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return column{}, false
}

func (t table) isKey(name string) bool {
	for _, k := range t.Key {
		if k == name {
			return true
		}
	}
	return false
}

// computeSchemaHash fingerprints the catalogue so imports can detect drift.
func computeSchemaHash(tables []table) string {
	sorted := append([]table(nil), tables...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	var b strings.Builder
	for _, t := range sorted {
		b.WriteString(t.Name)
		b.WriteByte('(')
		for _, c := range t.Columns {
			b.WriteString(c.Name)
			b.WriteByte(':')
			b.WriteString(string(c.Kind))
			b.WriteByte(',')
		}
		b.WriteString(");")
	}
	sum := sha256.Sum256([]byte(b.String()))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
