package cmd

import (
	"fmt"
	"reflect"

	"github.com/eslsoft/factdrill/internal/entity"
	"github.com/eslsoft/factdrill/pkg/filterexpr"
)

// weakFactsSchema lists the fields `weak --filter` may reference. Each
// operator maps to a field of repository.WeakFactQuery, e.g.
//
//	operation == 'divide' && table in [7, 8] && accuracy <= 0.5
var weakFactsSchema = filterexpr.Schema{
	Fields: map[string]filterexpr.FieldRule{
		"operation": {
			Kind:   filterexpr.KindString,
			Ops:    map[filterexpr.Op]string{filterexpr.OpEQ: "Operation"},
			Setter: setOperation,
		},
		"table": {
			Kind: filterexpr.KindNumber,
			Ops: map[filterexpr.Op]string{
				filterexpr.OpEQ: "Tables",
				filterexpr.OpIN: "Tables",
			},
			Setter: setTables,
		},
		"accuracy": {
			Kind: filterexpr.KindNumber,
			Ops: map[filterexpr.Op]string{
				filterexpr.OpLT:  "AccuracyBelow",
				filterexpr.OpLTE: "MaxAccuracy",
			},
		},
		"seen": {
			Kind: filterexpr.KindNumber,
			Ops: map[filterexpr.Op]string{
				filterexpr.OpGTE: "MinSeen",
			},
		},
		"attempted_at": {
			Kind: filterexpr.KindTimestamp,
			Ops: map[filterexpr.Op]string{
				filterexpr.OpGT:  "After",
				filterexpr.OpGTE: "Since",
			},
		},
	},
}

func setOperation(field reflect.Value, value any) error {
	raw, ok := value.(string)
	if !ok {
		return fmt.Errorf("unexpected operation literal %T", value)
	}
	op := entity.ParseOperation(raw)
	if !op.Valid() {
		return fmt.Errorf("%w: unknown operation %q", entity.ErrInvalidConfig, raw)
	}
	field.Set(reflect.ValueOf(&op))
	return nil
}

func setTables(field reflect.Value, value any) error {
	var raw []float64
	switch v := value.(type) {
	case float64:
		raw = []float64{v}
	case []float64:
		raw = v
	default:
		return fmt.Errorf("unexpected table literal %T", value)
	}
	tables := make([]int, 0, len(raw))
	for _, n := range raw {
		if n != float64(int(n)) || n <= 0 {
			return fmt.Errorf("%w: invalid table %v", entity.ErrInvalidConfig, n)
		}
		tables = append(tables, int(n))
	}
	field.Set(reflect.ValueOf(tables))
	return nil
}
