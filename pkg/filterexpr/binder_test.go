package filterexpr

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type weakParams struct {
	Operation   *string
	Tables      []int
	MaxAccuracy *float64
	MinSeen     *int
	Since       *time.Time
	Limit       int32
}

var weakSchema = Schema{
	Fields: map[string]FieldRule{
		"operation": {
			Kind: KindString,
			Ops:  map[Op]string{OpEQ: "Operation"},
		},
		"table": {
			Kind: KindNumber,
			Ops:  map[Op]string{OpEQ: "Tables", OpIN: "Tables"},
			Setter: func(field reflect.Value, v any) error {
				switch n := v.(type) {
				case float64:
					field.Set(reflect.ValueOf([]int{int(n)}))
				case []float64:
					out := make([]int, len(n))
					for i := range n {
						out[i] = int(n[i])
					}
					field.Set(reflect.ValueOf(out))
				default:
					return fmt.Errorf("unexpected table literal %T", v)
				}
				return nil
			},
		},
		"accuracy": {
			Kind: KindNumber,
			Ops:  map[Op]string{OpLTE: "MaxAccuracy", OpLT: "MaxAccuracy"},
		},
		"seen": {
			Kind: KindNumber,
			Ops:  map[Op]string{OpGTE: "MinSeen"},
		},
		"attempted_at": {
			Kind: KindTimestamp,
			Ops:  map[Op]string{OpGTE: "Since"},
		},
	},
}

func TestBindCELTo_WeakFacts(t *testing.T) {
	var params weakParams
	timestamp := "2025-01-01T00:00:00Z"
	filter := fmt.Sprintf("operation == 'divide' && accuracy <= 0.5 && seen >= 3 && attempted_at >= timestamp('%s')", timestamp)

	if err := BindCELTo(filter, &params, weakSchema); err != nil {
		t.Fatalf("BindCELTo returned error: %v", err)
	}

	if params.Operation == nil || *params.Operation != "divide" {
		t.Fatalf("expected Operation to be 'divide', got %v", params.Operation)
	}
	if params.MaxAccuracy == nil || *params.MaxAccuracy != 0.5 {
		t.Fatalf("expected MaxAccuracy 0.5, got %v", params.MaxAccuracy)
	}
	if params.MinSeen == nil || *params.MinSeen != 3 {
		t.Fatalf("expected MinSeen 3, got %v", params.MinSeen)
	}
	if params.Tables != nil {
		t.Fatalf("expected Tables to stay nil, got %v", params.Tables)
	}

	want, _ := time.Parse(time.RFC3339, timestamp)
	if params.Since == nil || !params.Since.Equal(want) {
		t.Fatalf("expected Since %v, got %v", want, params.Since)
	}
}

func TestBindCELTo_EmptyFilter(t *testing.T) {
	params := weakParams{Limit: 7}
	if err := BindCELTo("   ", &params, weakSchema); err != nil {
		t.Fatalf("BindCELTo returned error: %v", err)
	}
	if !reflect.DeepEqual(params, weakParams{Limit: 7}) {
		t.Fatalf("empty filter modified params: %+v", params)
	}
}

func TestBindCELTo_DateOnlyTimestamp(t *testing.T) {
	var params weakParams
	if err := BindCELTo("attempted_at >= timestamp('2024-03-02')", &params, weakSchema); err != nil {
		t.Fatalf("BindCELTo returned error: %v", err)
	}
	if want := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC); params.Since == nil || !params.Since.Equal(want) {
		t.Fatalf("expected Since %v, got %v", want, params.Since)
	}
}

func TestBindCELTo_NumberInOperator(t *testing.T) {
	var params weakParams
	if err := BindCELTo("table in [7, 8]", &params, weakSchema); err != nil {
		t.Fatalf("BindCELTo returned error: %v", err)
	}
	if want := []int{7, 8}; !reflect.DeepEqual(params.Tables, want) {
		t.Fatalf("expected Tables %v, got %v", want, params.Tables)
	}

	params = weakParams{}
	if err := BindCELTo("table == 9", &params, weakSchema); err != nil {
		t.Fatalf("BindCELTo returned error: %v", err)
	}
	if want := []int{9}; !reflect.DeepEqual(params.Tables, want) {
		t.Fatalf("expected Tables %v, got %v", want, params.Tables)
	}
}

func TestBindCELTo_StringInOperator(t *testing.T) {
	type params struct {
		Ops []string
	}
	schema := Schema{
		Fields: map[string]FieldRule{
			"operation": {
				Kind: KindString,
				Ops:  map[Op]string{OpIN: "Ops"},
			},
		},
	}

	var p params
	if err := BindCELTo("operation in ['multiply', 'divide']", &p, schema); err != nil {
		t.Fatalf("BindCELTo returned error: %v", err)
	}
	if want := []string{"multiply", "divide"}; !reflect.DeepEqual(p.Ops, want) {
		t.Fatalf("expected Ops %v, got %v", want, p.Ops)
	}
}

func TestBindCELTo_CustomSetter(t *testing.T) {
	type withPG struct {
		Operation pgtype.Text
	}

	schema := Schema{
		Fields: map[string]FieldRule{
			"operation": {
				Kind: KindString,
				Ops:  map[Op]string{OpEQ: "Operation"},
				Setter: func(field reflect.Value, v any) error {
					text, ok := v.(string)
					if !ok {
						return fmt.Errorf("expected string, got %T", v)
					}
					field.Set(reflect.ValueOf(pgtype.Text{String: text, Valid: true}))
					return nil
				},
			},
		},
	}

	var params withPG
	if err := BindCELTo("operation == 'multiply'", &params, schema); err != nil {
		t.Fatalf("BindCELTo returned error: %v", err)
	}
	if !params.Operation.Valid || params.Operation.String != "multiply" {
		t.Fatalf("expected operation multiply, got %+v", params.Operation)
	}
}

func TestBindCELTo_IntegerFieldRejectsFraction(t *testing.T) {
	var params weakParams
	err := BindCELTo("seen >= 2.5", &params, weakSchema)
	if err == nil || !strings.Contains(err.Error(), "non-integer") {
		t.Fatalf("expected non-integer error, got %v", err)
	}
}

func TestBindCELTo_Errors(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   string
	}{
		{"unsupported field", "unknown == 'x'", "not allowed"},
		{"unsupported operator", "operation <= 'a'", "operator"},
		{"bad literal type", "operation == 1", "expected string"},
		{"bad logical op", "operation == 'divide' || accuracy <= 0.5", "only AND"},
		{"negation", "!(seen >= 2)", "only AND"},
		{"non literal", "accuracy <= foo", "right-hand side"},
		{"mixed list", "table in [7, 'x']", "share one type"},
		{"string list for number", "table in ['7']", "must be numbers"},
		{"unsupported function", "operation.startsWith('d')", "not supported"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var params weakParams
			err := BindCELTo(tc.filter, &params, weakSchema)
			if err == nil {
				t.Fatalf("expected error for %q", tc.filter)
			}
			if !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(tc.want)) {
				t.Fatalf("expected error to contain %q, got %v", tc.want, err)
			}
		})
	}
}

func TestBindCELTo_InvalidBinding(t *testing.T) {
	var params *weakParams
	if err := BindCELTo("operation == 'divide'", params, weakSchema); err == nil {
		t.Fatalf("expected error when binding is a nil pointer")
	}
	var notStruct int
	if err := BindCELTo("operation == 'divide'", &notStruct, weakSchema); err == nil {
		t.Fatalf("expected error when binding is not a struct")
	}
}
