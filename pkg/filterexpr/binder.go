// Package filterexpr turns restricted CEL filter expressions into typed query structs.
//
// Only conjunctions of simple comparisons are accepted, e.g.
//
//	operation == 'divide' && accuracy <= 0.5 && table in [7, 8]
//
// Every field and operator must be whitelisted by a Schema.
package filterexpr

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// ValueKind describes the kind of literal value a field accepts.
type ValueKind string

const (
	KindString    ValueKind = "string"
	KindNumber    ValueKind = "number"
	KindTimestamp ValueKind = "timestamp"
)

// Op represents a supported comparison operation.
type Op string

const (
	OpEQ  Op = "=="
	OpLT  Op = "<"
	OpLTE Op = "<="
	OpGT  Op = ">"
	OpGTE Op = ">="
	OpIN  Op = "in"
)

var binaryOps = map[string]Op{
	"_==_": OpEQ,
	"_<_":  OpLT,
	"_<=_": OpLTE,
	"_>_":  OpGT,
	"_>=_": OpGTE,
}

// SetterFunc allows custom assignment of literal values to struct fields.
type SetterFunc func(field reflect.Value, value any) error

// FieldRule describes how a filter field maps onto the binding struct.
// Ops maps each allowed operator to the name of the struct field it fills.
type FieldRule struct {
	Kind   ValueKind
	Ops    map[Op]string
	Setter SetterFunc
}

// Schema whitelists the fields a filter may reference.
type Schema struct {
	Fields map[string]FieldRule
}

var timeType = reflect.TypeOf(time.Time{})

type predicate struct {
	Field string
	Op    Op
	Value any
}

// BindCELTo parses filter and assigns every predicate to binding, which must
// be a non-nil pointer to a struct. An empty filter leaves binding untouched.
func BindCELTo(filter string, binding any, schema Schema) error {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil
	}
	if len(schema.Fields) == 0 {
		return errors.New("filter schema has no fields defined")
	}

	dest := reflect.ValueOf(binding)
	if dest.Kind() != reflect.Ptr || dest.IsNil() {
		return errors.New("binding must be a non-nil pointer")
	}
	dest = dest.Elem()
	if dest.Kind() != reflect.Struct {
		return errors.New("binding must point to a struct")
	}

	env, err := newEnv(schema.Fields)
	if err != nil {
		return err
	}
	ast, issues := env.Parse(filter)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid filter: %w", issues.Err())
	}
	parsed, err := cel.AstToParsedExpr(ast)
	if err != nil {
		return fmt.Errorf("convert filter AST: %w", err)
	}
	conjuncts, err := flattenAnd(parsed.GetExpr())
	if err != nil {
		return err
	}

	for _, expr := range conjuncts {
		pred, err := parsePredicate(expr)
		if err != nil {
			return err
		}
		rule, ok := schema.Fields[pred.Field]
		if !ok {
			return fmt.Errorf("field %q is not allowed", pred.Field)
		}
		target, ok := rule.Ops[pred.Op]
		if !ok {
			return fmt.Errorf("operator %q is not allowed for field %q", string(pred.Op), pred.Field)
		}
		if err := checkLiteral(rule.Kind, pred.Op, pred.Value); err != nil {
			return fmt.Errorf("field %q: %w", pred.Field, err)
		}

		field := dest.FieldByName(target)
		if !field.IsValid() {
			return fmt.Errorf("binding %s has no field named %q", dest.Type(), target)
		}
		if !field.CanSet() {
			return fmt.Errorf("cannot set field %q on binding", target)
		}
		if rule.Setter != nil {
			if field.Kind() == reflect.Ptr && field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			if err := rule.Setter(field, pred.Value); err != nil {
				return fmt.Errorf("setter for field %q failed: %w", target, err)
			}
			continue
		}
		if err := assign(field, pred.Value); err != nil {
			return fmt.Errorf("assign field %q: %w", target, err)
		}
	}
	return nil
}

func newEnv(fields map[string]FieldRule) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(fields)+1)
	for name, rule := range fields {
		var typ *cel.Type
		switch rule.Kind {
		case KindString:
			typ = cel.StringType
		case KindNumber:
			typ = cel.DoubleType
		case KindTimestamp:
			typ = cel.TimestampType
		default:
			return nil, fmt.Errorf("field %q: unsupported field kind %s", name, rule.Kind)
		}
		opts = append(opts, cel.Variable(name, typ))
	}
	opts = append(opts, cel.CrossTypeNumericComparisons(true))
	return cel.NewEnv(opts...)
}

// flattenAnd turns nested binary && calls into a flat list of predicates.
func flattenAnd(expr *exprpb.Expr) ([]*exprpb.Expr, error) {
	if expr == nil {
		return nil, errors.New("empty expression")
	}
	call := expr.GetCallExpr()
	if call == nil {
		return []*exprpb.Expr{expr}, nil
	}
	switch call.Function {
	case "_&&_":
		var out []*exprpb.Expr
		for _, arg := range call.Args {
			sub, err := flattenAnd(arg)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil
	case "_||_", "_?_:_", "!_":
		return nil, fmt.Errorf("logical operator %q is not supported; only AND is allowed", call.Function)
	default:
		return []*exprpb.Expr{expr}, nil
	}
}

func parsePredicate(expr *exprpb.Expr) (predicate, error) {
	call := expr.GetCallExpr()
	if call == nil {
		return predicate{}, errors.New("unsupported expression; expected a comparison")
	}
	if op, ok := binaryOps[call.Function]; ok {
		if call.Target != nil || len(call.Args) != 2 {
			return predicate{}, fmt.Errorf("operator %q expects two operands", string(op))
		}
		return newPredicate(call.Args[0], op, call.Args[1])
	}
	if call.Function == "@in" || call.Function == "_in_" {
		if len(call.Args) != 2 {
			return predicate{}, errors.New("in operator expects two operands")
		}
		return newPredicate(call.Args[0], OpIN, call.Args[1])
	}
	return predicate{}, fmt.Errorf("function %q is not supported", call.Function)
}

func newPredicate(lhs *exprpb.Expr, op Op, rhs *exprpb.Expr) (predicate, error) {
	ident := lhs.GetIdentExpr()
	if ident == nil {
		return predicate{}, errors.New("left-hand side must be an identifier")
	}
	value, err := parseLiteral(rhs)
	if err != nil {
		return predicate{}, err
	}
	return predicate{Field: ident.GetName(), Op: op, Value: value}, nil
}

func parseLiteral(expr *exprpb.Expr) (any, error) {
	if constant := expr.GetConstExpr(); constant != nil {
		switch constant.ConstantKind.(type) {
		case *exprpb.Constant_StringValue:
			return constant.GetStringValue(), nil
		case *exprpb.Constant_Int64Value:
			return float64(constant.GetInt64Value()), nil
		case *exprpb.Constant_Uint64Value:
			return float64(constant.GetUint64Value()), nil
		case *exprpb.Constant_DoubleValue:
			return constant.GetDoubleValue(), nil
		default:
			return nil, fmt.Errorf("literal type %T is not supported", constant.ConstantKind)
		}
	}

	if list := expr.GetListExpr(); list != nil {
		return parseList(list.GetElements())
	}

	if call := expr.GetCallExpr(); call != nil && call.Function == "timestamp" {
		if call.Target != nil || len(call.Args) != 1 {
			return nil, errors.New("timestamp() expects a single string argument")
		}
		raw := call.Args[0].GetConstExpr().GetStringValue()
		if raw == "" {
			return nil, errors.New("timestamp() argument must be a non-empty string literal")
		}
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return ts, nil
		}
		if day, err := time.Parse("2006-01-02", raw); err == nil {
			return day, nil
		}
		return nil, fmt.Errorf("timestamp literal %q is not RFC3339", raw)
	}

	return nil, errors.New("right-hand side must be a literal, list literal, or timestamp() call")
}

// parseList returns []string or []float64; mixed lists are rejected.
func parseList(elements []*exprpb.Expr) (any, error) {
	if len(elements) == 0 {
		return nil, errors.New("list literal must not be empty")
	}
	var (
		strs []string
		nums []float64
	)
	for i, elem := range elements {
		val, err := parseLiteral(elem)
		if err != nil {
			return nil, fmt.Errorf("list literal element %d: %w", i, err)
		}
		switch v := val.(type) {
		case string:
			strs = append(strs, v)
		case float64:
			nums = append(nums, v)
		default:
			return nil, fmt.Errorf("list literal element %d must be a string or number", i)
		}
	}
	switch {
	case len(strs) > 0 && len(nums) > 0:
		return nil, errors.New("list literal elements must share one type")
	case len(strs) > 0:
		return strs, nil
	default:
		return nums, nil
	}
}

func checkLiteral(kind ValueKind, op Op, value any) error {
	if op == OpIN {
		switch kind {
		case KindString:
			if _, ok := value.([]string); !ok {
				return errors.New("list literal elements must be strings")
			}
		case KindNumber:
			if _, ok := value.([]float64); !ok {
				return errors.New("list literal elements must be numbers")
			}
		default:
			return fmt.Errorf("in operator is not supported for %s fields", kind)
		}
		return nil
	}

	var ok bool
	switch kind {
	case KindString:
		_, ok = value.(string)
	case KindNumber:
		_, ok = value.(float64)
	case KindTimestamp:
		_, ok = value.(time.Time)
	default:
		return fmt.Errorf("unsupported field kind %s", kind)
	}
	if !ok {
		return fmt.Errorf("expected %s literal", kind)
	}
	return nil
}

func assign(field reflect.Value, value any) error {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return assign(field.Elem(), value)
	}

	switch v := value.(type) {
	case string:
		if field.Kind() != reflect.String {
			return fmt.Errorf("expected string-compatible destination, got %s", field.Kind())
		}
		field.SetString(v)
	case float64:
		return assignNumber(field, v)
	case []string:
		if field.Kind() != reflect.Slice || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("expected string slice destination, got %s", field.Type())
		}
		out := reflect.MakeSlice(field.Type(), len(v), len(v))
		for i, s := range v {
			out.Index(i).SetString(s)
		}
		field.Set(out)
	case []float64:
		if field.Kind() != reflect.Slice {
			return fmt.Errorf("expected slice destination, got %s", field.Kind())
		}
		out := reflect.MakeSlice(field.Type(), len(v), len(v))
		for i, n := range v {
			if err := assignNumber(out.Index(i), n); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		field.Set(out)
	case time.Time:
		if field.Type() != timeType {
			return fmt.Errorf("expected time.Time destination, got %s", field.Type())
		}
		field.Set(reflect.ValueOf(v))
	default:
		return fmt.Errorf("unsupported literal type %T", value)
	}
	return nil
}

func assignNumber(field reflect.Value, value float64) error {
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		field.SetFloat(value)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if math.Trunc(value) != value {
			return fmt.Errorf("cannot assign non-integer value %v to integer field", value)
		}
		if field.OverflowInt(int64(value)) {
			return fmt.Errorf("value %v overflows integer field", value)
		}
		field.SetInt(int64(value))
		return nil
	default:
		return fmt.Errorf("numeric assignment requires integer or float field, got %s", field.Kind())
	}
}
