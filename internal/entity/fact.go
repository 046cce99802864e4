package entity

import (
	"fmt"
	"strings"
)

// Operation identifies the arithmetic direction of a practiced fact.
type Operation string

const (
	OperationUnspecified Operation = ""
	OperationMultiply    Operation = "multiply"
	OperationDivide      Operation = "divide"
)

// Operations lists every supported operation in a stable order.
var Operations = []Operation{OperationMultiply, OperationDivide}

// Valid reports whether the operation is one the engine knows how to answer.
func (o Operation) Valid() bool {
	return o == OperationMultiply || o == OperationDivide
}

// Symbol returns the arithmetic sign used when rendering a question.
func (o Operation) Symbol() string {
	switch o {
	case OperationMultiply:
		return "×"
	case OperationDivide:
		return "÷"
	default:
		return "?"
	}
}

// ParseOperation converts loose user input ("x", "mul", "divide") into an Operation.
func ParseOperation(raw string) Operation {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "multiply", "mul", "x", "*", "×":
		return OperationMultiply
	case "divide", "div", "/", "÷":
		return OperationDivide
	default:
		return OperationUnspecified
	}
}

// Fact is one practiced arithmetic combination.
//
// For multiplication OperandA is the multiplier and OperandB the table.
// For division OperandA is the product and OperandB the table; the implied
// multiplier is OperandA / OperandB and must be integral.
type Fact struct {
	OperandA  int       `json:"operand_a"`
	OperandB  int       `json:"operand_b"`
	Operation Operation `json:"operation"`
}

// FactKey is the direction-sensitive identity used to deduplicate facts.
type FactKey struct {
	A  int
	B  int
	Op Operation
}

// MultiplyFact builds the multiplication fact multiplier × table.
func MultiplyFact(multiplier, table int) Fact {
	return Fact{OperandA: multiplier, OperandB: table, Operation: OperationMultiply}
}

// DivideFact builds the division fact (multiplier*table) ÷ table.
func DivideFact(multiplier, table int) Fact {
	return Fact{OperandA: multiplier * table, OperandB: table, Operation: OperationDivide}
}

// Key returns the canonical deduplication key.
func (f Fact) Key() FactKey {
	return FactKey{A: f.OperandA, B: f.OperandB, Op: f.Operation}
}

// Table returns the times-table the fact belongs to.
func (f Fact) Table() int { return f.OperandB }

// Multiplier returns the multiplier, deriving it from the product for divisions.
func (f Fact) Multiplier() int {
	if f.Operation == OperationDivide && f.OperandB != 0 {
		return f.OperandA / f.OperandB
	}
	return f.OperandA
}

// Answer computes the expected answer. Call Validate first for untrusted facts.
func (f Fact) Answer() int {
	if f.Operation == OperationDivide {
		if f.OperandB == 0 {
			return 0
		}
		return f.OperandA / f.OperandB
	}
	return f.OperandA * f.OperandB
}

// Validate rejects facts the engine cannot schedule or answer.
func (f Fact) Validate() error {
	if !f.Operation.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidFact, string(f.Operation))
	}
	if f.OperandB <= 0 {
		return fmt.Errorf("%w: table must be positive, got %d", ErrInvalidFact, f.OperandB)
	}
	if f.OperandA < 0 {
		return fmt.Errorf("%w: operand must not be negative, got %d", ErrInvalidFact, f.OperandA)
	}
	if f.Operation == OperationDivide && f.OperandA%f.OperandB != 0 {
		return fmt.Errorf("%w: %d is not divisible by %d", ErrInvalidFact, f.OperandA, f.OperandB)
	}
	return nil
}

// String renders the fact as a prompt, e.g. "7 × 8" or "56 ÷ 8".
func (f Fact) String() string {
	return fmt.Sprintf("%d %s %d", f.OperandA, f.Operation.Symbol(), f.OperandB)
}

// Less orders facts by operation, table, then first operand.
func (f Fact) Less(other Fact) bool {
	if f.Operation != other.Operation {
		return f.Operation > other.Operation // multiply before divide
	}
	if f.OperandB != other.OperandB {
		return f.OperandB < other.OperandB
	}
	return f.OperandA < other.OperandA
}

// Question is a fact paired with its computed answer.
type Question struct {
	Fact
	Answer int `json:"answer"`
}

// NewQuestion computes the answer for a fact.
func NewQuestion(f Fact) Question {
	return Question{Fact: f, Answer: f.Answer()}
}

// Check verifies the stored answer agrees with the fact's arithmetic.
func (q Question) Check() error {
	if err := q.Fact.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInconsistentQuestion, err)
	}
	switch q.Operation {
	case OperationMultiply:
		if q.Answer != q.OperandA*q.OperandB {
			return fmt.Errorf("%w: %s = %d", ErrInconsistentQuestion, q.Fact, q.Answer)
		}
	case OperationDivide:
		if q.OperandA != q.Answer*q.OperandB {
			return fmt.Errorf("%w: %s = %d", ErrInconsistentQuestion, q.Fact, q.Answer)
		}
	}
	return nil
}

// HasDuplicateFacts reports whether any canonical key appears more than once.
func HasDuplicateFacts(questions []Question) bool {
	seen := make(map[FactKey]struct{}, len(questions))
	for _, q := range questions {
		if _, dup := seen[q.Key()]; dup {
			return true
		}
		seen[q.Key()] = struct{}{}
	}
	return false
}
