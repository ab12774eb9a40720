package raster

import (
	"fmt"
	"math"
)

// Op is one operator from the closed band-algebra set. There is no generic
// expression evaluation: every operator is dispatched explicitly below and
// anything outside the set is rejected up front.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpPow
	OpLt
	OpGt
	OpEq
	OpNe
	OpLe
	OpGe
)

var opNames = map[Op]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpPow: "**",
	OpLt: "<", OpGt: ">", OpEq: "==", OpNe: "!=", OpLe: "<=", OpGe: ">=",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// IsComparison reports whether the operator yields 0/1 truth values.
func (op Op) IsComparison() bool {
	switch op {
	case OpLt, OpGt, OpEq, OpNe, OpLe, OpGe:
		return true
	}
	return false
}

// ParseOp resolves an operator symbol. Unknown symbols fail with
// ErrUnsupportedOperator before any computation happens.
func ParseOp(symbol string) (Op, error) {
	for op, s := range opNames {
		if s == symbol {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedOperator, symbol)
}

func (op Op) eval(a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	case OpPow:
		return math.Pow(a, b)
	case OpLt:
		return boolVal(a < b)
	case OpGt:
		return boolVal(a > b)
	case OpEq:
		return boolVal(a == b)
	case OpNe:
		return boolVal(a != b)
	case OpLe:
		return boolVal(a <= b)
	case OpGe:
		return boolVal(a >= b)
	}
	return math.NaN()
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Calc applies op elementwise between b and right, which may be a scalar
// (any numeric type), an *Array of identical shape, or another *Band of
// identical shape. The result is a new Band carrying b's geo-referencing:
// Float64 for arithmetic, Byte 0/1 for comparisons. Masks from both
// operands are OR-combined onto the result.
func Calc(b *Band, op Op, right interface{}) (*Band, error) {
	if _, ok := opNames[op]; !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedOperator, op)
	}

	var (
		scalar    float64
		rightArr  *Array
		rightMask []bool
	)
	switch rv := right.(type) {
	case int:
		scalar = float64(rv)
	case int64:
		scalar = float64(rv)
	case float32:
		scalar = float64(rv)
	case float64:
		scalar = rv
	case *Array:
		rightArr = rv
	case *Band:
		rightArr = rv.Values
		rightMask = rv.Mask
	default:
		return nil, fmt.Errorf("%w: operand type %T", ErrUnsupportedOperator, right)
	}
	if rightArr != nil && !b.Values.SameShape(rightArr) {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch,
			b.Rows(), b.Cols(), rightArr.Rows(), rightArr.Cols())
	}

	dtype := DTFloat64
	if op.IsComparison() {
		dtype = DTByte
	}
	out, err := NewArray(dtype, b.Rows(), b.Cols())
	if err != nil {
		return nil, err
	}
	for i := 0; i < out.Len(); i++ {
		rv := scalar
		if rightArr != nil {
			rv = rightArr.ValueAt(i)
		}
		out.SetValueAt(i, op.eval(b.Values.ValueAt(i), rv))
	}

	var mask []bool
	if b.Mask != nil || rightMask != nil {
		mask = make([]bool, out.Len())
		for i := range mask {
			mask[i] = (b.Mask != nil && b.Mask[i]) || (rightMask != nil && rightMask[i])
		}
	}

	nb := b.Copy()
	nb.Values = out
	nb.Mask = mask
	nb.Nodata = dtype.DefaultNodata()
	nb.Scale, nb.Offset = 1, 0
	return nb, nil
}

// CalcSymbol parses the operator symbol and applies it. It exists for
// callers holding operators as configuration strings.
func CalcSymbol(b *Band, symbol string, right interface{}) (*Band, error) {
	op, err := ParseOp(symbol)
	if err != nil {
		return nil, err
	}
	return Calc(b, op, right)
}
