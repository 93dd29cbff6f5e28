package exec

import (
	"math"
	"strconv"
	"strings"

	"github.com/vango-dev/smarthttp/internal/errors"
)

// Kind is the dynamic type of a Value.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// Value is an integer, floating point, or string value on the operand or
// variable stack.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the value's dynamic type.
func (v Value) Kind() Kind { return v.kind }

// String renders the value for output. Floats always carry a fractional
// part ("2.0") and switch to exponent form outside [1e-3, 1e7).
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	default:
		return v.s
	}
}

// Float64 returns the numeric value as a float, coercing strings.
func (v Value) Float64() (float64, error) {
	n, err := v.Number()
	if err != nil {
		return 0, err
	}
	if n.kind == KindInt {
		return float64(n.i), nil
	}
	return n.f, nil
}

// Number coerces the value to an Int or Float. Strings containing '.', 'e'
// or 'E' parse as floats, other strings as integers.
func (v Value) Number() (Value, error) {
	if v.kind != KindString {
		return v, nil
	}
	s := strings.TrimSpace(v.s)
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, errors.New("E201").WithDetailf("%q", v.s)
		}
		return Float(f), nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Value{}, errors.New("E201").WithDetailf("%q", v.s)
	}
	return Int(i), nil
}

// Arith applies one of + - * / to two values. For the element sequence
// "a b OP" the result is a OP b. If either operand is a float the result
// is a float. Integer division by zero fails; float division follows IEEE.
func Arith(op string, a, b Value) (Value, error) {
	x, err := a.Number()
	if err != nil {
		return Value{}, err
	}
	y, err := b.Number()
	if err != nil {
		return Value{}, err
	}

	if x.kind == KindFloat || y.kind == KindFloat {
		fx, fy := x.asFloat(), y.asFloat()
		switch op {
		case "+":
			return Float(fx + fy), nil
		case "-":
			return Float(fx - fy), nil
		case "*":
			return Float(fx * fy), nil
		case "/":
			return Float(fx / fy), nil
		}
		return Value{}, errors.New("E204").WithDetail(op)
	}

	switch op {
	case "+":
		return Int(x.i + y.i), nil
	case "-":
		return Int(x.i - y.i), nil
	case "*":
		return Int(x.i * y.i), nil
	case "/":
		if y.i == 0 {
			return Value{}, errors.New("E205").WithDetailf("%d / 0", x.i)
		}
		return Int(x.i / y.i), nil
	}
	return Value{}, errors.New("E204").WithDetail(op)
}

// addOverflows reports whether a + b would wrap as integer addition.
func addOverflows(a, b Value) bool {
	x, err := a.Number()
	if err != nil || x.kind != KindInt {
		return false
	}
	y, err := b.Number()
	if err != nil || y.kind != KindInt {
		return false
	}
	if y.i > 0 {
		return x.i > math.MaxInt64-y.i
	}
	return x.i < math.MinInt64-y.i
}

// Compare returns -1, 0, or 1 comparing a and b numerically.
func Compare(a, b Value) (int, error) {
	x, err := a.Number()
	if err != nil {
		return 0, err
	}
	y, err := b.Number()
	if err != nil {
		return 0, err
	}
	if x.kind == KindInt && y.kind == KindInt {
		switch {
		case x.i < y.i:
			return -1, nil
		case x.i > y.i:
			return 1, nil
		}
		return 0, nil
	}
	fx, fy := x.asFloat(), y.asFloat()
	switch {
	case fx < fy:
		return -1, nil
	case fx > fy:
		return 1, nil
	}
	return 0, nil
}

func (v Value) asFloat() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	abs := math.Abs(f)
	if f == 0 || (abs >= 1e-3 && abs < 1e7) {
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}

	// 1.5E+07 -> 1.5E7, 1E-05 -> 1.0E-5
	s := strconv.FormatFloat(f, 'E', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mantissa, ".") {
		mantissa += ".0"
	}
	sign := ""
	if strings.HasPrefix(exp, "-") {
		sign = "-"
	}
	exp = strings.TrimLeft(exp, "+-0")
	if exp == "" {
		exp = "0"
	}
	return mantissa + "E" + sign + exp
}
