package parsed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var ErrUnsupportedValue = errors.New("parsed: unsupported value type")

type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is either a Scalar or a Record.
type Value interface {
	isValue()
	// Interface returns the plain Go form used in structured records.
	Interface() any
	String() string
}

// Scalar is a single typed value.
type Scalar struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

func String(s string) Scalar {
	return Scalar{kind: KindString, s: s}
}

func Int(i int64) Scalar {
	return Scalar{kind: KindInt, i: i}
}

func Float(f float64) Scalar {
	return Scalar{kind: KindFloat, f: f}
}

func Bool(b bool) Scalar {
	return Scalar{kind: KindBool, b: b}
}

func (Scalar) isValue() {}

func (s Scalar) Kind() Kind {
	return s.kind
}

// Number returns the numeric form of ints, floats and numeric strings.
func (s Scalar) Number() (float64, bool) {
	switch s.kind {
	case KindInt:
		return float64(s.i), true
	case KindFloat:
		return s.f, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(s.s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Equal compares kind and value; ints and floats compare numerically.
func (s Scalar) Equal(other Scalar) bool {
	if s.numeric() && other.numeric() {
		a, _ := s.Number()
		b, _ := other.Number()
		return a == b
	}
	if s.kind != other.kind {
		return false
	}
	switch s.kind {
	case KindString:
		return s.s == other.s
	case KindBool:
		return s.b == other.b
	default:
		return false
	}
}

func (s Scalar) numeric() bool {
	return s.kind == KindInt || s.kind == KindFloat
}

func (s Scalar) String() string {
	switch s.kind {
	case KindInt:
		return strconv.FormatInt(s.i, 10)
	case KindFloat:
		return FormatNumber(s.f)
	case KindBool:
		return strconv.FormatBool(s.b)
	default:
		return s.s
	}
}

func (s Scalar) Interface() any {
	switch s.kind {
	case KindInt:
		return s.i
	case KindFloat:
		return s.f
	case KindBool:
		return s.b
	default:
		return s.s
	}
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Interface())
}

// FromAny converts a decoded config value (TOML, YAML or JSON) to a Scalar.
func FromAny(v any) (Scalar, error) {
	switch x := v.(type) {
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(int64(x)), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Float(float64(x)), nil
		}
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Scalar{}, fmt.Errorf("%w: %q", ErrUnsupportedValue, x)
		}
		return Float(f), nil
	default:
		return Scalar{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// FormatNumber renders f without exponent or trailing zeros; infinities
// render as inf and -inf.
func FormatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

// Record is a set of named scalar fields.
type Record map[string]Scalar

func (Record) isValue() {}

func (r Record) Field(name string) (Scalar, bool) {
	v, ok := r[name]
	return v, ok
}

// Keys returns field names sorted.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r Record) Interface() any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.Interface()
	}
	return out
}

func (r Record) String() string {
	parts := make([]string, 0, len(r))
	for _, k := range r.Keys() {
		parts = append(parts, k+"="+r[k].String())
	}
	return strings.Join(parts, ", ")
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Interface())
}

// Result is a parser's output.
type Result struct {
	Value       Value
	Description string
}

// Unparseable is the result for replies a parser could not match.
func Unparseable(raw string) Result {
	return Result{Value: String(raw), Description: "unparseable"}
}
