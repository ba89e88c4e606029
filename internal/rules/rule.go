package rules

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/danmuck/atbench/internal/parsed"
)

var (
	ErrConflictingRule  = errors.New("rules: rule mixes comparison kinds")
	ErrEmptyRule        = errors.New("rules: rule has no comparison")
	ErrUnknownRuleKey   = errors.New("rules: unknown rule key")
	ErrInvalidRuleValue = errors.New("rules: invalid rule value")
)

type Kind uint8

const (
	KindEquals Kind = iota + 1
	KindAllowed
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindEquals:
		return "equals"
	case KindAllowed:
		return "allowed"
	case KindRange:
		return "range"
	default:
		return "invalid"
	}
}

// Rule is one validation criterion. The zero Rule is invalid; build rules
// with Equals, Allowed, Range, AtLeast or AtMost.
type Rule struct {
	kind    Kind
	field   string
	equals  parsed.Scalar
	allowed []parsed.Scalar
	min     float64
	max     float64
}

func Equals(v parsed.Scalar) Rule {
	return Rule{kind: KindEquals, equals: v}
}

func Allowed(vs ...parsed.Scalar) Rule {
	return Rule{kind: KindAllowed, allowed: append([]parsed.Scalar(nil), vs...)}
}

// Range checks min <= v <= max. Use math.Inf for an open bound.
func Range(min, max float64) Rule {
	return Rule{kind: KindRange, min: min, max: max}
}

func AtLeast(min float64) Rule {
	return Range(min, math.Inf(1))
}

func AtMost(max float64) Rule {
	return Range(math.Inf(-1), max)
}

// On scopes the rule to a record field.
func (r Rule) On(field string) Rule {
	r.field = field
	return r
}

func (r Rule) Kind() Kind {
	return r.kind
}

func (r Rule) Field() string {
	return r.field
}

// Validate reports whether the rule was built consistently.
func (r Rule) Validate() error {
	switch r.kind {
	case KindEquals:
		return nil
	case KindAllowed:
		if len(r.allowed) == 0 {
			return fmt.Errorf("%w: allowed set is empty", ErrInvalidRuleValue)
		}
		return nil
	case KindRange:
		if math.IsNaN(r.min) || math.IsNaN(r.max) {
			return fmt.Errorf("%w: NaN bound", ErrInvalidRuleValue)
		}
		if r.min > r.max {
			return fmt.Errorf("%w: min %s > max %s", ErrInvalidRuleValue, parsed.FormatNumber(r.min), parsed.FormatNumber(r.max))
		}
		return nil
	default:
		return ErrEmptyRule
	}
}

// Check applies the rule to v and returns a reason when it fails.
func (r Rule) Check(v parsed.Value) (bool, string) {
	label := "value"
	if r.field != "" {
		label = r.field
	}
	scalar, ok := r.resolve(v)
	if !ok {
		if r.field != "" {
			return false, r.field + ": field missing"
		}
		return false, "value missing"
	}

	switch r.kind {
	case KindEquals:
		if scalar.Equal(r.equals) {
			return true, ""
		}
		return false, fmt.Sprintf("%s %s != %s", label, scalar, r.equals)
	case KindAllowed:
		for _, a := range r.allowed {
			if scalar.Equal(a) {
				return true, ""
			}
		}
		return false, fmt.Sprintf("%s %s not in %s", label, scalar, renderSet(r.allowed))
	case KindRange:
		n, numeric := scalar.Number()
		if !numeric {
			return false, fmt.Sprintf("%s %s is not numeric", label, scalar)
		}
		switch {
		case n < r.min:
			return false, fmt.Sprintf("%s %s < %s", label, scalar, r.bounds())
		case n > r.max:
			return false, fmt.Sprintf("%s %s > %s", label, scalar, r.bounds())
		default:
			return true, ""
		}
	default:
		return false, "invalid rule"
	}
}

// resolve narrows v to the scalar the rule compares. A field selector only
// applies to records; scalars are compared directly.
func (r Rule) resolve(v parsed.Value) (parsed.Scalar, bool) {
	switch x := v.(type) {
	case parsed.Scalar:
		return x, true
	case parsed.Record:
		if r.field == "" {
			return parsed.String(x.String()), true
		}
		return x.Field(r.field)
	default:
		return parsed.Scalar{}, false
	}
}

// bounds renders the range as [min-max], switching to [min, max] when a
// bound is negative so the minus sign stays readable.
func (r Rule) bounds() string {
	sep := "-"
	if r.min < 0 || r.max < 0 {
		sep = ", "
	}
	return "[" + parsed.FormatNumber(r.min) + sep + parsed.FormatNumber(r.max) + "]"
}

func (r Rule) String() string {
	var b strings.Builder
	if r.field != "" {
		b.WriteString(r.field)
		b.WriteByte(' ')
	}
	switch r.kind {
	case KindEquals:
		b.WriteString("== " + r.equals.String())
	case KindAllowed:
		b.WriteString("in " + renderSet(r.allowed))
	case KindRange:
		b.WriteString("in " + r.bounds())
	default:
		b.WriteString("invalid")
	}
	return b.String()
}

// Map renders the rule in its configuration form.
func (r Rule) Map() map[string]any {
	out := map[string]any{}
	if r.field != "" {
		out["field"] = r.field
	}
	switch r.kind {
	case KindEquals:
		out["equals"] = r.equals.Interface()
	case KindAllowed:
		vals := make([]any, 0, len(r.allowed))
		for _, a := range r.allowed {
			vals = append(vals, a.Interface())
		}
		out["allowed"] = vals
	case KindRange:
		if !math.IsInf(r.min, -1) {
			out["min"] = r.min
		}
		if !math.IsInf(r.max, 1) {
			out["max"] = r.max
		}
	}
	return out
}

func renderSet(vs []parsed.Scalar) string {
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		parts = append(parts, v.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Evaluate ANDs every rule against v. Reasons list each failing rule in
// order.
func Evaluate(v parsed.Value, rules []Rule) (bool, []string) {
	pass := true
	var reasons []string
	for _, r := range rules {
		ok, reason := r.Check(v)
		if !ok {
			pass = false
			reasons = append(reasons, reason)
		}
	}
	return pass, reasons
}
