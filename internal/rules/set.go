package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/danmuck/atbench/internal/parsed"
)

// Set maps a result display name to its rules.
type Set map[string][]Rule

// Verdict returns the final pass/fail for name. Without rules for name the
// parser's default verdict stands.
func (s Set) Verdict(name string, v parsed.Value, defaultPass bool) (bool, []string) {
	rules, ok := s[name]
	if !ok || len(rules) == 0 {
		return defaultPass, nil
	}
	return Evaluate(v, rules)
}

// Add appends rules for name after validating them.
func (s Set) Add(name string, rules ...Rule) error {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rules for %q [%d]: %w", name, i, err)
		}
	}
	s[name] = append(s[name], rules...)
	return nil
}

// Merge overlays other onto s; names in other replace names in s.
func (s Set) Merge(other Set) Set {
	out := make(Set, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Names returns the rule names sorted.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Map renders the set in its configuration form: one object per name, or a
// list when a name has several rules.
func (s Set) Map() map[string]any {
	out := make(map[string]any, len(s))
	for name, rules := range s {
		if len(rules) == 1 {
			out[name] = rules[0].Map()
			continue
		}
		list := make([]any, 0, len(rules))
		for _, r := range rules {
			list = append(list, r.Map())
		}
		out[name] = list
	}
	return out
}

// ParseLimits decodes validation configuration: a mapping from display name
// to a rule object or a list of rule objects with keys field, equals,
// allowed, min and max.
func ParseLimits(raw map[string]any) (Set, error) {
	set := make(Set, len(raw))
	for name, v := range raw {
		objs, err := ruleObjects(v)
		if err != nil {
			return nil, fmt.Errorf("limits %q: %w", name, err)
		}
		rules := make([]Rule, 0, len(objs))
		for i, obj := range objs {
			r, err := FromMap(obj)
			if err != nil {
				return nil, fmt.Errorf("limits %q [%d]: %w", name, i, err)
			}
			rules = append(rules, r)
		}
		set[name] = rules
	}
	return set, nil
}

func ruleObjects(v any) ([]map[string]any, error) {
	switch x := v.(type) {
	case map[string]any:
		return []map[string]any{x}, nil
	case []map[string]any:
		return x, nil
	case []any:
		out := make([]map[string]any, 0, len(x))
		for i, item := range x {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: item %d is %T, want object", ErrInvalidRuleValue, i, item)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T, want object or list", ErrInvalidRuleValue, v)
	}
}

// FromMap builds one rule from its configuration object. Exactly one
// comparison kind may be present; min and max together count as one.
func FromMap(m map[string]any) (Rule, error) {
	var (
		kinds []string
		field string
	)
	for key := range m {
		switch key {
		case "field", "equals", "allowed", "min", "max":
		default:
			return Rule{}, fmt.Errorf("%w: %q", ErrUnknownRuleKey, key)
		}
	}
	if f, ok := m["field"]; ok {
		s, isString := f.(string)
		if !isString || strings.TrimSpace(s) == "" {
			return Rule{}, fmt.Errorf("%w: field must be a non-empty string", ErrInvalidRuleValue)
		}
		field = strings.TrimSpace(s)
	}
	_, hasEquals := m["equals"]
	_, hasAllowed := m["allowed"]
	_, hasMin := m["min"]
	_, hasMax := m["max"]
	if hasEquals {
		kinds = append(kinds, "equals")
	}
	if hasAllowed {
		kinds = append(kinds, "allowed")
	}
	if hasMin || hasMax {
		kinds = append(kinds, "min/max")
	}
	switch len(kinds) {
	case 0:
		return Rule{}, ErrEmptyRule
	case 1:
	default:
		return Rule{}, fmt.Errorf("%w: %s", ErrConflictingRule, strings.Join(kinds, " + "))
	}

	var r Rule
	switch {
	case hasEquals:
		v, err := parsed.FromAny(m["equals"])
		if err != nil {
			return Rule{}, fmt.Errorf("%w: equals: %v", ErrInvalidRuleValue, err)
		}
		r = Equals(v)
	case hasAllowed:
		vals, err := scalarList(m["allowed"])
		if err != nil {
			return Rule{}, err
		}
		r = Allowed(vals...)
	default:
		lo, hi := math.Inf(-1), math.Inf(1)
		if hasMin {
			n, err := number(m["min"])
			if err != nil {
				return Rule{}, fmt.Errorf("min: %w", err)
			}
			lo = n
		}
		if hasMax {
			n, err := number(m["max"])
			if err != nil {
				return Rule{}, fmt.Errorf("max: %w", err)
			}
			hi = n
		}
		r = Range(lo, hi)
	}
	r = r.On(field)
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

func scalarList(v any) ([]parsed.Scalar, error) {
	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case []string:
		for _, s := range x {
			items = append(items, s)
		}
	case []int64:
		for _, n := range x {
			items = append(items, n)
		}
	default:
		return nil, fmt.Errorf("%w: allowed must be a list, got %T", ErrInvalidRuleValue, v)
	}
	out := make([]parsed.Scalar, 0, len(items))
	for _, item := range items {
		s, err := parsed.FromAny(item)
		if err != nil {
			return nil, fmt.Errorf("%w: allowed: %v", ErrInvalidRuleValue, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func number(v any) (float64, error) {
	s, err := parsed.FromAny(v)
	if err != nil || s.Kind() == parsed.KindString || s.Kind() == parsed.KindBool {
		return 0, fmt.Errorf("%w: %v is not a number", ErrInvalidRuleValue, v)
	}
	n, _ := s.Number()
	return n, nil
}
