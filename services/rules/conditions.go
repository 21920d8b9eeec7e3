package rules

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// MatchConditions evaluates a condition group against a ticket snapshot.
// The overall match is AND(all) && OR(any); an empty half is vacuously true.
// Evaluation errors (currently only unrecognized operators) are collected
// rather than raised, so one malformed condition cannot abort a batch run.
func MatchConditions(group ConditionGroup, ticket TicketContext) (bool, []string) {
	var errs []string

	allMatched := true
	for _, c := range group.All {
		ok, err := evalCondition(c, ticket)
		if err != "" {
			errs = append(errs, err)
		}
		if !ok {
			allMatched = false
		}
	}

	anyMatched := len(group.Any) == 0
	for _, c := range group.Any {
		ok, err := evalCondition(c, ticket)
		if err != "" {
			errs = append(errs, err)
		}
		if ok {
			anyMatched = true
		}
	}

	return allMatched && anyMatched, errs
}

// evalCondition resolves the condition's field via dotted-path lookup and
// applies its operator. A missing path behaves as an absent value: equals
// fails, not_equals succeeds, exists fails.
func evalCondition(c Condition, ticket TicketContext) (bool, string) {
	val, found := lookupPath(ticket, c.Field)

	switch c.Operator {
	case OpEquals:
		return found && looseEqual(val, c.Value), ""
	case OpNotEquals:
		return !found || !looseEqual(val, c.Value), ""
	case OpContains:
		return evalContains(val, c.Value), ""
	case OpIn:
		items, ok := asList(c.Value)
		if !ok {
			return false, ""
		}
		for _, item := range items {
			if looseEqual(val, item) {
				return true, ""
			}
		}
		return false, ""
	case OpGreaterThan:
		cmp, ok := compareValues(val, c.Value)
		return ok && cmp > 0, ""
	case OpLessThan:
		cmp, ok := compareValues(val, c.Value)
		return ok && cmp < 0, ""
	case OpExists:
		return found, ""
	default:
		return false, fmt.Sprintf("unknown operator: %s", c.Operator)
	}
}

// lookupPath walks a dotted path through nested maps. The second return
// value is false when any segment is missing or not traversable.
func lookupPath(ticket TicketContext, path string) (any, bool) {
	var current any = map[string]any(ticket)
	for _, segment := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case TicketContext:
		return m, true
	default:
		return nil, false
	}
}

// asList normalizes list values to []any, accepting both decoded JSON
// arrays and Go string slices.
func asList(v any) ([]any, bool) {
	switch items := v.(type) {
	case []any:
		return items, true
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// evalContains checks substring containment for strings and membership for
// lists. Anything else does not contain anything.
func evalContains(val, target any) bool {
	if s, ok := val.(string); ok {
		sub, ok := target.(string)
		return ok && strings.Contains(s, sub)
	}
	if items, ok := asList(val); ok {
		for _, item := range items {
			if looseEqual(item, target) {
				return true
			}
		}
	}
	return false
}

// looseEqual compares two values with JSON semantics: numbers compare by
// value regardless of Go representation, everything else by deep equality.
func looseEqual(a, b any) bool {
	if fa, ok := toNumber(a); ok {
		fb, ok := toNumber(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values numerically, or chronologically when both
// parse as RFC 3339 timestamps. Returns false when they are not comparable.
func compareValues(a, b any) (int, bool) {
	fa, okA := toNumber(a)
	fb, okB := toNumber(b)
	if okA && okB {
		switch {
		case fa > fb:
			return 1, true
		case fa < fb:
			return -1, true
		default:
			return 0, true
		}
	}

	ta, okA := toTime(a)
	tb, okB := toTime(b)
	if okA && okB {
		switch {
		case ta.After(tb):
			return 1, true
		case ta.Before(tb):
			return -1, true
		default:
			return 0, true
		}
	}

	return 0, false
}

// toNumber converts numeric values to float64, handling the types JSON
// decoding and Go literals produce.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}
