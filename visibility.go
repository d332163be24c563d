package livespec

import (
	"reflect"
	"strconv"
)

// Comparator keys checked in fixed order; the first one present in a
// condition object decides the comparison.
var comparatorKeys = []string{"eq", "neq", "gt", "gte", "lt", "lte", "in", "notIn"}

// EvaluateVisibility decides element inclusion. A nil condition is visible.
// A bool is itself. An object form reads the state value at $state and
// applies one comparator, defaulting to a truthiness check. An array is a
// logical AND of its members; the empty array is visible.
func EvaluateVisibility(condition interface{}, ctx *EvalContext) bool {
	switch cond := condition.(type) {
	case nil:
		return true
	case bool:
		return cond
	case []interface{}:
		for _, c := range cond {
			if !EvaluateVisibility(c, ctx) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		path, _ := cond["$state"].(string)
		var subject interface{}
		if ctx != nil && ctx.State != nil {
			subject, _ = ctx.State.Get(path)
		}
		for _, key := range comparatorKeys {
			operand, present := cond[key]
			if !present {
				continue
			}
			switch key {
			case "eq":
				return equalValues(subject, operand)
			case "neq":
				return !equalValues(subject, operand)
			case "gt":
				return compareNumbers(subject, operand, func(a, b float64) bool { return a > b })
			case "gte":
				return compareNumbers(subject, operand, func(a, b float64) bool { return a >= b })
			case "lt":
				return compareNumbers(subject, operand, func(a, b float64) bool { return a < b })
			case "lte":
				return compareNumbers(subject, operand, func(a, b float64) bool { return a <= b })
			case "in":
				return valueIn(subject, operand)
			case "notIn":
				return !valueIn(subject, operand)
			}
		}
		return isTruthy(subject)
	default:
		return isTruthy(condition)
	}
}

// isTruthy follows the wire format's conventions: nil, false, zero, and the
// empty string are absent; containers count as present even when empty.
func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}

// toFloat coerces JSON and Go numerics (and numeric strings) to float64.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func compareNumbers(a, b interface{}, cmp func(a, b float64) bool) bool {
	fa, ok := toFloat(a)
	if !ok {
		return false
	}
	fb, ok := toFloat(b)
	if !ok {
		return false
	}
	return cmp(fa, fb)
}

// equalValues compares numerics across Go and JSON representations, so a
// state int 1 equals a decoded float64 1; everything else falls back to
// deep equality.
func equalValues(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func valueIn(subject, operand interface{}) bool {
	list, ok := operand.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if equalValues(subject, item) {
			return true
		}
	}
	return false
}
