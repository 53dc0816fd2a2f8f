package filter

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Operator compares a resolved payload value with the configured condition value.
// found is false when the field path did not resolve.
type Operator func(actual any, found bool, expected any) bool

const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpExists      = "exists"
	OpIsEmpty     = "is_empty"
)

func builtinOperators() map[string]Operator {
	return map[string]Operator{
		OpEquals:      present(equals),
		OpNotEquals:   present(func(a, e any) bool { return !equals(a, e) }),
		OpContains:    present(contains),
		OpNotContains: present(func(a, e any) bool { return !contains(a, e) }),
		OpStartsWith:  present(func(a, e any) bool { return strings.HasPrefix(stringify(a), stringify(e)) }),
		OpEndsWith:    present(func(a, e any) bool { return strings.HasSuffix(stringify(a), stringify(e)) }),
		OpGreaterThan: present(func(a, e any) bool { return compareNumbers(a, e, func(x, y float64) bool { return x > y }) }),
		OpLessThan:    present(func(a, e any) bool { return compareNumbers(a, e, func(x, y float64) bool { return x < y }) }),
		OpExists:      exists,
		OpIsEmpty:     isEmpty,
	}
}

// present wraps a comparison so that a missing field never matches.
func present(compare func(actual, expected any) bool) Operator {
	return func(actual any, found bool, expected any) bool {
		if !found {
			return false
		}

		return compare(actual, expected)
	}
}

func equals(actual, expected any) bool {
	return stringify(actual) == stringify(expected)
}

func contains(actual, expected any) bool {
	switch value := actual.(type) {
	case string:
		return strings.Contains(value, stringify(expected))
	case []any:
		for _, item := range value {
			if equals(item, expected) {
				return true
			}
		}

		return false
	case map[string]any:
		_, ok := value[stringify(expected)]

		return ok
	case nil:
		return false
	}

	rv := reflect.ValueOf(actual)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := range rv.Len() {
			if equals(rv.Index(i).Interface(), expected) {
				return true
			}
		}

		return false
	}

	return strings.Contains(stringify(actual), stringify(expected))
}

func exists(_ any, found bool, expected any) bool {
	want := true
	if flag, ok := expected.(bool); ok {
		want = flag
	}

	return found == want
}

func isEmpty(actual any, found bool, _ any) bool {
	if !found || actual == nil {
		return true
	}

	switch value := actual.(type) {
	case string:
		return value == ""
	case []any:
		return len(value) == 0
	case map[string]any:
		return len(value) == 0
	default:
		return false
	}
}

func compareNumbers(actual, expected any, cmp func(x, y float64) bool) bool {
	x, ok := toNumber(actual)
	if !ok {
		return false
	}

	y, ok := toNumber(expected)
	if !ok {
		return false
	}

	return cmp(x, y)
}

func toNumber(value any) (float64, bool) {
	switch number := value.(type) {
	case float64:
		return number, true
	case float32:
		return float64(number), true
	case int:
		return float64(number), true
	case int64:
		return float64(number), true
	case int32:
		return float64(number), true
	case uint:
		return float64(number), true
	case uint64:
		return float64(number), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(number), 64)

		return parsed, err == nil
	default:
		return 0, false
	}
}

// stringify coerces a value to its comparison form. Whole floats drop the fraction so
// that a JSON 100 equals the string "100".
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}
