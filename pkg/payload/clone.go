package payload

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/automata/pkg/filter"
)

func cloneMap(source map[string]any) map[string]any {
	if source == nil {
		return nil
	}

	cloned := make(map[string]any, len(source))
	for key, value := range source {
		cloned[key] = cloneValue(value)
	}

	return cloned
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		cloned := make([]any, len(v))
		for i, item := range v {
			cloned[i] = cloneValue(item)
		}

		return cloned
	case []map[string]any:
		cloned := make([]any, len(v))
		for i, item := range v {
			cloned[i] = cloneMap(item)
		}

		return cloned
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}

// project keeps only the named keys of record. Missing keys are skipped.
func project(record map[string]any, fields []string) map[string]any {
	projected := make(map[string]any, len(fields))

	for _, field := range fields {
		if value, ok := record[field]; ok {
			projected[field] = cloneValue(value)
		}
	}

	return projected
}

// fieldValue reads a literal key first and falls back to a dot path.
func fieldValue(record map[string]any, field string) (any, bool) {
	if value, ok := record[field]; ok {
		return value, true
	}

	return filter.Lookup(record, field)
}

// topLevelKey returns the payload key that carries field.
func topLevelKey(record map[string]any, field string) string {
	if _, ok := record[field]; ok {
		return field
	}

	head, _, _ := strings.Cut(field, ".")

	return head
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func union(base []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	result := make([]string, 0, len(base)+len(extra))

	for _, list := range [][]string{extra, base} {
		for _, item := range list {
			if _, ok := seen[item]; ok || item == "" {
				continue
			}

			seen[item] = struct{}{}
			result = append(result, item)
		}
	}

	return result
}
