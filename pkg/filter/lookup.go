package filter

import (
	"strconv"
	"strings"
)

// Lookup resolves a dot-separated path against nested maps and lists.
// Numeric segments index into lists. The second result is false when any segment is missing.
func Lookup(payload map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = payload

	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = value
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, true
}
