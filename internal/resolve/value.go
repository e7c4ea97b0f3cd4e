package resolve

import (
	"fmt"
	"strings"
)

// IsEmpty reports whether v carries no information: nil, a blank string or
// an empty list.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	default:
		return false
	}
}

// Truthy reports whether v counts as set: non-empty strings and lists,
// non-zero numbers and true.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	default:
		return true
	}
}

// AsList returns v as a list: nil becomes an empty list, a scalar becomes a
// one-element list. The result never aliases v.
func AsList(v any) []any {
	switch x := v.(type) {
	case nil:
		return []any{}
	case []any:
		return append([]any(nil), x...)
	default:
		return []any{x}
	}
}

// normalize is the comparison form used for substring de-duplication.
func normalize(v any) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
