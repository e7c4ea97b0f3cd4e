package device

import (
	"fmt"
	"strconv"
	"strings"
)

// UnknownValue is printed for fields with no value.
const UnknownValue = "Unknown"

const dumpIndent = "    "

// Dump renders info as human-readable text grouped by category:
//
//	CPU
//	    Processor
//	        Chipset: Qualcomm SM8350
//	        Cores: 8
//
// Missing or empty values render as "Unknown"; lists are joined with ", ".
func Dump(schema *Schema, info *Info) string {
	values := info.Snapshot()

	var b strings.Builder
	for _, c := range schema.Categories() {
		b.WriteString(c.Name)
		b.WriteByte('\n')
		for _, sub := range c.Subcategories {
			b.WriteString(dumpIndent)
			b.WriteString(sub.Name)
			b.WriteByte('\n')
			for _, e := range sub.Entries {
				b.WriteString(dumpIndent + dumpIndent)
				b.WriteString(e.Label)
				b.WriteString(": ")
				b.WriteString(FormatValue(values[e.Key]))
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// FormatValue renders a single field value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return UnknownValue
	case string:
		if strings.TrimSpace(x) == "" {
			return UnknownValue
		}
		return x
	case []any:
		if len(x) == 0 {
			return UnknownValue
		}
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, FormatValue(e))
		}
		return strings.Join(parts, ", ")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "Yes"
		}
		return "No"
	default:
		return fmt.Sprint(x)
	}
}
