package fieldspec

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// functions is the closed table of free functions available to Call steps.
var functions = map[string]funcSpec{
	"int":          {minArgs: 1, maxArgs: 2, call: fnInt},
	"float":        {minArgs: 1, maxArgs: 1, call: fnFloat},
	"str":          {minArgs: 1, maxArgs: 1, call: fnStr},
	"floordiv":     {minArgs: 2, maxArgs: 2, call: fnFloorDiv},
	"mul":          {minArgs: 2, maxArgs: 2, call: fnMul},
	"div":          {minArgs: 2, maxArgs: 2, call: fnDiv},
	"concat":       {minArgs: 1, maxArgs: -1, call: fnConcat},
	"gles_version": {minArgs: 1, maxArgs: 1, call: fnGLESVersion},
	"human_bytes":  {minArgs: 1, maxArgs: 1, call: fnHumanBytes},

	"len":    {list: true, minArgs: 1, maxArgs: 1, call: fnLen},
	"join":   {list: true, minArgs: 1, maxArgs: 2, call: fnJoin},
	"unique": {list: true, minArgs: 1, maxArgs: 1, call: fnUnique},
	"sorted": {list: true, minArgs: 1, maxArgs: 1, call: fnSorted},
	"first":  {list: true, minArgs: 1, maxArgs: 1, call: fnFirst},
	"last":   {list: true, minArgs: 1, maxArgs: 1, call: fnLast},
}

// methods is the closed table of operations available to Method steps.
// args[0] is the receiver; min/max count only the extra arguments.
var methods = map[string]funcSpec{
	"strip":       {minArgs: 0, maxArgs: 1, call: mStrip},
	"lower":       {minArgs: 0, maxArgs: 0, call: stringMethod(strings.ToLower)},
	"upper":       {minArgs: 0, maxArgs: 0, call: stringMethod(strings.ToUpper)},
	"title":       {minArgs: 0, maxArgs: 0, call: stringMethod(titleCase)},
	"replace":     {minArgs: 2, maxArgs: 2, call: mReplace},
	"split":       {minArgs: 0, maxArgs: 1, call: mSplit},
	"trim_prefix": {minArgs: 1, maxArgs: 1, call: mTrimPrefix},
	"trim_suffix": {minArgs: 1, maxArgs: 1, call: mTrimSuffix},
	"append":      {minArgs: 1, maxArgs: 1, call: mAppend},
	"prepend":     {minArgs: 1, maxArgs: 1, call: mPrepend},
}

func sortedKeys(m map[string]funcSpec) []string {
	return slices.Sorted(maps.Keys(m))
}

func badInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadInput, fmt.Sprintf(format, args...))
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, badInput("cannot convert %v to int", x)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, badInput("cannot convert %q to int", x)
		}
		return n, nil
	default:
		return 0, badInput("cannot convert %T to int", v)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, badInput("cannot convert %q to float", x)
		}
		return f, nil
	default:
		return 0, badInput("cannot convert %T to float", v)
	}
}

func toStr(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", badInput("cannot convert %T to string", v)
	}
}

// number returns v as an int or a float64; strings are rejected.
func number(v any) (i int, f float64, isFloat bool, err error) {
	switch x := v.(type) {
	case int:
		return x, 0, false, nil
	case int64:
		return int(x), 0, false, nil
	case float64:
		return 0, x, true, nil
	default:
		return 0, 0, false, badInput("%T is not a number", v)
	}
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", badInput("%T is not a string", v)
	}
	return s, nil
}

func fnInt(args []any) (any, error) {
	if len(args) == 2 {
		s, err := asString(args[0])
		if err != nil {
			return nil, err
		}
		base, err := toInt(args[1])
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), base, 64)
		if err != nil {
			return nil, badInput("cannot convert %q to int base %d", s, base)
		}
		return int(n), nil
	}
	return toInt(args[0])
}

func fnFloat(args []any) (any, error) {
	return toFloat(args[0])
}

func fnStr(args []any) (any, error) {
	return toStr(args[0])
}

func fnFloorDiv(args []any) (any, error) {
	a, af, aFloat, err := number(args[0])
	if err != nil {
		return nil, err
	}
	b, bf, bFloat, err := number(args[1])
	if err != nil {
		return nil, err
	}
	if !aFloat && !bFloat {
		if b == 0 {
			return nil, badInput("integer division by zero")
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return q, nil
	}
	if !aFloat {
		af = float64(a)
	}
	if !bFloat {
		bf = float64(b)
	}
	if bf == 0 {
		return nil, badInput("float division by zero")
	}
	return math.Floor(af / bf), nil
}

func fnMul(args []any) (any, error) {
	a, af, aFloat, err := number(args[0])
	if err != nil {
		return nil, err
	}
	b, bf, bFloat, err := number(args[1])
	if err != nil {
		return nil, err
	}
	if !aFloat && !bFloat {
		return a * b, nil
	}
	if !aFloat {
		af = float64(a)
	}
	if !bFloat {
		bf = float64(b)
	}
	return af * bf, nil
}

func fnDiv(args []any) (any, error) {
	a, err := toFloatNumber(args[0])
	if err != nil {
		return nil, err
	}
	b, err := toFloatNumber(args[1])
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, badInput("division by zero")
	}
	return a / b, nil
}

func toFloatNumber(v any) (float64, error) {
	i, f, isFloat, err := number(v)
	if err != nil {
		return 0, err
	}
	if isFloat {
		return f, nil
	}
	return float64(i), nil
}

func fnConcat(args []any) (any, error) {
	var b strings.Builder
	for _, a := range args {
		s, err := asString(a)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// fnGLESVersion decodes ro.opengles.version (major<<16 | minor).
func fnGLESVersion(args []any) (any, error) {
	n, err := toInt(args[0])
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, badInput("invalid GLES version %d", n)
	}
	return fmt.Sprintf("%d.%d", n>>16, n&0xffff), nil
}

var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

func fnHumanBytes(args []any) (any, error) {
	f, err := toFloat(args[0])
	if err != nil {
		return nil, err
	}
	if f < 0 {
		return nil, badInput("negative size %v", f)
	}
	unit := 0
	for f >= 1024 && unit < len(byteUnits)-1 {
		f /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d B", int(f)), nil
	}
	s := strconv.FormatFloat(f, 'f', 1, 64)
	s = strings.TrimSuffix(s, ".0")
	return s + " " + byteUnits[unit], nil
}

func fnLen(args []any) (any, error) {
	switch x := args[0].(type) {
	case []any:
		return len(x), nil
	case string:
		return utf8.RuneCountInString(x), nil
	default:
		return nil, badInput("len of %T", args[0])
	}
}

func fnJoin(args []any) (any, error) {
	sep := ", "
	if len(args) == 2 {
		s, err := asString(args[1])
		if err != nil {
			return nil, err
		}
		sep = s
	}
	parts := make([]string, 0)
	for _, e := range listOf(args[0]) {
		s, err := toStr(e)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep), nil
}

func fnUnique(args []any) (any, error) {
	list := listOf(args[0])
	seen := make(map[string]bool, len(list))
	out := make([]any, 0, len(list))
	for _, e := range list {
		k := fmt.Sprintf("%T:%v", e, e)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out, nil
}

func fnSorted(args []any) (any, error) {
	list := slices.Clone(listOf(args[0]))
	numeric := true
	for _, e := range list {
		if _, _, _, err := number(e); err != nil {
			numeric = false
			break
		}
	}
	var sortErr error
	slices.SortStableFunc(list, func(a, b any) int {
		if numeric {
			af, _ := toFloatNumber(a)
			bf, _ := toFloatNumber(b)
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
		as, err := toStr(a)
		if err != nil {
			sortErr = err
		}
		bs, err := toStr(b)
		if err != nil {
			sortErr = err
		}
		return strings.Compare(as, bs)
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return list, nil
}

func fnFirst(args []any) (any, error) {
	list := listOf(args[0])
	if len(list) == 0 {
		return nil, badInput("first of empty list")
	}
	return list[0], nil
}

func fnLast(args []any) (any, error) {
	list := listOf(args[0])
	if len(list) == 0 {
		return nil, badInput("last of empty list")
	}
	return list[len(list)-1], nil
}

// listOf treats a scalar as a one-element list.
func listOf(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

func stringMethod(fn func(string) string) func([]any) (any, error) {
	return func(args []any) (any, error) {
		s, err := asString(args[0])
		if err != nil {
			return nil, err
		}
		return fn(s), nil
	}
}

// stringArgs returns the receiver and extra arguments, all as strings.
func stringArgs(args []any) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		s, err := asString(a)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func mStrip(args []any) (any, error) {
	s, err := stringArgs(args)
	if err != nil {
		return nil, err
	}
	if len(s) == 2 {
		return strings.Trim(s[0], s[1]), nil
	}
	return strings.TrimSpace(s[0]), nil
}

func mReplace(args []any) (any, error) {
	s, err := stringArgs(args)
	if err != nil {
		return nil, err
	}
	return strings.ReplaceAll(s[0], s[1], s[2]), nil
}

func mSplit(args []any) (any, error) {
	s, err := stringArgs(args)
	if err != nil {
		return nil, err
	}
	var parts []string
	if len(s) == 2 && s[1] != "" {
		parts = strings.Split(s[0], s[1])
	} else {
		parts = strings.Fields(s[0])
	}
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func mTrimPrefix(args []any) (any, error) {
	s, err := stringArgs(args)
	if err != nil {
		return nil, err
	}
	return strings.TrimPrefix(s[0], s[1]), nil
}

func mTrimSuffix(args []any) (any, error) {
	s, err := stringArgs(args)
	if err != nil {
		return nil, err
	}
	return strings.TrimSuffix(s[0], s[1]), nil
}

func mAppend(args []any) (any, error) {
	s, err := stringArgs(args)
	if err != nil {
		return nil, err
	}
	return s[0] + s[1], nil
}

func mPrepend(args []any) (any, error) {
	s, err := stringArgs(args)
	if err != nil {
		return nil, err
	}
	return s[1] + s[0], nil
}

// titleCase upper-cases the first letter of each word and lower-cases the
// rest ("SAMSUNG electronics" becomes "Samsung Electronics").
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
