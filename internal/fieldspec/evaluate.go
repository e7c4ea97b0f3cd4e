package fieldspec

import "github.com/nerrad567/droidprobe/internal/resolve"

// Evaluate derives a spec's candidate from command output.
//
// Each rule's result is run through the transform pipeline on its own, then
// results are combined by the spec's multi-value policy. With no rules the
// whole output is the single rule result. It reports false when no rule
// produced a candidate.
func Evaluate(spec FieldSpec, text string) (any, bool) {
	spec = spec.withDefaults()

	rules := spec.Rules
	if len(rules) == 0 {
		rules = []Rule{Identity()}
	}

	var (
		last     any
		found    bool
		appended []any
	)
	for _, r := range rules {
		raw, ok := ApplyRule(r, text)
		if !ok {
			continue
		}
		v, ok := ApplyTransforms(spec.Transforms, raw)
		if !ok {
			continue
		}

		switch spec.Multi {
		case MultiDrop:
			return v, true
		case MultiAppend:
			appended = append(appended, resolve.AsList(v)...)
			found = true
		default:
			last, found = v, true
		}
	}

	if !found {
		return nil, false
	}
	if spec.Multi == MultiAppend {
		return appended, true
	}
	return last, true
}
