package fieldspec

import (
	"fmt"
	"regexp"
)

// RuleKind is the kind of an extraction rule.
type RuleKind int

// Rule kinds.
const (
	RuleIdentity RuleKind = iota
	RuleSearch
	RuleFindAll
)

func (k RuleKind) String() string {
	switch k {
	case RuleIdentity:
		return "identity"
	case RuleSearch:
		return "search"
	case RuleFindAll:
		return "find_all"
	default:
		return fmt.Sprintf("RuleKind(%d)", int(k))
	}
}

// Rule carves a candidate out of command output.
//
// Patterns use Go RE2 syntax and are compiled in multi-line mode, so ^ and $
// match at line boundaries.
type Rule struct {
	Kind    RuleKind
	Pattern string
	Group   int

	re  *regexp.Regexp
	err error
}

// Search returns the given capture group of the first match, or nothing.
func Search(pattern string, group int) Rule {
	return newPatternRule(RuleSearch, pattern, group)
}

// FindAll returns the given capture group of every match as a list, or
// nothing if there is no match.
func FindAll(pattern string, group int) Rule {
	return newPatternRule(RuleFindAll, pattern, group)
}

// Identity returns the text unchanged.
func Identity() Rule {
	return Rule{Kind: RuleIdentity}
}

func newPatternRule(kind RuleKind, pattern string, group int) Rule {
	r := Rule{Kind: kind, Pattern: pattern, Group: group}
	r.re, r.err = regexp.Compile("(?m)" + pattern)
	return r
}

func (r Rule) validate() error {
	switch r.Kind {
	case RuleIdentity:
		return nil
	case RuleSearch, RuleFindAll:
	default:
		return fmt.Errorf("unknown rule kind %d", int(r.Kind))
	}
	if r.err != nil {
		return fmt.Errorf("%s %q: %w", r.Kind, r.Pattern, r.err)
	}
	if r.re == nil {
		return fmt.Errorf("%s %q: rule not built with Search or FindAll", r.Kind, r.Pattern)
	}
	if r.Group < 0 || r.Group > r.re.NumSubexp() {
		return fmt.Errorf("%s %q: group %d out of range (pattern has %d)", r.Kind, r.Pattern, r.Group, r.re.NumSubexp())
	}
	return nil
}

// ApplyRule runs one extraction rule against text. It reports false when a
// pattern does not match; that is not an error.
func ApplyRule(r Rule, text string) (any, bool) {
	switch r.Kind {
	case RuleIdentity:
		return text, true
	case RuleSearch:
		if r.re == nil {
			return nil, false
		}
		m := r.re.FindStringSubmatch(text)
		if m == nil || r.Group >= len(m) {
			return nil, false
		}
		return m[r.Group], true
	case RuleFindAll:
		if r.re == nil {
			return nil, false
		}
		matches := r.re.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			return nil, false
		}
		out := make([]any, 0, len(matches))
		for _, m := range matches {
			if r.Group < len(m) {
				out = append(out, m[r.Group])
			}
		}
		return out, true
	default:
		return nil, false
	}
}
