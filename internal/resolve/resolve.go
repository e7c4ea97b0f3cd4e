package resolve

import (
	"fmt"
	"reflect"
	"strings"
)

// Policy decides how new candidates combine with a field's existing value.
type Policy string

// Existing-value policies.
const (
	Append  Policy = "append"
	Prepend Policy = "prepend"
	Replace Policy = "replace"
	Drop    Policy = "drop"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case Append, Prepend, Replace, Drop:
		return true
	}
	return false
}

// ParsePolicy converts a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown existing-value policy %q", s)
	}
	return p, nil
}

// Resolve computes a field's new value from its existing value and a batch
// of candidates. It returns the value the field should hold and whether that
// differs from existing. The field name is informational.
//
// Empty candidates leave the field untouched, as does Drop when existing is
// truthy. Neither existing nor candidates is modified.
func Resolve(field string, existing, candidates any, policy Policy) (any, bool) {
	if IsEmpty(candidates) {
		return existing, false
	}

	var updated any
	switch policy {
	case Drop:
		if Truthy(existing) {
			return existing, false
		}
		updated = copyValue(candidates)
	case Append, Prepend:
		updated = merge(AsList(existing), AsList(candidates), policy == Prepend)
	default:
		updated = copyValue(candidates)
	}

	return updated, !reflect.DeepEqual(existing, updated)
}

// merge de-duplicates cands against current and adds what remains.
// Candidates are not compared with each other, so a batch may add two
// values where one contains the other.
func merge(current, cands []any, prepend bool) []any {
	var pending []any
	for _, c := range cands {
		if IsEmpty(c) {
			continue
		}
		if absorb(current, c) {
			continue
		}
		pending = append(pending, c)
	}

	if prepend {
		return append(pending, current...)
	}
	return append(current, pending...)
}

// absorb checks c against entries in order. It reports true if c is
// redundant (contained in an entry) or replaced the first entry it contains.
// Only that first entry is replaced: later entries c also contains are kept,
// so ["ARM", "Cortex"] absorbing "ARM Cortex" becomes ["ARM Cortex", "Cortex"].
func absorb(entries []any, c any) bool {
	cn := normalize(c)
	for i, e := range entries {
		en := normalize(e)
		if strings.Contains(en, cn) {
			return true
		}
		if strings.Contains(cn, en) {
			entries[i] = c
			return true
		}
	}
	return false
}

func copyValue(v any) any {
	if list, ok := v.([]any); ok {
		return append([]any(nil), list...)
	}
	return v
}
