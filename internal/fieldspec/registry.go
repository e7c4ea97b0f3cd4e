package fieldspec

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nerrad567/droidprobe/internal/device"
)

// Registry is the read-only catalogue of commands and the field specs that
// read their output. Commands keep the order they were added in, which is
// the order extraction visits them, so "last writer" and "first writer"
// policies are reproducible.
//
// A Registry is immutable and safe for concurrent use.
type Registry struct {
	schema  *device.Schema
	entries []Entry
	index   map[string]int
}

// NewRegistry validates entries against schema and builds a registry.
// Every problem found is reported, joined, and wrapped in ErrInvalidSpec.
func NewRegistry(schema *device.Schema, entries ...Entry) (*Registry, error) {
	r := &Registry{
		schema: schema,
		index:  make(map[string]int, len(entries)),
	}

	var errs []error
	for _, e := range entries {
		key := e.Command.Key()
		if _, dup := r.index[key]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate command %s", ErrInvalidSpec, e.Command))
			continue
		}
		if err := validateEntry(schema, e); err != nil {
			errs = append(errs, err)
			continue
		}
		r.index[key] = len(r.entries)
		r.entries = append(r.entries, cloneEntry(e))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

func validateEntry(schema *device.Schema, e Entry) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidSpec, e.Command, fmt.Sprintf(format, args...)))
	}

	if e.Command.Source == "" {
		fail("command has no source name")
	}
	if len(e.Command.Args) == 0 {
		fail("command has no arguments")
	}
	if len(e.Fields) == 0 {
		fail("command has no field specs")
	}

	for i, f := range e.Fields {
		if !schema.Has(f.Field) {
			fail("field %d: %q is not a schema key", i, f.Field)
		}
		f = f.withDefaults()
		if !f.Multi.Valid() {
			fail("field %q: unknown multi-value policy %q", f.Field, f.Multi)
		}
		if !f.Existing.Valid() {
			fail("field %q: unknown existing-value policy %q", f.Field, f.Existing)
		}
		for _, rule := range f.Rules {
			if err := rule.validate(); err != nil {
				fail("field %q: %v", f.Field, err)
			}
		}
		for _, step := range f.Transforms {
			if err := step.validate(); err != nil {
				fail("field %q: %v", f.Field, err)
			}
		}
	}
	return errors.Join(errs...)
}

func cloneEntry(e Entry) Entry {
	out := Entry{Command: e.Command, Fields: make([]FieldSpec, len(e.Fields))}
	out.Command.Args = slices.Clone(e.Command.Args)
	for i, f := range e.Fields {
		out.Fields[i] = f.withDefaults()
	}
	return out
}

// Schema returns the schema the registry validates field keys against.
func (r *Registry) Schema() *device.Schema {
	return r.schema
}

// Lookup returns the field specs tied to cmd, in order.
func (r *Registry) Lookup(cmd RawCommand) []FieldSpec {
	i, ok := r.index[cmd.Key()]
	if !ok {
		return nil
	}
	return slices.Clone(r.entries[i].Fields)
}

// Commands returns every command in iteration order.
func (r *Registry) Commands() []RawCommand {
	out := make([]RawCommand, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Command
	}
	return out
}

// Entries returns every entry in iteration order.
func (r *Registry) Entries() []Entry {
	return slices.Clone(r.entries)
}

// Groups returns the schema groups cmd's fields belong to, in first-seen order.
func (r *Registry) Groups(cmd RawCommand) []string {
	var groups []string
	for _, f := range r.Lookup(cmd) {
		g, ok := r.schema.GroupOf(f.Field)
		if ok && !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	return groups
}

// Merge returns a new registry with extra entries added. Specs for a command
// already present run after the existing ones; new commands are visited
// after all existing commands.
func (r *Registry) Merge(extra ...Entry) (*Registry, error) {
	merged := slices.Clone(r.entries)
	index := make(map[string]int, len(r.index))
	for k, v := range r.index {
		index[k] = v
	}

	var fresh []Entry
	for _, e := range extra {
		if i, ok := index[e.Command.Key()]; ok {
			target := &fresh
			if i < len(merged) {
				target = &merged
			} else {
				i -= len(merged)
			}
			m := (*target)[i]
			m.Fields = append(slices.Clone(m.Fields), e.Fields...)
			(*target)[i] = m
			continue
		}
		index[e.Command.Key()] = len(merged) + len(fresh)
		fresh = append(fresh, e)
	}
	return NewRegistry(r.schema, append(merged, fresh...)...)
}

// CommandSummary describes one registry command for listings.
type CommandSummary struct {
	Source  string   `json:"source"`
	Command string   `json:"command"`
	Groups  []string `json:"groups"`
	Fields  []string `json:"fields"`
}

// Summary lists every command with the fields it feeds, in iteration order.
func (r *Registry) Summary() []CommandSummary {
	out := make([]CommandSummary, 0, len(r.entries))
	for _, e := range r.entries {
		s := CommandSummary{
			Source:  e.Command.Source,
			Command: e.Command.String(),
			Groups:  r.Groups(e.Command),
		}
		for _, f := range e.Fields {
			if !slices.Contains(s.Fields, f.Field) {
				s.Fields = append(s.Fields, f.Field)
			}
		}
		out = append(out, s)
	}
	return out
}
