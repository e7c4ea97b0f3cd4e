package fieldspec

import (
	"fmt"
	"strings"

	"github.com/nerrad567/droidprobe/internal/channel"
	"github.com/nerrad567/droidprobe/internal/resolve"
)

// RawCommand identifies one command run on the device. Its Key is the
// registry and cache key.
type RawCommand struct {
	// Source is a short human-readable name, e.g. "getprop".
	Source string

	// Args is the adb argument vector, e.g. ["shell", "getprop"].
	Args []string

	// Options controls how the channel returns output.
	Options channel.Options
}

// Key returns the command's identity.
func (c RawCommand) Key() string {
	var b strings.Builder
	b.WriteString(c.Source)
	for _, a := range c.Args {
		b.WriteByte(0x1f)
		b.WriteString(a)
	}
	fmt.Fprintf(&b, "\x1e%t,%t", c.Options.Stream, c.Options.SplitLines)
	return b.String()
}

func (c RawCommand) String() string {
	return c.Source + " (" + strings.Join(c.Args, " ") + ")"
}

// MultiPolicy decides how results from several extraction rules of one spec
// are combined.
type MultiPolicy string

// Multi-rule policies.
const (
	// MultiReplace keeps the last rule that produced a value.
	MultiReplace MultiPolicy = "replace"

	// MultiAppend concatenates every rule's non-empty result into a list.
	MultiAppend MultiPolicy = "append"

	// MultiDrop stops at the first rule that produces a value.
	MultiDrop MultiPolicy = "drop"
)

// Valid reports whether p is a known policy.
func (p MultiPolicy) Valid() bool {
	switch p {
	case MultiReplace, MultiAppend, MultiDrop:
		return true
	}
	return false
}

// ExistingPolicy decides how a spec's result merges with the stored value.
type ExistingPolicy = resolve.Policy

// FieldSpec describes how to derive one field from one command's output.
//
// An empty Rules list means the whole output is the candidate. Zero
// policies default to MultiDrop and resolve.Replace when the spec is added
// to a Registry.
type FieldSpec struct {
	Field      string
	Rules      []Rule
	Transforms []Step
	Multi      MultiPolicy
	Existing   ExistingPolicy
}

func (s FieldSpec) withDefaults() FieldSpec {
	if s.Multi == "" {
		s.Multi = MultiDrop
	}
	if s.Existing == "" {
		s.Existing = resolve.Replace
	}
	return s
}

// Entry binds a command to the specs that read its output, in order.
type Entry struct {
	Command RawCommand
	Fields  []FieldSpec
}
