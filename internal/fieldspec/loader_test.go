package fieldspec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/resolve"
)

const sampleFields = `
commands:
  - source: meminfo
    args: [shell, cat, /proc/meminfo]
    fields:
      - field: ram_total
        rules:
          - search: '^MemTotal:\s*(\d+) kB'
        transforms:
          - call: int
          - call: floordiv
            args: [$value, 1024]
          - call: str
          - method: append
            args: [" MB"]
        existing: replace
  - source: uname
    args: [shell, uname, -r]
    options:
      split_lines: true
    fields:
      - field: kernel_version
        rules:
          - identity: true
        transforms:
          - method: strip
      - field: cpu_features
        rules:
          - find_all: '\b(\w+)\b'
            group: 0
        multi: append
        existing: append
`

func TestParse(t *testing.T) {
	schema := device.DefaultSchema()

	entries, err := Parse([]byte(sampleFields), schema)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Parse() entries = %d, want 2", len(entries))
	}

	mem := entries[0]
	if mem.Command.Source != "meminfo" || len(mem.Command.Args) != 3 {
		t.Errorf("command = %+v", mem.Command)
	}
	ram := mem.Fields[0]
	if ram.Rules[0].Group != 1 {
		t.Errorf("default group = %d, want 1", ram.Rules[0].Group)
	}
	if !ram.Transforms[1].Args[0].IsCurrent() {
		t.Error("$value should parse as Current")
	}
	if ram.Transforms[1].Args[1].Value() != 1024 {
		t.Errorf("literal arg = %#v, want 1024", ram.Transforms[1].Args[1].Value())
	}

	got, ok := Evaluate(ram, "MemTotal:    965432 kB\n")
	if !ok || got != "942 MB" {
		t.Errorf("Evaluate(ram) = %#v, %v; want 942 MB", got, ok)
	}

	uname := entries[1]
	if !uname.Command.Options.SplitLines {
		t.Error("split_lines option not parsed")
	}
	if uname.Fields[0].Rules[0].Kind != RuleIdentity {
		t.Errorf("rule kind = %v, want identity", uname.Fields[0].Rules[0].Kind)
	}
	features := uname.Fields[1]
	if features.Rules[0].Group != 0 || features.Multi != MultiAppend || features.Existing != resolve.Append {
		t.Errorf("features spec = %+v", features)
	}
}

func TestParse_Errors(t *testing.T) {
	schema := device.DefaultSchema()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad yaml", yaml: "commands: [oops"},
		{name: "unknown field", yaml: `
commands:
  - source: x
    args: [shell, x]
    fields:
      - field: favourite_colour
`},
		{name: "two rule kinds", yaml: `
commands:
  - source: x
    args: [shell, x]
    fields:
      - field: model
        rules:
          - search: a
            find_all: b
`},
		{name: "step without name", yaml: `
commands:
  - source: x
    args: [shell, x]
    fields:
      - field: model
        transforms:
          - args: [1]
`},
		{name: "unknown function", yaml: `
commands:
  - source: x
    args: [shell, x]
    fields:
      - field: model
        transforms:
          - call: system
`},
		{name: "bad existing policy", yaml: `
commands:
  - source: x
    args: [shell, x]
    fields:
      - field: model
        existing: overwrite
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), schema)
			if !errors.Is(err, ErrInvalidSpec) {
				t.Errorf("Parse() error = %v, want ErrInvalidSpec", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fields.yaml")
	if err := os.WriteFile(path, []byte(sampleFields), 0600); err != nil {
		t.Fatalf("writing fields file: %v", err)
	}

	schema := device.DefaultSchema()
	entries, err := LoadFile(path, schema)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	reg, err := Default(schema)
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	merged, err := reg.Merge(entries...)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	// meminfo has the same identity as the built-in command and merges into it.
	if got := len(merged.Commands()); got != len(reg.Commands())+1 {
		t.Errorf("merged commands = %d, want %d", got, len(reg.Commands())+1)
	}
	if got := len(merged.Lookup(CmdMemInfo)); got != 2 {
		t.Errorf("meminfo specs = %d, want 2", got)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), schema); err == nil {
		t.Error("LoadFile(missing) expected error")
	}
}
