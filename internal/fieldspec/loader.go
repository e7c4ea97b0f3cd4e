package fieldspec

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/droidprobe/internal/channel"
	"github.com/nerrad567/droidprobe/internal/device"
	"github.com/nerrad567/droidprobe/internal/resolve"
)

// CurrentPlaceholder is the argument string that stands for the value
// produced so far in a YAML transform step.
const CurrentPlaceholder = "$value"

// fileDoc is the YAML field-spec file:
//
//	commands:
//	  - source: meminfo
//	    args: [shell, cat, /proc/meminfo]
//	    fields:
//	      - field: ram_total
//	        rules:
//	          - search: '^MemTotal:\s*(\d+) kB'
//	        transforms:
//	          - call: int
//	          - call: floordiv
//	            args: [$value, 1024]
//	          - call: str
//	          - method: append
//	            args: [" MB"]
//	        multi: drop
//	        existing: replace
type fileDoc struct {
	Commands []commandDoc `yaml:"commands"`
}

type commandDoc struct {
	Source  string     `yaml:"source"`
	Args    []string   `yaml:"args"`
	Options optionsDoc `yaml:"options"`
	Fields  []fieldDoc `yaml:"fields"`
}

type optionsDoc struct {
	Stream     bool `yaml:"stream"`
	SplitLines bool `yaml:"split_lines"`
}

type fieldDoc struct {
	Field      string    `yaml:"field"`
	Rules      []ruleDoc `yaml:"rules"`
	Transforms []stepDoc `yaml:"transforms"`
	Multi      string    `yaml:"multi"`
	Existing   string    `yaml:"existing"`
}

type ruleDoc struct {
	Search   string `yaml:"search"`
	FindAll  string `yaml:"find_all"`
	Identity bool   `yaml:"identity"`

	// Group defaults to 1 when the pattern has a capture group, else 0.
	Group *int `yaml:"group"`
}

type stepDoc struct {
	Call   string `yaml:"call"`
	Method string `yaml:"method"`
	Args   []any  `yaml:"args"`
}

// LoadFile reads a YAML field-spec file. See Parse.
func LoadFile(path string, schema *device.Schema) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading field spec file: %w", err)
	}
	entries, err := Parse(data, schema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Parse decodes YAML field specs and validates them against schema.
// Errors wrap ErrInvalidSpec.
func Parse(data []byte, schema *device.Schema) ([]Entry, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %v", ErrInvalidSpec, err)
	}

	var (
		entries []Entry
		errs    []error
	)
	for i, c := range doc.Commands {
		e, err := c.entry()
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: command %d (%s): %v", ErrInvalidSpec, i, c.Source, err))
			continue
		}
		if err := validateEntry(schema, e); err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, e)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c commandDoc) entry() (Entry, error) {
	e := Entry{
		Command: RawCommand{
			Source: c.Source,
			Args:   c.Args,
			Options: channel.Options{
				Stream:     c.Options.Stream,
				SplitLines: c.Options.SplitLines,
			},
		},
	}
	for _, f := range c.Fields {
		spec, err := f.spec()
		if err != nil {
			return Entry{}, fmt.Errorf("field %q: %w", f.Field, err)
		}
		e.Fields = append(e.Fields, spec)
	}
	return e, nil
}

func (f fieldDoc) spec() (FieldSpec, error) {
	spec := FieldSpec{
		Field: f.Field,
		Multi: MultiPolicy(strings.ToLower(strings.TrimSpace(f.Multi))),
	}
	if f.Existing != "" {
		p, err := resolve.ParsePolicy(f.Existing)
		if err != nil {
			return FieldSpec{}, err
		}
		spec.Existing = p
	}

	for i, r := range f.Rules {
		rule, err := r.rule()
		if err != nil {
			return FieldSpec{}, fmt.Errorf("rule %d: %w", i, err)
		}
		spec.Rules = append(spec.Rules, rule)
	}

	for i, s := range f.Transforms {
		step, err := s.step()
		if err != nil {
			return FieldSpec{}, fmt.Errorf("transform %d: %w", i, err)
		}
		spec.Transforms = append(spec.Transforms, step)
	}
	return spec, nil
}

func (r ruleDoc) rule() (Rule, error) {
	set := 0
	for _, on := range []bool{r.Search != "", r.FindAll != "", r.Identity} {
		if on {
			set++
		}
	}
	if set != 1 {
		return Rule{}, fmt.Errorf("exactly one of search, find_all or identity is required")
	}

	var rule Rule
	switch {
	case r.Identity:
		return Identity(), nil
	case r.Search != "":
		rule = Search(r.Search, 0)
	default:
		rule = FindAll(r.FindAll, 0)
	}

	switch {
	case r.Group != nil:
		rule.Group = *r.Group
	case rule.re != nil && rule.re.NumSubexp() > 0:
		rule.Group = 1
	}
	return rule, nil
}

func (s stepDoc) step() (Step, error) {
	if (s.Call == "") == (s.Method == "") {
		return Step{}, fmt.Errorf("exactly one of call or method is required")
	}

	args := make([]Arg, len(s.Args))
	for i, a := range s.Args {
		if str, ok := a.(string); ok && str == CurrentPlaceholder {
			args[i] = Current
			continue
		}
		args[i] = Lit(a)
	}

	if s.Call != "" {
		return Call(s.Call, args...), nil
	}
	return Method(s.Method, args...), nil
}
