package fieldspec

import (
	"fmt"

	"github.com/nerrad567/droidprobe/internal/resolve"
)

// StepKind is the kind of a transform step.
type StepKind int

// Step kinds.
const (
	// StepCall calls a free function. With no arguments the function is
	// called with the current value.
	StepCall StepKind = iota

	// StepMethod calls a named operation on the current value.
	StepMethod
)

func (k StepKind) String() string {
	switch k {
	case StepCall:
		return "call"
	case StepMethod:
		return "method"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// Arg is a step argument: a literal, or the value produced so far.
type Arg struct {
	current bool
	lit     any
}

// Current stands for the value produced so far.
var Current = Arg{current: true}

// Lit returns a literal argument.
func Lit(v any) Arg {
	return Arg{lit: v}
}

// IsCurrent reports whether a is the Current placeholder.
func (a Arg) IsCurrent() bool {
	return a.current
}

// Value returns the literal value. It is nil for Current.
func (a Arg) Value() any {
	return a.lit
}

func (a Arg) bind(v any) any {
	if a.current {
		return v
	}
	return a.lit
}

func (a Arg) String() string {
	if a.current {
		return "$value"
	}
	return fmt.Sprintf("%#v", a.lit)
}

// Step is one transform pipeline step.
type Step struct {
	Kind StepKind
	Name string
	Args []Arg
}

// Call returns a step calling the free function name.
func Call(name string, args ...Arg) Step {
	return Step{Kind: StepCall, Name: name, Args: args}
}

// Method returns a step calling the operation name on the current value.
func Method(name string, args ...Arg) Step {
	return Step{Kind: StepMethod, Name: name, Args: args}
}

func (s Step) validate() error {
	var spec funcSpec
	var ok bool
	n := len(s.Args)
	switch s.Kind {
	case StepCall:
		spec, ok = functions[s.Name]
		if n == 0 {
			n = 1
		}
	case StepMethod:
		spec, ok = methods[s.Name]
	default:
		return fmt.Errorf("unknown step kind %d", int(s.Kind))
	}
	if !ok {
		return fmt.Errorf("%w: %s %q", ErrUnknownFunction, s.Kind, s.Name)
	}
	if n < spec.minArgs || (spec.maxArgs >= 0 && n > spec.maxArgs) {
		return fmt.Errorf("%s %q: %d arguments, want %s", s.Kind, s.Name, n, spec.arity())
	}
	return nil
}

// ApplyTransforms runs the pipeline over one candidate. It reports false if
// the candidate is empty before any step, becomes empty, or a step fails;
// later steps never see such a value.
func ApplyTransforms(steps []Step, v any) (any, bool) {
	if resolve.IsEmpty(v) {
		return nil, false
	}
	for _, s := range steps {
		out, err := applyStep(s, v)
		if err != nil || resolve.IsEmpty(out) {
			return nil, false
		}
		v = out
	}
	return v, true
}

func applyStep(s Step, v any) (any, error) {
	switch s.Kind {
	case StepCall:
		spec, ok := functions[s.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, s.Name)
		}
		args := s.Args
		if len(args) == 0 {
			args = []Arg{Current}
		}
		if spec.list {
			return spec.call(bindArgs(args, v))
		}
		return mapScalar(v, func(e any) (any, error) {
			return spec.call(bindArgs(args, e))
		})
	case StepMethod:
		spec, ok := methods[s.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, s.Name)
		}
		return mapScalar(v, func(e any) (any, error) {
			return spec.call(append([]any{e}, bindArgs(s.Args, e)...))
		})
	default:
		return nil, fmt.Errorf("unknown step kind %d", int(s.Kind))
	}
}

func bindArgs(args []Arg, v any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.bind(v)
	}
	return out
}

// mapScalar applies fn to v, or to each element when v is a list. Elements
// that are empty or fail are dropped.
func mapScalar(v any, fn func(any) (any, error)) (any, error) {
	list, ok := v.([]any)
	if !ok {
		return fn(v)
	}
	out := make([]any, 0, len(list))
	for _, e := range list {
		if resolve.IsEmpty(e) {
			continue
		}
		r, err := fn(e)
		if err != nil || resolve.IsEmpty(r) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// funcSpec is an entry in the closed function and method tables.
type funcSpec struct {
	// list functions receive whole lists; the others are mapped over list
	// elements.
	list    bool
	minArgs int
	maxArgs int // -1 for variadic
	call    func(args []any) (any, error)
}

func (f funcSpec) arity() string {
	switch {
	case f.maxArgs < 0:
		return fmt.Sprintf("at least %d", f.minArgs)
	case f.minArgs == f.maxArgs:
		return fmt.Sprint(f.minArgs)
	default:
		return fmt.Sprintf("%d to %d", f.minArgs, f.maxArgs)
	}
}

// FunctionNames returns the names of the free functions.
func FunctionNames() []string {
	return sortedKeys(functions)
}

// MethodNames returns the names of the methods.
func MethodNames() []string {
	return sortedKeys(methods)
}
