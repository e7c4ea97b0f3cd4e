package fieldspec

import (
	"errors"
	"reflect"
	"testing"
)

func TestApplyTransforms(t *testing.T) {
	tests := []struct {
		name   string
		steps  []Step
		in     any
		want   any
		wantOK bool
	}{
		{
			name: "ram pipeline",
			steps: []Step{
				Call("int"),
				Call("floordiv", Current, Lit(1024)),
				Call("str"),
				Call("concat", Current, Lit(" MB")),
			},
			in:     "965432",
			want:   "942 MB",
			wantOK: true,
		},
		{
			name:   "no steps passes value through",
			in:     "x",
			want:   "x",
			wantOK: true,
		},
		{
			name:   "empty input short-circuits",
			steps:  []Step{Call("concat", Lit("never"))},
			in:     "   ",
			wantOK: false,
		},
		{
			name:   "empty list short-circuits",
			steps:  []Step{Call("len")},
			in:     []any{},
			wantOK: false,
		},
		{
			name:   "failing step discards candidate",
			steps:  []Step{Call("int"), Call("str")},
			in:     "not a number",
			wantOK: false,
		},
		{
			name:   "step producing empty value stops pipeline",
			steps:  []Step{Method("strip"), Method("append", Lit("!"))},
			in:     " \t",
			wantOK: false,
		},
		{
			name:   "scalar step maps over list and drops failures",
			steps:  []Step{Call("int")},
			in:     []any{"1", "two", "3"},
			want:   []any{1, 3},
			wantOK: true,
		},
		{
			name:   "list that loses every element is no candidate",
			steps:  []Step{Call("int")},
			in:     []any{"a", "b"},
			wantOK: false,
		},
		{
			name:   "list function sees whole list",
			steps:  []Step{Call("unique"), Call("len")},
			in:     []any{"GL_A", "GL_B", "GL_A"},
			want:   2,
			wantOK: true,
		},
		{
			name:   "method with literal args",
			steps:  []Step{Method("split", Lit(","))},
			in:     "arm64-v8a,armeabi-v7a",
			want:   []any{"arm64-v8a", "armeabi-v7a"},
			wantOK: true,
		},
		{
			name:   "concat with current in second position",
			steps:  []Step{Call("concat", Lit("ARMv"), Current)},
			in:     "8",
			want:   "ARMv8",
			wantOK: true,
		},
		{
			name:   "title case",
			steps:  []Step{Method("title")},
			in:     "SAMSUNG electronics",
			want:   "Samsung Electronics",
			wantOK: true,
		},
		{
			name:   "gles version",
			steps:  []Step{Call("gles_version")},
			in:     "196610",
			want:   "3.2",
			wantOK: true,
		},
		{
			name:   "divide and format",
			steps:  []Step{Call("int"), Call("div", Current, Lit(10)), Call("str")},
			in:     "285",
			want:   "28.5",
			wantOK: true,
		},
		{
			name:   "zero result is kept",
			steps:  []Step{Call("int")},
			in:     "0",
			want:   0,
			wantOK: true,
		},
		{
			name:   "method on number fails",
			steps:  []Step{Call("int"), Method("upper")},
			in:     "5",
			wantOK: false,
		},
		{
			name:   "unknown function fails",
			steps:  []Step{Call("eval")},
			in:     "x",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ApplyTransforms(tt.steps, tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ApplyTransforms() ok = %v (value %#v), want %v", ok, got, tt.wantOK)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ApplyTransforms() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestFunctions(t *testing.T) {
	tests := []struct {
		name    string
		fn      string
		args    []any
		want    any
		wantErr bool
	}{
		{name: "int trims", fn: "int", args: []any{" 42 "}, want: 42},
		{name: "int from float truncates", fn: "int", args: []any{60.9}, want: 60},
		{name: "int base 16", fn: "int", args: []any{"ff", 16}, want: 255},
		{name: "int rejects bool", fn: "int", args: []any{true}, wantErr: true},
		{name: "float", fn: "float", args: []any{"60.000000"}, want: 60.0},
		{name: "str float", fn: "str", args: []any{28.5}, want: "28.5"},
		{name: "str list fails", fn: "str", args: []any{[]any{"a"}}, wantErr: true},
		{name: "floordiv ints", fn: "floordiv", args: []any{965432, 1024}, want: 942},
		{name: "floordiv negative floors", fn: "floordiv", args: []any{-7, 2}, want: -4},
		{name: "floordiv float", fn: "floordiv", args: []any{7.5, 2}, want: 3.0},
		{name: "floordiv by zero", fn: "floordiv", args: []any{1, 0}, wantErr: true},
		{name: "floordiv string fails", fn: "floordiv", args: []any{"10", 2}, wantErr: true},
		{name: "mul", fn: "mul", args: []any{3, 4}, want: 12},
		{name: "div", fn: "div", args: []any{1, 4}, want: 0.25},
		{name: "div by zero", fn: "div", args: []any{1, 0}, wantErr: true},
		{name: "concat", fn: "concat", args: []any{"a", "b", "c"}, want: "abc"},
		{name: "concat number fails", fn: "concat", args: []any{942, " MB"}, wantErr: true},
		{name: "len string", fn: "len", args: []any{"héllo"}, want: 5},
		{name: "join default sep", fn: "join", args: []any{[]any{"a", 1}}, want: "a, 1"},
		{name: "join sep", fn: "join", args: []any{[]any{"a", "b"}, "/"}, want: "a/b"},
		{name: "sorted strings", fn: "sorted", args: []any{[]any{"b", "a", "c"}}, want: []any{"a", "b", "c"}},
		{name: "sorted numbers", fn: "sorted", args: []any{[]any{10, 9, 1.5}}, want: []any{1.5, 9, 10}},
		{name: "first", fn: "first", args: []any{[]any{"x", "y"}}, want: "x"},
		{name: "last", fn: "last", args: []any{[]any{"x", "y"}}, want: "y"},
		{name: "first of empty", fn: "first", args: []any{[]any{}}, wantErr: true},
		{name: "human bytes", fn: "human_bytes", args: []any{1536}, want: "1.5 KB"},
		{name: "human bytes whole", fn: "human_bytes", args: []any{"4294967296"}, want: "4 GB"},
		{name: "human bytes small", fn: "human_bytes", args: []any{512}, want: "512 B"},
		{name: "gles version zero", fn: "gles_version", args: []any{0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := functions[tt.fn].call(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("%s(%v) error = %v, wantErr %v", tt.fn, tt.args, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, errBadInput) {
					t.Errorf("error %v does not wrap errBadInput", err)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("%s(%v) = %#v, want %#v", tt.fn, tt.args, got, tt.want)
			}
		})
	}
}

func TestMethods(t *testing.T) {
	tests := []struct {
		name string
		m    string
		args []any
		want any
	}{
		{name: "strip", m: "strip", args: []any{"  x \n"}, want: "x"},
		{name: "strip chars", m: "strip", args: []any{"[x]", "[]"}, want: "x"},
		{name: "lower", m: "lower", args: []any{"ABC"}, want: "abc"},
		{name: "upper", m: "upper", args: []any{"abc"}, want: "ABC"},
		{name: "replace", m: "replace", args: []any{"a_b_c", "_", "-"}, want: "a-b-c"},
		{name: "split fields", m: "split", args: []any{"fp asimd  evtstrm"}, want: []any{"fp", "asimd", "evtstrm"}},
		{name: "trim prefix", m: "trim_prefix", args: []any{"package:com.x", "package:"}, want: "com.x"},
		{name: "trim suffix", m: "trim_suffix", args: []any{"60 fps", " fps"}, want: "60"},
		{name: "append", m: "append", args: []any{"420", " dpi"}, want: "420 dpi"},
		{name: "prepend", m: "prepend", args: []any{"8", "ARMv"}, want: "ARMv8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := methods[tt.m].call(tt.args)
			if err != nil {
				t.Fatalf("%s error = %v", tt.m, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("%s(%v) = %#v, want %#v", tt.m, tt.args, got, tt.want)
			}
		})
	}
}

func TestStep_Validate(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr error
	}{
		{name: "call with implicit current", step: Call("int")},
		{name: "call with args", step: Call("floordiv", Current, Lit(1024))},
		{name: "method", step: Method("replace", Lit("a"), Lit("b"))},
		{name: "unknown call", step: Call("exec"), wantErr: ErrUnknownFunction},
		{name: "unknown method", step: Method("explode"), wantErr: ErrUnknownFunction},
		{name: "too few args", step: Call("floordiv", Current), wantErr: errAny},
		{name: "too many args", step: Method("lower", Lit("x")), wantErr: errAny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.validate()
			switch {
			case tt.wantErr == nil && err != nil:
				t.Errorf("validate() error = %v, want nil", err)
			case tt.wantErr == errAny && err == nil:
				t.Error("validate() error = nil, want an error")
			case tt.wantErr != nil && tt.wantErr != errAny && !errors.Is(err, tt.wantErr):
				t.Errorf("validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// errAny marks a test case that expects some error.
var errAny = errors.New("any error")

func TestFunctionNames(t *testing.T) {
	names := FunctionNames()
	for _, want := range []string{"int", "floordiv", "concat", "gles_version", "sorted"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("FunctionNames() missing %q", want)
		}
	}
	if len(MethodNames()) != len(methods) {
		t.Errorf("MethodNames() len = %d, want %d", len(MethodNames()), len(methods))
	}
}
