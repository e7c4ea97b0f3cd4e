package fieldspec

import (
	"reflect"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		spec   FieldSpec
		text   string
		want   any
		wantOK bool
	}{
		{
			name: "meminfo scenario",
			spec: FieldSpec{
				Field: "ram_total",
				Rules: []Rule{Search(`^MemTotal:\s*(\d+) kB`, 1)},
				Transforms: []Step{
					Call("int"),
					Call("floordiv", Current, Lit(1024)),
					Call("str"),
					Call("concat", Current, Lit(" MB")),
				},
			},
			text:   "MemTotal:    965432 kB\nMemFree:      12345 kB\n",
			want:   "942 MB",
			wantOK: true,
		},
		{
			name: "no rules uses whole output",
			spec: FieldSpec{Field: "kernel_version"},
			text: "Linux version 5.10\n",
			want: "Linux version 5.10\n", wantOK: true,
		},
		{
			name: "no rules with transforms",
			spec: FieldSpec{Field: "kernel_version", Transforms: []Step{Method("strip")}},
			text: "  5.10  \n",
			want: "5.10", wantOK: true,
		},
		{
			name: "drop takes first rule with a value",
			spec: FieldSpec{
				Field: "cpu_cores",
				Rules: []Rule{Search(`^cores: (\d+)`, 1), Search(`^cpus: (\d+)`, 1)},
				Multi: MultiDrop,
			},
			text:   "cpus: 4\n",
			want:   "4",
			wantOK: true,
		},
		{
			name: "drop stops at first success",
			spec: FieldSpec{
				Field: "cpu_cores",
				Rules: []Rule{Search(`^cores: (\d+)`, 1), Search(`^cpus: (\d+)`, 1)},
				Multi: MultiDrop,
			},
			text:   "cores: 8\ncpus: 4\n",
			want:   "8",
			wantOK: true,
		},
		{
			name: "replace keeps last successful rule",
			spec: FieldSpec{
				Field: "resolution",
				Rules: []Rule{Search(`^Physical size: (\S+)`, 1), Search(`^Override size: (\S+)`, 1)},
				Multi: MultiReplace,
			},
			text:   "Physical size: 1080x2400\nOverride size: 720x1600\n",
			want:   "720x1600",
			wantOK: true,
		},
		{
			name: "replace falls back when later rule misses",
			spec: FieldSpec{
				Field: "resolution",
				Rules: []Rule{Search(`^Physical size: (\S+)`, 1), Search(`^Override size: (\S+)`, 1)},
				Multi: MultiReplace,
			},
			text:   "Physical size: 1080x2400\n",
			want:   "1080x2400",
			wantOK: true,
		},
		{
			name: "append concatenates rule results",
			spec: FieldSpec{
				Field: "chipset",
				Rules: []Rule{Search(`^a=(.*)$`, 1), FindAll(`^b=(.*)$`, 1), Search(`^c=(.*)$`, 1)},
				Multi: MultiAppend,
			},
			text:   "a=1\nb=2\nb=3\n",
			want:   []any{"1", "2", "3"},
			wantOK: true,
		},
		{
			name: "transform failure on first rule falls through under drop",
			spec: FieldSpec{
				Field:      "sdk_level",
				Rules:      []Rule{Search(`^x=(.*)$`, 1), Search(`^y=(.*)$`, 1)},
				Transforms: []Step{Call("int")},
			},
			text:   "x=abc\ny=34\n",
			want:   34,
			wantOK: true,
		},
		{
			name: "nothing matches",
			spec: FieldSpec{
				Field: "model",
				Rules: []Rule{Search(`^model=(.*)$`, 1)},
			},
			text:   "unrelated\n",
			wantOK: false,
		},
		{
			name:   "empty output is no candidate",
			spec:   FieldSpec{Field: "model"},
			text:   "",
			wantOK: false,
		},
		{
			name: "raising transform yields no candidate",
			spec: FieldSpec{
				Field:      "sdk_level",
				Rules:      []Rule{Search(`^sdk=(.*)$`, 1)},
				Transforms: []Step{Call("int")},
			},
			text:   "sdk=UpsideDownCake\n",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Evaluate(tt.spec, tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Evaluate() ok = %v (value %#v), want %v", ok, got, tt.wantOK)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Evaluate() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
