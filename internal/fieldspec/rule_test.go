package fieldspec

import (
	"reflect"
	"testing"
)

func TestApplyRule(t *testing.T) {
	text := "Processor\t: AArch64\nprocessor\t: 0\nprocessor\t: 1\nHardware\t: Qualcomm SM8350\n"

	tests := []struct {
		name   string
		rule   Rule
		want   any
		wantOK bool
	}{
		{
			name:   "identity returns text",
			rule:   Identity(),
			want:   text,
			wantOK: true,
		},
		{
			name:   "search first match group",
			rule:   Search(`^Hardware\s*:\s*(.*)$`, 1),
			want:   "Qualcomm SM8350",
			wantOK: true,
		},
		{
			name:   "search whole match with group 0",
			rule:   Search(`SM\d+`, 0),
			want:   "SM8350",
			wantOK: true,
		},
		{
			name:   "search is multi-line",
			rule:   Search(`^processor\s*:\s*(\d+)$`, 1),
			want:   "0",
			wantOK: true,
		},
		{
			name:   "search miss",
			rule:   Search(`^Serial\s*:\s*(.*)$`, 1),
			wantOK: false,
		},
		{
			name:   "find all",
			rule:   FindAll(`^processor\s*:\s*(\d+)`, 1),
			want:   []any{"0", "1"},
			wantOK: true,
		},
		{
			name:   "find all miss",
			rule:   FindAll(`^cpu MHz\s*:\s*(.*)`, 1),
			wantOK: false,
		},
		{
			name:   "invalid pattern never matches",
			rule:   Search(`(unclosed`, 1),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ApplyRule(tt.rule, text)
			if ok != tt.wantOK {
				t.Fatalf("ApplyRule() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ApplyRule() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{name: "identity", rule: Identity(), wantErr: false},
		{name: "valid search", rule: Search(`a(b)`, 1), wantErr: false},
		{name: "group zero", rule: FindAll(`ab`, 0), wantErr: false},
		{name: "bad pattern", rule: Search(`a(`, 1), wantErr: true},
		{name: "group out of range", rule: Search(`a(b)`, 2), wantErr: true},
		{name: "negative group", rule: Search(`a(b)`, -1), wantErr: true},
		{name: "hand-built rule", rule: Rule{Kind: RuleSearch, Pattern: "a"}, wantErr: true},
		{name: "unknown kind", rule: Rule{Kind: RuleKind(9)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
