package poll

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractOptions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		max     int
		want    []string
	}{
		{name: "simple", content: "-A\n-B\n-C\n", max: 10, want: []string{"A", "B", "C"}},
		{name: "trimmed", content: "-  A  \n-\tB\n", max: 10, want: []string{"A", "B"}},
		{name: "empty lines dropped", content: "-A\n- \n-\n-B\n", max: 10, want: []string{"A", "B"}},
		{name: "dash inside option kept", content: "-Yes - definitely\n-No\n", max: 10, want: []string{"Yes - definitely", "No"}},
		{name: "tags stripped", content: "-<strong>Bold</strong>\n-<img src=x>\n-Plain\n", max: 10, want: []string{"Bold", "Plain"}},
		{name: "unclosed angle kept", content: "-x<y\n-z\n-w\n", max: 10, want: []string{"x<y", "z", "w"}},
		{name: "less than between tags", content: "-<b>1</b> < 2\n-3\n", max: 10, want: []string{"1 < 2", "3"}},
		{name: "crlf", content: "-A\r\n-B\r\n", max: 10, want: []string{"A", "B"}},
		{name: "no cap", content: "-A\n-B\n-C\n", max: 0, want: []string{"A", "B", "C"}},
		{name: "nothing usable", content: "-\n- \n", max: 10, want: []string{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractOptions(tt.content, tt.max)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ExtractOptions(%q, %d) = %q, want %q", tt.content, tt.max, got, tt.want)
			}
		})
	}
}

func TestExtractOptionsCapsAtMax(t *testing.T) {
	t.Parallel()
	var b strings.Builder
	for i := 0; i < 15; i++ {
		b.WriteString("-opt\n")
	}
	for _, max := range []int{1, 5, 10, 14, 15} {
		got := ExtractOptions(b.String(), max)
		if len(got) != max {
			t.Fatalf("max=%d: got %d options, want %d", max, len(got), max)
		}
	}
	if got := ExtractOptions(b.String(), 20); len(got) != 15 {
		t.Fatalf("max=20: got %d options, want 15", len(got))
	}
}
