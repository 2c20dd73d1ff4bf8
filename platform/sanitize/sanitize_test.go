package sanitize

import (
	"reflect"
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "scratch on panel", "scratch on panel"},
		{"tags", "<b>bent</b> edge", "bent edge"},
		{"encoded tags", "&lt;script&gt;alert(1)&lt;/script&gt;late", "alert(1)late"},
		{"whitespace", "  two\t\tspaces \n here ", "two spaces here"},
		{"control", "bad\x00\x07 weld", "bad weld"},
		{"ampersand", "Shah &amp; Sons", "Shah & Sons"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Fatalf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNames(t *testing.T) {
	got := Names([]string{" meena ", "", "ravi", "meena", "<i>ravi</i>", "asha"})
	want := []string{"meena", "ravi", "asha"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
	if got := Names(nil); len(got) != 0 {
		t.Fatalf("Names(nil) = %v, want empty", got)
	}
}
