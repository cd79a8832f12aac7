package utils

import "testing"

func TestSnippet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{name: "non-positive limit", input: "Senior agronomist", limit: 0, expect: ""},
		{name: "short text", input: "Agronomist", limit: 20, expect: "Agronomist"},
		{name: "collapses line breaks", input: "John Doe\n\n  Agronomist\tKyiv ", limit: 40, expect: "John Doe Agronomist Kyiv"},
		{name: "cuts after collapsing", input: "soil\n\ncrops irrigation", limit: 10, expect: "soil crops..."},
		{name: "counts runes", input: "Агроном полевых культур", limit: 7, expect: "Агроном..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Snippet(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestTextStats(t *testing.T) {
	t.Parallel()

	count, runes := TextStats([]string{"soil", "Агроном", ""})
	if count != 3 || runes != 11 {
		t.Fatalf("unexpected stats %d texts, %d runes", count, runes)
	}
}
