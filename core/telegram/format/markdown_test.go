package format

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"snake_case_name", "snake\\_case\\_name"},
		{"*bold* [link`", "\\*bold\\* \\[link\\`"},
		{"", ""},
	}
	for _, c := range cases {
		if got := EscapeMarkdown(c.in); got != c.want {
			t.Errorf("EscapeMarkdown(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
