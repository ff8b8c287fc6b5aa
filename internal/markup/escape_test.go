package markup

import (
	"strings"
	"testing"
)

func TestEscapeMarkdownV2(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"#alice #ytb_live", `\#alice \#ytb\_live`},
		{"a.b!c", `a\.b\!c`},
		{"(x) [y] {z}", `\(x\) \[y\] \{z\}`},
		{"https://x/y?a=1", `https://x/y?a\=1`},
	}
	for _, c := range cases {
		if got := EscapeMarkdownV2(c.in); got != c.want {
			t.Errorf("EscapeMarkdownV2(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEscapeBackslashFirst(t *testing.T) {
	// A literal backslash must become an escaped backslash, not trigger
	// double-escaping of markers inserted for other characters.
	got := EscapeMarkdownV2(`\.`)
	if got != `\\\.` {
		t.Fatalf(`EscapeMarkdownV2(\.) = %q, want \\\.`, got)
	}
}

func TestEscapeNeverDoubleEscapes(t *testing.T) {
	// Every backslash in the output must immediately precede a
	// markup-significant character or another backslash.
	out := EscapeMarkdownV2("a_b*c\\d.e")
	rs := []rune(out)
	for i, r := range rs {
		if r != '\\' {
			continue
		}
		if i+1 >= len(rs) {
			t.Fatalf("trailing bare backslash in %q", out)
		}
		next := string(rs[i+1])
		if next != `\` && !strings.Contains("_*[]()~`>#+-=|{}.!", next) {
			t.Fatalf("backslash before non-markup char %q in %q", next, out)
		}
	}
}
