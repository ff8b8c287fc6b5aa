// Package markup provides MarkdownV2 text escaping for outbound messages.
package markup

import "strings"

// Backslash must come first: escaping it after the others would re-escape
// the markers inserted for them.
var escapeChars = []string{
	`\`, "_", "*", "[", "]", "(", ")", "~", "`", ">",
	"#", "+", "-", "=", "|", "{", "}", ".", "!",
}

// EscapeMarkdownV2 prefixes every MarkdownV2-significant character with a
// backslash so arbitrary text can be embedded in a MarkdownV2 message body.
func EscapeMarkdownV2(s string) string {
	for _, c := range escapeChars {
		s = strings.ReplaceAll(s, c, `\`+c)
	}
	return s
}
