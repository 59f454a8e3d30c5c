package command

import (
	"regexp"
	"strings"
)

var altSplitRe = regexp.MustCompile(`(?i)\s*,?\s*\balt:\s*`)

const quoteChars = "\"'`“”‘’"

// ParseEmojirade splits `"Point Break", alt: "The Matrix"` into its
// canonical answer and alternatives, stripping surrounding quotes.
func ParseEmojirade(s string) []string {
	parts := altSplitRe.Split(strings.TrimSpace(s), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.Trim(strings.TrimSpace(p), quoteChars))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FormatAnswer renders the reveal line for a finished round.
func FormatAnswer(emojirade []string) string {
	if len(emojirade) == 0 {
		return "The correct emojirade was a mystery"
	}
	var b strings.Builder
	b.WriteString("The correct emojirade was `" + emojirade[0] + "`")
	if len(emojirade) > 1 {
		alts := make([]string, 0, len(emojirade)-1)
		for _, a := range emojirade[1:] {
			alts = append(alts, "`"+a+"`")
		}
		b.WriteString(", with alternatives " + strings.Join(alts, " OR "))
	}
	return b.String()
}
