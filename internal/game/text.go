package game

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeGuess folds case and compatibility forms, drops punctuation and
// collapses whitespace, so "The  Matrix!" and "the matrix" compare equal.
func NormalizeGuess(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))

	var b strings.Builder
	gap := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || isPictograph(r) {
			if gap && b.Len() > 0 {
				b.WriteByte(' ')
			}
			gap = false
			b.WriteRune(r)
			continue
		}
		gap = true
	}
	return b.String()
}

// MatchesAny reports whether guess equals any of the alternatives after
// normalisation.
func MatchesAny(guess string, alternatives []string) bool {
	g := NormalizeGuess(guess)
	if g == "" {
		return false
	}
	for _, alt := range alternatives {
		if NormalizeGuess(alt) == g {
			return true
		}
	}
	return false
}

var shortcodeRe = regexp.MustCompile(`:[a-z0-9_+\-']+:`)

// IsEmojiOnly reports whether text consists solely of emoji, given as
// :shortcode: tokens or unicode pictographs, and whitespace.
func IsEmojiOnly(text string) bool {
	found := false
	rest := shortcodeRe.ReplaceAllStringFunc(strings.ToLower(text), func(string) string {
		found = true
		return " "
	})

	for _, r := range rest {
		switch {
		case unicode.IsSpace(r):
		case isPictograph(r):
			found = true
		case isEmojiComponent(r):
		default:
			return false
		}
	}
	return found
}

func isPictograph(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return !isEmojiComponent(r)
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2190 && r <= 0x21FF, r >= 0x2B00 && r <= 0x2BFF:
		return true
	case r == 0x00A9 || r == 0x00AE || r == 0x203C || r == 0x2049 || r == 0x2122:
		return true
	}
	return r > unicode.MaxLatin1 && unicode.Is(unicode.So, r)
}

// isEmojiComponent joiners, variation selectors, skin tones, keycaps and tags.
func isEmojiComponent(r rune) bool {
	switch {
	case r == 0x200D, r == 0xFE0F, r == 0xFE0E, r == 0x20E3:
		return true
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r >= 0xE0020 && r <= 0xE007F:
		return true
	}
	return false
}
