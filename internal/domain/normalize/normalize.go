// Package normalize provides the text normalization used everywhere the
// matching pipeline compares free-text payment fields against account data.
//
// Normalization is total and deterministic: it never fails and the same
// input always yields the same output, regardless of host locale.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// germanFolder maps characters that full case folding leaves alone but that
// German bank exports write both ways (Müller vs Mueller).
var germanFolder = strings.NewReplacer(
	"ä", "ae",
	"ö", "oe",
	"ü", "ue",
	"ß", "ss",
)

// Normalize lowercases text using full Unicode case folding, replaces every
// character that is not a letter, digit, whitespace, or hyphen with a space,
// collapses whitespace runs, and trims.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	folded := cases.Fold().String(text)
	folded = germanFolder.Replace(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
