// Package extract pulls structured signals out of free-text payment fields:
// reference codes like FEE-2024-0031 and name-like tokens.
package extract

import (
	"regexp"
	"strings"
)

// MaxReferenceCodes bounds how many codes a single payment can contribute.
// Anything beyond the cap is discarded, which also bounds the multi-way
// split combinatorics downstream.
const MaxReferenceCodes = 4

// codePattern matches maximal alphanumeric segments joined by hyphens with
// at least one hyphen, e.g. ABC-123-X4.
var codePattern = regexp.MustCompile(`[A-Za-z0-9]+(?:-[A-Za-z0-9]+)+`)

// ReferenceCodes finds all reference codes in raw text, uppercases them, and
// deduplicates preserving first-seen order. The result is capped at
// MaxReferenceCodes.
func ReferenceCodes(raw string) []string {
	matches := codePattern.FindAllString(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	codes := make([]string, 0, len(matches))
	for _, m := range matches {
		code := strings.ToUpper(m)
		if seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
		if len(codes) == MaxReferenceCodes {
			break
		}
	}
	return codes
}

// NameTokens splits normalized text on whitespace and keeps tokens of at
// least three characters.
func NameTokens(normalized string) []string {
	var tokens []string
	for _, tok := range strings.Fields(normalized) {
		if len(tok) >= 3 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
