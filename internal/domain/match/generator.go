// Package match generates match candidates for a payment record against the
// account roster.
//
// Four strategies run in a fixed order:
//   - reference-exact: extracted code equals an account's reference code
//   - reference-fuzzy: positional character overlap after prefix removal,
//     only consulted when reference-exact found nothing
//   - name-exact: both name parts appear in the payment text
//   - name-fuzzy: fraction of name words found in the text, capped below the
//     confirmation threshold so it can never auto-confirm
//
// All strategies are pure functions of their inputs and never fail; an
// unmatchable payment simply yields no candidates.
package match

import (
	"fmt"
	"strings"

	"github.com/campusledger/reconcile/internal/domain/normalize"
)

// name-fuzzy scoring: scaled by the exact-name confidence, hard-capped so a
// fuzzy name hit can never reach the confirmation threshold.
const (
	nameExactConfidence = 0.90
	nameFuzzyCap        = 0.65
	minCombinedNameLen  = 6
)

// Config holds candidate generation settings.
type Config struct {
	// ReferencePrefix is the fixed prefix stripped from both sides before
	// fuzzy reference comparison, e.g. "FEE-".
	ReferencePrefix string
	// StopWords are connector words that disqualify a name part from exact
	// name matching ("and", "von", ...).
	StopWords []string
}

// DefaultConfig returns the settings used when no configuration is supplied.
func DefaultConfig() Config {
	return Config{
		ReferencePrefix: "FEE-",
		StopWords: []string{
			"and", "for", "the",
			"und", "von", "der", "die", "das", "fuer",
		},
	}
}

// Generator produces match candidates for one payment at a time.
type Generator struct {
	prefix    string
	stopWords map[string]bool
}

// NewGenerator creates a generator with the given config.
func NewGenerator(cfg Config) *Generator {
	stop := make(map[string]bool, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[normalize.Normalize(w)] = true
	}
	return &Generator{
		prefix:    strings.ToUpper(cfg.ReferencePrefix),
		stopWords: stop,
	}
}

// Generate runs all strategies against the roster and returns the combined
// candidate list. The reference-fuzzy strategy runs only when reference-exact
// produced nothing; name-fuzzy skips accounts already matched by name-exact.
func (g *Generator) Generate(in Input, roster []Account) []Candidate {
	candidates := g.referenceExact(in, roster)
	if len(candidates) == 0 {
		candidates = g.referenceFuzzy(in, roster)
	}

	nameExact, matched := g.nameExact(in, roster)
	candidates = append(candidates, nameExact...)
	candidates = append(candidates, g.nameFuzzy(in, roster, matched)...)

	return candidates
}

// referenceExact matches each extracted code against account reference codes
// with case-insensitive equality.
func (g *Generator) referenceExact(in Input, roster []Account) []Candidate {
	var out []Candidate
	for _, code := range in.Codes {
		for _, acct := range roster {
			if acct.ReferenceCode == "" {
				continue
			}
			if strings.EqualFold(code, acct.ReferenceCode) {
				out = append(out, Candidate{
					AccountID:  acct.ID,
					Method:     MethodRefExact,
					Confidence: 1.0,
					Evidence:   code,
					Code:       code,
				})
			}
		}
	}
	return out
}

// referenceFuzzy scores positional character overlap between each extracted
// code and each account code, after stripping the configured prefix from
// both sides. The denominator is the stored code's post-prefix length, so a
// short noisy input cannot inflate the score.
func (g *Generator) referenceFuzzy(in Input, roster []Account) []Candidate {
	var out []Candidate
	for _, acct := range roster {
		if acct.ReferenceCode == "" {
			continue
		}
		stored := strings.TrimPrefix(strings.ToUpper(acct.ReferenceCode), g.prefix)
		if stored == "" {
			continue
		}

		var best Candidate
		for _, code := range in.Codes {
			input := strings.TrimPrefix(code, g.prefix)
			if input == "" {
				continue
			}

			n := len(stored)
			if len(input) < n {
				n = len(input)
			}
			matches := 0
			for i := 0; i < n; i++ {
				if stored[i] == input[i] {
					matches++
				}
			}
			if matches == 0 {
				continue
			}

			conf := float64(matches) / float64(len(stored))
			if conf > best.Confidence {
				best = Candidate{
					AccountID:  acct.ID,
					Method:     MethodRefFuzzy,
					Confidence: conf,
					Evidence:   fmt.Sprintf("%s ~ %s (%d/%d)", code, strings.ToUpper(acct.ReferenceCode), matches, len(stored)),
					Code:       code,
				}
			}
		}
		if best.Confidence > 0 {
			out = append(out, best)
		}
	}
	return out
}

// nameExact matches accounts whose given and family name both appear in the
// payment text. It returns the candidates plus the set of matched account
// IDs so name-fuzzy can skip them.
func (g *Generator) nameExact(in Input, roster []Account) ([]Candidate, map[int64]bool) {
	matched := make(map[int64]bool)
	var out []Candidate

	for _, acct := range roster {
		given := normalize.Normalize(acct.GivenName)
		family := normalize.Normalize(acct.FamilyName)
		if given == "" || family == "" {
			continue
		}
		if g.stopWords[given] || g.stopWords[family] {
			continue
		}
		full := given + " " + family
		if len(full) < minCombinedNameLen {
			continue
		}

		if strings.Contains(in.Text, given) && strings.Contains(in.Text, family) {
			matched[acct.ID] = true
			out = append(out, Candidate{
				AccountID:  acct.ID,
				Method:     MethodNameExact,
				Confidence: nameExactConfidence,
				Evidence:   full,
			})
		}
	}
	return out, matched
}

// nameFuzzy scores remaining accounts by the fraction of their name words
// (length >= 2) found as substrings of the payment text.
func (g *Generator) nameFuzzy(in Input, roster []Account, matched map[int64]bool) []Candidate {
	var out []Candidate
	for _, acct := range roster {
		if matched[acct.ID] {
			continue
		}
		full := normalize.Normalize(acct.GivenName + " " + acct.FamilyName)
		var words []string
		for _, w := range strings.Fields(full) {
			if len(w) >= 2 {
				words = append(words, w)
			}
		}
		if len(words) == 0 {
			continue
		}

		found := 0
		for _, w := range words {
			if strings.Contains(in.Text, w) {
				found++
			}
		}
		if found == 0 {
			continue
		}

		conf := float64(found) / float64(len(words)) * nameExactConfidence
		if conf > nameFuzzyCap {
			conf = nameFuzzyCap
		}
		out = append(out, Candidate{
			AccountID:  acct.ID,
			Method:     MethodNameFuzzy,
			Confidence: conf,
			Evidence:   fmt.Sprintf("%d/%d name words in text", found, len(words)),
		})
	}
	return out
}
