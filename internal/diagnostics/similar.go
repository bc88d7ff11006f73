// Package diagnostics provides read-only helpers for the manual review
// surface, such as ranking which accounts a stuck payment most resembles.
package diagnostics

import (
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/campusledger/reconcile/internal/domain/match"
	"github.com/campusledger/reconcile/internal/domain/normalize"
)

// Suggestion is one account ranked by name similarity to a payment.
type Suggestion struct {
	AccountID  int64   `json:"account_id"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// SimilarAccounts ranks the roster by Levenshtein similarity between the
// payment's payer name (or its full text when no payer is present) and each
// account's name. Results are sorted by similarity descending, ties broken
// by account id, and capped at limit.
func SimilarAccounts(payerName, fullText string, roster []match.Account, limit int) []Suggestion {
	key := normalize.Normalize(payerName)
	if key == "" {
		key = normalize.Normalize(fullText)
	}
	if key == "" || limit <= 0 {
		return nil
	}

	suggestions := make([]Suggestion, 0, len(roster))
	for _, acct := range roster {
		full := normalize.Normalize(acct.GivenName + " " + acct.FamilyName)
		best := similarity(key, full)
		name := full
		if long := normalize.Normalize(acct.LongName); long != "" {
			if s := similarity(key, long); s > best {
				best = s
				name = long
			}
		}
		if best <= 0 {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			AccountID:  acct.ID,
			Name:       name,
			Similarity: best,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Similarity != suggestions[j].Similarity {
			return suggestions[i].Similarity > suggestions[j].Similarity
		}
		return suggestions[i].AccountID < suggestions[j].AccountID
	})

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

// similarity maps Levenshtein distance into [0,1], 1 meaning equal.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	dist := levenshtein.ComputeDistance(a, b)
	s := 1 - float64(dist)/float64(maxLen)
	if s < 0 {
		return 0
	}
	return s
}
