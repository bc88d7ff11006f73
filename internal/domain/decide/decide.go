// Package decide applies the business rules that turn match candidates into
// a final reconciliation decision.
//
// Confirmation is deliberately strict: a match is confirmed only when its
// method is exact and its confidence is strictly greater than 0.90. Because
// name-exact always scores exactly 0.90, a name-exact match is recorded as a
// suggestion and never auto-confirmed. That is the current product rule,
// implemented literally; see DESIGN.md before changing it.
package decide

import (
	"sort"

	"github.com/campusledger/reconcile/internal/domain/match"
)

// ReviewReason explains why a decision was flagged for manual review.
type ReviewReason string

const (
	ReasonNone          ReviewReason = ""
	ReasonNoCandidates  ReviewReason = "no_candidates"
	ReasonLowConfidence ReviewReason = "low_confidence"
)

const (
	confirmThreshold = 0.90
	// multi-way splits are only recognized for 2..4 codes; the extractor's
	// cap keeps the upper bound.
	minSplitCodes = 2
	maxSplitCodes = 4
)

// Match is one finalized share of a decision.
type Match struct {
	AccountID  int64
	ShareCents int64
	Confidence float64
	Method     match.Method
	Evidence   string
	Confirmed  bool
}

// Decision is the final outcome of the matching stages for one payment.
type Decision struct {
	Matches     []Match
	NeedsReview bool
	Reason      ReviewReason
}

// TopConfidence returns the highest candidate confidence, or 0 when the
// list is empty.
func TopConfidence(candidates []match.Candidate) float64 {
	top := 0.0
	for _, c := range candidates {
		if c.Confidence > top {
			top = c.Confidence
		}
	}
	return top
}

// Rank orders candidates deterministically: confidence descending, then
// method priority, then exact before fuzzy, then account id ascending.
// The input slice is not modified.
func Rank(candidates []match.Candidate) []match.Candidate {
	ranked := make([]match.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Method.Priority() != b.Method.Priority() {
			return a.Method.Priority() < b.Method.Priority()
		}
		if a.Method.Exact() != b.Method.Exact() {
			return a.Method.Exact()
		}
		return a.AccountID < b.AccountID
	})
	return ranked
}

// Decide applies the split and single-match rules to the candidate list.
// codes are the distinct reference codes extracted from the payment and
// amountCents is the payment total.
func Decide(candidates []match.Candidate, codes []string, amountCents int64) Decision {
	if len(candidates) == 0 {
		return Decision{NeedsReview: true, Reason: ReasonNoCandidates}
	}

	if split, ok := splitDecision(candidates, codes, amountCents); ok {
		return split
	}

	top := Rank(candidates)[0]
	confirmed := top.Method.Exact() && top.Confidence > confirmThreshold
	return Decision{
		Matches: []Match{{
			AccountID:  top.AccountID,
			ShareCents: amountCents,
			Confidence: top.Confidence,
			Method:     top.Method,
			Evidence:   top.Evidence,
			Confirmed:  confirmed,
		}},
	}
}

// splitDecision detects multi-way split payments: 2-4 distinct extracted
// codes, every one resolved by reference-exact to a distinct account. The
// total is divided losslessly across the resolved accounts and every share
// is confirmed.
func splitDecision(candidates []match.Candidate, codes []string, amountCents int64) (Decision, bool) {
	if len(codes) < minSplitCodes || len(codes) > maxSplitCodes {
		return Decision{}, false
	}

	// Map each code to the account reference-exact resolved it to.
	byCode := make(map[string]int64, len(codes))
	for _, c := range candidates {
		if c.Method == match.MethodRefExact {
			byCode[c.Code] = c.AccountID
		}
	}

	accounts := make([]int64, 0, len(codes))
	seen := make(map[int64]bool, len(codes))
	for _, code := range codes {
		id, ok := byCode[code]
		if !ok || seen[id] {
			return Decision{}, false
		}
		seen[id] = true
		accounts = append(accounts, id)
	}
	if len(accounts) != len(codes) {
		return Decision{}, false
	}

	shares := SplitCents(amountCents, len(accounts))
	matches := make([]Match, len(accounts))
	for i, id := range accounts {
		matches[i] = Match{
			AccountID:  id,
			ShareCents: shares[i],
			Confidence: 1.0,
			Method:     match.MethodRefExact,
			Evidence:   codes[i],
			Confirmed:  true,
		}
	}
	return Decision{Matches: matches}, true
}

// SplitCents divides total cents into n shares with no rounding loss: the
// first remainder shares carry one extra cent, and the shares always sum to
// the original total.
func SplitCents(total int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	base := total / int64(n)
	remainder := total - base*int64(n)

	shares := make([]int64, n)
	for i := range shares {
		shares[i] = base
		if int64(i) < remainder {
			shares[i]++
		}
	}
	return shares
}
