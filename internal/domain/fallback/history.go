// Package fallback implements the two escalating read-only stages consulted
// when candidate generation leaves the pipeline without a confident match:
// history-assist (re-rank using prior audit outcomes for identical text) and
// memory-fallback (last-resort lookup against recently confirmed payments).
//
// Both stages only read; balances are never touched here.
package fallback

import (
	"context"
	"fmt"
)

// LowConfidenceThreshold is the confidence below which the pipeline consults
// history-assist and, failing that, flags the record for review.
const LowConfidenceThreshold = 0.70

const (
	historyLimit = 3
	historyBoost = 0.05
)

// HistoryEntry is one prior audit outcome, with confidence on the stored
// 0-100 scale.
type HistoryEntry struct {
	AccountID  int64
	Confidence float64
}

// HistoryStore looks up prior audit records by exact normalized text or
// payer name.
type HistoryStore interface {
	// TopHistoryMatches returns up to limit highest-confidence audit records
	// whose stored normalized text or payer name exactly equals the given
	// values.
	TopHistoryMatches(ctx context.Context, normalizedText, payerName string, limit int) ([]HistoryEntry, error)
}

// HistoryCandidate is a history-assist suggestion. It is always unconfirmed.
type HistoryCandidate struct {
	AccountID  int64
	Confidence float64
	Evidence   string
}

// HistoryAssist looks up the strongest prior outcomes for payments with the
// same normalized text or payer name. topConfidence is the best confidence
// the candidate generator achieved; each historical hit scores
// min(1.0, max(topConfidence, stored/100 + 0.05)).
func HistoryAssist(ctx context.Context, store HistoryStore, normalizedText, payerName string, topConfidence float64) ([]HistoryCandidate, error) {
	entries, err := store.TopHistoryMatches(ctx, normalizedText, payerName, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("history lookup: %w", err)
	}

	out := make([]HistoryCandidate, 0, len(entries))
	for _, e := range entries {
		conf := e.Confidence/100 + historyBoost
		if topConfidence > conf {
			conf = topConfidence
		}
		if conf > 1.0 {
			conf = 1.0
		}
		out = append(out, HistoryCandidate{
			AccountID:  e.AccountID,
			Confidence: conf,
			Evidence:   fmt.Sprintf("prior match at %.0f%% for identical text", e.Confidence),
		})
	}
	return out, nil
}
