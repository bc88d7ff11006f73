package fallback

import (
	"context"
	"fmt"
	"strings"

	"github.com/campusledger/reconcile/internal/domain/normalize"
)

const (
	memoryScanLimit = 50
	minKeyLength    = 6
	agreeWindow     = 3
	memoryBoost     = 0.05
	memoryBoostCap  = 0.85
)

// KeyType identifies which payment field produced a memory-fallback hit.
type KeyType string

const (
	KeyReference       KeyType = "reference"
	KeyReferenceNumber KeyType = "reference_number"
	KeyPayerName       KeyType = "payer_name"
)

// confidence caps per key type; a fallback suggestion can never score above
// its key's cap plus the agreement boost.
var keyCaps = map[KeyType]float64{
	KeyReference:       0.75,
	KeyReferenceNumber: 0.70,
	KeyPayerName:       0.60,
}

// MemoryEntry is a recently confirmed payment joined back to its original
// free-text fields, most recent first.
type MemoryEntry struct {
	AccountID       int64
	Reference       string
	ReferenceNumber string
	PayerName       string
}

// MemoryStore lists recently confirmed payments for the memory-fallback
// scan.
type MemoryStore interface {
	// RecentConfirmed returns up to limit confirmed audit records joined to
	// their payment records, most recent first.
	RecentConfirmed(ctx context.Context, limit int) ([]MemoryEntry, error)
}

// MemoryKeys are the current payment's raw free-text fields.
type MemoryKeys struct {
	Reference       string
	ReferenceNumber string
	PayerName       string
}

// MemoryResult is the single suggestion (or confirmation) produced by the
// memory fallback.
type MemoryResult struct {
	AccountID  int64
	Confidence float64
	Confirmed  bool
	Key        KeyType
	Evidence   string
}

// MemoryConfig holds the payer-name stop terms: generic bank, payment, and
// institution strings that make a payer key useless as an identity signal.
type MemoryConfig struct {
	PayerStopTerms []string
}

// DefaultMemoryConfig returns the stop terms used when no configuration is
// supplied.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		PayerStopTerms: []string{
			"bank", "sparkasse", "volksbank", "kasse",
			"zahlung", "payment", "ueberweisung", "giro",
			"gmbh", "verein", "institut", "stadt",
		},
	}
}

// Memory runs the last-resort lookup: it scans the most recent confirmed
// payments and tries the three key types in priority order, stopping at the
// first type with any exact-normalized-value match. At most one result is
// returned; only a reference-text hit with three agreeing recent matches is
// confirmed.
func Memory(ctx context.Context, store MemoryStore, keys MemoryKeys, cfg MemoryConfig) (*MemoryResult, error) {
	entries, err := store.RecentConfirmed(ctx, memoryScanLimit)
	if err != nil {
		return nil, fmt.Errorf("recent confirmed lookup: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	type keyAttempt struct {
		kind  KeyType
		raw   string
		field func(MemoryEntry) string
	}
	attempts := []keyAttempt{
		{KeyReference, keys.Reference, func(e MemoryEntry) string { return e.Reference }},
		{KeyReferenceNumber, keys.ReferenceNumber, func(e MemoryEntry) string { return e.ReferenceNumber }},
		{KeyPayerName, keys.PayerName, func(e MemoryEntry) string { return e.PayerName }},
	}

	for _, attempt := range attempts {
		key := normalize.Normalize(attempt.raw)
		if len(key) < minKeyLength {
			continue
		}
		if attempt.kind == KeyPayerName && containsStopTerm(key, cfg.PayerStopTerms) {
			continue
		}

		var matched []MemoryEntry
		for _, e := range entries {
			if normalize.Normalize(attempt.field(e)) == key {
				matched = append(matched, e)
			}
		}
		if len(matched) == 0 {
			continue
		}

		selected := matched[0].AccountID
		conf := keyCaps[attempt.kind]

		agree := len(matched) >= agreeWindow
		for i := 0; agree && i < agreeWindow; i++ {
			if matched[i].AccountID != selected {
				agree = false
			}
		}
		if agree {
			conf += memoryBoost
			if conf > memoryBoostCap {
				conf = memoryBoostCap
			}
		}

		return &MemoryResult{
			AccountID:  selected,
			Confidence: conf,
			Confirmed:  attempt.kind == KeyReference && agree,
			Key:        attempt.kind,
			Evidence:   fmt.Sprintf("%s key matched %d of last %d confirmed payments", attempt.kind, len(matched), len(entries)),
		}, nil
	}

	return nil, nil
}

func containsStopTerm(key string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(key, term) {
			return true
		}
	}
	return false
}
