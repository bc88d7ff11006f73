package storage

import (
	"time"
)

// Account is a billing account whose outstanding balance payments reduce.
// Balance fields are mutated only by ApplyDecision, only for confirmed
// matches, and never below zero. Amounts are integer cents.
type Account struct {
	ID            int64  `json:"id"`
	ReferenceCode string `json:"reference_code,omitempty"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	LongName      string `json:"long_name,omitempty"`
	BalanceCents  int64  `json:"balance_cents"`
	PaidCents     int64  `json:"paid_cents"`
}

// PaymentRecord is an imported bank transaction awaiting reconciliation.
// The pipeline mutates only AssignedAccountID and NeedsReview.
type PaymentRecord struct {
	ID                int64     `json:"id"`
	AmountCents       int64     `json:"amount_cents"`
	Reference         string    `json:"reference,omitempty"`
	ReferenceNumber   string    `json:"reference_number,omitempty"`
	PayerName         string    `json:"payer_name,omitempty"`
	PostedAt          time.Time `json:"posted_at"`
	AssignedAccountID *int64    `json:"assigned_account_id,omitempty"`
	NeedsReview       bool      `json:"needs_review"`
	CreatedAt         time.Time `json:"created_at"`
}

// AuditMethod is the closed set of method tags an audit record may carry.
// Unknown tags are rejected at the storage boundary.
type AuditMethod string

const (
	AuditReference      AuditMethod = "reference"
	AuditReferenceFuzzy AuditMethod = "reference_fuzzy"
	AuditNameSuggest    AuditMethod = "name_suggest"
	AuditFallback       AuditMethod = "fallback"
	AuditManual         AuditMethod = "manual"
	AuditConfirmed      AuditMethod = "confirmed"
)

// Valid reports whether m is a member of the closed method set.
func (m AuditMethod) Valid() bool {
	switch m {
	case AuditReference, AuditReferenceFuzzy, AuditNameSuggest,
		AuditFallback, AuditManual, AuditConfirmed:
		return true
	}
	return false
}

// AuditRecord is one append-only ledger entry for a matching attempt.
// Confidence is on a 0-100 scale. NormalizedText and PayerName capture the
// payment's text at decision time so later runs can consult history.
// Records are never updated in place.
type AuditRecord struct {
	ID              int64       `json:"id"`
	PaymentRecordID int64       `json:"payment_record_id"`
	AccountID       int64       `json:"account_id"`
	Confidence      float64     `json:"confidence"`
	Method          AuditMethod `json:"method"`
	Confirmed       bool        `json:"confirmed"`
	NormalizedText  string      `json:"normalized_text,omitempty"`
	PayerName       string      `json:"payer_name,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// AuditWrite is one audit entry to append as part of a decision.
type AuditWrite struct {
	AccountID      int64
	Confidence     float64 // 0-100 scale
	Method         AuditMethod
	Confirmed      bool
	NormalizedText string
	PayerName      string
}

// Share is one confirmed per-account slice of a payment.
type Share struct {
	AccountID int64
	Cents     int64
}

// LedgerWrite is everything ApplyDecision persists for one payment record
// in a single transaction.
type LedgerWrite struct {
	RecordID        int64
	Audits          []AuditWrite
	ConfirmedShares []Share
	AssignAccountID *int64
	NeedsReview     bool
}

// PipelineRun summarizes one pipeline invocation.
type PipelineRun struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DryRun      bool       `json:"dry_run"`
	Status      string     `json:"status"`
	Processed   int        `json:"processed"`
	Confirmed   int        `json:"confirmed"`
	Suggested   int        `json:"suggested"`
	NeedsReview int        `json:"needs_review"`
	Skipped     int        `json:"skipped"`
	Errored     int        `json:"errored"`
}

// RunCounts are the completion counters for a pipeline run.
type RunCounts struct {
	Processed   int
	Confirmed   int
	Suggested   int
	NeedsReview int
	Skipped     int
	Errored     int
}

// PaymentFilters narrows ListPaymentRecords.
type PaymentFilters struct {
	Unassigned  bool // only records without an assigned account
	NeedsReview bool // only records flagged for review
	Limit       int  // max results (0 = default 50)
	Offset      int
}

// PaymentListResult is a paginated page of payment records.
type PaymentListResult struct {
	Records    []*PaymentRecord `json:"records"`
	TotalCount int              `json:"total_count"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
}

// Stats aggregates ledger and record counts for the dashboard surface.
type Stats struct {
	TotalRecords      int            `json:"total_records"`
	UnassignedRecords int            `json:"unassigned_records"`
	ReviewRecords     int            `json:"review_records"`
	TotalAudits       int            `json:"total_audits"`
	ConfirmedAudits   int            `json:"confirmed_audits"`
	ByMethod          map[string]int `json:"by_method"`
}

// Capabilities describes what the audit history store supports. It is
// computed once when storage opens and passed through the pipeline, never
// re-queried per call.
type Capabilities struct {
	// HistoryMetadata is true when audit records carry the normalized text
	// and payer name needed by the history-assist gate.
	HistoryMetadata bool
}
