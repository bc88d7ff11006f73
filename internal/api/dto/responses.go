package dto

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// NewHealthResponse creates a healthy response.
func NewHealthResponse() HealthResponse {
	return HealthResponse{Status: "ok"}
}

// AccountResponse is one billing account. Monetary amounts are in cents.
type AccountResponse struct {
	ID            int64  `json:"id"`
	ReferenceCode string `json:"reference_code,omitempty"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	LongName      string `json:"long_name,omitempty"`
	BalanceCents  int64  `json:"balance_cents"`
	PaidCents     int64  `json:"paid_cents"`
}

// RecordResponse is one payment record.
type RecordResponse struct {
	ID                int64  `json:"id"`
	AmountCents       int64  `json:"amount_cents"`
	Reference         string `json:"reference,omitempty"`
	ReferenceNumber   string `json:"reference_number,omitempty"`
	PayerName         string `json:"payer_name,omitempty"`
	PostedAt          string `json:"posted_at"`
	AssignedAccountID *int64 `json:"assigned_account_id,omitempty"`
	NeedsReview       bool   `json:"needs_review"`
}

// RecordListResponse is a paginated page of payment records.
type RecordListResponse struct {
	Records    []RecordResponse `json:"records"`
	TotalCount int              `json:"total_count"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
}

// AuditResponse is one append-only ledger entry. Confidence is 0-100.
type AuditResponse struct {
	ID         int64   `json:"id"`
	AccountID  int64   `json:"account_id"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Confirmed  bool    `json:"confirmed"`
	CreatedAt  string  `json:"created_at"`
}

// ReconcileRequest triggers a pipeline run. A nil RecordID processes every
// unassigned record.
type ReconcileRequest struct {
	RecordID *int64 `json:"record_id,omitempty"`
	DryRun   bool   `json:"dry_run"`
}

// MatchResponse is one finalized share of a decision. Confidence is 0-1.
type MatchResponse struct {
	AccountID  int64   `json:"account_id"`
	ShareCents int64   `json:"share_cents"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Evidence   string  `json:"evidence,omitempty"`
	Confirmed  bool    `json:"confirmed"`
}

// DecisionResponse is the computed decision for one record.
type DecisionResponse struct {
	RecordID     int64           `json:"record_id"`
	Outcome      string          `json:"outcome"`
	Matches      []MatchResponse `json:"matches"`
	NeedsReview  bool            `json:"needs_review"`
	ReviewReason string          `json:"review_reason,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// ReconcileResponse summarizes a pipeline run.
type ReconcileResponse struct {
	RunID       string             `json:"run_id"`
	DryRun      bool               `json:"dry_run"`
	Processed   int                `json:"processed"`
	Confirmed   int                `json:"confirmed"`
	Suggested   int                `json:"suggested"`
	NeedsReview int                `json:"needs_review"`
	Skipped     int                `json:"skipped"`
	Errored     int                `json:"errored"`
	Decisions   []DecisionResponse `json:"decisions"`
}

// RunResponse is one historical pipeline run.
type RunResponse struct {
	ID          string `json:"id"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	DryRun      bool   `json:"dry_run"`
	Status      string `json:"status"`
	Processed   int    `json:"processed"`
	Confirmed   int    `json:"confirmed"`
	Suggested   int    `json:"suggested"`
	NeedsReview int    `json:"needs_review"`
	Skipped     int    `json:"skipped"`
	Errored     int    `json:"errored"`
}
