package storage

import (
	"context"
	"errors"

	"github.com/campusledger/reconcile/internal/domain/fallback"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the complete storage interface. It allows swapping
// implementations (SQLite here, Postgres elsewhere) and makes testing with
// the in-memory mock straightforward.
type Repository interface {
	AccountRepository
	PaymentRepository
	AuditRepository
	RunRepository

	// Capabilities returns the audit-history capability flags computed when
	// the store was opened.
	Capabilities() Capabilities

	Close() error
}

// AccountRepository handles the billing account roster.
type AccountRepository interface {
	CreateAccount(ctx context.Context, acct *Account) error
	GetAccount(ctx context.Context, id int64) (*Account, error)

	// ListAccounts returns the full roster ordered by id. The pipeline loads
	// this once per batch.
	ListAccounts(ctx context.Context) ([]*Account, error)
}

// PaymentRepository handles payment records.
type PaymentRepository interface {
	CreatePaymentRecord(ctx context.Context, rec *PaymentRecord) error
	GetPaymentRecord(ctx context.Context, id int64) (*PaymentRecord, error)
	ListPaymentRecords(ctx context.Context, f PaymentFilters) (*PaymentListResult, error)

	// UnassignedRecordIDs returns the ids of all payment records without an
	// assigned account, ascending, for deterministic batch order.
	UnassignedRecordIDs(ctx context.Context) ([]int64, error)
}

// AuditRepository handles the append-only match ledger and the decision
// write path.
type AuditRepository interface {
	// ApplyDecision persists one decision atomically: idempotency guard,
	// audit appends, record assignment, review flag, and confirmed balance
	// mutations all happen in a single transaction. It returns false with a
	// nil error when the record was already processed.
	ApplyDecision(ctx context.Context, w LedgerWrite) (bool, error)

	// ListAuditRecords returns the ledger entries for one payment record,
	// oldest first.
	ListAuditRecords(ctx context.Context, recordID int64) ([]*AuditRecord, error)

	// TopHistoryMatches and RecentConfirmed serve the read-only fallback
	// gates.
	TopHistoryMatches(ctx context.Context, normalizedText, payerName string, limit int) ([]fallback.HistoryEntry, error)
	RecentConfirmed(ctx context.Context, limit int) ([]fallback.MemoryEntry, error)

	GetStats(ctx context.Context) (*Stats, error)
}

// RunRepository tracks pipeline invocations.
type RunRepository interface {
	StartRun(ctx context.Context, id string, dryRun bool) error
	CompleteRun(ctx context.Context, id string, counts RunCounts) error
	ListRuns(ctx context.Context, limit int) ([]*PipelineRun, error)
}
