package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/campusledger/reconcile/internal/domain/fallback"
)

// Storage provides SQLite database access for the reconciliation pipeline.
// It implements the Repository interface.
type Storage struct {
	db   *sql.DB
	caps Capabilities
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Capability flags are computed once here and handed to the pipeline;
	// no stage re-inspects the schema at call time.
	if err := s.detectCapabilities(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Capabilities returns the audit-history capability flags.
func (s *Storage) Capabilities() Capabilities {
	return s.caps
}

// detectCapabilities checks whether the audit ledger carries the match
// metadata columns the history-assist gate needs.
func (s *Storage) detectCapabilities() error {
	rows, err := s.db.Query(`PRAGMA table_info(audit_records)`)
	if err != nil {
		return fmt.Errorf("failed to inspect audit_records: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return err
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.caps = Capabilities{
		HistoryMetadata: columns["normalized_text"] && columns["payer_name"],
	}
	return nil
}

// CreateAccount inserts a new billing account and sets its ID.
func (s *Storage) CreateAccount(ctx context.Context, acct *Account) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (reference_code, given_name, family_name, long_name, balance_cents, paid_cents)
		VALUES (?, ?, ?, ?, ?, ?)
	`, acct.ReferenceCode, acct.GivenName, acct.FamilyName, acct.LongName, acct.BalanceCents, acct.PaidCents)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	acct.ID, err = res.LastInsertId()
	return err
}

// GetAccount retrieves an account by id.
func (s *Storage) GetAccount(ctx context.Context, id int64) (*Account, error) {
	acct := &Account{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, reference_code, given_name, family_name, long_name, balance_cents, paid_cents
		FROM accounts WHERE id = ?
	`, id).Scan(&acct.ID, &acct.ReferenceCode, &acct.GivenName, &acct.FamilyName, &acct.LongName, &acct.BalanceCents, &acct.PaidCents)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// ListAccounts returns the full roster ordered by id.
func (s *Storage) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference_code, given_name, family_name, long_name, balance_cents, paid_cents
		FROM accounts ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		acct := &Account{}
		if err := rows.Scan(&acct.ID, &acct.ReferenceCode, &acct.GivenName, &acct.FamilyName, &acct.LongName, &acct.BalanceCents, &acct.PaidCents); err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// CreatePaymentRecord inserts a new payment record and sets its ID.
func (s *Storage) CreatePaymentRecord(ctx context.Context, rec *PaymentRecord) error {
	if rec.PostedAt.IsZero() {
		rec.PostedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_records (amount_cents, reference, reference_number, payer_name, posted_at, needs_review)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.AmountCents, rec.Reference, rec.ReferenceNumber, rec.PayerName, rec.PostedAt, rec.NeedsReview)
	if err != nil {
		return fmt.Errorf("failed to insert payment record: %w", err)
	}

	rec.ID, err = res.LastInsertId()
	return err
}

// GetPaymentRecord retrieves a payment record by id.
func (s *Storage) GetPaymentRecord(ctx context.Context, id int64) (*PaymentRecord, error) {
	rec := &PaymentRecord{}
	var assigned sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, amount_cents, reference, reference_number, payer_name, posted_at, assigned_account_id, needs_review, created_at
		FROM payment_records WHERE id = ?
	`, id).Scan(&rec.ID, &rec.AmountCents, &rec.Reference, &rec.ReferenceNumber, &rec.PayerName, &rec.PostedAt, &assigned, &rec.NeedsReview, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if assigned.Valid {
		rec.AssignedAccountID = &assigned.Int64
	}
	return rec, nil
}

// ListPaymentRecords returns records matching the filters with pagination.
func (s *Storage) ListPaymentRecords(ctx context.Context, f PaymentFilters) (*PaymentListResult, error) {
	where := "1=1"
	if f.Unassigned {
		where += " AND assigned_account_id IS NULL"
	}
	if f.NeedsReview {
		where += " AND needs_review = 1"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	result := &PaymentListResult{Limit: limit, Offset: f.Offset, Records: []*PaymentRecord{}}

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payment_records WHERE `+where).Scan(&result.TotalCount)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, amount_cents, reference, reference_number, payer_name, posted_at, assigned_account_id, needs_review, created_at
		FROM payment_records WHERE `+where+`
		ORDER BY id LIMIT ? OFFSET ?
	`, limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		rec := &PaymentRecord{}
		var assigned sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.AmountCents, &rec.Reference, &rec.ReferenceNumber, &rec.PayerName, &rec.PostedAt, &assigned, &rec.NeedsReview, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if assigned.Valid {
			rec.AssignedAccountID = &assigned.Int64
		}
		result.Records = append(result.Records, rec)
	}
	return result, rows.Err()
}

// UnassignedRecordIDs returns ids of records without an assigned account,
// ascending.
func (s *Storage) UnassignedRecordIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM payment_records WHERE assigned_account_id IS NULL ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ApplyDecision persists one decision in a single transaction. The
// idempotency guard runs inside the same transaction as the writes, so two
// concurrent runs cannot double-credit a record: whichever commits first
// wins and the other sees the assignment or the confirmed audit and becomes
// a no-op.
func (s *Storage) ApplyDecision(ctx context.Context, w LedgerWrite) (bool, error) {
	for _, a := range w.Audits {
		if !a.Method.Valid() {
			return false, fmt.Errorf("invalid audit method %q", a.Method)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Idempotency guard: already assigned, or already confirmed in the
	// ledger, means the record is fully processed.
	var assigned sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT assigned_account_id FROM payment_records WHERE id = ?
	`, w.RecordID).Scan(&assigned)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if assigned.Valid {
		return false, nil
	}

	var confirmedCount int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_records WHERE payment_record_id = ? AND confirmed = 1
	`, w.RecordID).Scan(&confirmedCount)
	if err != nil {
		return false, err
	}
	if confirmedCount > 0 {
		return false, nil
	}

	now := time.Now().UTC()
	for _, a := range w.Audits {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_records (payment_record_id, account_id, confidence, method, confirmed, normalized_text, payer_name, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, w.RecordID, a.AccountID, a.Confidence, string(a.Method), a.Confirmed, a.NormalizedText, a.PayerName, now)
		if err != nil {
			return false, fmt.Errorf("failed to append audit record: %w", err)
		}
	}

	var assignValue interface{}
	if w.AssignAccountID != nil {
		assignValue = *w.AssignAccountID
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE payment_records SET assigned_account_id = ?, needs_review = ? WHERE id = ?
	`, assignValue, w.NeedsReview, w.RecordID)
	if err != nil {
		return false, fmt.Errorf("failed to update payment record: %w", err)
	}

	// Confirmed shares mutate balances; the decrement is clamped at zero.
	for _, share := range w.ConfirmedShares {
		_, err = tx.ExecContext(ctx, `
			UPDATE accounts
			SET balance_cents = MAX(balance_cents - ?, 0),
			    paid_cents = paid_cents + ?
			WHERE id = ?
		`, share.Cents, share.Cents, share.AccountID)
		if err != nil {
			return false, fmt.Errorf("failed to update account balance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit decision: %w", err)
	}
	return true, nil
}

// ListAuditRecords returns the ledger entries for one record, oldest first.
func (s *Storage) ListAuditRecords(ctx context.Context, recordID int64) ([]*AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payment_record_id, account_id, confidence, method, confirmed, normalized_text, payer_name, created_at
		FROM audit_records WHERE payment_record_id = ? ORDER BY id
	`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*AuditRecord
	for rows.Next() {
		rec := &AuditRecord{}
		var method string
		if err := rows.Scan(&rec.ID, &rec.PaymentRecordID, &rec.AccountID, &rec.Confidence, &method, &rec.Confirmed, &rec.NormalizedText, &rec.PayerName, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Method = AuditMethod(method)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TopHistoryMatches returns the highest-confidence audit records whose
// stored normalized text or payer name exactly equals the given values.
func (s *Storage) TopHistoryMatches(ctx context.Context, normalizedText, payerName string, limit int) ([]fallback.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, confidence
		FROM audit_records
		WHERE (normalized_text != '' AND normalized_text = ?)
		   OR (payer_name != '' AND payer_name = ?)
		ORDER BY confidence DESC, id DESC
		LIMIT ?
	`, normalizedText, payerName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []fallback.HistoryEntry
	for rows.Next() {
		var e fallback.HistoryEntry
		if err := rows.Scan(&e.AccountID, &e.Confidence); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentConfirmed returns confirmed audit records joined back to their
// payment records, most recent first.
func (s *Storage) RecentConfirmed(ctx context.Context, limit int) ([]fallback.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.account_id, p.reference, p.reference_number, p.payer_name
		FROM audit_records a
		JOIN payment_records p ON p.id = a.payment_record_id
		WHERE a.confirmed = 1
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []fallback.MemoryEntry
	for rows.Next() {
		var e fallback.MemoryEntry
		if err := rows.Scan(&e.AccountID, &e.Reference, &e.ReferenceNumber, &e.PayerName); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetStats returns aggregate ledger and record counts.
func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByMethod: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN assigned_account_id IS NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN needs_review = 1 THEN 1 ELSE 0 END), 0)
		FROM payment_records
	`).Scan(&stats.TotalRecords, &stats.UnassignedRecords, &stats.ReviewRecords)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN confirmed = 1 THEN 1 ELSE 0 END), 0)
		FROM audit_records
	`).Scan(&stats.TotalAudits, &stats.ConfirmedAudits)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT method, COUNT(*) FROM audit_records GROUP BY method
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var method string
		var count int
		if err := rows.Scan(&method, &count); err != nil {
			return nil, err
		}
		stats.ByMethod[method] = count
	}
	return stats, rows.Err()
}

// StartRun records the start of a pipeline run.
func (s *Storage) StartRun(ctx context.Context, id string, dryRun bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, started_at, dry_run, status) VALUES (?, ?, ?, 'running')
	`, id, time.Now().UTC(), dryRun)
	return err
}

// CompleteRun records the completion of a pipeline run.
func (s *Storage) CompleteRun(ctx context.Context, id string, counts RunCounts) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET completed_at = ?, status = 'completed',
		    processed = ?, confirmed = ?, suggested = ?, needs_review = ?, skipped = ?, errored = ?
		WHERE id = ?
	`, time.Now().UTC(), counts.Processed, counts.Confirmed, counts.Suggested, counts.NeedsReview, counts.Skipped, counts.Errored, id)
	return err
}

// ListRuns returns recent pipeline runs, newest first.
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]*PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, dry_run, status, processed, confirmed, suggested, needs_review, skipped, errored
		FROM pipeline_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*PipelineRun
	for rows.Next() {
		run := &PipelineRun{}
		var completed sql.NullTime
		if err := rows.Scan(&run.ID, &run.StartedAt, &completed, &run.DryRun, &run.Status, &run.Processed, &run.Confirmed, &run.Suggested, &run.NeedsReview, &run.Skipped, &run.Errored); err != nil {
			return nil, err
		}
		if completed.Valid {
			run.CompletedAt = &completed.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
