package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campusledger/reconcile/internal/domain/fallback"
)

// MockRepository is an in-memory Repository for tests. It mirrors the
// SQLite implementation's semantics, including the idempotency guard and
// balance clamping.
type MockRepository struct {
	mu       sync.Mutex
	accounts map[int64]*Account
	records  map[int64]*PaymentRecord
	audits   []*AuditRecord
	runs     map[string]*PipelineRun
	caps     Capabilities

	nextAccountID int64
	nextRecordID  int64
	nextAuditID   int64
}

var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates an empty in-memory repository with history
// metadata enabled.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		accounts: make(map[int64]*Account),
		records:  make(map[int64]*PaymentRecord),
		runs:     make(map[string]*PipelineRun),
		caps:     Capabilities{HistoryMetadata: true},
	}
}

// SetCapabilities overrides the capability flags, e.g. to simulate a store
// without history metadata.
func (m *MockRepository) SetCapabilities(caps Capabilities) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caps = caps
}

func (m *MockRepository) Capabilities() Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps
}

func (m *MockRepository) Close() error { return nil }

func (m *MockRepository) CreateAccount(_ context.Context, acct *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acct.ID == 0 {
		m.nextAccountID++
		acct.ID = m.nextAccountID
	} else if acct.ID > m.nextAccountID {
		m.nextAccountID = acct.ID
	}
	cp := *acct
	m.accounts[acct.ID] = &cp
	return nil
}

func (m *MockRepository) GetAccount(_ context.Context, id int64) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (m *MockRepository) ListAccounts(_ context.Context) ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Account, 0, len(m.accounts))
	for _, acct := range m.accounts {
		cp := *acct
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockRepository) CreatePaymentRecord(_ context.Context, rec *PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == 0 {
		m.nextRecordID++
		rec.ID = m.nextRecordID
	} else if rec.ID > m.nextRecordID {
		m.nextRecordID = rec.ID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *MockRepository) GetPaymentRecord(_ context.Context, id int64) (*PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	if rec.AssignedAccountID != nil {
		v := *rec.AssignedAccountID
		cp.AssignedAccountID = &v
	}
	return &cp, nil
}

func (m *MockRepository) ListPaymentRecords(_ context.Context, f PaymentFilters) (*PaymentListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*PaymentRecord
	for _, rec := range m.records {
		if f.Unassigned && rec.AssignedAccountID != nil {
			continue
		}
		if f.NeedsReview && !rec.NeedsReview {
			continue
		}
		cp := *rec
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	result := &PaymentListResult{TotalCount: len(all), Limit: limit, Offset: f.Offset, Records: []*PaymentRecord{}}
	for i := f.Offset; i < len(all) && len(result.Records) < limit; i++ {
		result.Records = append(result.Records, all[i])
	}
	return result, nil
}

func (m *MockRepository) UnassignedRecordIDs(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, rec := range m.records {
		if rec.AssignedAccountID == nil {
			ids = append(ids, rec.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MockRepository) ApplyDecision(_ context.Context, w LedgerWrite) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[w.RecordID]
	if !ok {
		return false, ErrNotFound
	}
	if rec.AssignedAccountID != nil {
		return false, nil
	}
	for _, a := range m.audits {
		if a.PaymentRecordID == w.RecordID && a.Confirmed {
			return false, nil
		}
	}

	now := time.Now().UTC()
	for _, a := range w.Audits {
		m.nextAuditID++
		m.audits = append(m.audits, &AuditRecord{
			ID:              m.nextAuditID,
			PaymentRecordID: w.RecordID,
			AccountID:       a.AccountID,
			Confidence:      a.Confidence,
			Method:          a.Method,
			Confirmed:       a.Confirmed,
			NormalizedText:  a.NormalizedText,
			PayerName:       a.PayerName,
			CreatedAt:       now,
		})
	}

	if w.AssignAccountID != nil {
		v := *w.AssignAccountID
		rec.AssignedAccountID = &v
	}
	rec.NeedsReview = w.NeedsReview

	for _, share := range w.ConfirmedShares {
		acct, ok := m.accounts[share.AccountID]
		if !ok {
			continue
		}
		acct.BalanceCents -= share.Cents
		if acct.BalanceCents < 0 {
			acct.BalanceCents = 0
		}
		acct.PaidCents += share.Cents
	}
	return true, nil
}

func (m *MockRepository) ListAuditRecords(_ context.Context, recordID int64) ([]*AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AuditRecord
	for _, a := range m.audits {
		if a.PaymentRecordID == recordID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockRepository) TopHistoryMatches(_ context.Context, normalizedText, payerName string, limit int) ([]fallback.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*AuditRecord
	for _, a := range m.audits {
		if (a.NormalizedText != "" && a.NormalizedText == normalizedText) ||
			(a.PayerName != "" && a.PayerName == payerName) {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Confidence != matched[j].Confidence {
			return matched[i].Confidence > matched[j].Confidence
		}
		return matched[i].ID > matched[j].ID
	})

	var out []fallback.HistoryEntry
	for _, a := range matched {
		if len(out) == limit {
			break
		}
		out = append(out, fallback.HistoryEntry{AccountID: a.AccountID, Confidence: a.Confidence})
	}
	return out, nil
}

func (m *MockRepository) RecentConfirmed(_ context.Context, limit int) ([]fallback.MemoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var confirmed []*AuditRecord
	for _, a := range m.audits {
		if a.Confirmed {
			confirmed = append(confirmed, a)
		}
	}
	sort.Slice(confirmed, func(i, j int) bool { return confirmed[i].ID > confirmed[j].ID })

	var out []fallback.MemoryEntry
	for _, a := range confirmed {
		if len(out) == limit {
			break
		}
		rec, ok := m.records[a.PaymentRecordID]
		if !ok {
			continue
		}
		out = append(out, fallback.MemoryEntry{
			AccountID:       a.AccountID,
			Reference:       rec.Reference,
			ReferenceNumber: rec.ReferenceNumber,
			PayerName:       rec.PayerName,
		})
	}
	return out, nil
}

func (m *MockRepository) GetStats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{ByMethod: make(map[string]int)}
	stats.TotalRecords = len(m.records)
	for _, rec := range m.records {
		if rec.AssignedAccountID == nil {
			stats.UnassignedRecords++
		}
		if rec.NeedsReview {
			stats.ReviewRecords++
		}
	}
	stats.TotalAudits = len(m.audits)
	for _, a := range m.audits {
		if a.Confirmed {
			stats.ConfirmedAudits++
		}
		stats.ByMethod[string(a.Method)]++
	}
	return stats, nil
}

func (m *MockRepository) StartRun(_ context.Context, id string, dryRun bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id] = &PipelineRun{ID: id, StartedAt: time.Now().UTC(), DryRun: dryRun, Status: "running"}
	return nil
}

func (m *MockRepository) CompleteRun(_ context.Context, id string, counts RunCounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = "completed"
	run.Processed = counts.Processed
	run.Confirmed = counts.Confirmed
	run.Suggested = counts.Suggested
	run.NeedsReview = counts.NeedsReview
	run.Skipped = counts.Skipped
	run.Errored = counts.Errored
	return nil
}

func (m *MockRepository) ListRuns(_ context.Context, limit int) ([]*PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	out := make([]*PipelineRun, 0, len(m.runs))
	for _, run := range m.runs {
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
