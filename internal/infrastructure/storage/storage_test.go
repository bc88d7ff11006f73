package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedAccount(t *testing.T, store *Storage, acct *Account) *Account {
	t.Helper()
	require.NoError(t, store.CreateAccount(context.Background(), acct))
	return acct
}

func seedRecord(t *testing.T, store *Storage, rec *PaymentRecord) *PaymentRecord {
	t.Helper()
	require.NoError(t, store.CreatePaymentRecord(context.Background(), rec))
	return rec
}

func TestNewStorage_MigratesAndDetectsCapabilities(t *testing.T) {
	store := setupTestStorage(t)

	assert.True(t, store.Capabilities().HistoryMetadata)
}

func TestAccountCRUD(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	acct := seedAccount(t, store, &Account{
		ReferenceCode: "FEE-2024-0001",
		GivenName:     "Hans",
		FamilyName:    "Meier",
		BalanceCents:  50000,
	})
	assert.NotZero(t, acct.ID)

	got, err := store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "FEE-2024-0001", got.ReferenceCode)
	assert.Equal(t, int64(50000), got.BalanceCents)

	_, err = store.GetAccount(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPaymentRecords_FiltersAndUnassignedIDs(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	acct := seedAccount(t, store, &Account{GivenName: "A", FamilyName: "B", BalanceCents: 100})
	r1 := seedRecord(t, store, &PaymentRecord{AmountCents: 100, Reference: "one"})
	r2 := seedRecord(t, store, &PaymentRecord{AmountCents: 200, Reference: "two"})
	r3 := seedRecord(t, store, &PaymentRecord{AmountCents: 300, Reference: "three"})

	// Assign r2 via a decision so it drops out of the unassigned set.
	applied, err := store.ApplyDecision(ctx, LedgerWrite{
		RecordID: r2.ID,
		Audits: []AuditWrite{{
			AccountID: acct.ID, Confidence: 100, Method: AuditReference, Confirmed: true,
		}},
		ConfirmedShares: []Share{{AccountID: acct.ID, Cents: 200}},
		AssignAccountID: &acct.ID,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	ids, err := store.UnassignedRecordIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{r1.ID, r3.ID}, ids)

	page, err := store.ListPaymentRecords(ctx, PaymentFilters{Unassigned: true})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)
	assert.Len(t, page.Records, 2)

	got, err := store.GetPaymentRecord(ctx, r2.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssignedAccountID)
	assert.Equal(t, acct.ID, *got.AssignedAccountID)
}

func TestApplyDecision_MutatesBalanceAndWritesAudits(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	acct := seedAccount(t, store, &Account{GivenName: "Hans", FamilyName: "Meier", BalanceCents: 50000})
	rec := seedRecord(t, store, &PaymentRecord{AmountCents: 12000, Reference: "FEE-1", PayerName: "Hans Meier"})

	applied, err := store.ApplyDecision(ctx, LedgerWrite{
		RecordID: rec.ID,
		Audits: []AuditWrite{{
			AccountID: acct.ID, Confidence: 100, Method: AuditReference, Confirmed: true,
			NormalizedText: "fee-1 hans meier", PayerName: "hans meier",
		}},
		ConfirmedShares: []Share{{AccountID: acct.ID, Cents: 12000}},
		AssignAccountID: &acct.ID,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(38000), got.BalanceCents)
	assert.Equal(t, int64(12000), got.PaidCents)

	audits, err := store.ListAuditRecords(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, AuditReference, audits[0].Method)
	assert.True(t, audits[0].Confirmed)
	assert.Equal(t, "fee-1 hans meier", audits[0].NormalizedText)
}

func TestApplyDecision_IdempotentSecondCall(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	acct := seedAccount(t, store, &Account{GivenName: "Hans", FamilyName: "Meier", BalanceCents: 50000})
	rec := seedRecord(t, store, &PaymentRecord{AmountCents: 12000})

	write := LedgerWrite{
		RecordID: rec.ID,
		Audits: []AuditWrite{{
			AccountID: acct.ID, Confidence: 100, Method: AuditReference, Confirmed: true,
		}},
		ConfirmedShares: []Share{{AccountID: acct.ID, Cents: 12000}},
		AssignAccountID: &acct.ID,
	}

	applied, err := store.ApplyDecision(ctx, write)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.ApplyDecision(ctx, write)
	require.NoError(t, err)
	assert.False(t, applied)

	// No duplicate audits, no double-credit.
	audits, err := store.ListAuditRecords(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, audits, 1)

	got, err := store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(38000), got.BalanceCents)
	assert.Equal(t, int64(12000), got.PaidCents)
}

func TestApplyDecision_ConfirmedAuditAloneBlocksReplay(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	acct := seedAccount(t, store, &Account{GivenName: "Hans", FamilyName: "Meier", BalanceCents: 10000})
	rec := seedRecord(t, store, &PaymentRecord{AmountCents: 1000})

	// Confirmed audit without an assignment still trips the guard.
	applied, err := store.ApplyDecision(ctx, LedgerWrite{
		RecordID: rec.ID,
		Audits: []AuditWrite{{
			AccountID: acct.ID, Confidence: 80, Method: AuditFallback, Confirmed: true,
		}},
	})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.ApplyDecision(ctx, LedgerWrite{
		RecordID:        rec.ID,
		Audits:          []AuditWrite{{AccountID: acct.ID, Confidence: 100, Method: AuditReference, Confirmed: true}},
		ConfirmedShares: []Share{{AccountID: acct.ID, Cents: 1000}},
		AssignAccountID: &acct.ID,
	})
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), got.BalanceCents)
}

func TestApplyDecision_UnconfirmedSuggestionDoesNotBlockReplay(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	acct := seedAccount(t, store, &Account{GivenName: "Hans", FamilyName: "Meier", BalanceCents: 10000})
	rec := seedRecord(t, store, &PaymentRecord{AmountCents: 1000})

	// Suggestion only: no assignment, no confirmed audit.
	applied, err := store.ApplyDecision(ctx, LedgerWrite{
		RecordID: rec.ID,
		Audits: []AuditWrite{{
			AccountID: acct.ID, Confidence: 65, Method: AuditNameSuggest, Confirmed: false,
		}},
	})
	require.NoError(t, err)
	assert.True(t, applied)

	// A later confirmed decision still goes through.
	applied, err = store.ApplyDecision(ctx, LedgerWrite{
		RecordID:        rec.ID,
		Audits:          []AuditWrite{{AccountID: acct.ID, Confidence: 100, Method: AuditReference, Confirmed: true}},
		ConfirmedShares: []Share{{AccountID: acct.ID, Cents: 1000}},
		AssignAccountID: &acct.ID,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	audits, err := store.ListAuditRecords(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, audits, 2)
}

func TestApplyDecision_BalanceClampedAtZero(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	acct := seedAccount(t, store, &Account{GivenName: "Hans", FamilyName: "Meier", BalanceCents: 500})
	rec := seedRecord(t, store, &PaymentRecord{AmountCents: 2000})

	applied, err := store.ApplyDecision(ctx, LedgerWrite{
		RecordID:        rec.ID,
		Audits:          []AuditWrite{{AccountID: acct.ID, Confidence: 100, Method: AuditReference, Confirmed: true}},
		ConfirmedShares: []Share{{AccountID: acct.ID, Cents: 2000}},
		AssignAccountID: &acct.ID,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.BalanceCents)
	assert.Equal(t, int64(2000), got.PaidCents) // paid keeps the full amount
}

func TestApplyDecision_RejectsUnknownMethod(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	acct := seedAccount(t, store, &Account{GivenName: "A", FamilyName: "B"})
	rec := seedRecord(t, store, &PaymentRecord{AmountCents: 100})

	_, err := store.ApplyDecision(ctx, LedgerWrite{
		RecordID: rec.ID,
		Audits:   []AuditWrite{{AccountID: acct.ID, Confidence: 50, Method: "guesswork"}},
	})
	assert.Error(t, err)

	// Nothing was written.
	audits, err := store.ListAuditRecords(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, audits)
}

func TestApplyDecision_MissingRecord(t *testing.T) {
	store := setupTestStorage(t)

	_, err := store.ApplyDecision(context.Background(), LedgerWrite{RecordID: 42})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTopHistoryMatches(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	acct := seedAccount(t, store, &Account{GivenName: "Hans", FamilyName: "Meier"})
	other := seedAccount(t, store, &Account{GivenName: "Erika", FamilyName: "Muster"})

	for i, w := range []struct {
		conf  float64
		text  string
		payer string
		acct  int64
	}{
		{90, "hans meier tuition", "hans meier", acct.ID},
		{60, "hans meier tuition", "hans meier", acct.ID},
		{95, "different text", "erika muster", other.ID},
	} {
		rec := seedRecord(t, store, &PaymentRecord{AmountCents: int64(100 + i)})
		_, err := store.ApplyDecision(ctx, LedgerWrite{
			RecordID: rec.ID,
			Audits: []AuditWrite{{
				AccountID: w.acct, Confidence: w.conf, Method: AuditNameSuggest,
				NormalizedText: w.text, PayerName: w.payer,
			}},
		})
		require.NoError(t, err)
	}

	entries, err := store.TopHistoryMatches(ctx, "hans meier tuition", "hans meier", 3)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 90.0, entries[0].Confidence) // highest first
	assert.Equal(t, acct.ID, entries[0].AccountID)

	// Empty stored fields never match empty queries.
	none, err := store.TopHistoryMatches(ctx, "", "", 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecentConfirmed(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	acct := seedAccount(t, store, &Account{GivenName: "Hans", FamilyName: "Meier", BalanceCents: 10000})

	confirmed := seedRecord(t, store, &PaymentRecord{
		AmountCents: 100, Reference: "Monthly Dues 7781", PayerName: "Hans Meier",
	})
	_, err := store.ApplyDecision(ctx, LedgerWrite{
		RecordID:        confirmed.ID,
		Audits:          []AuditWrite{{AccountID: acct.ID, Confidence: 100, Method: AuditReference, Confirmed: true}},
		ConfirmedShares: []Share{{AccountID: acct.ID, Cents: 100}},
		AssignAccountID: &acct.ID,
	})
	require.NoError(t, err)

	suggested := seedRecord(t, store, &PaymentRecord{AmountCents: 200, Reference: "other"})
	_, err = store.ApplyDecision(ctx, LedgerWrite{
		RecordID: suggested.ID,
		Audits:   []AuditWrite{{AccountID: acct.ID, Confidence: 65, Method: AuditNameSuggest}},
	})
	require.NoError(t, err)

	entries, err := store.RecentConfirmed(ctx, 50)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, acct.ID, entries[0].AccountID)
	assert.Equal(t, "Monthly Dues 7781", entries[0].Reference)
	assert.Equal(t, "Hans Meier", entries[0].PayerName)
}

func TestGetStats(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	acct := seedAccount(t, store, &Account{GivenName: "Hans", FamilyName: "Meier", BalanceCents: 10000})
	r1 := seedRecord(t, store, &PaymentRecord{AmountCents: 100})
	seedRecord(t, store, &PaymentRecord{AmountCents: 200})

	_, err := store.ApplyDecision(ctx, LedgerWrite{
		RecordID:        r1.ID,
		Audits:          []AuditWrite{{AccountID: acct.ID, Confidence: 100, Method: AuditReference, Confirmed: true}},
		ConfirmedShares: []Share{{AccountID: acct.ID, Cents: 100}},
		AssignAccountID: &acct.ID,
	})
	require.NoError(t, err)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 1, stats.UnassignedRecords)
	assert.Equal(t, 1, stats.TotalAudits)
	assert.Equal(t, 1, stats.ConfirmedAudits)
	assert.Equal(t, 1, stats.ByMethod["reference"])
}

func TestRunBookkeeping(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.StartRun(ctx, "run-1", true))
	require.NoError(t, store.CompleteRun(ctx, "run-1", RunCounts{
		Processed: 3, Confirmed: 1, Suggested: 1, NeedsReview: 1,
	}))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "completed", runs[0].Status)
	assert.True(t, runs[0].DryRun)
	assert.Equal(t, 3, runs[0].Processed)
	assert.NotNil(t, runs[0].CompletedAt)
}

func TestAuditMethod_Valid(t *testing.T) {
	for _, m := range []AuditMethod{
		AuditReference, AuditReferenceFuzzy, AuditNameSuggest,
		AuditFallback, AuditManual, AuditConfirmed,
	} {
		assert.True(t, m.Valid(), string(m))
	}
	assert.False(t, AuditMethod("").Valid())
	assert.False(t, AuditMethod("history_assist").Valid())
}
