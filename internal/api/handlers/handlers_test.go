package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusledger/reconcile/internal/api"
	"github.com/campusledger/reconcile/internal/api/dto"
	"github.com/campusledger/reconcile/internal/application/pipeline"
	"github.com/campusledger/reconcile/internal/infrastructure/storage"
)

type stubRunner struct {
	result  *pipeline.RunResult
	err     error
	gotOpts pipeline.RunOptions
}

func (s *stubRunner) Run(_ context.Context, opts pipeline.RunOptions) (*pipeline.RunResult, error) {
	s.gotOpts = opts
	return s.result, s.err
}

func newTestServer(t *testing.T, repo storage.Repository, runner *stubRunner) http.Handler {
	t.Helper()
	if runner == nil {
		return api.NewServer(api.DefaultConfig(), repo, nil, nil).Router()
	}
	return api.NewServer(api.DefaultConfig(), repo, runner, nil).Router()
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	handler := newTestServer(t, storage.NewMockRepository(), nil)

	rec := doRequest(t, handler, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestListAccounts(t *testing.T) {
	repo := storage.NewMockRepository()
	require.NoError(t, repo.CreateAccount(context.Background(), &storage.Account{
		ReferenceCode: "FEE-1", GivenName: "Hans", FamilyName: "Meier", BalanceCents: 5000,
	}))

	handler := newTestServer(t, repo, nil)
	rec := doRequest(t, handler, http.MethodGet, "/api/accounts", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []dto.AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "Hans", resp[0].GivenName)
	assert.Equal(t, int64(5000), resp[0].BalanceCents)
}

func TestGetAccount_NotFound(t *testing.T) {
	handler := newTestServer(t, storage.NewMockRepository(), nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/accounts/42", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var apiErr dto.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, dto.ErrCodeNotFound, apiErr.Code)
}

func TestGetAccount_InvalidID(t *testing.T) {
	handler := newTestServer(t, storage.NewMockRepository(), nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/accounts/abc", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRecords_Filters(t *testing.T) {
	repo := storage.NewMockRepository()
	ctx := context.Background()
	acct := &storage.Account{GivenName: "Hans", FamilyName: "Meier"}
	require.NoError(t, repo.CreateAccount(ctx, acct))

	r1 := &storage.PaymentRecord{AmountCents: 100}
	r2 := &storage.PaymentRecord{AmountCents: 200}
	require.NoError(t, repo.CreatePaymentRecord(ctx, r1))
	require.NoError(t, repo.CreatePaymentRecord(ctx, r2))

	_, err := repo.ApplyDecision(ctx, storage.LedgerWrite{
		RecordID:        r1.ID,
		Audits:          []storage.AuditWrite{{AccountID: acct.ID, Confidence: 100, Method: storage.AuditReference, Confirmed: true}},
		AssignAccountID: &acct.ID,
	})
	require.NoError(t, err)

	handler := newTestServer(t, repo, nil)
	rec := doRequest(t, handler, http.MethodGet, "/api/records?unassigned=true", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp dto.RecordListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, r2.ID, resp.Records[0].ID)
	assert.Equal(t, 1, resp.TotalCount)
}

func TestGetRecordAudit(t *testing.T) {
	repo := storage.NewMockRepository()
	ctx := context.Background()
	acct := &storage.Account{GivenName: "Hans", FamilyName: "Meier"}
	require.NoError(t, repo.CreateAccount(ctx, acct))
	r := &storage.PaymentRecord{AmountCents: 100}
	require.NoError(t, repo.CreatePaymentRecord(ctx, r))

	_, err := repo.ApplyDecision(ctx, storage.LedgerWrite{
		RecordID: r.ID,
		Audits:   []storage.AuditWrite{{AccountID: acct.ID, Confidence: 65, Method: storage.AuditNameSuggest}},
	})
	require.NoError(t, err)

	handler := newTestServer(t, repo, nil)
	rec := doRequest(t, handler, http.MethodGet, "/api/records/1/audit", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []dto.AuditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "name_suggest", resp[0].Method)
	assert.Equal(t, 65.0, resp[0].Confidence)
}

func TestGetRecordSimilar(t *testing.T) {
	repo := storage.NewMockRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateAccount(ctx, &storage.Account{GivenName: "Hans", FamilyName: "Meier"}))
	require.NoError(t, repo.CreateAccount(ctx, &storage.Account{GivenName: "Erika", FamilyName: "Musterfrau"}))
	r := &storage.PaymentRecord{AmountCents: 100, PayerName: "Hans Meir"}
	require.NoError(t, repo.CreatePaymentRecord(ctx, r))

	handler := newTestServer(t, repo, nil)
	rec := doRequest(t, handler, http.MethodGet, "/api/records/1/similar?limit=1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, float64(1), resp[0]["account_id"])
}

func TestGetRecord_NotFound(t *testing.T) {
	handler := newTestServer(t, storage.NewMockRepository(), nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/records/99", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconcile_RunsPipeline(t *testing.T) {
	runner := &stubRunner{result: &pipeline.RunResult{
		RunID: "run-1",
		Results: []pipeline.RecordResult{
			{RecordID: 1, Outcome: pipeline.OutcomeConfirmed},
		},
		Counts: storage.RunCounts{Processed: 1, Confirmed: 1},
	}}

	handler := newTestServer(t, storage.NewMockRepository(), runner)
	rec := doRequest(t, handler, http.MethodPost, "/api/reconcile", []byte(`{"dry_run":true,"record_id":7}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, runner.gotOpts.DryRun)
	require.NotNil(t, runner.gotOpts.RecordID)
	assert.Equal(t, int64(7), *runner.gotOpts.RecordID)

	var resp dto.ReconcileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, 1, resp.Confirmed)
	require.Len(t, resp.Decisions, 1)
	assert.Equal(t, "confirmed", resp.Decisions[0].Outcome)
}

func TestReconcile_EmptyBodyProcessesEverything(t *testing.T) {
	runner := &stubRunner{result: &pipeline.RunResult{RunID: "run-2"}}

	handler := newTestServer(t, storage.NewMockRepository(), runner)
	rec := doRequest(t, handler, http.MethodPost, "/api/reconcile", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, runner.gotOpts.RecordID)
	assert.False(t, runner.gotOpts.DryRun)
}

func TestReconcile_InvalidBody(t *testing.T) {
	runner := &stubRunner{result: &pipeline.RunResult{}}

	handler := newTestServer(t, storage.NewMockRepository(), runner)
	rec := doRequest(t, handler, http.MethodPost, "/api/reconcile", []byte(`{not json`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconcile_RunnerError(t *testing.T) {
	runner := &stubRunner{err: errors.New("boom")}

	handler := newTestServer(t, storage.NewMockRepository(), runner)
	rec := doRequest(t, handler, http.MethodPost, "/api/reconcile", []byte(`{}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReconcile_NotRegisteredWithoutRunner(t *testing.T) {
	handler := newTestServer(t, storage.NewMockRepository(), nil)

	rec := doRequest(t, handler, http.MethodPost, "/api/reconcile", []byte(`{}`))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	repo := storage.NewMockRepository()
	ctx := context.Background()
	require.NoError(t, repo.StartRun(ctx, "run-1", false))
	require.NoError(t, repo.CompleteRun(ctx, "run-1", storage.RunCounts{Processed: 2, Confirmed: 1}))

	handler := newTestServer(t, repo, nil)
	rec := doRequest(t, handler, http.MethodGet, "/api/runs", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []dto.RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "run-1", resp[0].ID)
	assert.Equal(t, "completed", resp[0].Status)
	assert.NotEmpty(t, resp[0].CompletedAt)
}

func TestGetStats(t *testing.T) {
	repo := storage.NewMockRepository()
	require.NoError(t, repo.CreatePaymentRecord(context.Background(), &storage.PaymentRecord{AmountCents: 100}))

	handler := newTestServer(t, repo, nil)
	rec := doRequest(t, handler, http.MethodGet, "/api/stats", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var stats storage.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalRecords)
	assert.Equal(t, 1, stats.UnassignedRecords)
}
