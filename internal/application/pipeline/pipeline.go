// Package pipeline orchestrates the reconciliation of payment records
// against the account roster.
//
// Control flow per record is strictly sequential: signal extraction,
// candidate generation, decision, history-assist, memory-fallback, and
// finally persistence. Every stage before persistence is a pure function of
// its inputs (the fallback gates only read); persistence performs all writes
// for one record inside a single transaction.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/campusledger/reconcile/internal/domain/decide"
	"github.com/campusledger/reconcile/internal/domain/extract"
	"github.com/campusledger/reconcile/internal/domain/fallback"
	"github.com/campusledger/reconcile/internal/domain/match"
	"github.com/campusledger/reconcile/internal/domain/normalize"
	"github.com/campusledger/reconcile/internal/infrastructure/config"
	"github.com/campusledger/reconcile/internal/infrastructure/storage"
)

// Outcome is the operator-visible result for one record.
type Outcome string

const (
	OutcomeConfirmed   Outcome = "confirmed"
	OutcomeSuggested   Outcome = "suggested"
	OutcomeNeedsReview Outcome = "needs_review"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeError       Outcome = "error"
)

// Pipeline runs the matching and reconciliation stages.
type Pipeline struct {
	repo   storage.Repository
	gen    *match.Generator
	memCfg fallback.MemoryConfig
	logger *slog.Logger
}

// New creates a pipeline over the given repository.
func New(repo storage.Repository, cfg config.MatchingConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	genCfg := match.DefaultConfig()
	if cfg.ReferencePrefix != "" {
		genCfg.ReferencePrefix = cfg.ReferencePrefix
	}
	if len(cfg.StopWords) > 0 {
		genCfg.StopWords = cfg.StopWords
	}

	memCfg := fallback.DefaultMemoryConfig()
	if len(cfg.PayerStopTerms) > 0 {
		memCfg.PayerStopTerms = cfg.PayerStopTerms
	}

	return &Pipeline{
		repo:   repo,
		gen:    match.NewGenerator(genCfg),
		memCfg: memCfg,
		logger: logger,
	}
}

// RunOptions controls one pipeline invocation.
type RunOptions struct {
	// RecordID limits the run to a single payment record. Nil processes all
	// records without an assigned account, ordered by id ascending.
	RecordID *int64
	// DryRun executes every stage through the fallback gates but skips
	// persistence, returning the computed decisions for inspection.
	DryRun bool
}

// RecordResult is the outcome of one record's run.
type RecordResult struct {
	RecordID int64
	Outcome  Outcome
	Decision decide.Decision
	Error    string
}

// RunResult summarizes a pipeline invocation.
type RunResult struct {
	RunID   string
	DryRun  bool
	Results []RecordResult
	Counts  storage.RunCounts
}

// batchContext is the roster and capability snapshot loaded once per run
// and shared read-only across records.
type batchContext struct {
	roster []match.Account
	caps   storage.Capabilities
}

// Run executes the pipeline. Per-record failures are logged and counted but
// never abort the batch; only loading the batch context or resolving the
// record list can fail the run as a whole.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	bc, err := p.loadContext(ctx)
	if err != nil {
		return nil, err
	}

	var ids []int64
	if opts.RecordID != nil {
		ids = []int64{*opts.RecordID}
	} else {
		ids, err = p.repo.UnassignedRecordIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list unassigned records: %w", err)
		}
	}

	result := &RunResult{
		RunID:  uuid.NewString(),
		DryRun: opts.DryRun,
	}

	if err := p.repo.StartRun(ctx, result.RunID, opts.DryRun); err != nil {
		// Run tracking is bookkeeping; a failure here must not block
		// reconciliation.
		p.logger.Warn("failed to record run start", "run_id", result.RunID, "error", err)
	}

	p.logger.Info("Starting reconciliation run",
		"run_id", result.RunID,
		"records", len(ids),
		"accounts", len(bc.roster),
		"dry_run", opts.DryRun,
	)

	for _, id := range ids {
		res := p.processRecord(ctx, bc, id, opts.DryRun)
		result.Results = append(result.Results, res)

		switch res.Outcome {
		case OutcomeConfirmed:
			result.Counts.Confirmed++
			result.Counts.Processed++
		case OutcomeSuggested:
			result.Counts.Suggested++
			result.Counts.Processed++
		case OutcomeNeedsReview:
			result.Counts.NeedsReview++
			result.Counts.Processed++
		case OutcomeSkipped:
			result.Counts.Skipped++
		case OutcomeError:
			result.Counts.Errored++
		}
	}

	if err := p.repo.CompleteRun(ctx, result.RunID, result.Counts); err != nil {
		p.logger.Warn("failed to record run completion", "run_id", result.RunID, "error", err)
	}

	p.logger.Info("Reconciliation run complete",
		"run_id", result.RunID,
		"confirmed", result.Counts.Confirmed,
		"suggested", result.Counts.Suggested,
		"needs_review", result.Counts.NeedsReview,
		"skipped", result.Counts.Skipped,
		"errored", result.Counts.Errored,
	)

	return result, nil
}

// loadContext loads the account roster and capability flags once per run.
func (p *Pipeline) loadContext(ctx context.Context) (*batchContext, error) {
	accounts, err := p.repo.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load account roster: %w", err)
	}

	roster := make([]match.Account, len(accounts))
	for i, a := range accounts {
		roster[i] = match.Account{
			ID:            a.ID,
			ReferenceCode: a.ReferenceCode,
			GivenName:     a.GivenName,
			FamilyName:    a.FamilyName,
			LongName:      a.LongName,
		}
	}

	return &batchContext{
		roster: roster,
		caps:   p.repo.Capabilities(),
	}, nil
}

// processRecord runs all stages for one payment record. It never panics or
// propagates an error; failures become an error outcome.
func (p *Pipeline) processRecord(ctx context.Context, bc *batchContext, id int64, dryRun bool) RecordResult {
	rec, err := p.repo.GetPaymentRecord(ctx, id)
	if err != nil {
		p.logger.Error("Failed to load payment record", "record_id", id, "error", err)
		return RecordResult{RecordID: id, Outcome: OutcomeError, Error: err.Error()}
	}

	// Cheap pre-check; the authoritative guard runs inside the persistence
	// transaction.
	if rec.AssignedAccountID != nil {
		p.logger.Debug("Skipping already assigned record", "record_id", id)
		return RecordResult{RecordID: id, Outcome: OutcomeSkipped}
	}

	decision := p.decideRecord(ctx, bc, rec)

	if dryRun {
		return RecordResult{RecordID: id, Outcome: outcomeOf(decision), Decision: decision}
	}

	write := p.buildWrite(rec, decision)
	applied, err := p.repo.ApplyDecision(ctx, write)
	if err != nil {
		p.logger.Error("Failed to persist decision", "record_id", id, "error", err)
		return RecordResult{RecordID: id, Outcome: OutcomeError, Decision: decision, Error: err.Error()}
	}
	if !applied {
		p.logger.Debug("Record already processed, persistence was a no-op", "record_id", id)
		return RecordResult{RecordID: id, Outcome: OutcomeSkipped, Decision: decision}
	}

	outcome := outcomeOf(decision)
	p.logger.Info("Reconciled payment record",
		"record_id", id,
		"outcome", string(outcome),
		"matches", len(decision.Matches),
		"review_reason", string(decision.Reason),
	)
	return RecordResult{RecordID: id, Outcome: outcome, Decision: decision}
}

// decideRecord runs extraction, candidate generation, the decision engine,
// and the two fallback gates. It performs no writes.
func (p *Pipeline) decideRecord(ctx context.Context, bc *batchContext, rec *storage.PaymentRecord) decide.Decision {
	raw := strings.TrimSpace(rec.Reference + " " + rec.ReferenceNumber + " " + rec.PayerName)
	text := normalize.Normalize(raw)
	payer := normalize.Normalize(rec.PayerName)
	codes := extract.ReferenceCodes(raw)

	candidates := p.gen.Generate(match.Input{Codes: codes, Text: text}, bc.roster)
	topConf := decide.TopConfidence(candidates)

	p.logger.Debug("Generated candidates",
		"record_id", rec.ID,
		"codes", len(codes),
		"candidates", len(candidates),
		"top_confidence", topConf,
	)

	// History-assist: only when confidence is insufficient and the audit
	// store carries the needed metadata.
	historyRan := false
	if (len(candidates) == 0 || topConf < fallback.LowConfidenceThreshold) && bc.caps.HistoryMetadata {
		historyRan = true
		hist, err := fallback.HistoryAssist(ctx, p.repo, text, payer, topConf)
		if err != nil {
			p.logger.Warn("History-assist lookup failed", "record_id", rec.ID, "error", err)
		}
		for _, h := range hist {
			candidates = append(candidates, match.Candidate{
				AccountID:  h.AccountID,
				Method:     match.MethodHistoryAssist,
				Confidence: h.Confidence,
				Evidence:   h.Evidence,
			})
		}
	}

	// Memory-fallback: absolute last resort, only when nothing else
	// produced a candidate.
	if len(candidates) == 0 {
		res, err := fallback.Memory(ctx, p.repo, fallback.MemoryKeys{
			Reference:       rec.Reference,
			ReferenceNumber: rec.ReferenceNumber,
			PayerName:       rec.PayerName,
		}, p.memCfg)
		if err != nil {
			p.logger.Warn("Memory-fallback lookup failed", "record_id", rec.ID, "error", err)
		}
		if res != nil {
			decision := decide.Decision{
				Matches: []decide.Match{{
					AccountID:  res.AccountID,
					ShareCents: rec.AmountCents,
					Confidence: res.Confidence,
					Method:     match.MethodFallback,
					Evidence:   res.Evidence,
					Confirmed:  res.Confirmed,
				}},
			}
			return p.applyReviewRules(decision, historyRan)
		}
	}

	decision := decide.Decide(candidates, codes, rec.AmountCents)
	return p.applyReviewRules(decision, historyRan)
}

// applyReviewRules sets the needs-review flag and reason on a decision:
// no matches at all, or a top confidence below the threshold, requires
// human resolution.
func (p *Pipeline) applyReviewRules(d decide.Decision, historyRan bool) decide.Decision {
	if len(d.Matches) == 0 {
		d.NeedsReview = true
		if historyRan {
			d.Reason = decide.ReasonLowConfidence
		} else {
			d.Reason = decide.ReasonNoCandidates
		}
		return d
	}

	top := 0.0
	for _, m := range d.Matches {
		if m.Confidence > top {
			top = m.Confidence
		}
	}
	if top < fallback.LowConfidenceThreshold {
		d.NeedsReview = true
		d.Reason = decide.ReasonLowConfidence
	}
	return d
}

// buildWrite translates a decision into the single-transaction persistence
// payload: one audit entry per match (confidence rescaled to 0-100), shares
// and assignment for confirmed matches only.
func (p *Pipeline) buildWrite(rec *storage.PaymentRecord, d decide.Decision) storage.LedgerWrite {
	raw := strings.TrimSpace(rec.Reference + " " + rec.ReferenceNumber + " " + rec.PayerName)
	text := normalize.Normalize(raw)
	payer := normalize.Normalize(rec.PayerName)

	w := storage.LedgerWrite{
		RecordID:    rec.ID,
		NeedsReview: d.NeedsReview,
	}

	for _, m := range d.Matches {
		w.Audits = append(w.Audits, storage.AuditWrite{
			AccountID:      m.AccountID,
			Confidence:     m.Confidence * 100,
			Method:         auditMethod(m.Method),
			Confirmed:      m.Confirmed,
			NormalizedText: text,
			PayerName:      payer,
		})

		if m.Confirmed {
			if w.AssignAccountID == nil {
				id := m.AccountID
				w.AssignAccountID = &id
			}
			w.ConfirmedShares = append(w.ConfirmedShares, storage.Share{
				AccountID: m.AccountID,
				Cents:     m.ShareCents,
			})
		}
	}

	return w
}

// auditMethod maps a matching method into the closed audit method set.
func auditMethod(m match.Method) storage.AuditMethod {
	switch m {
	case match.MethodRefExact:
		return storage.AuditReference
	case match.MethodRefFuzzy:
		return storage.AuditReferenceFuzzy
	case match.MethodNameExact, match.MethodNameFuzzy, match.MethodHistoryAssist:
		return storage.AuditNameSuggest
	case match.MethodFallback:
		return storage.AuditFallback
	default:
		return storage.AuditNameSuggest
	}
}

// outcomeOf classifies a decision into the operator-visible outcome.
func outcomeOf(d decide.Decision) Outcome {
	for _, m := range d.Matches {
		if m.Confirmed {
			return OutcomeConfirmed
		}
	}
	if d.NeedsReview {
		return OutcomeNeedsReview
	}
	if len(d.Matches) > 0 {
		return OutcomeSuggested
	}
	return OutcomeNeedsReview
}
