// Package engine aggregates the independent fraud signals into one bounded
// score, an ordered reason list, and a terminal recommendation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/buildledger/heron/internal/domain"
	"github.com/buildledger/heron/internal/duplicate"
	"github.com/buildledger/heron/internal/history"
	"github.com/buildledger/heron/internal/risk"
	"github.com/buildledger/heron/internal/rules"
	"github.com/buildledger/heron/internal/validate"
)

const engineVersion = "heron-1.0"

var tracer = otel.Tracer("heron-engine")

// Engine runs the validators and folds their findings into a FraudReport.
// It holds no per-run state: every Score call builds and returns a fresh
// report, so concurrent runs cannot contaminate each other.
type Engine struct {
	cfg       domain.ScoringConfig
	lineItems *validate.LineItemValidator
	taxID     *validate.TaxIDValidator
	dups      *duplicate.Detector
	risk      *risk.Scorer
	screening *rules.Engine
	hist      *history.Service
}

// New creates the scoring engine. The scoring configuration must already be
// validated; New panics on an invalid one because that is a programming or
// deployment error, not a per-request condition.
func New(cfg domain.ScoringConfig, collab domain.CollaboratorConfig, hist *history.Service, verifier domain.TaxVerifier, vendorClient domain.VendorRiskClient, anomalyClient domain.AnomalyClient, screening *rules.Engine) *Engine {
	if err := cfg.Validate(); err != nil {
		panic("invalid scoring configuration: " + err.Error())
	}
	return &Engine{
		cfg:       cfg,
		lineItems: validate.NewLineItemValidator(cfg),
		taxID:     validate.NewTaxIDValidator(cfg, collab, verifier),
		dups:      duplicate.NewDetector(hist, cfg),
		risk:      risk.NewScorer(hist, vendorClient, anomalyClient, cfg),
		screening: screening,
		hist:      hist,
	}
}

// signal slots, in the documented reason order.
const (
	slotMath = iota
	slotTaxID
	slotMissing
	slotItems
	slotDuplicate
	slotVendor
	slotML
	slotCount
)

// Score evaluates every enabled signal group for the bill and returns the
// aggregate report. Signals run concurrently; the reason order is fixed by
// slot, not by completion. A signal that panics is logged and contributes
// nothing; a single failed signal never aborts the run.
func (e *Engine) Score(ctx context.Context, bill *domain.Bill, inv *domain.ExtractedInvoice) *domain.FraudReport {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "engine.Score")
	defer span.End()
	span.SetAttributes(
		attribute.String("bill.id", bill.ID),
		attribute.String("tenant.id", bill.TenantID),
	)

	if inv == nil {
		inv = &domain.ExtractedInvoice{}
	}

	findings := make([]domain.ValidationFinding, slotCount)
	failed := 0
	var failedMu sync.Mutex
	var wg sync.WaitGroup

	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("signal panicked, contributing nothing",
						"signal", name,
						"bill_id", bill.ID,
						"panic", r,
					)
					failedMu.Lock()
					failed++
					failedMu.Unlock()
				}
			}()
			fn()
		}()
	}

	if e.cfg.EnableDocumentChecks {
		run("math", func() {
			res := e.lineItems.Check(inv)
			findings[slotMath] = res.Math
			findings[slotMissing] = res.Missing
			findings[slotItems] = res.Items
		})
		run("tax_id", func() {
			findings[slotTaxID] = e.taxID.Check(ctx, inv)
		})
	}
	if e.cfg.EnableHistoryChecks {
		run("duplicate", func() {
			findings[slotDuplicate] = e.dups.Check(ctx, bill)
		})
		run("vendor_risk", func() {
			findings[slotVendor] = e.risk.VendorFinding(ctx, bill)
		})
	}
	if e.cfg.EnableMLLane {
		run("ml", func() {
			findings[slotML] = e.risk.MLFinding(ctx, bill, inv)
		})
	}

	wg.Wait()

	if e.cfg.EnableScreening && e.screening != nil && e.screening.RulesCount() > 0 {
		findings = append(findings, e.screeningFinding(ctx, bill, inv, findings))
	}

	report := e.assemble(bill, findings, failed)
	report.Metadata.ScoringMs = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.Float64("fraud.score", report.FraudScore),
		attribute.String("fraud.recommendation", string(report.Recommendation)),
	)

	return report
}

// screeningFinding runs the CEL lane with facts derived from the bill and
// the deterministic findings.
func (e *Engine) screeningFinding(ctx context.Context, bill *domain.Bill, inv *domain.ExtractedInvoice, findings []domain.ValidationFinding) domain.ValidationFinding {
	finding := domain.ValidationFinding{Signal: domain.SignalScreening}

	sumDiff := 0.0
	if d, ok := findings[slotMath].Details["difference"].(float64); ok {
		sumDiff = d
	}
	taxValid := true
	if v, ok := findings[slotTaxID].Details["format_valid"].(bool); ok {
		taxValid = v
	}
	rejected := 0
	if e.hist != nil && bill.VendorName != "" {
		if n, err := e.hist.RejectedCount(ctx, bill.TenantID, bill.VendorName); err == nil {
			rejected = n
		}
	}

	input := &rules.ScreeningInput{
		TenantID:      bill.TenantID,
		BillID:        bill.ID,
		Vendor:        bill.VendorName,
		Project:       bill.Project,
		Amount:        bill.TotalAmount,
		LineCount:     len(inv.LineItems),
		SumDifference: sumDiff,
		TaxIDValid:    taxValid,
		IsDuplicate:   findings[slotDuplicate].Score > 0,
		RejectedCount: rejected,
	}

	results, err := e.screening.EvaluateAll(ctx, input)
	if err != nil {
		slog.Error("screening lane failed", "bill_id", bill.ID, "error", err)
		return finding
	}

	for _, r := range results {
		if r.Outcome == domain.ScreeningError {
			slog.Warn("screening rule errored", "rule_id", r.RuleID, "reason", r.Reason)
			continue
		}
		finding.Score += r.Score
		if r.Score > 0 {
			reason := r.Reason
			if reason == "" {
				// Bands created via the API always carry a reason; this
				// covers rules seeded into the database directly.
				reason = fmt.Sprintf("screening rule %s flagged this bill", r.RuleID)
			}
			finding.Reasons = append(finding.Reasons, reason)
		}
	}
	return finding
}

// assemble folds the findings into the report: clamp, round, classify.
func (e *Engine) assemble(bill *domain.Bill, findings []domain.ValidationFinding, failed int) *domain.FraudReport {
	total := 0.0
	var reasons []string
	var kept []domain.ValidationFinding
	validations := map[string]any{}
	evaluated := 0

	for _, f := range findings {
		if f.Signal == "" {
			continue // disabled or failed slot
		}
		evaluated++
		total += f.Score
		reasons = append(reasons, f.Reasons...)
		kept = append(kept, f)
		if f.Signal == domain.SignalMath && f.Details != nil {
			for k, v := range f.Details {
				validations[k] = v
			}
		}
	}

	score := math.Round(clamp(total, 0, 100)*100) / 100

	report := &domain.FraudReport{
		BillID:         bill.ID,
		TenantID:       bill.TenantID,
		FraudScore:     score,
		IsSuspicious:   score > e.cfg.ApproveBelow,
		Reasons:        reasons,
		Recommendation: e.Recommend(score),
		Findings:       kept,
		Timestamp:      time.Now().UTC(),
		Metadata: domain.ReportMetadata{
			SignalsEvaluated: evaluated,
			SignalsFailed:    failed,
			EngineVersion:    engineVersion,
		},
	}
	if len(validations) > 0 {
		report.Validations = validations
	}
	return report
}

// Recommend maps a score to the terminal recommendation. Monotonic in the
// score by construction.
func (e *Engine) Recommend(score float64) domain.Recommendation {
	switch {
	case score < e.cfg.ApproveBelow:
		return domain.RecommendApprove
	case score < e.cfg.RejectAt:
		return domain.RecommendReview
	default:
		return domain.RecommendReject
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
