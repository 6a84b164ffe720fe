package domain

import (
	"strings"
	"time"
)

// Recommendation is the terminal decision for one scoring run.
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendReview  Recommendation = "review"
	RecommendReject  Recommendation = "reject"
)

// ValidationFinding is the output of a single validator: a non-negative score
// contribution, zero or more human-readable reasons, and optional structured
// diagnostics (e.g. the math-check's invoice_total / sum_of_line_totals /
// difference fields).
type ValidationFinding struct {
	Signal  string         `json:"signal"`
	Score   float64        `json:"score"`
	Reasons []string       `json:"reasons,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Signal names, also the documented reason ordering of the aggregator.
const (
	SignalMath      = "math"
	SignalTaxID     = "tax_id"
	SignalMissing   = "missing_fields"
	SignalLineItems = "line_items"
	SignalDuplicate = "duplicate"
	SignalVendor    = "vendor_risk"
	SignalML        = "ml"
	SignalScreening = "screening"
)

// FraudReport is the aggregate result of one scoring run. It is constructed
// exactly once per invocation and never mutated afterwards; the embedding
// application decides whether to store score and reasons on the bill record.
type FraudReport struct {
	BillID   string `json:"billId"`
	TenantID string `json:"tenantId"`

	// FraudScore is clamped to [0,100] and rounded to two decimals.
	FraudScore float64 `json:"fraud_score"`

	// IsSuspicious is true when the score exceeds the review threshold.
	IsSuspicious bool `json:"is_suspicious"`

	// Reasons preserves validator evaluation order. Duplicates are kept.
	Reasons []string `json:"reasons"`

	Recommendation Recommendation `json:"recommendation"`

	// Validations carries the structured math-check diagnostics.
	Validations map[string]any `json:"validations,omitempty"`

	// Findings are the per-validator results, in evaluation order.
	Findings []ValidationFinding `json:"findings,omitempty"`

	Timestamp time.Time      `json:"timestamp"`
	Metadata  ReportMetadata `json:"metadata"`
}

// ReportMetadata contains processing information.
type ReportMetadata struct {
	TraceID          string `json:"traceId,omitempty"`
	ExtractMs        int64  `json:"extractMs,omitempty"`
	ScoringMs        int64  `json:"scoringMs"`
	TotalMs          int64  `json:"totalMs,omitempty"`
	SignalsEvaluated int    `json:"signalsEvaluated"`
	SignalsFailed    int    `json:"signalsFailed,omitempty"`
	EngineVersion    string `json:"engineVersion"`
}

// ReasonText joins the ordered reasons for storage on the bill record.
func (r *FraudReport) ReasonText() string {
	return strings.Join(r.Reasons, "; ")
}
