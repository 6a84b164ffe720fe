package domain

import (
	"context"
	"time"
)

// Extractor converts an uploaded document into a structured invoice.
// The returned payload keeps the provider's raw field bag; alias probing
// happens in the extract package.
type Extractor interface {
	AnalyzeInvoice(ctx context.Context, document []byte) (*ExtractedInvoice, error)
}

// TaxVerifier checks a format-valid tax identifier against an external
// registry. Implementations must be safe to call concurrently.
type TaxVerifier interface {
	Verify(ctx context.Context, identifier string) (bool, error)
}

// VendorRiskProfile is the response shape of the vendor-risk collaborator.
type VendorRiskProfile struct {
	VendorName          string  `json:"vendor_name"`
	PreviousBills       int     `json:"number_of_previous_bills"`
	AverageBillValue    float64 `json:"average_bill_value"`
	RecurrencePattern   string  `json:"recurrence_pattern"`
	VendorRiskScore     float64 `json:"vendor_risk_score"` // [0,1]
	DelayedPayments     int     `json:"delayed_payments,omitempty"`
	DuplicatePayments   int     `json:"duplicate_payments,omitempty"`
	BudgetUtilization   float64 `json:"budget_utilization,omitempty"`
}

// VendorRiskClient looks up historical risk signals for a vendor.
type VendorRiskClient interface {
	VendorRisk(ctx context.Context, tenantID string, vendor string, projectID string) (*VendorRiskProfile, error)
}

// PricePair is one (price, quantity) observation for the anomaly model.
type PricePair struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"qty"`
}

// AnomalyResult is the response shape of the anomaly-model collaborator.
// Scores are normalized per batch: 0 = typical, 1 = most anomalous.
type AnomalyResult struct {
	Scores []float64 `json:"anomaly_scores"`
	Mean   float64   `json:"mean_anomaly"`

	// ModelTrained is false when no fitted model is available. That is a
	// valid, expected state, not an error.
	ModelTrained bool `json:"model_trained"`
}

// AnomalyClient scores (price, quantity) pairs against a pre-fitted model.
type AnomalyClient interface {
	Score(ctx context.Context, pairs []PricePair) (*AnomalyResult, error)
}

// CollaboratorConfig holds endpoints and timeouts for the external services.
// Each call site applies its own timeout; a timeout or transport error is
// degraded to that collaborator's documented fallback, never propagated out
// of the scoring engine.
type CollaboratorConfig struct {
	ExtractorURL   string        `json:"extractorUrl" yaml:"extractorUrl"`
	ExtractTimeout time.Duration `json:"extractTimeout" yaml:"extractTimeout"`

	VendorRiskURL     string        `json:"vendorRiskUrl" yaml:"vendorRiskUrl"`
	VendorRiskTimeout time.Duration `json:"vendorRiskTimeout" yaml:"vendorRiskTimeout"`

	AnomalyURL     string        `json:"anomalyUrl" yaml:"anomalyUrl"`
	AnomalyTimeout time.Duration `json:"anomalyTimeout" yaml:"anomalyTimeout"`

	TaxVerifierURL     string        `json:"taxVerifierUrl" yaml:"taxVerifierUrl"`
	TaxVerifierTimeout time.Duration `json:"taxVerifierTimeout" yaml:"taxVerifierTimeout"`

	// TaxVerifyFailOpen controls the fallback when the verifier is
	// unreachable or unconfigured: true treats a format-valid identifier
	// as verified.
	TaxVerifyFailOpen bool `json:"taxVerifyFailOpen" yaml:"taxVerifyFailOpen"`
}

// DefaultCollaborators returns collaborator settings with conservative
// per-call timeouts.
func DefaultCollaborators() CollaboratorConfig {
	return CollaboratorConfig{
		ExtractTimeout:     30 * time.Second,
		VendorRiskTimeout:  3 * time.Second,
		AnomalyTimeout:     3 * time.Second,
		TaxVerifierTimeout: 3 * time.Second,
		TaxVerifyFailOpen:  true,
	}
}
