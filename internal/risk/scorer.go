package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/buildledger/heron/internal/domain"
	"github.com/buildledger/heron/internal/history"
	"github.com/buildledger/heron/internal/numeric"
)

// Scorer produces the vendor-history finding and the ML fusion finding.
type Scorer struct {
	history       *history.Service
	vendorClient  domain.VendorRiskClient
	anomalyClient domain.AnomalyClient
	cfg           domain.ScoringConfig
	now           func() time.Time
}

// NewScorer creates a risk scorer. vendorClient and anomalyClient may be nil;
// their signals then degrade to neutral.
func NewScorer(hist *history.Service, vendorClient domain.VendorRiskClient, anomalyClient domain.AnomalyClient, cfg domain.ScoringConfig) *Scorer {
	return &Scorer{
		history:       hist,
		vendorClient:  vendorClient,
		anomalyClient: anomalyClient,
		cfg:           cfg,
		now:           time.Now,
	}
}

// VendorFinding layers two history heuristics: a penalty for vendors with an
// excessive count of rejected bills, and a penalty when the bill amount is
// far above the vendor's recent average. Query errors degrade to neutral.
func (s *Scorer) VendorFinding(ctx context.Context, bill *domain.Bill) domain.ValidationFinding {
	finding := domain.ValidationFinding{Signal: domain.SignalVendor}
	if bill.VendorName == "" {
		return finding
	}

	if rejected, err := s.history.RejectedCount(ctx, bill.TenantID, bill.VendorName); err == nil {
		if rejected > s.cfg.RejectedBillsFloor {
			penalty := math.Min(15, 5+2*float64(rejected))
			finding.Score += penalty
			finding.Reasons = append(finding.Reasons,
				fmt.Sprintf("vendor has %d rejected bills", rejected))
		}
	} else {
		slog.Warn("rejected-count lookup failed", "vendor", bill.VendorName, "error", err)
	}

	if bill.TotalAmount <= 0 {
		return finding
	}

	since := s.now().Add(-s.cfg.VendorStatsWindow)
	stats, err := s.history.VendorStats(ctx, bill.TenantID, bill.VendorName, since)
	if err != nil {
		slog.Warn("vendor stats lookup failed", "vendor", bill.VendorName, "error", err)
		return finding
	}
	if stats == nil || stats.BillCount <= 2 || stats.AvgAmount <= 0 {
		// Too little history to call anything anomalous.
		return finding
	}

	if bill.TotalAmount > stats.AvgAmount*s.cfg.AmountAnomalyRatio {
		deviation := (bill.TotalAmount - stats.AvgAmount) / stats.AvgAmount * 100
		finding.Score += math.Min(20, 10+deviation/50)
		finding.Reasons = append(finding.Reasons,
			fmt.Sprintf("amount %.0f%% above average for %s", deviation, bill.VendorName))
	}

	return finding
}

// MLFinding is the supplementary fused lane: externally computed vendor risk
// and the anomaly model's batch mean, combined as
// min(1, vendor_risk*0.6 + mean_anomaly*0.9) and scaled into fraud-score
// units. An untrained model contributes zero and is flagged explicitly;
// collaborator failures degrade to neutral.
func (s *Scorer) MLFinding(ctx context.Context, bill *domain.Bill, inv *domain.ExtractedInvoice) domain.ValidationFinding {
	finding := domain.ValidationFinding{Signal: domain.SignalML, Details: map[string]any{}}

	vendorRisk := 0.0
	if s.vendorClient != nil && bill.VendorName != "" {
		profile, err := s.vendorClient.VendorRisk(ctx, bill.TenantID, bill.VendorName, bill.Project)
		if err != nil {
			slog.Warn("vendor risk collaborator unavailable", "vendor", bill.VendorName, "error", err)
		} else if profile != nil {
			vendorRisk = clamp01(profile.VendorRiskScore)
			finding.Details["vendor_risk_score"] = vendorRisk
		}
	}

	meanAnomaly := 0.0
	modelTrained := false
	if s.anomalyClient != nil {
		pairs := PricePairs(inv)
		if len(pairs) > 0 {
			result, err := s.anomalyClient.Score(ctx, pairs)
			if err != nil {
				slog.Warn("anomaly collaborator unavailable", "error", err)
			} else if result != nil {
				modelTrained = result.ModelTrained
				if result.ModelTrained {
					meanAnomaly = clamp01(result.Mean)
					finding.Details["mean_anomaly"] = meanAnomaly
				}
			}
		}
	}

	if !modelTrained {
		finding.Details["model"] = "model-not-trained"
	}

	fused := math.Min(1.0, vendorRisk*s.cfg.VendorRiskFactor+meanAnomaly*s.cfg.AnomalyFactor)
	finding.Details["fused_score"] = fused
	finding.Score = fused * s.cfg.MLWeight

	if finding.Score > 0 {
		finding.Reasons = append(finding.Reasons,
			fmt.Sprintf("combined risk signal %.2f from vendor_risk=%.2f and anomaly_mean=%.2f", fused, vendorRisk, meanAnomaly))
	}

	return finding
}

// PricePairs extracts the normalizable (price, quantity) observations for the
// anomaly model. Items missing either value are skipped.
func PricePairs(inv *domain.ExtractedInvoice) []domain.PricePair {
	if inv == nil {
		return nil
	}
	pairs := make([]domain.PricePair, 0, len(inv.LineItems))
	for _, item := range inv.LineItems {
		rate, rateOK := numeric.Normalize(item.UnitRate)
		qty, qtyOK := numeric.Normalize(item.Quantity)
		if rateOK && qtyOK {
			pairs = append(pairs, domain.PricePair{Price: rate, Quantity: qty})
		}
	}
	return pairs
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
