// Package validate implements the deterministic document validators: the
// line-item math check and the tax-identifier format check.
package validate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/buildledger/heron/internal/domain"
	"github.com/buildledger/heron/internal/numeric"
)

// LineItemValidator checks arithmetic consistency of line items against the
// declared invoice total.
type LineItemValidator struct {
	cfg domain.ScoringConfig
}

// NewLineItemValidator creates a line-item validator with the given scoring
// configuration.
func NewLineItemValidator(cfg domain.ScoringConfig) *LineItemValidator {
	return &LineItemValidator{cfg: cfg}
}

// MathResult carries the three findings produced by the math check, in the
// aggregator's documented reason order.
type MathResult struct {
	Math    domain.ValidationFinding
	Missing domain.ValidationFinding
	Items   domain.ValidationFinding
}

// Check validates the invoice math. It never returns an error: malformed input
// degrades to "cannot verify" (reported under the missing-fields signal with
// no penalty) rather than to a default pass or fail. An item with any
// unnormalizable field is excluded from the per-item check; a missing line
// total still contributes 0 to the sum.
func (v *LineItemValidator) Check(inv *domain.ExtractedInvoice) MathResult {
	res := MathResult{
		Math:    domain.ValidationFinding{Signal: domain.SignalMath},
		Missing: domain.ValidationFinding{Signal: domain.SignalMissing},
		Items:   domain.ValidationFinding{Signal: domain.SignalLineItems},
	}

	if len(inv.LineItems) == 0 {
		res.Missing.Score = v.cfg.NoLineItemsScore
		res.Missing.Reasons = append(res.Missing.Reasons, "no line items extracted from document")
		return res
	}

	sum := decimal.Zero
	mismatched := 0
	verifiable := 0

	for _, item := range inv.LineItems {
		qty, qtyOK := numeric.Normalize(item.Quantity)
		rate, rateOK := numeric.Normalize(item.UnitRate)
		total, totalOK := numeric.Normalize(item.LineTotal)

		if totalOK {
			sum = sum.Add(decimal.NewFromFloat(total))
		}

		if !qtyOK || !rateOK || !totalOK {
			// Insufficient data disqualifies the item from the math
			// check; it is not scored as mismatched.
			continue
		}
		verifiable++

		expected := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(rate)).Round(2)
		diff := expected.Sub(decimal.NewFromFloat(total)).Abs()
		if diff.GreaterThan(decimal.NewFromFloat(v.cfg.ItemTolerance)) {
			mismatched++
		}
	}

	if mismatched > 0 {
		score := float64(mismatched) * v.cfg.ItemMismatchScore
		if score > v.cfg.ItemMismatchCap {
			score = v.cfg.ItemMismatchCap
		}
		res.Items.Score = score
		res.Items.Reasons = append(res.Items.Reasons,
			fmt.Sprintf("%d line item(s) with amount mismatch", mismatched))
		res.Items.Details = map[string]any{
			"mismatched_items": mismatched,
			"verifiable_items": verifiable,
		}
	}

	sumOfTotals, _ := sum.Round(2).Float64()

	if inv.TotalAmount == nil {
		res.Missing.Reasons = append(res.Missing.Reasons, "declared invoice total missing, sum not verified")
		res.Math.Details = map[string]any{
			"sum_of_line_totals": sumOfTotals,
		}
		return res
	}

	invoiceTotal := decimal.NewFromFloat(*inv.TotalAmount)
	difference := invoiceTotal.Sub(sum).Abs()
	// Inclusive comparison: a discrepancy of exactly the tolerance passes.
	sumOK := difference.LessThanOrEqual(decimal.NewFromFloat(v.cfg.InvoiceTolerance))
	diffF, _ := difference.Round(2).Float64()

	res.Math.Details = map[string]any{
		"invoice_total":      *inv.TotalAmount,
		"sum_of_line_totals": sumOfTotals,
		"sum_ok":             sumOK,
		"difference":         diffF,
	}

	if !sumOK {
		switch {
		case diffF > v.cfg.HighDiscrepancyUnits:
			res.Math.Score = v.cfg.HighDiscrepancyScore
			res.Math.Reasons = append(res.Math.Reasons,
				fmt.Sprintf("line items sum to %.2f but invoice declares %.2f (difference %.2f)", sumOfTotals, *inv.TotalAmount, diffF))
		case diffF > v.cfg.MediumDiscrepancyUnits:
			res.Math.Score = v.cfg.MediumDiscrepancyScore
			res.Math.Reasons = append(res.Math.Reasons,
				fmt.Sprintf("invoice total differs from line item sum by %.2f", diffF))
		}
		// A sub-medium discrepancy is recorded in the diagnostics but
		// carries no penalty.
	}

	return res
}
