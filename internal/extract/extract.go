package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/buildledger/heron/internal/domain"
	"github.com/buildledger/heron/internal/numeric"
)

// FromPayload parses a provider payload into the normalized invoice shape.
// The payload is validated against a loose structural schema first; schema
// violations are logged and the payload is still parsed best-effort, because
// a partially usable extraction beats none (the validators degrade missing
// fields to "cannot verify" on their own).
func FromPayload(raw []byte) (*domain.ExtractedInvoice, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parse extraction payload: %w", err)
	}

	if err := ValidatePayload(raw); err != nil {
		slog.Warn("extraction payload failed schema validation", "error", err)
	}

	inv := &domain.ExtractedInvoice{
		VendorName:  ProbeString(fields, "vendor"),
		InvoiceID:   ProbeString(fields, "invoice_id"),
		InvoiceDate: ProbeString(fields, "invoice_date"),
		TaxID:       ProbeString(fields, "tax_id"),
		Fields:      fields,
		Raw:         raw,
	}

	if v, ok := Probe(fields, "total"); ok {
		inv.TotalAmount = numeric.NormalizePtr(v)
	}
	if v, ok := Probe(fields, "tax"); ok {
		inv.TaxAmount = numeric.NormalizePtr(v)
	}

	inv.LineItems = parseLineItems(fields)

	return inv, nil
}

func parseLineItems(fields map[string]any) []domain.ExtractedLineItem {
	rawItems, ok := fields["line_items"]
	if !ok {
		rawItems, ok = fields["Items"]
	}
	if !ok {
		return nil
	}

	rows, ok := rawItems.([]any)
	if !ok {
		return nil
	}

	items := make([]domain.ExtractedLineItem, 0, len(rows))
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		item := domain.ExtractedLineItem{}
		if v, ok := ProbeItem(row, "description"); ok {
			item.Description = asString(v)
		}
		if v, ok := ProbeItem(row, "qty"); ok {
			item.Quantity = v
		}
		if v, ok := ProbeItem(row, "rate"); ok {
			item.UnitRate = v
		}
		if v, ok := ProbeItem(row, "total"); ok {
			item.LineTotal = v
		}
		items = append(items, item)
	}
	return items
}

// ToLineItems converts extracted rows into persisted line items, normalizing
// what it can and leaving the rest absent.
func ToLineItems(billID string, items []domain.ExtractedLineItem) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, domain.LineItem{
			BillID:      billID,
			Description: it.Description,
			Quantity:    numeric.NormalizePtr(it.Quantity),
			UnitRate:    numeric.NormalizePtr(it.UnitRate),
			LineTotal:   numeric.NormalizePtr(it.LineTotal),
		})
	}
	return out
}
