// Package extract turns document-extraction payloads into the normalized
// invoice shape consumed by the validators.
package extract

import (
	"strings"
)

// Extraction providers have accumulated different field names for the same
// logical value across schema versions. The alias lists below are probed in
// order; the first non-empty match wins.
var fieldAliases = map[string][]string{
	"vendor":       {"vendor", "supplier", "vendor_name", "VendorName", "SellerName"},
	"invoice_id":   {"invoice_id", "InvoiceId", "InvoiceNumber"},
	"invoice_date": {"invoice_date", "InvoiceDate"},
	"total":        {"total_amount", "InvoiceTotal", "AmountDue", "grand_total"},
	"tax":          {"taxes", "TotalTax", "tax_amount"},
	"tax_id":       {"tax_id", "vendor_gstin", "vendor_tax_id", "VendorTaxId", "SellerTaxId", "GSTIN"},
	"address":      {"vendor_address", "VendorAddress", "SellerAddress"},
}

// Line-item columns carry the same alias problem.
var itemAliases = map[string][]string{
	"description": {"item", "description", "name", "Description", "Item", "Name"},
	"qty":         {"qty", "quantity", "Quantity"},
	"rate":        {"rate", "unit_price", "price", "UnitPrice", "Price"},
	"total":       {"total", "amount", "total_price", "Amount", "TotalPrice"},
}

// Probe returns the first non-empty value for a logical field.
func Probe(fields map[string]any, logical string) (any, bool) {
	aliases, ok := fieldAliases[logical]
	if !ok {
		return nil, false
	}
	return probe(fields, aliases)
}

// ProbeItem returns the first non-empty value for a logical line-item column.
func ProbeItem(row map[string]any, logical string) (any, bool) {
	aliases, ok := itemAliases[logical]
	if !ok {
		return nil, false
	}
	return probe(row, aliases)
}

func probe(m map[string]any, aliases []string) (any, bool) {
	for _, alias := range aliases {
		v, ok := m[alias]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// ProbeString returns the probed value as a trimmed string, unwrapping one
// {value: ...} nesting level on the way.
func ProbeString(fields map[string]any, logical string) string {
	v, ok := Probe(fields, logical)
	if !ok {
		return ""
	}
	return asString(v)
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if inner, ok := t["value"]; ok {
			if s, ok := inner.(string); ok {
				return strings.TrimSpace(s)
			}
		}
		if name, ok := t["name"]; ok {
			if s, ok := name.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
