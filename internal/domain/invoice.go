package domain

// ExtractedInvoice is the normalized output of the document-extraction
// collaborator. Upstream extraction schemas vary by provider and version, so
// Fields retains the raw key/value bag; typed accessors live in the extract
// package, which probes historically-accumulated alias names in a fixed
// priority order.
type ExtractedInvoice struct {
	VendorName  string  `json:"vendor,omitempty"`
	InvoiceID   string  `json:"invoiceId,omitempty"`
	InvoiceDate string  `json:"invoiceDate,omitempty"`
	TaxID       string  `json:"vendorTaxId,omitempty"`
	TotalAmount *float64 `json:"totalAmount,omitempty"`
	TaxAmount   *float64 `json:"taxAmount,omitempty"`

	// LineItems preserves extraction order.
	LineItems []ExtractedLineItem `json:"lineItems"`

	// Fields is the flattened field bag as returned by the provider.
	// Values may be numbers, strings, or {value: ...} wrappers.
	Fields map[string]any `json:"fields,omitempty"`

	// Raw is the unmodified provider payload, retained for audit.
	// Opaque to the scoring engine.
	Raw []byte `json:"-"`
}

// ExtractedLineItem is a line-item-shaped record from the extraction
// collaborator. Values are kept untyped because providers emit numbers,
// currency-prefixed strings, and nested {value: ...} wrappers.
type ExtractedLineItem struct {
	Description string `json:"item,omitempty"`
	Quantity    any    `json:"qty,omitempty"`
	UnitRate    any    `json:"rate,omitempty"`
	LineTotal   any    `json:"total,omitempty"`
}
