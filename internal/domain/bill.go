// Package domain defines the core interfaces and types for Heron.
package domain

import (
	"time"
)

// Bill represents a submitted vendor bill scoped to a tenant and project.
type Bill struct {
	ID       string `json:"billId"`
	TenantID string `json:"tenantId"`
	Project  string `json:"projectId"`

	VendorName  string  `json:"vendorName"`
	TotalAmount float64 `json:"totalAmount"`

	// Lifecycle: uploaded -> analysed -> approved | rejected
	Status BillStatus `json:"status"`

	// Populated once the bill has been scored.
	FraudScore   float64 `json:"fraudScore"`
	FraudReasons string  `json:"fraudReasons,omitempty"`

	// SHA-256 of the uploaded document bytes, used for exact-duplicate detection.
	Fingerprint string `json:"fingerprint,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BillStatus is the lifecycle state of a bill.
type BillStatus string

const (
	StatusUploaded BillStatus = "uploaded"
	StatusAnalysed BillStatus = "analysed"
	StatusApproved BillStatus = "approved"
	StatusRejected BillStatus = "rejected"
)

// CanTransition reports whether a status change is allowed.
// Approval decisions are terminal.
func (s BillStatus) CanTransition(to BillStatus) bool {
	switch s {
	case StatusUploaded:
		return to == StatusAnalysed || to == StatusApproved || to == StatusRejected
	case StatusAnalysed:
		return to == StatusApproved || to == StatusRejected
	default:
		return false
	}
}

// LineItem is one billed entry belonging to a bill. Every numeric field may be
// absent; consumers must not assume presence.
type LineItem struct {
	BillID      string   `json:"billId,omitempty"`
	Description string   `json:"description,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitRate    *float64 `json:"unitRate,omitempty"`
	LineTotal   *float64 `json:"lineTotal,omitempty"`
}

// Budget holds the planned spend for a project.
type Budget struct {
	ProjectID   string    `json:"projectId"`
	TotalAmount float64   `json:"totalAmount"`
	Materials   float64   `json:"materials"`
	Labor       float64   `json:"labor"`
	Equipment   float64   `json:"equipment"`
	Contingency float64   `json:"contingency"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProjectSummary is a budget/spend rollup for the project listing.
type ProjectSummary struct {
	ProjectID    string  `json:"id"`
	TotalBudget  float64 `json:"totalBudget"`
	Spent        float64 `json:"spent"`
	TotalBills   int     `json:"totalBills"`
	PendingBills int     `json:"pendingBills"`
}

// VendorStats aggregates a vendor's billing history over a window.
type VendorStats struct {
	BillCount int     `json:"billCount"`
	AvgAmount float64 `json:"avgAmount"`
	MaxAmount float64 `json:"maxAmount"`
	MinAmount float64 `json:"minAmount"`
}
