package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/buildledger/heron/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "heron-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func ptr(v float64) *float64 { return &v }

func sampleBill(id, vendor string, amount float64) *domain.Bill {
	now := time.Now().UTC()
	return &domain.Bill{
		ID:          id,
		TenantID:    "tenant-001",
		Project:     "project-001",
		VendorName:  vendor,
		TotalAmount: amount,
		Status:      domain.StatusUploaded,
		Fingerprint: "fp-" + id,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetBill", func(t *testing.T) {
		bill := sampleBill("bill-001", "Acme Cement", 22500)

		if err := repo.SaveBill(ctx, bill); err != nil {
			t.Fatalf("SaveBill failed: %v", err)
		}

		retrieved, err := repo.GetBill(ctx, tenantID, bill.ID)
		if err != nil {
			t.Fatalf("GetBill failed: %v", err)
		}

		if retrieved.ID != bill.ID {
			t.Errorf("expected ID %s, got %s", bill.ID, retrieved.ID)
		}
		if retrieved.TotalAmount != bill.TotalAmount {
			t.Errorf("expected amount %.2f, got %.2f", bill.TotalAmount, retrieved.TotalAmount)
		}
		if retrieved.Status != domain.StatusUploaded {
			t.Errorf("expected status %s, got %s", domain.StatusUploaded, retrieved.Status)
		}
		if retrieved.Fingerprint != bill.Fingerprint {
			t.Errorf("expected fingerprint %s, got %s", bill.Fingerprint, retrieved.Fingerprint)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetBill(ctx, "tenant-002", "bill-001")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := repo.SaveBill(ctx, &domain.Bill{ID: "bill-x"}); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := repo.GetBill(ctx, "", "bill-001"); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("UpdateStatusAndScore", func(t *testing.T) {
		if err := repo.UpdateBillStatus(ctx, tenantID, "bill-001", domain.StatusAnalysed); err != nil {
			t.Fatalf("UpdateBillStatus failed: %v", err)
		}
		if err := repo.UpdateBillScore(ctx, tenantID, "bill-001", 42.5, "invoice total differs from line item sum by 300.00"); err != nil {
			t.Fatalf("UpdateBillScore failed: %v", err)
		}

		bill, err := repo.GetBill(ctx, tenantID, "bill-001")
		if err != nil {
			t.Fatalf("GetBill failed: %v", err)
		}
		if bill.Status != domain.StatusAnalysed {
			t.Errorf("expected status analysed, got %s", bill.Status)
		}
		if bill.FraudScore != 42.5 {
			t.Errorf("expected score 42.5, got %v", bill.FraudScore)
		}
		if bill.FraudReasons == "" {
			t.Error("expected stored reasons")
		}

		if err := repo.UpdateBillStatus(ctx, tenantID, "nonexistent", domain.StatusApproved); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("LineItemsRoundTrip", func(t *testing.T) {
		items := []domain.LineItem{
			{Description: "Cement bags", Quantity: ptr(50), UnitRate: ptr(350), LineTotal: ptr(17500)},
			{Description: "Labour", Quantity: nil, UnitRate: nil, LineTotal: ptr(5000)},
		}

		if err := repo.SaveLineItems(ctx, "bill-001", items); err != nil {
			t.Fatalf("SaveLineItems failed: %v", err)
		}

		got, err := repo.GetLineItems(ctx, "bill-001")
		if err != nil {
			t.Fatalf("GetLineItems failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 items, got %d", len(got))
		}
		if got[0].Description != "Cement bags" || *got[0].Quantity != 50 {
			t.Errorf("unexpected first item: %+v", got[0])
		}
		if got[1].Quantity != nil {
			t.Errorf("missing quantity must stay nil, got %v", *got[1].Quantity)
		}

		// Saving again replaces, not appends.
		if err := repo.SaveLineItems(ctx, "bill-001", items[:1]); err != nil {
			t.Fatalf("SaveLineItems failed: %v", err)
		}
		got, _ = repo.GetLineItems(ctx, "bill-001")
		if len(got) != 1 {
			t.Errorf("expected 1 item after resave, got %d", len(got))
		}
	})

	t.Run("RecentBillsExcludeSelf", func(t *testing.T) {
		if err := repo.SaveBill(ctx, sampleBill("bill-002", "Acme Cement", 22000)); err != nil {
			t.Fatalf("SaveBill failed: %v", err)
		}

		since := time.Now().Add(-time.Hour)
		recent, err := repo.GetRecentBills(ctx, tenantID, "Acme Cement", "project-001", since, "bill-002")
		if err != nil {
			t.Fatalf("GetRecentBills failed: %v", err)
		}
		if len(recent) != 1 || recent[0].ID != "bill-001" {
			t.Errorf("expected only bill-001, got %+v", recent)
		}

		// Other vendors and projects never match.
		recent, _ = repo.GetRecentBills(ctx, tenantID, "Other Vendor", "project-001", since, "")
		if len(recent) != 0 {
			t.Errorf("expected no bills for another vendor, got %d", len(recent))
		}
	})

	t.Run("FindByFingerprint", func(t *testing.T) {
		found, err := repo.FindByFingerprint(ctx, tenantID, "fp-bill-001", "project-001")
		if err != nil {
			t.Fatalf("FindByFingerprint failed: %v", err)
		}
		if found.ID != "bill-001" {
			t.Errorf("expected bill-001, got %s", found.ID)
		}

		_, err = repo.FindByFingerprint(ctx, tenantID, "fp-unknown", "project-001")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("RejectedCount", func(t *testing.T) {
		rejected := sampleBill("bill-003", "Acme Cement", 9000)
		rejected.Status = domain.StatusRejected
		if err := repo.SaveBill(ctx, rejected); err != nil {
			t.Fatalf("SaveBill failed: %v", err)
		}

		n, err := repo.GetRejectedCount(ctx, tenantID, "Acme Cement")
		if err != nil {
			t.Fatalf("GetRejectedCount failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 rejected bill, got %d", n)
		}
	})

	t.Run("VendorStats", func(t *testing.T) {
		since := time.Now().Add(-time.Hour)
		stats, err := repo.GetVendorStats(ctx, tenantID, "Acme Cement", since)
		if err != nil {
			t.Fatalf("GetVendorStats failed: %v", err)
		}
		if stats.BillCount != 3 {
			t.Errorf("expected 3 bills, got %d", stats.BillCount)
		}
		if stats.MaxAmount != 22500 || stats.MinAmount != 9000 {
			t.Errorf("unexpected min/max: %+v", stats)
		}

		// Unknown vendors aggregate to zero, not an error.
		stats, err = repo.GetVendorStats(ctx, tenantID, "Nobody", since)
		if err != nil {
			t.Fatalf("GetVendorStats failed: %v", err)
		}
		if stats.BillCount != 0 {
			t.Errorf("expected 0 bills, got %d", stats.BillCount)
		}
	})

	t.Run("BudgetUpsert", func(t *testing.T) {
		budget := &domain.Budget{ProjectID: "project-001", TotalAmount: 500000, Materials: 300000}
		if err := repo.SaveBudget(ctx, budget); err != nil {
			t.Fatalf("SaveBudget failed: %v", err)
		}

		budget.TotalAmount = 600000
		if err := repo.SaveBudget(ctx, budget); err != nil {
			t.Fatalf("SaveBudget upsert failed: %v", err)
		}

		got, err := repo.GetBudget(ctx, "project-001")
		if err != nil {
			t.Fatalf("GetBudget failed: %v", err)
		}
		if got.TotalAmount != 600000 {
			t.Errorf("expected upserted total 600000, got %v", got.TotalAmount)
		}

		_, err = repo.GetBudget(ctx, "no-such-project")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("ProjectRollup", func(t *testing.T) {
		if err := repo.UpdateBillStatus(ctx, tenantID, "bill-001", domain.StatusApproved); err != nil {
			t.Fatalf("UpdateBillStatus failed: %v", err)
		}

		projects, err := repo.ListProjects(ctx)
		if err != nil {
			t.Fatalf("ListProjects failed: %v", err)
		}
		if len(projects) != 1 {
			t.Fatalf("expected 1 project, got %d", len(projects))
		}

		p := projects[0]
		if p.ProjectID != "project-001" {
			t.Errorf("unexpected project %s", p.ProjectID)
		}
		if p.TotalBudget != 600000 {
			t.Errorf("expected budget 600000, got %v", p.TotalBudget)
		}
		if p.Spent != 22500 { // only the approved bill counts
			t.Errorf("expected spent 22500, got %v", p.Spent)
		}
		if p.TotalBills != 3 {
			t.Errorf("expected 3 bills, got %d", p.TotalBills)
		}
		if p.PendingBills != 1 { // bill-002 is still uploaded
			t.Errorf("expected 1 pending bill, got %d", p.PendingBills)
		}

		spent, err := repo.GetProjectSpending(ctx, "project-001")
		if err != nil {
			t.Fatalf("GetProjectSpending failed: %v", err)
		}
		if spent != 22500 {
			t.Errorf("expected spending 22500, got %v", spent)
		}
	})

	t.Run("ScreeningRules", func(t *testing.T) {
		one := 1.0
		rule := &domain.ScreeningRule{
			ID:         "round-amount-001",
			Name:       "Round Amount",
			Version:    "1.0",
			Expression: "amount % 10000.0 == 0.0",
			Bands: []domain.ScreeningBand{
				{LowerLimit: &one, Outcome: domain.ScreeningFlag, Score: 10, Reason: "round-figure amount"},
			},
			Enabled: true,
		}

		if err := repo.SaveScreeningRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveScreeningRule failed: %v", err)
		}

		rules, err := repo.ListScreeningRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListScreeningRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected 1 rule, got %d", len(rules))
		}
		if rules[0].Expression != rule.Expression {
			t.Errorf("expression did not round-trip: %q", rules[0].Expression)
		}
		if len(rules[0].Bands) != 1 || rules[0].Bands[0].Score != 10 {
			t.Errorf("bands did not round-trip: %+v", rules[0].Bands)
		}

		// Disabled rules are invisible to the engine's loader.
		rule.Enabled = false
		if err := repo.SaveScreeningRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveScreeningRule failed: %v", err)
		}
		rules, _ = repo.ListScreeningRules(ctx, tenantID)
		if len(rules) != 0 {
			t.Errorf("expected 0 enabled rules, got %d", len(rules))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetBill(ctx, tenantID, "nonexistent")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
