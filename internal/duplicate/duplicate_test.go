package duplicate

import (
	"context"
	"testing"
	"time"

	"github.com/buildledger/heron/internal/domain"
	"github.com/buildledger/heron/internal/history"
)

// fakeRepo implements the history queries used by the detector; unimplemented
// Repository methods panic via the embedded nil interface.
type fakeRepo struct {
	domain.Repository
	recent      []*domain.Bill
	fingerprint *domain.Bill
}

func (f *fakeRepo) GetRecentBills(ctx context.Context, tenantID, vendor, projectID string, since time.Time, excludeBillID string) ([]*domain.Bill, error) {
	var out []*domain.Bill
	for _, b := range f.recent {
		if b.ID != excludeBillID && b.CreatedAt.After(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindByFingerprint(ctx context.Context, tenantID, fingerprint, projectID string) (*domain.Bill, error) {
	if f.fingerprint != nil && f.fingerprint.Fingerprint == fingerprint {
		return f.fingerprint, nil
	}
	return nil, nil
}

func newDetector(repo *fakeRepo) *Detector {
	return NewDetector(history.NewService(repo, nil), domain.DefaultScoring())
}

func TestFingerprintIsStable(t *testing.T) {
	a := Fingerprint([]byte("invoice body"))
	b := Fingerprint([]byte("invoice body"))
	if a != b {
		t.Error("same bytes must produce the same fingerprint")
	}
	if a == Fingerprint([]byte("different body")) {
		t.Error("different bytes must produce different fingerprints")
	}
}

func TestNearDuplicateWithinWindow(t *testing.T) {
	// Two bills, same vendor and project, amounts within 5%, 2 days apart.
	repo := &fakeRepo{
		recent: []*domain.Bill{
			{ID: "bill-1", VendorName: "Acme Cement", TotalAmount: 10200, CreatedAt: time.Now().Add(-48 * time.Hour)},
		},
	}

	bill := &domain.Bill{ID: "bill-2", TenantID: "t1", Project: "p1", VendorName: "Acme Cement", TotalAmount: 10000}
	finding := newDetector(repo).Check(context.Background(), bill)

	if finding.Score < 25 {
		t.Errorf("near-duplicate must contribute at least 25, got %v", finding.Score)
	}
	if len(finding.Reasons) == 0 {
		t.Error("expected a near-duplicate reason")
	}
}

func TestAmountOutsideToleranceIsNotDuplicate(t *testing.T) {
	repo := &fakeRepo{
		recent: []*domain.Bill{
			{ID: "bill-1", VendorName: "Acme Cement", TotalAmount: 20000, CreatedAt: time.Now().Add(-24 * time.Hour)},
		},
	}

	bill := &domain.Bill{ID: "bill-2", TenantID: "t1", Project: "p1", VendorName: "Acme Cement", TotalAmount: 10000}
	finding := newDetector(repo).Check(context.Background(), bill)

	if finding.Score != 0 {
		t.Errorf("amount 100%% apart must not fire, got %v", finding.Score)
	}
}

func TestBillOutsideWindowIsIgnored(t *testing.T) {
	repo := &fakeRepo{
		recent: []*domain.Bill{
			{ID: "bill-1", VendorName: "Acme Cement", TotalAmount: 10000, CreatedAt: time.Now().Add(-8 * 24 * time.Hour)},
		},
	}

	bill := &domain.Bill{ID: "bill-2", TenantID: "t1", Project: "p1", VendorName: "Acme Cement", TotalAmount: 10000}
	finding := newDetector(repo).Check(context.Background(), bill)

	if finding.Score != 0 {
		t.Errorf("bill older than the 7-day window must not fire, got %v", finding.Score)
	}
}

func TestExactContentDuplicate(t *testing.T) {
	fp := Fingerprint([]byte("the very same pdf"))
	repo := &fakeRepo{
		fingerprint: &domain.Bill{ID: "bill-original", Fingerprint: fp},
	}

	bill := &domain.Bill{ID: "bill-2", TenantID: "t1", Project: "p1", Fingerprint: fp}
	finding := newDetector(repo).Check(context.Background(), bill)

	if finding.Score != 30 {
		t.Errorf("exact duplicate must contribute 30, got %v", finding.Score)
	}
	if finding.Details["duplicate_of"] != "bill-original" {
		t.Errorf("reason must name the original bill, got %v", finding.Details)
	}
}

func TestBothSignalsAreAdditive(t *testing.T) {
	fp := Fingerprint([]byte("same pdf"))
	repo := &fakeRepo{
		fingerprint: &domain.Bill{ID: "bill-original", Fingerprint: fp},
		recent: []*domain.Bill{
			{ID: "bill-original", VendorName: "Acme Cement", TotalAmount: 10000, CreatedAt: time.Now().Add(-time.Hour)},
		},
	}

	bill := &domain.Bill{ID: "bill-2", TenantID: "t1", Project: "p1", VendorName: "Acme Cement", TotalAmount: 10000, Fingerprint: fp}
	finding := newDetector(repo).Check(context.Background(), bill)

	if finding.Score != 55 {
		t.Errorf("both signals must stack additively (30+25), got %v", finding.Score)
	}
	if len(finding.Reasons) != 2 {
		t.Errorf("expected both reasons, got %v", finding.Reasons)
	}
}

func TestScoredBillIsNotItsOwnDuplicate(t *testing.T) {
	now := time.Now()
	repo := &fakeRepo{
		recent: []*domain.Bill{
			{ID: "bill-2", VendorName: "Acme Cement", TotalAmount: 10000, CreatedAt: now},
		},
	}

	bill := &domain.Bill{ID: "bill-2", TenantID: "t1", Project: "p1", VendorName: "Acme Cement", TotalAmount: 10000}
	finding := newDetector(repo).Check(context.Background(), bill)

	if finding.Score != 0 {
		t.Errorf("a bill must not match itself, got %v", finding.Score)
	}
}
