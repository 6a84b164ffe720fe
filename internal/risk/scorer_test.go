package risk

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/buildledger/heron/internal/domain"
	"github.com/buildledger/heron/internal/history"
)

type fakeRepo struct {
	domain.Repository
	rejected int
	stats    *domain.VendorStats
	statsErr error
}

func (f *fakeRepo) GetRejectedCount(ctx context.Context, tenantID, vendor string) (int, error) {
	return f.rejected, nil
}

func (f *fakeRepo) GetVendorStats(ctx context.Context, tenantID, vendor string, since time.Time) (*domain.VendorStats, error) {
	return f.stats, f.statsErr
}

type fakeVendorClient struct {
	profile *domain.VendorRiskProfile
	err     error
}

func (f *fakeVendorClient) VendorRisk(ctx context.Context, tenantID, vendor, projectID string) (*domain.VendorRiskProfile, error) {
	return f.profile, f.err
}

type fakeAnomalyClient struct {
	result *domain.AnomalyResult
	err    error
}

func (f *fakeAnomalyClient) Score(ctx context.Context, pairs []domain.PricePair) (*domain.AnomalyResult, error) {
	return f.result, f.err
}

func bill() *domain.Bill {
	return &domain.Bill{ID: "b1", TenantID: "t1", Project: "p1", VendorName: "Acme Cement", TotalAmount: 10000}
}

func TestRejectedBillsPenalty(t *testing.T) {
	tests := []struct {
		rejected int
		want     float64
	}{
		{0, 0},
		{2, 0},         // at the floor, not above it
		{3, 11},        // 5 + 2*3
		{4, 13},        //
		{10, 15},       // capped
	}

	for _, tt := range tests {
		repo := &fakeRepo{rejected: tt.rejected}
		s := NewScorer(history.NewService(repo, nil), nil, nil, domain.DefaultScoring())
		finding := s.VendorFinding(context.Background(), bill())
		if finding.Score != tt.want {
			t.Errorf("rejected=%d: score = %v, want %v", tt.rejected, finding.Score, tt.want)
		}
		if tt.want > 0 && len(finding.Reasons) == 0 {
			t.Errorf("rejected=%d: expected a reason", tt.rejected)
		}
	}
}

func TestAmountAnomalyAboveAverage(t *testing.T) {
	// Average 4000 over 5 bills; current amount 10000 is 150% above.
	repo := &fakeRepo{stats: &domain.VendorStats{BillCount: 5, AvgAmount: 4000}}
	s := NewScorer(history.NewService(repo, nil), nil, nil, domain.DefaultScoring())

	finding := s.VendorFinding(context.Background(), bill())
	want := math.Min(20, 10+150.0/50)
	if finding.Score != want {
		t.Errorf("score = %v, want %v", finding.Score, want)
	}
}

func TestTooLittleHistoryIsNeutral(t *testing.T) {
	repo := &fakeRepo{stats: &domain.VendorStats{BillCount: 2, AvgAmount: 100}}
	s := NewScorer(history.NewService(repo, nil), nil, nil, domain.DefaultScoring())

	finding := s.VendorFinding(context.Background(), bill())
	if finding.Score != 0 {
		t.Errorf("fewer than 3 prior bills must be neutral, got %v", finding.Score)
	}
}

func TestStatsLookupFailureDegradesToNeutral(t *testing.T) {
	repo := &fakeRepo{statsErr: errors.New("db down")}
	s := NewScorer(history.NewService(repo, nil), nil, nil, domain.DefaultScoring())

	finding := s.VendorFinding(context.Background(), bill())
	if finding.Score != 0 {
		t.Errorf("history failure must not penalize, got %v", finding.Score)
	}
}

func invoiceWithItems() *domain.ExtractedInvoice {
	return &domain.ExtractedInvoice{
		LineItems: []domain.ExtractedLineItem{
			{Quantity: 50.0, UnitRate: 350.0, LineTotal: 17500.0},
			{Quantity: 5.0, UnitRate: 1000.0, LineTotal: 5000.0},
		},
	}
}

func TestMLFusionFormula(t *testing.T) {
	vendor := &fakeVendorClient{profile: &domain.VendorRiskProfile{VendorRiskScore: 0.25}}
	anomaly := &fakeAnomalyClient{result: &domain.AnomalyResult{Mean: 0.4, ModelTrained: true}}
	s := NewScorer(history.NewService(&fakeRepo{}, nil), vendor, anomaly, domain.DefaultScoring())

	finding := s.MLFinding(context.Background(), bill(), invoiceWithItems())

	fused := math.Min(1.0, 0.25*0.6+0.4*0.9)
	want := fused * 20
	if math.Abs(finding.Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", finding.Score, want)
	}
	if len(finding.Reasons) == 0 {
		t.Error("a positive fused score must carry a reason")
	}
}

func TestMLFusionIsCappedAtOne(t *testing.T) {
	vendor := &fakeVendorClient{profile: &domain.VendorRiskProfile{VendorRiskScore: 1.0}}
	anomaly := &fakeAnomalyClient{result: &domain.AnomalyResult{Mean: 1.0, ModelTrained: true}}
	s := NewScorer(history.NewService(&fakeRepo{}, nil), vendor, anomaly, domain.DefaultScoring())

	finding := s.MLFinding(context.Background(), bill(), invoiceWithItems())
	if finding.Score != 20 {
		t.Errorf("fused score must cap at 1.0 before weighting, got %v", finding.Score)
	}
}

func TestUntrainedModelIsNeutralWithMarker(t *testing.T) {
	anomaly := &fakeAnomalyClient{result: &domain.AnomalyResult{ModelTrained: false}}
	s := NewScorer(history.NewService(&fakeRepo{}, nil), nil, anomaly, domain.DefaultScoring())

	finding := s.MLFinding(context.Background(), bill(), invoiceWithItems())
	if finding.Score != 0 {
		t.Errorf("untrained model must contribute no score, got %v", finding.Score)
	}
	if finding.Details["model"] != "model-not-trained" {
		t.Errorf("expected the model-not-trained marker, got %v", finding.Details)
	}
}

func TestCollaboratorFailureIsNeutral(t *testing.T) {
	vendor := &fakeVendorClient{err: errors.New("timeout")}
	anomaly := &fakeAnomalyClient{err: errors.New("timeout")}
	s := NewScorer(history.NewService(&fakeRepo{}, nil), vendor, anomaly, domain.DefaultScoring())

	finding := s.MLFinding(context.Background(), bill(), invoiceWithItems())
	if finding.Score != 0 {
		t.Errorf("collaborator failures must degrade to neutral, got %v", finding.Score)
	}
}

func TestPricePairsSkipIncompleteItems(t *testing.T) {
	inv := &domain.ExtractedInvoice{
		LineItems: []domain.ExtractedLineItem{
			{Quantity: 10.0, UnitRate: 100.0},
			{Quantity: nil, UnitRate: 100.0},
			{Quantity: "5", UnitRate: "₹1,000"},
		},
	}
	pairs := PricePairs(inv)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[1].Price != 1000 || pairs[1].Quantity != 5 {
		t.Errorf("unexpected normalized pair: %+v", pairs[1])
	}
}
