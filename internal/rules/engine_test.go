package rules

import (
	"context"
	"testing"

	"github.com/buildledger/heron/internal/domain"
)

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.ScreeningRule{
		ID:         "high-amount-001",
		Name:       "High Amount",
		Expression: "amount > 100000.0",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.ScreeningRule{
		ID:         "invalid-rule",
		Expression: "this is not valid CEL !!!",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestEvaluateAllOrderIsStable(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	one := 1.0
	// Loaded out of id order; results must still come back sorted by id,
	// run after run, regardless of map iteration or completion order.
	for _, id := range []string{"r2", "r0", "r4", "r1", "r3"} {
		if err := engine.LoadRule(&domain.ScreeningRule{
			ID:         id,
			Expression: "amount > 0.0",
			Bands: []domain.ScreeningBand{
				{LowerLimit: &one, Outcome: domain.ScreeningFlag, Score: 5, Reason: "fired " + id},
			},
			Enabled: true,
		}); err != nil {
			t.Fatalf("failed to load rule %s: %v", id, err)
		}
	}

	ctx := context.Background()
	input := &ScreeningInput{TenantID: "t1", BillID: "b1", Amount: 500}

	for run := 0; run < 50; run++ {
		results, err := engine.EvaluateAll(ctx, input)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if len(results) != 5 {
			t.Fatalf("expected 5 results, got %d", len(results))
		}
		for i, r := range results {
			want := "r" + string(rune('0'+i))
			if r.RuleID != want {
				t.Fatalf("run %d: results[%d].RuleID = %s, want %s", run, i, r.RuleID, want)
			}
		}
	}
}

func TestEvaluateBandedRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	one := 1.0
	rule := &domain.ScreeningRule{
		ID:         "round-amount-001",
		Name:       "Suspiciously Round Amount",
		Expression: "amount >= 100000.0 && amount % 10000.0 == 0.0 ? 1.0 : 0.0",
		Bands: []domain.ScreeningBand{
			{UpperLimit: &one, Outcome: domain.ScreeningPass},
			{LowerLimit: &one, Outcome: domain.ScreeningFlag, Score: 10, Reason: "large round-figure amount"},
		},
		Enabled: true,
	}
	engine.LoadRule(rule)

	ctx := context.Background()

	input := &ScreeningInput{TenantID: "t1", BillID: "b1", Amount: 57300}
	results, err := engine.EvaluateAll(ctx, input)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if results[0].Outcome != domain.ScreeningPass || results[0].Score != 0 {
		t.Errorf("expected pass with no score, got %+v", results[0])
	}

	input.Amount = 200000
	results, _ = engine.EvaluateAll(ctx, input)
	if results[0].Outcome != domain.ScreeningFlag {
		t.Errorf("expected flag, got %s", results[0].Outcome)
	}
	if results[0].Score != 10 {
		t.Errorf("expected band score 10, got %v", results[0].Score)
	}
	if results[0].Reason != "large round-figure amount" {
		t.Errorf("unexpected reason %q", results[0].Reason)
	}
}

func TestEvaluateBooleanFacts(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	one := 1.0
	rule := &domain.ScreeningRule{
		ID:         "dup-no-taxid-001",
		Expression: "is_duplicate && !tax_id_valid",
		Bands: []domain.ScreeningBand{
			{LowerLimit: &one, Outcome: domain.ScreeningFlag, Score: 15, Reason: "duplicate without tax identifier"},
		},
		Enabled: true,
	}
	engine.LoadRule(rule)

	results, _ := engine.EvaluateAll(context.Background(), &ScreeningInput{
		TenantID: "t1", BillID: "b1", IsDuplicate: true, TaxIDValid: false,
	})
	if results[0].Score != 15 {
		t.Errorf("expected 15, got %v", results[0].Score)
	}

	results, _ = engine.EvaluateAll(context.Background(), &ScreeningInput{
		TenantID: "t1", BillID: "b1", IsDuplicate: true, TaxIDValid: true,
	})
	if results[0].Score != 0 {
		t.Errorf("expected 0, got %v", results[0].Score)
	}
}

func TestEvaluationErrorDoesNotAbort(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.ScreeningRule{
		ID:         "div-zero-001",
		Expression: "amount / (amount - amount) > 1.0",
		Enabled:    true,
	}
	engine.LoadRule(rule)

	results, err := engine.EvaluateAll(context.Background(), &ScreeningInput{TenantID: "t1", BillID: "b1", Amount: 100})
	if err != nil {
		t.Fatalf("EvaluateAll must not fail on a rule error: %v", err)
	}
	if results[0].Outcome != domain.ScreeningError {
		t.Errorf("expected error outcome, got %s", results[0].Outcome)
	}
	if results[0].Score != 0 {
		t.Errorf("errored rule must not score, got %v", results[0].Score)
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.ScreeningRule{ID: "a", Expression: "amount > 1.0", Enabled: true})
	engine.LoadRule(&domain.ScreeningRule{ID: "b", Expression: "amount > 2.0", Enabled: true})

	err := engine.ReloadRules([]*domain.ScreeningRule{
		{ID: "c", Expression: "line_count == 0", Enabled: true},
		{ID: "d", Expression: "amount > 3.0", Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule after reload, got %d", engine.RulesCount())
	}
}
