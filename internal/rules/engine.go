// Package rules provides the CEL-Go based screening rule engine: an optional
// signal lane of tenant-configured expressions over bill facts.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/buildledger/heron/internal/domain"
)

// Engine is the CEL-based screening rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.ScreeningRule
	Program cel.Program
}

// NewEngine creates a new screening rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment exposing bill facts to rule expressions.
	env, err := cel.NewEnv(
		cel.Variable("bill", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("vendor", cel.StringType),
		cel.Variable("project", cel.StringType),
		cel.Variable("line_count", cel.IntType),
		cel.Variable("sum_difference", cel.DoubleType),
		cel.Variable("tax_id_valid", cel.BoolType),
		cel.Variable("is_duplicate", cel.BoolType),
		cel.Variable("rejected_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.ScreeningRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.ScreeningRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ScreeningInput holds the bill facts exposed to rule expressions.
type ScreeningInput struct {
	TenantID      string
	BillID        string
	Vendor        string
	Project       string
	Amount        float64
	LineCount     int
	SumDifference float64
	TaxIDValid    bool
	IsDuplicate   bool
	RejectedCount int
}

// EvaluateAll evaluates all loaded rules in parallel.
func (e *Engine) EvaluateAll(ctx context.Context, input *ScreeningInput) ([]domain.ScreeningResult, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	// Map iteration order is randomized; result order is part of the report
	// contract, so fix it by rule id before fanning out.
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Config.ID < rules[j].Config.ID
	})

	activation := map[string]any{
		"bill": map[string]any{
			"id":      input.BillID,
			"vendor":  input.Vendor,
			"project": input.Project,
			"amount":  input.Amount,
		},
		"amount":         input.Amount,
		"vendor":         input.Vendor,
		"project":        input.Project,
		"line_count":     int64(input.LineCount),
		"sum_difference": input.SumDifference,
		"tax_id_valid":   input.TaxIDValid,
		"is_duplicate":   input.IsDuplicate,
		"rejected_count": int64(input.RejectedCount),
	}

	// Parallel evaluation using worker pool pattern
	results := make([]domain.ScreeningResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(ctx, r, activation, input)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(ctx context.Context, rule *CompiledRule, activation map[string]any, input *ScreeningInput) domain.ScreeningResult {
	start := time.Now()

	result := domain.ScreeningResult{
		RuleID:   rule.Config.ID,
		TenantID: input.TenantID,
		BillID:   input.BillID,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Outcome = domain.ScreeningError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	value := toValue(out)
	result.Value = value

	result.Outcome, result.Score, result.Reason = matchBand(value, rule.Config.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// toValue converts a CEL value to a numeric result.
func toValue(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a value.
// Bands are evaluated in order; lower bound inclusive, upper exclusive,
// a nil upper bound means infinity.
func matchBand(value float64, bands []domain.ScreeningBand) (string, float64, string) {
	for _, band := range bands {
		lower := 0.0
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if value < lower {
			continue
		}
		if band.UpperLimit == nil || value < *band.UpperLimit {
			return band.Outcome, band.Score, band.Reason
		}
	}

	// Default to pass if no band matches
	return domain.ScreeningPass, 0, ""
}

// GetLoadedRules returns the configurations of all loaded rules.
func (e *Engine) GetLoadedRules() []*domain.ScreeningRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScreeningRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.ScreeningRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
