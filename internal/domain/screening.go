package domain

// ScreeningRule defines a tenant-configurable screening rule evaluated by the
// CEL engine as an additional signal lane over bill facts.
type ScreeningRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is a CEL expression over bill facts (amount, vendor,
	// line_count, sum_difference, duplicate flags...). Must return bool,
	// int, or double.
	Expression string `json:"expression"`

	// Bands map the expression's numeric result to an outcome and a score
	// contribution in fraud-score units.
	Bands []ScreeningBand `json:"bands"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// ScreeningBand maps a result range to an outcome.
type ScreeningBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Outcome    string   `json:"outcome"` // ".pass", ".flag"
	Score      float64  `json:"score"`   // contribution when the band matches
	Reason     string   `json:"reason"`
}

// ScreeningResult is the output of one screening rule evaluation.
type ScreeningResult struct {
	RuleID    string  `json:"ruleId"`
	TenantID  string  `json:"tenantId"`
	BillID    string  `json:"billId"`
	Outcome   string  `json:"outcome"`
	Value     float64 `json:"value"` // raw expression result
	Score     float64 `json:"score"` // band contribution
	Reason    string  `json:"reason"`
	ProcessMs int64   `json:"processMs"`
}

// Predefined screening outcomes
const (
	ScreeningPass  = ".pass"
	ScreeningFlag  = ".flag"
	ScreeningError = ".err"
)
