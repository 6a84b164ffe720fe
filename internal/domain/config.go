package domain

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete Heron configuration.
type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`

	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"eventBus"`

	// Collaborators are the external services consumed at scoring time.
	Collaborators CollaboratorConfig `json:"collaborators" yaml:"collaborators"`

	// Scoring holds every tolerance, weight and threshold used by the
	// validators and the aggregator. All values are overridable; none are
	// literals inside the engine.
	Scoring ScoringConfig `json:"scoring" yaml:"scoring"`

	// StorageDir is the root directory for uploaded documents and parsed
	// extraction payloads.
	StorageDir string `json:"storageDir" yaml:"storageDir"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"writeTimeout"` // seconds

	// MaxUploadBytes caps the accepted document size.
	MaxUploadBytes int64 `json:"maxUploadBytes" yaml:"maxUploadBytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
}

// ScoringConfig exposes the validator tolerances, per-signal weights and the
// recommendation thresholds. The defaults are the canonical pair from the
// bill-history scoring policy; the stricter {15,40} variant is reachable by
// overriding ApproveBelow/RejectAt.
type ScoringConfig struct {
	// Line-item math.
	ItemTolerance    float64 `json:"itemTolerance" yaml:"itemTolerance"`       // per-item |qty*rate - total|
	InvoiceTolerance float64 `json:"invoiceTolerance" yaml:"invoiceTolerance"` // |declared - sum|, inclusive

	HighDiscrepancyUnits   float64 `json:"highDiscrepancyUnits" yaml:"highDiscrepancyUnits"`
	MediumDiscrepancyUnits float64 `json:"mediumDiscrepancyUnits" yaml:"mediumDiscrepancyUnits"`
	HighDiscrepancyScore   float64 `json:"highDiscrepancyScore" yaml:"highDiscrepancyScore"`
	MediumDiscrepancyScore float64 `json:"mediumDiscrepancyScore" yaml:"mediumDiscrepancyScore"`
	ItemMismatchScore      float64 `json:"itemMismatchScore" yaml:"itemMismatchScore"`
	ItemMismatchCap        float64 `json:"itemMismatchCap" yaml:"itemMismatchCap"`
	NoLineItemsScore       float64 `json:"noLineItemsScore" yaml:"noLineItemsScore"`

	// Tax identifier.
	InvalidTaxIDScore float64 `json:"invalidTaxIdScore" yaml:"invalidTaxIdScore"`

	// Duplicate detection.
	ExactDuplicateScore float64       `json:"exactDuplicateScore" yaml:"exactDuplicateScore"`
	NearDuplicateScore  float64       `json:"nearDuplicateScore" yaml:"nearDuplicateScore"`
	NearDuplicateWindow time.Duration `json:"nearDuplicateWindow" yaml:"nearDuplicateWindow"`
	NearDuplicateRatio  float64       `json:"nearDuplicateRatio" yaml:"nearDuplicateRatio"` // relative amount tolerance

	// Vendor history.
	RejectedBillsFloor int           `json:"rejectedBillsFloor" yaml:"rejectedBillsFloor"` // penalize above this count
	AmountAnomalyRatio float64       `json:"amountAnomalyRatio" yaml:"amountAnomalyRatio"` // amount vs vendor average
	VendorStatsWindow  time.Duration `json:"vendorStatsWindow" yaml:"vendorStatsWindow"`

	// ML fusion lane: min(1, vendor_risk*VendorRiskFactor + mean_anomaly*AnomalyFactor) * MLWeight.
	VendorRiskFactor float64 `json:"vendorRiskFactor" yaml:"vendorRiskFactor"`
	AnomalyFactor    float64 `json:"anomalyFactor" yaml:"anomalyFactor"`
	MLWeight         float64 `json:"mlWeight" yaml:"mlWeight"`

	// Recommendation thresholds: score < ApproveBelow -> approve,
	// score < RejectAt -> review, otherwise reject. IsSuspicious is
	// score > ApproveBelow.
	ApproveBelow float64 `json:"approveBelow" yaml:"approveBelow"`
	RejectAt     float64 `json:"rejectAt" yaml:"rejectAt"`

	// Signal groups can be disabled independently. The deterministic
	// document validators and the history/ML lane were two separate
	// scoring policies historically; here they are configurable groups
	// feeding one aggregate.
	EnableDocumentChecks bool `json:"enableDocumentChecks" yaml:"enableDocumentChecks"`
	EnableHistoryChecks  bool `json:"enableHistoryChecks" yaml:"enableHistoryChecks"`
	EnableMLLane         bool `json:"enableMlLane" yaml:"enableMlLane"`
	EnableScreening      bool `json:"enableScreening" yaml:"enableScreening"`
}

// DefaultScoring returns the canonical scoring configuration.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		ItemTolerance:    0.5,
		InvoiceTolerance: 1.0,

		HighDiscrepancyUnits:   100,
		MediumDiscrepancyUnits: 10,
		HighDiscrepancyScore:   40,
		MediumDiscrepancyScore: 20,
		ItemMismatchScore:      5,
		ItemMismatchCap:        30,
		NoLineItemsScore:       10,

		InvalidTaxIDScore: 20,

		ExactDuplicateScore: 30,
		NearDuplicateScore:  25,
		NearDuplicateWindow: 7 * 24 * time.Hour,
		NearDuplicateRatio:  0.05,

		RejectedBillsFloor: 2,
		AmountAnomalyRatio: 1.5,
		VendorStatsWindow:  30 * 24 * time.Hour,

		VendorRiskFactor: 0.6,
		AnomalyFactor:    0.9,
		MLWeight:         20,

		ApproveBelow: 20,
		RejectAt:     50,

		EnableDocumentChecks: true,
		EnableHistoryChecks:  true,
		EnableMLLane:         true,
		EnableScreening:      true,
	}
}

// Validate fails fast on configuration that would make scoring ill-defined.
// Called once at startup, never per request.
func (s ScoringConfig) Validate() error {
	if s.ApproveBelow >= s.RejectAt {
		return fmt.Errorf("approve threshold %.2f must be below reject threshold %.2f", s.ApproveBelow, s.RejectAt)
	}
	if s.ApproveBelow < 0 || s.RejectAt > 100 {
		return fmt.Errorf("thresholds must lie within [0,100]")
	}
	for name, v := range map[string]float64{
		"itemTolerance":        s.ItemTolerance,
		"invoiceTolerance":     s.InvoiceTolerance,
		"highDiscrepancyScore": s.HighDiscrepancyScore,
		"itemMismatchScore":    s.ItemMismatchScore,
		"itemMismatchCap":      s.ItemMismatchCap,
		"invalidTaxIdScore":    s.InvalidTaxIDScore,
		"exactDuplicateScore":  s.ExactDuplicateScore,
		"nearDuplicateScore":   s.NearDuplicateScore,
		"mlWeight":             s.MLWeight,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if s.NearDuplicateRatio <= 0 || s.NearDuplicateRatio >= 1 {
		return fmt.Errorf("nearDuplicateRatio must lie in (0,1)")
	}
	return nil
}

// DefaultConfig returns the default single-node configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   30,
			MaxUploadBytes: 25 << 20,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./heron.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Collaborators: DefaultCollaborators(),
		Scoring:       DefaultScoring(),
		StorageDir:    "./storage",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "heron",
		},
	}
}

// LoadFile overlays a YAML configuration file onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
