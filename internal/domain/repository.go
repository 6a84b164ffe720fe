package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// The scoring engine only uses the read-side queries (GetRecentBills,
// GetRejectedCount, FindByFingerprint, GetVendorStats); it never writes.
// GetRecentBills must exclude the bill currently being scored so a bill
// cannot appear as its own duplicate.
type Repository interface {
	// Bill operations
	SaveBill(ctx context.Context, bill *Bill) error
	GetBill(ctx context.Context, tenantID string, billID string) (*Bill, error)
	ListBills(ctx context.Context, tenantID string) ([]*Bill, error)
	ListBillsByProject(ctx context.Context, tenantID string, projectID string) ([]*Bill, error)
	UpdateBillStatus(ctx context.Context, tenantID string, billID string, status BillStatus) error
	UpdateBillScore(ctx context.Context, tenantID string, billID string, score float64, reasons string) error

	// Line items
	SaveLineItems(ctx context.Context, billID string, items []LineItem) error
	GetLineItems(ctx context.Context, billID string) ([]LineItem, error)

	// History queries consumed by the scoring engine (read-only)
	GetRecentBills(ctx context.Context, tenantID string, vendor string, projectID string, since time.Time, excludeBillID string) ([]*Bill, error)
	GetRejectedCount(ctx context.Context, tenantID string, vendor string) (int, error)
	FindByFingerprint(ctx context.Context, tenantID string, fingerprint string, projectID string) (*Bill, error)
	GetVendorStats(ctx context.Context, tenantID string, vendor string, since time.Time) (*VendorStats, error)

	// Budget operations
	SaveBudget(ctx context.Context, budget *Budget) error
	GetBudget(ctx context.Context, projectID string) (*Budget, error)
	ListProjects(ctx context.Context) ([]*ProjectSummary, error)
	GetProjectSpending(ctx context.Context, projectID string) (float64, error)

	// Screening rule configuration
	SaveScreeningRule(ctx context.Context, tenantID string, rule *ScreeningRule) error
	ListScreeningRules(ctx context.Context, tenantID string) ([]*ScreeningRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgresPort"`
	PostgresUser     string `json:"postgresUser" yaml:"postgresUser"`
	PostgresPassword string `json:"postgresPassword" yaml:"postgresPassword"`
	PostgresDB       string `json:"postgresDb" yaml:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}
