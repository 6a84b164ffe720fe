// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/buildledger/heron/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const billColumns = `id, tenant_id, project_id, vendor_name, total_amount,
	   status, fraud_score, fraud_reasons, fingerprint, created_at, updated_at`

// SaveBill stores a bill with tenant isolation.
func (r *SQLRepository) SaveBill(ctx context.Context, bill *domain.Bill) error {
	if bill.TenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if bill.ID == "" {
		return fmt.Errorf("%w: bill ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO bills (
			id, tenant_id, project_id, vendor_name, total_amount,
			status, fraud_score, fraud_reasons, fingerprint, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		bill.ID, bill.TenantID, bill.Project,
		bill.VendorName, bill.TotalAmount,
		bill.Status, bill.FraudScore, bill.FraudReasons,
		bill.Fingerprint, bill.CreatedAt, bill.UpdatedAt,
	)
	return err
}

// GetBill retrieves a bill by ID with tenant isolation.
func (r *SQLRepository) GetBill(ctx context.Context, tenantID string, billID string) (*domain.Bill, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + billColumns + ` FROM bills WHERE tenant_id = ? AND id = ?`

	bill, err := scanBill(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, billID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return bill, err
}

// ListBills retrieves all bills for a tenant, newest first.
func (r *SQLRepository) ListBills(ctx context.Context, tenantID string) ([]*domain.Bill, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + billColumns + ` FROM bills WHERE tenant_id = ? ORDER BY created_at DESC`
	return r.queryBills(ctx, query, tenantID)
}

// ListBillsByProject retrieves the tenant's bills in one project, newest first.
func (r *SQLRepository) ListBillsByProject(ctx context.Context, tenantID string, projectID string) ([]*domain.Bill, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + billColumns + ` FROM bills
		WHERE tenant_id = ? AND project_id = ?
		ORDER BY created_at DESC`
	return r.queryBills(ctx, query, tenantID, projectID)
}

// UpdateBillStatus updates a bill's lifecycle status.
func (r *SQLRepository) UpdateBillStatus(ctx context.Context, tenantID string, billID string, status domain.BillStatus) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE bills SET status = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), status, time.Now().UTC(), tenantID, billID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// UpdateBillScore records the outcome of a scoring run on the bill.
func (r *SQLRepository) UpdateBillScore(ctx context.Context, tenantID string, billID string, score float64, reasons string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE bills SET fraud_score = ?, fraud_reasons = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), score, reasons, time.Now().UTC(), tenantID, billID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SaveLineItems replaces the stored line items for a bill.
func (r *SQLRepository) SaveLineItems(ctx context.Context, billID string, items []domain.LineItem) error {
	if billID == "" {
		return fmt.Errorf("%w: billID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM bill_line_items WHERE bill_id = ?`), billID); err != nil {
		return err
	}

	insert := r.rebind(`
		INSERT INTO bill_line_items (bill_id, position, description, quantity, unit_rate, line_total)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	for i, item := range items {
		if _, err := tx.ExecContext(ctx, insert,
			billID, i, item.Description,
			nullFloat(item.Quantity), nullFloat(item.UnitRate), nullFloat(item.LineTotal),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetLineItems retrieves a bill's line items in stored order.
func (r *SQLRepository) GetLineItems(ctx context.Context, billID string) ([]domain.LineItem, error) {
	query := `
		SELECT bill_id, description, quantity, unit_rate, line_total
		FROM bill_line_items
		WHERE bill_id = ?
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.LineItem
	for rows.Next() {
		var item domain.LineItem
		var qty, rate, total sql.NullFloat64

		if err := rows.Scan(&item.BillID, &item.Description, &qty, &rate, &total); err != nil {
			return nil, err
		}
		item.Quantity = floatPtr(qty)
		item.UnitRate = floatPtr(rate)
		item.LineTotal = floatPtr(total)
		items = append(items, item)
	}

	return items, rows.Err()
}

// GetRecentBills retrieves a vendor's bills in a project since the given time,
// excluding the bill currently being scored so a bill never matches itself.
func (r *SQLRepository) GetRecentBills(ctx context.Context, tenantID string, vendor string, projectID string, since time.Time, excludeBillID string) ([]*domain.Bill, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + billColumns + ` FROM bills
		WHERE tenant_id = ?
		  AND vendor_name = ?
		  AND project_id = ?
		  AND created_at >= ?
		  AND id != ?
		ORDER BY created_at DESC`

	return r.queryBills(ctx, query, tenantID, vendor, projectID, since, excludeBillID)
}

// GetRejectedCount counts the vendor's rejected bills for the tenant.
func (r *SQLRepository) GetRejectedCount(ctx context.Context, tenantID string, vendor string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT COUNT(*) FROM bills
		WHERE tenant_id = ? AND vendor_name = ? AND status = ?`

	var n int
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, vendor, domain.StatusRejected).Scan(&n)
	return n, err
}

// FindByFingerprint returns the earliest bill in the project with identical
// document content, or ErrNotFound.
func (r *SQLRepository) FindByFingerprint(ctx context.Context, tenantID string, fingerprint string, projectID string) (*domain.Bill, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if fingerprint == "" {
		return nil, fmt.Errorf("%w: fingerprint is required", ErrInvalidInput)
	}

	query := `SELECT ` + billColumns + ` FROM bills
		WHERE tenant_id = ? AND fingerprint = ? AND project_id = ?
		ORDER BY created_at ASC
		LIMIT 1`

	bill, err := scanBill(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, fingerprint, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return bill, err
}

// GetVendorStats aggregates the vendor's bill amounts since the given time.
func (r *SQLRepository) GetVendorStats(ctx context.Context, tenantID string, vendor string, since time.Time) (*domain.VendorStats, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*),
		       COALESCE(AVG(total_amount), 0),
		       COALESCE(MAX(total_amount), 0),
		       COALESCE(MIN(total_amount), 0)
		FROM bills
		WHERE tenant_id = ? AND vendor_name = ? AND created_at >= ?
	`

	var stats domain.VendorStats
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, vendor, since).Scan(
		&stats.BillCount, &stats.AvgAmount, &stats.MaxAmount, &stats.MinAmount,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// SaveBudget upserts the planned spend for a project.
func (r *SQLRepository) SaveBudget(ctx context.Context, budget *domain.Budget) error {
	if budget.ProjectID == "" {
		return fmt.Errorf("%w: projectID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO budgets (
			project_id, total_amount, materials, labor, equipment, contingency, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			total_amount = excluded.total_amount,
			materials = excluded.materials,
			labor = excluded.labor,
			equipment = excluded.equipment,
			contingency = excluded.contingency,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		budget.ProjectID, budget.TotalAmount,
		budget.Materials, budget.Labor, budget.Equipment, budget.Contingency,
		now, now,
	)
	return err
}

// GetBudget retrieves a project's budget.
func (r *SQLRepository) GetBudget(ctx context.Context, projectID string) (*domain.Budget, error) {
	query := `
		SELECT project_id, total_amount, materials, labor, equipment, contingency, created_at, updated_at
		FROM budgets
		WHERE project_id = ?
	`

	var b domain.Budget
	err := r.db.QueryRowContext(ctx, r.rebind(query), projectID).Scan(
		&b.ProjectID, &b.TotalAmount,
		&b.Materials, &b.Labor, &b.Equipment, &b.Contingency,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListProjects returns a budget/spend rollup per project. Projects are the
// union of budgeted projects and projects that have bills; spend counts
// approved bills only.
func (r *SQLRepository) ListProjects(ctx context.Context) ([]*domain.ProjectSummary, error) {
	summaries := map[string]*domain.ProjectSummary{}
	var order []string

	get := func(projectID string) *domain.ProjectSummary {
		if s, ok := summaries[projectID]; ok {
			return s
		}
		s := &domain.ProjectSummary{ProjectID: projectID}
		summaries[projectID] = s
		order = append(order, projectID)
		return s
	}

	budgets, err := r.db.QueryContext(ctx, `SELECT project_id, total_amount FROM budgets ORDER BY project_id`)
	if err != nil {
		return nil, err
	}
	defer budgets.Close()
	for budgets.Next() {
		var projectID string
		var total float64
		if err := budgets.Scan(&projectID, &total); err != nil {
			return nil, err
		}
		get(projectID).TotalBudget = total
	}
	if err := budgets.Err(); err != nil {
		return nil, err
	}

	bills, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT project_id,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN total_amount ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END), 0)
		FROM bills
		GROUP BY project_id
		ORDER BY project_id
	`), domain.StatusApproved, domain.StatusUploaded, domain.StatusAnalysed)
	if err != nil {
		return nil, err
	}
	defer bills.Close()
	for bills.Next() {
		var projectID string
		var total, pending int
		var spent float64
		if err := bills.Scan(&projectID, &total, &spent, &pending); err != nil {
			return nil, err
		}
		s := get(projectID)
		s.TotalBills = total
		s.Spent = spent
		s.PendingBills = pending
	}
	if err := bills.Err(); err != nil {
		return nil, err
	}

	result := make([]*domain.ProjectSummary, 0, len(order))
	for _, projectID := range order {
		result = append(result, summaries[projectID])
	}
	return result, nil
}

// GetProjectSpending sums the approved bill amounts for a project.
func (r *SQLRepository) GetProjectSpending(ctx context.Context, projectID string) (float64, error) {
	query := `SELECT COALESCE(SUM(total_amount), 0) FROM bills
		WHERE project_id = ? AND status = ?`

	var spent float64
	err := r.db.QueryRowContext(ctx, r.rebind(query), projectID, domain.StatusApproved).Scan(&spent)
	return spent, err
}

// SaveScreeningRule upserts a screening rule with tenant isolation.
func (r *SQLRepository) SaveScreeningRule(ctx context.Context, tenantID string, rule *domain.ScreeningRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screening_rules (
			id, tenant_id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), enabled,
		now, now,
	)
	return err
}

// ListScreeningRules retrieves all active screening rules for a tenant.
func (r *SQLRepository) ListScreeningRules(ctx context.Context, tenantID string) ([]*domain.ScreeningRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM screening_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreeningRule
	for rows.Next() {
		var rule domain.ScreeningRule
		var bands string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &bands, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &rule.Bands)
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (*domain.Bill, error) {
	var bill domain.Bill
	var reasons, fingerprint sql.NullString

	err := row.Scan(
		&bill.ID, &bill.TenantID, &bill.Project,
		&bill.VendorName, &bill.TotalAmount,
		&bill.Status, &bill.FraudScore, &reasons,
		&fingerprint, &bill.CreatedAt, &bill.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	bill.FraudReasons = reasons.String
	bill.Fingerprint = fingerprint.String
	return &bill, nil
}

func (r *SQLRepository) queryBills(ctx context.Context, query string, args ...any) ([]*domain.Bill, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []*domain.Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}

	return bills, rows.Err()
}

func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
