package repository

// Schema definitions for the Heron database.
// Compatible with both SQLite and PostgreSQL.

const schemaBills = `
CREATE TABLE IF NOT EXISTS bills (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    vendor_name TEXT NOT NULL,
    total_amount REAL NOT NULL,
    status TEXT NOT NULL,
    fraud_score REAL NOT NULL DEFAULT 0,
    fraud_reasons TEXT,
    fingerprint TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bills_tenant ON bills(tenant_id);
CREATE INDEX IF NOT EXISTS idx_bills_project ON bills(tenant_id, project_id);
CREATE INDEX IF NOT EXISTS idx_bills_vendor ON bills(tenant_id, vendor_name, created_at);
CREATE INDEX IF NOT EXISTS idx_bills_fingerprint ON bills(tenant_id, fingerprint);
CREATE INDEX IF NOT EXISTS idx_bills_status ON bills(tenant_id, status);
`

const schemaLineItems = `
CREATE TABLE IF NOT EXISTS bill_line_items (
    bill_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    description TEXT,
    quantity REAL,
    unit_rate REAL,
    line_total REAL,
    PRIMARY KEY (bill_id, position)
);

CREATE INDEX IF NOT EXISTS idx_line_items_bill ON bill_line_items(bill_id);
`

const schemaBudgets = `
CREATE TABLE IF NOT EXISTS budgets (
    project_id TEXT PRIMARY KEY,
    total_amount REAL NOT NULL,
    materials REAL NOT NULL DEFAULT 0,
    labor REAL NOT NULL DEFAULT 0,
    equipment REAL NOT NULL DEFAULT 0,
    contingency REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaScreeningRules = `
CREATE TABLE IF NOT EXISTS screening_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_screening_rules_tenant ON screening_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_screening_rules_enabled ON screening_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaBills,
		schemaLineItems,
		schemaBudgets,
		schemaScreeningRules,
	}
}
