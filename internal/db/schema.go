package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// sqliteSchema is the full SQLite schema. Decimal columns are stored as TEXT so
// that prices and quantities round-trip without float conversion.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id              INTEGER PRIMARY KEY,
    organization_id INTEGER NOT NULL,
    name            TEXT NOT NULL,
    email           TEXT NOT NULL,
    password_hash   TEXT NOT NULL,
    role            TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);

CREATE TABLE IF NOT EXISTS categories (
    id              INTEGER PRIMARY KEY,
    organization_id INTEGER NOT NULL,
    name            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bar_stations (
    id              INTEGER PRIMARY KEY,
    organization_id INTEGER NOT NULL,
    name            TEXT NOT NULL,
    is_active       INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS products (
    id              INTEGER PRIMARY KEY,
    organization_id INTEGER NOT NULL,
    category_id     INTEGER REFERENCES categories(id),
    name            TEXT NOT NULL,
    base_price      TEXT NOT NULL,
    min_price       TEXT,
    max_price       TEXT,
    is_active       INTEGER NOT NULL DEFAULT 1,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_products_org_name ON products(organization_id, name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS inventory (
    id              INTEGER PRIMARY KEY,
    organization_id INTEGER NOT NULL,
    product_id      INTEGER NOT NULL REFERENCES products(id),
    quantity        TEXT NOT NULL,
    current_price   TEXT NOT NULL,
    version         INTEGER NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL,
    UNIQUE (organization_id, product_id)
);

CREATE TABLE IF NOT EXISTS inventory_transactions (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    inventory_id     INTEGER NOT NULL REFERENCES inventory(id),
    organization_id  INTEGER NOT NULL,
    transaction_type TEXT NOT NULL CHECK (transaction_type IN ('PURCHASE', 'SALE', 'ADJUSTMENT', 'INITIAL')),
    quantity_change  TEXT NOT NULL,
    quantity_before  TEXT NOT NULL,
    quantity_after   TEXT NOT NULL,
    price_before     TEXT NOT NULL,
    price_after      TEXT NOT NULL,
    reference_id     TEXT,
    notes            TEXT,
    created_by       INTEGER REFERENCES users(id),
    bar_station_id   INTEGER REFERENCES bar_stations(id),
    created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_inv_tx_inventory ON inventory_transactions(inventory_id, created_at);
CREATE INDEX IF NOT EXISTS idx_inv_tx_org_created ON inventory_transactions(organization_id, created_at);
CREATE INDEX IF NOT EXISTS idx_inv_tx_reference ON inventory_transactions(reference_id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// mysqlSchema mirrors sqliteSchema for MySQL 8.
const mysqlSchema = `
CREATE TABLE IF NOT EXISTS users (
    id              BIGINT AUTO_INCREMENT PRIMARY KEY,
    organization_id BIGINT NOT NULL,
    name            VARCHAR(255) NOT NULL,
    email           VARCHAR(255) NOT NULL,
    password_hash   VARCHAR(255) NOT NULL,
    role            VARCHAR(16) NOT NULL DEFAULT 'user',
    created_at      DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    UNIQUE KEY idx_users_email (email)
);

CREATE TABLE IF NOT EXISTS categories (
    id              BIGINT AUTO_INCREMENT PRIMARY KEY,
    organization_id BIGINT NOT NULL,
    name            VARCHAR(255) NOT NULL
);

CREATE TABLE IF NOT EXISTS bar_stations (
    id              BIGINT AUTO_INCREMENT PRIMARY KEY,
    organization_id BIGINT NOT NULL,
    name            VARCHAR(255) NOT NULL,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS products (
    id              BIGINT AUTO_INCREMENT PRIMARY KEY,
    organization_id BIGINT NOT NULL,
    category_id     BIGINT NULL,
    name            VARCHAR(120) NOT NULL,
    base_price      DECIMAL(19,4) NOT NULL,
    min_price       DECIMAL(19,4) NULL,
    max_price       DECIMAL(19,4) NULL,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    created_at      DATETIME(6) NOT NULL,
    updated_at      DATETIME(6) NOT NULL,
    UNIQUE KEY idx_products_org_name (organization_id, name),
    FOREIGN KEY (category_id) REFERENCES categories(id)
);

CREATE TABLE IF NOT EXISTS inventory (
    id              BIGINT AUTO_INCREMENT PRIMARY KEY,
    organization_id BIGINT NOT NULL,
    product_id      BIGINT NOT NULL,
    quantity        DECIMAL(19,4) NOT NULL,
    current_price   DECIMAL(19,4) NOT NULL,
    version         BIGINT NOT NULL DEFAULT 0,
    created_at      DATETIME(6) NOT NULL,
    updated_at      DATETIME(6) NOT NULL,
    UNIQUE KEY idx_inventory_org_product (organization_id, product_id),
    FOREIGN KEY (product_id) REFERENCES products(id)
);

CREATE TABLE IF NOT EXISTS inventory_transactions (
    id               BIGINT AUTO_INCREMENT PRIMARY KEY,
    inventory_id     BIGINT NOT NULL,
    organization_id  BIGINT NOT NULL,
    transaction_type VARCHAR(20) NOT NULL,
    quantity_change  DECIMAL(19,4) NOT NULL,
    quantity_before  DECIMAL(19,4) NOT NULL,
    quantity_after   DECIMAL(19,4) NOT NULL,
    price_before     DECIMAL(19,4) NOT NULL,
    price_after      DECIMAL(19,4) NOT NULL,
    reference_id     VARCHAR(100) NULL,
    notes            VARCHAR(500) NULL,
    created_by       BIGINT NULL,
    bar_station_id   BIGINT NULL,
    created_at       DATETIME(6) NOT NULL,
    INDEX idx_inv_tx_inventory (inventory_id, created_at),
    INDEX idx_inv_tx_org_created (organization_id, created_at),
    INDEX idx_inv_tx_reference (reference_id),
    FOREIGN KEY (inventory_id) REFERENCES inventory(id)
);

CREATE TABLE IF NOT EXISTS settings (
    ` + "`key`" + ` VARCHAR(64) PRIMARY KEY,
    value VARCHAR(255) NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        VARCHAR(64) PRIMARY KEY,
    expires_at DATETIME(6) NOT NULL
);
`

// postgresSchema mirrors sqliteSchema for PostgreSQL.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id              BIGSERIAL PRIMARY KEY,
    organization_id BIGINT NOT NULL,
    name            TEXT NOT NULL,
    email           TEXT NOT NULL UNIQUE,
    password_hash   TEXT NOT NULL,
    role            TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS categories (
    id              BIGSERIAL PRIMARY KEY,
    organization_id BIGINT NOT NULL,
    name            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bar_stations (
    id              BIGSERIAL PRIMARY KEY,
    organization_id BIGINT NOT NULL,
    name            TEXT NOT NULL,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS products (
    id              BIGSERIAL PRIMARY KEY,
    organization_id BIGINT NOT NULL,
    category_id     BIGINT REFERENCES categories(id),
    name            VARCHAR(120) NOT NULL,
    base_price      NUMERIC(19,4) NOT NULL,
    min_price       NUMERIC(19,4),
    max_price       NUMERIC(19,4),
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_products_org_name ON products(organization_id, lower(name));

CREATE TABLE IF NOT EXISTS inventory (
    id              BIGSERIAL PRIMARY KEY,
    organization_id BIGINT NOT NULL,
    product_id      BIGINT NOT NULL REFERENCES products(id),
    quantity        NUMERIC(19,4) NOT NULL CHECK (quantity >= 0),
    current_price   NUMERIC(19,4) NOT NULL,
    version         BIGINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL,
    UNIQUE (organization_id, product_id)
);

CREATE TABLE IF NOT EXISTS inventory_transactions (
    id               BIGSERIAL PRIMARY KEY,
    inventory_id     BIGINT NOT NULL REFERENCES inventory(id),
    organization_id  BIGINT NOT NULL,
    transaction_type VARCHAR(20) NOT NULL CHECK (transaction_type IN ('PURCHASE', 'SALE', 'ADJUSTMENT', 'INITIAL')),
    quantity_change  NUMERIC(19,4) NOT NULL,
    quantity_before  NUMERIC(19,4) NOT NULL,
    quantity_after   NUMERIC(19,4) NOT NULL CHECK (quantity_after >= 0),
    price_before     NUMERIC(19,4) NOT NULL,
    price_after      NUMERIC(19,4) NOT NULL,
    reference_id     VARCHAR(100),
    notes            VARCHAR(500),
    created_by       BIGINT REFERENCES users(id),
    bar_station_id   BIGINT REFERENCES bar_stations(id),
    created_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_inv_tx_inventory ON inventory_transactions(inventory_id, created_at);
CREATE INDEX IF NOT EXISTS idx_inv_tx_org_created ON inventory_transactions(organization_id, created_at);
CREATE INDEX IF NOT EXISTS idx_inv_tx_reference ON inventory_transactions(reference_id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB, dialect Dialect) error {
	switch dialect {
	case SQLite:
		if _, err := db.Exec(sqliteSchema); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	case Postgres:
		if _, err := db.Exec(postgresSchema); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	case MySQL:
		// The MySQL driver rejects multi-statement Exec unless the DSN opts in.
		for i, stmt := range splitStatements(mysqlSchema) {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("creating schema (statement %d): %w", i+1, err)
			}
		}
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}
	return nil
}

func splitStatements(schema string) []string {
	var stmts []string
	for _, s := range strings.Split(schema, ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
