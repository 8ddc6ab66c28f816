package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS tenants (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    tenant_id     INTEGER NOT NULL REFERENCES tenants(id),
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS locations (
    id         INTEGER PRIMARY KEY,
    tenant_id  INTEGER NOT NULL REFERENCES tenants(id),
    name       TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS equipment (
    id                    INTEGER PRIMARY KEY,
    tenant_id             INTEGER NOT NULL REFERENCES tenants(id),
    name                  TEXT NOT NULL,
    code                  TEXT NOT NULL,
    description           TEXT,
    category              TEXT,
    location_id           INTEGER REFERENCES locations(id),
    status                TEXT NOT NULL DEFAULT 'AVAILABLE' CHECK (status IN (
                              'AVAILABLE', 'CHECKED_OUT', 'MAINTENANCE', 'DAMAGED',
                              'LOST', 'RETIRED', 'RESERVED', 'OVERDUE')),
    condition             TEXT,
    value                 REAL NOT NULL DEFAULT 0,
    image                 BLOB,
    image_mime            TEXT,
    last_maintenance_date DATETIME,
    retired_at            DATETIME,
    retired_reason        TEXT,
    created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at            DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_equipment_code_active
    ON equipment(tenant_id, code) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS transactions (
    id             INTEGER PRIMARY KEY,
    equipment_id   INTEGER NOT NULL REFERENCES equipment(id),
    user_id        INTEGER NOT NULL REFERENCES users(id),
    status         TEXT NOT NULL DEFAULT 'CHECKED_OUT' CHECK (status IN (
                       'CHECKED_OUT', 'RETURNED', 'OVERDUE', 'LOST', 'DAMAGED')),
    checked_out_at DATETIME NOT NULL,
    due_date       DATETIME NOT NULL,
    returned_at    DATETIME
);

-- At most one open transaction per equipment.
CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_open
    ON transactions(equipment_id) WHERE status IN ('CHECKED_OUT', 'OVERDUE');

CREATE TABLE IF NOT EXISTS maintenance_records (
    id           INTEGER PRIMARY KEY,
    equipment_id INTEGER NOT NULL REFERENCES equipment(id),
    status       TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'COMPLETED')),
    reason       TEXT,
    created_by   TEXT NOT NULL,
    created_at   DATETIME NOT NULL,
    completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS damage_reports (
    id           INTEGER PRIMARY KEY,
    equipment_id INTEGER NOT NULL REFERENCES equipment(id),
    description  TEXT NOT NULL,
    reported_by  TEXT NOT NULL,
    created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY,
    event_id    TEXT NOT NULL UNIQUE,
    tenant_id   INTEGER NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id   INTEGER NOT NULL DEFAULT 0,
    action      TEXT NOT NULL,
    actor       TEXT NOT NULL,
    payload     TEXT NOT NULL,
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_entity
    ON audit_log(entity_type, entity_id, action);

CREATE TABLE IF NOT EXISTS notifications (
    id         INTEGER PRIMARY KEY,
    tenant_id  INTEGER NOT NULL,
    audience   TEXT NOT NULL,
    message    TEXT NOT NULL,
    metadata   TEXT,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
