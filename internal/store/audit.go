package store

import (
	"context"
	"fmt"

	"github.com/erazemk/oprema/internal/model"
)

// AuditFilter narrows ListAuditEntries. Zero values mean "any".
type AuditFilter struct {
	TenantID   int64
	EntityType string
	EntityID   int64
	Action     string
	Limit      int
}

// InsertAuditEntry appends an entry to the audit log.
func InsertAuditEntry(ctx context.Context, db Querier, e model.AuditEntry) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO audit_log (event_id, tenant_id, entity_type, entity_id, action, actor, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.EntityType, e.EntityID, e.Action, e.Actor, e.Payload, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns audit entries matching the filter, newest first.
func ListAuditEntries(ctx context.Context, db Querier, f AuditFilter) ([]model.AuditEntry, error) {
	query := `SELECT event_id, tenant_id, entity_type, entity_id, action, actor, payload, created_at
	          FROM audit_log WHERE 1=1`
	var args []any

	if f.TenantID > 0 {
		query += ` AND tenant_id = ?`
		args = append(args, f.TenantID)
	}
	if f.EntityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, f.EntityType)
	}
	if f.EntityID > 0 {
		query += ` AND entity_id = ?`
		args = append(args, f.EntityID)
	}
	if f.Action != "" {
		query += ` AND action = ?`
		args = append(args, f.Action)
	}
	query += ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EntityType, &e.EntityID, &e.Action, &e.Actor, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
