package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/erazemk/oprema/internal/model"
)

// InsertNotification stores a notification.
func InsertNotification(ctx context.Context, db Querier, n model.Notification) (int64, error) {
	var metadata []byte
	if len(n.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(n.Metadata)
		if err != nil {
			return 0, fmt.Errorf("encoding notification metadata: %w", err)
		}
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO notifications (tenant_id, audience, message, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		n.TenantID, n.Audience, n.Message, string(metadata), n.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting notification: %w", err)
	}
	return result.LastInsertId()
}

// ListNotifications returns the notifications of a tenant, newest first.
func ListNotifications(ctx context.Context, db Querier, tenantID int64, limit int) ([]model.Notification, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, tenant_id, audience, message, metadata, created_at
		 FROM notifications WHERE tenant_id = ? ORDER BY id DESC LIMIT ?`, tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var list []model.Notification
	for rows.Next() {
		var n model.Notification
		var metadata sql.NullString
		if err := rows.Scan(&n.ID, &n.TenantID, &n.Audience, &n.Message, &metadata, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		if metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &n.Metadata); err != nil {
				return nil, fmt.Errorf("decoding notification metadata: %w", err)
			}
		}
		list = append(list, n)
	}
	return list, rows.Err()
}
