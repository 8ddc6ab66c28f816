package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/oprema/internal/model"
)

// CreateTenant creates a new tenant.
func CreateTenant(ctx context.Context, db Querier, name string) (*model.Tenant, error) {
	result, err := db.ExecContext(ctx, `INSERT INTO tenants (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("creating tenant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting tenant id: %w", err)
	}

	return GetTenant(ctx, db, id)
}

// GetTenant returns a tenant by ID.
func GetTenant(ctx context.Context, db Querier, id int64) (*model.Tenant, error) {
	t := &model.Tenant{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM tenants WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	return t, nil
}

// GetTenantByName returns a tenant by its unique name.
func GetTenantByName(ctx context.Context, db Querier, name string) (*model.Tenant, error) {
	t := &model.Tenant{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM tenants WHERE name = ?`, name,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting tenant by name: %w", err)
	}
	return t, nil
}

// ListTenants returns all tenants ordered by ID.
func ListTenants(ctx context.Context, db Querier) ([]model.Tenant, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, created_at FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		var t model.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}
