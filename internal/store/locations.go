package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/oprema/internal/model"
)

// CreateLocation creates a new location within a tenant.
func CreateLocation(ctx context.Context, db Querier, tenantID int64, name string) (*model.Location, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO locations (tenant_id, name) VALUES (?, ?)`,
		tenantID, name,
	)
	if err != nil {
		return nil, fmt.Errorf("creating location: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting location id: %w", err)
	}

	return GetLocation(ctx, db, id)
}

// GetLocation returns a location by ID.
func GetLocation(ctx context.Context, db Querier, id int64) (*model.Location, error) {
	l := &model.Location{}
	err := db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, created_at, deleted_at
		 FROM locations WHERE id = ?`, id,
	).Scan(&l.ID, &l.TenantID, &l.Name, &l.CreatedAt, &l.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting location: %w", err)
	}
	return l, nil
}

// GetLocationByName returns an active location of a tenant by name.
func GetLocationByName(ctx context.Context, db Querier, tenantID int64, name string) (*model.Location, error) {
	l := &model.Location{}
	err := db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, created_at, deleted_at
		 FROM locations WHERE tenant_id = ? AND name = ? AND deleted_at IS NULL`, tenantID, name,
	).Scan(&l.ID, &l.TenantID, &l.Name, &l.CreatedAt, &l.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting location by name: %w", err)
	}
	return l, nil
}

// ListLocations returns all non-deleted locations of a tenant.
func ListLocations(ctx context.Context, db Querier, tenantID int64) ([]model.Location, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, tenant_id, name, created_at, deleted_at
		 FROM locations WHERE tenant_id = ? AND deleted_at IS NULL ORDER BY name`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.TenantID, &l.Name, &l.CreatedAt, &l.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// DeleteLocation soft-deletes a location. Fails if any active equipment is
// still kept there.
func DeleteLocation(ctx context.Context, db Querier, id int64) error {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM equipment WHERE location_id = ? AND deleted_at IS NULL`, id,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking location equipment: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("cannot delete location: still holds %d equipment", count)
	}

	_, err = db.ExecContext(ctx,
		`UPDATE locations SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting location: %w", err)
	}
	return nil
}
