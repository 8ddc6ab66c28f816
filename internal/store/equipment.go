package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/oprema/internal/model"
)

const equipmentColumns = `e.id, e.tenant_id, e.name, e.code, e.description, e.category, e.location_id,
	e.status, e.condition, e.value, e.image_mime, e.last_maintenance_date, e.retired_at,
	e.retired_reason, e.created_at, e.updated_at, e.deleted_at, COALESCE(l.name, '')`

const equipmentFrom = ` FROM equipment e LEFT JOIN locations l ON l.id = e.location_id`

// NewEquipment holds the fields needed to register a piece of equipment.
type NewEquipment struct {
	TenantID            int64
	Name                string
	Code                string
	Description         string
	Category            string
	LocationID          *int64
	Condition           string
	Value               float64
	LastMaintenanceDate *time.Time
}

// EquipmentFilter narrows ListEquipment. Zero values mean "any".
type EquipmentFilter struct {
	TenantID int64
	Status   model.Status
	Limit    int
}

// CreateEquipment registers a new piece of equipment. New equipment is AVAILABLE.
func CreateEquipment(ctx context.Context, db Querier, e NewEquipment) (*model.Equipment, error) {
	var lastMaintenance any
	if e.LastMaintenanceDate != nil {
		lastMaintenance = e.LastMaintenanceDate.UTC()
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO equipment (tenant_id, name, code, description, category, location_id, condition, value, last_maintenance_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TenantID, e.Name, e.Code, e.Description, e.Category, e.LocationID, e.Condition, e.Value, lastMaintenance,
	)
	if err != nil {
		return nil, fmt.Errorf("creating equipment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting equipment id: %w", err)
	}

	return GetEquipment(ctx, db, id)
}

func scanEquipment(row rowScanner) (*model.Equipment, error) {
	e := &model.Equipment{}
	var description, category, condition, imageMime, retiredReason sql.NullString
	var status string
	err := row.Scan(&e.ID, &e.TenantID, &e.Name, &e.Code, &description, &category, &e.LocationID,
		&status, &condition, &e.Value, &imageMime, &e.LastMaintenanceDate, &e.RetiredAt,
		&retiredReason, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt, &e.LocationName)
	if err != nil {
		return nil, err
	}
	e.Status = model.Status(status)
	e.Description = description.String
	e.Category = category.String
	e.Condition = condition.String
	e.ImageMime = imageMime.String
	e.RetiredReason = retiredReason.String
	return e, nil
}

// GetEquipment returns equipment by ID, including soft-deleted rows.
func GetEquipment(ctx context.Context, db Querier, id int64) (*model.Equipment, error) {
	e, err := scanEquipment(db.QueryRowContext(ctx,
		`SELECT `+equipmentColumns+equipmentFrom+` WHERE e.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting equipment: %w", err)
	}
	return e, nil
}

// ListEquipment returns non-deleted equipment matching the filter, ordered by name.
func ListEquipment(ctx context.Context, db Querier, f EquipmentFilter) ([]model.Equipment, error) {
	query := `SELECT ` + equipmentColumns + equipmentFrom + ` WHERE e.deleted_at IS NULL`
	var args []any

	if f.TenantID > 0 {
		query += ` AND e.tenant_id = ?`
		args = append(args, f.TenantID)
	}
	if f.Status != "" {
		query += ` AND e.status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY e.name, e.id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return queryEquipment(ctx, db, "listing equipment", query, args...)
}

// SearchEquipment returns up to limit non-deleted equipment of a tenant whose
// name, code or description contains query (case-insensitive).
func SearchEquipment(ctx context.Context, db Querier, tenantID int64, query string, limit int) ([]model.Equipment, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	return queryEquipment(ctx, db, "searching equipment",
		`SELECT `+equipmentColumns+equipmentFrom+`
		 WHERE e.deleted_at IS NULL AND e.tenant_id = ?
		   AND (LOWER(e.name) LIKE ? ESCAPE '\'
		        OR LOWER(e.code) LIKE ? ESCAPE '\'
		        OR LOWER(COALESCE(e.description, '')) LIKE ? ESCAPE '\')
		 ORDER BY e.name, e.id
		 LIMIT ?`,
		tenantID, pattern, pattern, pattern, limit,
	)
}

func queryEquipment(ctx context.Context, db Querier, op, query string, args ...any) ([]model.Equipment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var list []model.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning equipment: %w", err)
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// CountEquipmentByStatus returns the number of non-deleted equipment of a
// tenant per status. Statuses with no equipment are absent.
func CountEquipmentByStatus(ctx context.Context, db Querier, tenantID int64) (map[model.Status]int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM equipment
		 WHERE tenant_id = ? AND deleted_at IS NULL GROUP BY status`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("counting equipment: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning equipment count: %w", err)
		}
		counts[model.Status(status)] = n
	}
	return counts, rows.Err()
}

// UpdateEquipmentStatus moves equipment from one status to another. It only
// applies if the stored status still equals from, and reports whether it did.
func UpdateEquipmentStatus(ctx context.Context, db Querier, id int64, from, to model.Status, at time.Time) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE equipment SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		string(to), at.UTC(), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("updating equipment status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking updated rows: %w", err)
	}
	return n == 1, nil
}

// EquipmentUpdate holds the descriptive fields of equipment. Status is not
// among them; it only changes through workflow transitions.
type EquipmentUpdate struct {
	Name        string
	Code        string
	Description string
	Category    string
	LocationID  *int64
	Condition   string
	Value       float64
}

// UpdateEquipment replaces the descriptive fields of non-deleted equipment.
func UpdateEquipment(ctx context.Context, db Querier, id int64, u EquipmentUpdate) error {
	_, err := db.ExecContext(ctx,
		`UPDATE equipment SET name = ?, code = ?, description = ?, category = ?, location_id = ?,
		        condition = ?, value = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		u.Name, u.Code, u.Description, u.Category, u.LocationID, u.Condition, u.Value, id,
	)
	if err != nil {
		return fmt.Errorf("updating equipment: %w", err)
	}
	return nil
}

// SetEquipmentRetired stamps the retirement fields.
func SetEquipmentRetired(ctx context.Context, db Querier, id int64, at time.Time, reason string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE equipment SET retired_at = ?, retired_reason = ? WHERE id = ?`,
		at.UTC(), reason, id,
	)
	if err != nil {
		return fmt.Errorf("retiring equipment: %w", err)
	}
	return nil
}

// SetEquipmentLastMaintenance records when equipment was last serviced.
func SetEquipmentLastMaintenance(ctx context.Context, db Querier, id int64, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE equipment SET last_maintenance_date = ? WHERE id = ?`,
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting last maintenance date: %w", err)
	}
	return nil
}

// DeleteEquipment soft-deletes equipment.
func DeleteEquipment(ctx context.Context, db Querier, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE equipment SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting equipment: %w", err)
	}
	return nil
}

// SetEquipmentImage sets an equipment photo.
func SetEquipmentImage(ctx context.Context, db Querier, id int64, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE equipment SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting equipment image: %w", err)
	}
	return nil
}

// GetEquipmentImage returns an equipment photo and its MIME type.
func GetEquipmentImage(ctx context.Context, db Querier, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM equipment WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting equipment image: %w", err)
	}
	return image, mime.String, nil
}

// GetEquipmentByCode returns a tenant's non-deleted equipment by code.
func GetEquipmentByCode(ctx context.Context, db Querier, tenantID int64, code string) (*model.Equipment, error) {
	e, err := scanEquipment(db.QueryRowContext(ctx,
		`SELECT `+equipmentColumns+equipmentFrom+`
		 WHERE e.tenant_id = ? AND e.code = ? AND e.deleted_at IS NULL`, tenantID, code,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting equipment by code: %w", err)
	}
	return e, nil
}
