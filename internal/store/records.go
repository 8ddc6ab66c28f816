package store

import (
	"context"
	"fmt"
	"time"

	"github.com/erazemk/oprema/internal/model"
)

// CreateMaintenanceRecord opens a pending maintenance record.
func CreateMaintenanceRecord(ctx context.Context, db Querier, equipmentID int64, reason, createdBy string, at time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO maintenance_records (equipment_id, status, reason, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		equipmentID, model.MaintenancePending, reason, createdBy, at.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("creating maintenance record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting maintenance record id: %w", err)
	}
	return id, nil
}

// CompleteMaintenance closes every pending maintenance record of an equipment.
func CompleteMaintenance(ctx context.Context, db Querier, equipmentID int64, at time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE maintenance_records SET status = ?, completed_at = ?
		 WHERE equipment_id = ? AND status = ?`,
		model.MaintenanceCompleted, at.UTC(), equipmentID, model.MaintenancePending,
	)
	if err != nil {
		return 0, fmt.Errorf("completing maintenance: %w", err)
	}
	return result.RowsAffected()
}

// ListMaintenanceRecords returns the maintenance history of an equipment, newest first.
func ListMaintenanceRecords(ctx context.Context, db Querier, equipmentID int64) ([]model.MaintenanceRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, equipment_id, status, COALESCE(reason, ''), created_by, created_at, completed_at
		 FROM maintenance_records WHERE equipment_id = ? ORDER BY id DESC`, equipmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing maintenance records: %w", err)
	}
	defer rows.Close()

	var records []model.MaintenanceRecord
	for rows.Next() {
		var r model.MaintenanceRecord
		if err := rows.Scan(&r.ID, &r.EquipmentID, &r.Status, &r.Reason, &r.CreatedBy, &r.CreatedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning maintenance record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CreateDamageReport files a damage report.
func CreateDamageReport(ctx context.Context, db Querier, equipmentID int64, description, reportedBy string, at time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO damage_reports (equipment_id, description, reported_by, created_at)
		 VALUES (?, ?, ?, ?)`,
		equipmentID, description, reportedBy, at.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("creating damage report: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting damage report id: %w", err)
	}
	return id, nil
}

// ListDamageReports returns the damage reports of an equipment, newest first.
func ListDamageReports(ctx context.Context, db Querier, equipmentID int64) ([]model.DamageReport, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, equipment_id, description, reported_by, created_at
		 FROM damage_reports WHERE equipment_id = ? ORDER BY id DESC`, equipmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing damage reports: %w", err)
	}
	defer rows.Close()

	var reports []model.DamageReport
	for rows.Next() {
		var r model.DamageReport
		if err := rows.Scan(&r.ID, &r.EquipmentID, &r.Description, &r.ReportedBy, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning damage report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
