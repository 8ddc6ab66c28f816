package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/oprema/internal/model"
)

const transactionColumns = `t.id, t.equipment_id, t.user_id, t.status, t.checked_out_at, t.due_date, t.returned_at,
	e.name AS equipment_name, COALESCE(u.username, '') AS holder_name`

const transactionFrom = ` FROM transactions t
	JOIN equipment e ON e.id = t.equipment_id
	LEFT JOIN users u ON u.id = t.user_id`

const openStatuses = `('CHECKED_OUT', 'OVERDUE')`

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	TenantID    int64
	EquipmentID int64
	UserID      int64
	OpenOnly    bool
}

// CreateTransaction opens a CHECKED_OUT transaction. The open-transaction
// index rejects a second open transaction for the same equipment.
func CreateTransaction(ctx context.Context, db Querier, equipmentID, userID int64, checkedOutAt, dueDate time.Time) (*model.Transaction, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO transactions (equipment_id, user_id, status, checked_out_at, due_date)
		 VALUES (?, ?, ?, ?, ?)`,
		equipmentID, userID, string(model.TxCheckedOut), checkedOutAt.UTC(), dueDate.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting transaction id: %w", err)
	}

	return GetTransaction(ctx, db, id)
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	t := &model.Transaction{}
	var status string
	if err := row.Scan(&t.ID, &t.EquipmentID, &t.UserID, &status, &t.CheckedOutAt, &t.DueDate,
		&t.ReturnedAt, &t.EquipmentName, &t.HolderName); err != nil {
		return nil, err
	}
	t.Status = model.TransactionStatus(status)
	return t, nil
}

// GetTransaction returns a transaction by ID.
func GetTransaction(ctx context.Context, db Querier, id int64) (*model.Transaction, error) {
	t, err := scanTransaction(db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+transactionFrom+` WHERE t.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transaction: %w", err)
	}
	return t, nil
}

// FindOpenTransaction returns the open (CHECKED_OUT or OVERDUE) transaction
// of an equipment, or nil if there is none.
func FindOpenTransaction(ctx context.Context, db Querier, equipmentID int64) (*model.Transaction, error) {
	t, err := scanTransaction(db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+transactionFrom+`
		 WHERE t.equipment_id = ? AND t.status IN `+openStatuses+`
		 ORDER BY t.id DESC LIMIT 1`, equipmentID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding open transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns transactions matching the filter, newest first.
func ListTransactions(ctx context.Context, db Querier, f TransactionFilter) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + transactionFrom + ` WHERE 1=1`
	var args []any

	if f.TenantID > 0 {
		query += ` AND e.tenant_id = ?`
		args = append(args, f.TenantID)
	}
	if f.EquipmentID > 0 {
		query += ` AND t.equipment_id = ?`
		args = append(args, f.EquipmentID)
	}
	if f.UserID > 0 {
		query += ` AND t.user_id = ?`
		args = append(args, f.UserID)
	}
	if f.OpenOnly {
		query += ` AND t.status IN ` + openStatuses
	}
	query += ` ORDER BY t.id DESC`

	return queryTransactions(ctx, db, "listing transactions", query, args...)
}

// ListCheckedOutTransactions returns the open transactions of a tenant whose
// equipment is currently CHECKED_OUT.
func ListCheckedOutTransactions(ctx context.Context, db Querier, tenantID int64) ([]model.Transaction, error) {
	return queryTransactions(ctx, db, "listing checked out transactions",
		`SELECT `+transactionColumns+transactionFrom+`
		 WHERE e.tenant_id = ? AND e.deleted_at IS NULL AND e.status = ?
		   AND t.status IN `+openStatuses+`
		 ORDER BY t.id`,
		tenantID, string(model.StatusCheckedOut),
	)
}

func queryTransactions(ctx context.Context, db Querier, op, query string, args ...any) ([]model.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var list []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

// UpdateTransactionStatus sets a transaction's status. A non-nil closedAt
// also stamps returned_at.
func UpdateTransactionStatus(ctx context.Context, db Querier, id int64, status model.TransactionStatus, closedAt *time.Time) error {
	var returnedAt any
	if closedAt != nil {
		returnedAt = closedAt.UTC()
	}
	_, err := db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, returned_at = COALESCE(?, returned_at) WHERE id = ?`,
		string(status), returnedAt, id,
	)
	if err != nil {
		return fmt.Errorf("updating transaction status: %w", err)
	}
	return nil
}
