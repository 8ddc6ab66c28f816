package model

import "time"

// TransactionStatus is the state of a custody transaction.
type TransactionStatus string

// Transaction statuses.
const (
	TxCheckedOut TransactionStatus = "CHECKED_OUT"
	TxReturned   TransactionStatus = "RETURNED"
	TxOverdue    TransactionStatus = "OVERDUE"
	TxLost       TransactionStatus = "LOST"
	TxDamaged    TransactionStatus = "DAMAGED"
)

// Transaction records a user holding a piece of equipment. At most one
// transaction per equipment is open at any time.
type Transaction struct {
	ID           int64             `json:"id"`
	EquipmentID  int64             `json:"equipment_id"`
	UserID       int64             `json:"user_id"`
	Status       TransactionStatus `json:"status"`
	CheckedOutAt time.Time         `json:"checked_out_at"`
	DueDate      time.Time         `json:"due_date"`
	ReturnedAt   *time.Time        `json:"returned_at,omitempty"`

	// Joined fields (not always populated).
	EquipmentName string `json:"equipment_name,omitempty"`
	HolderName    string `json:"holder_name,omitempty"`
}

// Open reports whether the transaction still holds its equipment.
func (t *Transaction) Open() bool {
	return t.Status == TxCheckedOut || t.Status == TxOverdue
}
