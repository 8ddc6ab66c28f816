package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a piece of equipment.
type Status string

// Equipment statuses.
const (
	StatusAvailable   Status = "AVAILABLE"
	StatusCheckedOut  Status = "CHECKED_OUT"
	StatusMaintenance Status = "MAINTENANCE"
	StatusDamaged     Status = "DAMAGED"
	StatusLost        Status = "LOST"
	StatusRetired     Status = "RETIRED"
	StatusReserved    Status = "RESERVED"
	StatusOverdue     Status = "OVERDUE"
)

// Statuses lists every equipment status in display order.
var Statuses = []Status{
	StatusAvailable,
	StatusCheckedOut,
	StatusReserved,
	StatusOverdue,
	StatusMaintenance,
	StatusDamaged,
	StatusLost,
	StatusRetired,
}

// ParseStatus converts s into a Status. It accepts any letter case.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// Phrase returns the status as it reads in a sentence ("checked out").
func (s Status) Phrase() string {
	switch s {
	case StatusMaintenance:
		return "in maintenance"
	default:
		return strings.ReplaceAll(strings.ToLower(string(s)), "_", " ")
	}
}

// Equipment is a single, individually tracked physical item.
type Equipment struct {
	ID                  int64      `json:"id"`
	TenantID            int64      `json:"tenant_id"`
	Name                string     `json:"name"`
	Code                string     `json:"code"`
	Description         string     `json:"description,omitempty"`
	Category            string     `json:"category,omitempty"`
	LocationID          *int64     `json:"location_id,omitempty"`
	Status              Status     `json:"status"`
	Condition           string     `json:"condition,omitempty"`
	Value               float64    `json:"value"`
	ImageMime           string     `json:"image_mime,omitempty"`
	LastMaintenanceDate *time.Time `json:"last_maintenance_date,omitempty"`
	RetiredAt           *time.Time `json:"retired_at,omitempty"`
	RetiredReason       string     `json:"retired_reason,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`

	// Joined fields (not always populated).
	LocationName string `json:"location_name,omitempty"`
}

// Location is a place where equipment is kept.
type Location struct {
	ID        int64      `json:"id"`
	TenantID  int64      `json:"tenant_id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Tenant is an organisation boundary (a school or club) used for data isolation.
type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Maintenance record statuses.
const (
	MaintenancePending   = "PENDING"
	MaintenanceCompleted = "COMPLETED"
)

// MaintenanceRecord is opened whenever equipment enters MAINTENANCE.
type MaintenanceRecord struct {
	ID          int64      `json:"id"`
	EquipmentID int64      `json:"equipment_id"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DamageReport is filed whenever equipment enters DAMAGED.
type DamageReport struct {
	ID          int64     `json:"id"`
	EquipmentID int64     `json:"equipment_id"`
	Description string    `json:"description"`
	ReportedBy  string    `json:"reported_by"`
	CreatedAt   time.Time `json:"created_at"`
}
