package model

import "time"

// ActorSystem is the actor recorded for automatic transitions.
const ActorSystem = "SYSTEM"

// Audit entity types and actions.
const (
	EntityEquipment = "EQUIPMENT"

	ActionStatusChange = "STATUS_CHANGE"
	ActionVoiceCommand = "VOICE_COMMAND"
)

// AuditEntry is a persisted audit log row. Payload holds the JSON-encoded
// event specific to Action.
type AuditEntry struct {
	ID         string    `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Payload    string    `json:"payload"`
	CreatedAt  time.Time `json:"created_at"`
}

// StatusTransitionEvent is written exactly once per executed transition.
type StatusTransitionEvent struct {
	ID               string         `json:"id"`
	TenantID         int64          `json:"tenant_id"`
	EquipmentID      int64          `json:"equipment_id"`
	PreviousStatus   Status         `json:"previous_status"`
	NewStatus        Status         `json:"new_status"`
	Actor            string         `json:"actor"`
	Reason           string         `json:"reason,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	RequiresApproval bool           `json:"requires_approval,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// VoiceCommandEvent is written exactly once per executed command, whatever
// its outcome.
type VoiceCommandEvent struct {
	ID          string            `json:"id"`
	TenantID    int64             `json:"tenant_id"`
	EquipmentID int64             `json:"equipment_id,omitempty"`
	Actor       string            `json:"actor"`
	Transcript  string            `json:"transcript"`
	Intent      string            `json:"intent"`
	Confidence  float64           `json:"confidence"`
	Entities    map[string]string `json:"entities,omitempty"`
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Notification is a message addressed to an audience within a tenant.
type Notification struct {
	ID        int64          `json:"id"`
	TenantID  int64          `json:"tenant_id"`
	Audience  string         `json:"audience"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notification audiences.
const (
	AudienceManagers = "managers"
	AudienceAdmins   = "admins"
)
