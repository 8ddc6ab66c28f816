// Package workflow enforces the equipment status lifecycle: the transition
// graph, business rules, side effects and the audit trail of every move.
package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/notify"
	"github.com/erazemk/oprema/internal/store"
)

// DefaultApprovalThreshold is the equipment value above which a LOST
// transition is flagged for approval.
const DefaultApprovalThreshold = 500

// Request describes a single transition attempt.
type Request struct {
	// TenantID scopes the lookup when non-zero. Equipment of another tenant
	// is reported as not found.
	TenantID    int64
	EquipmentID int64
	Target      model.Status
	Actor       string
	Reason      string
	Metadata    map[string]any
}

// Result describes an executed transition.
type Result struct {
	Equipment        *model.Equipment `json:"equipment"`
	PreviousStatus   model.Status     `json:"previous_status"`
	NewStatus        model.Status     `json:"new_status"`
	RequiresApproval bool             `json:"requires_approval"`
	EventID          string           `json:"event_id"`
}

// Hook runs inside the transition's database transaction, after the status
// write. Returning an error rolls back the whole transition.
type Hook func(ctx context.Context, tx *sql.Tx, e *model.Equipment, at time.Time) error

// Machine executes status transitions.
type Machine struct {
	db                *sql.DB
	notifier          notify.Sink
	metrics           *metrics.Metrics
	logger            *slog.Logger
	tracer            trace.Tracer
	now               func() time.Time
	approvalThreshold float64
	observers         []func(tenantID int64)
}

// Option configures a Machine.
type Option func(*Machine)

func WithNotifier(n notify.Sink) Option { return func(m *Machine) { m.notifier = n } }

func WithMetrics(mt *metrics.Metrics) Option { return func(m *Machine) { m.metrics = mt } }

func WithLogger(l *slog.Logger) Option { return func(m *Machine) { m.logger = l } }

func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

func WithApprovalThreshold(v float64) Option { return func(m *Machine) { m.approvalThreshold = v } }

// OnTransition registers fn to be called after every committed transition.
func OnTransition(fn func(tenantID int64)) Option {
	return func(m *Machine) { m.observers = append(m.observers, fn) }
}

// New creates a Machine over db.
func New(db *sql.DB, opts ...Option) *Machine {
	m := &Machine{
		db:                db,
		notifier:          notify.Discard{},
		logger:            slog.Default(),
		tracer:            otel.Tracer("github.com/erazemk/oprema/internal/workflow"),
		now:               time.Now,
		approvalThreshold: DefaultApprovalThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AttemptTransition validates and executes a move of one equipment to
// req.Target. The status write, the audit entry and the side-effect record
// commit together or not at all.
func (m *Machine) AttemptTransition(ctx context.Context, req Request) (*Result, error) {
	return m.AttemptWith(ctx, req, nil)
}

// AttemptWith is AttemptTransition with an extra hook run inside the same
// database transaction.
func (m *Machine) AttemptWith(ctx context.Context, req Request, hook Hook) (*Result, error) {
	ctx, span := m.tracer.Start(ctx, "workflow.AttemptTransition", trace.WithAttributes(
		attribute.Int64("equipment.id", req.EquipmentID),
		attribute.String("status.target", string(req.Target)),
		attribute.String("actor", req.Actor),
	))
	defer span.End()

	res, err := m.attempt(ctx, req, hook)
	if err != nil {
		kind := model.ErrorKind(err)
		m.metrics.Rejection(kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		if kind == model.KindFatal {
			m.logger.Error("transition failed",
				"equipment_id", req.EquipmentID, "target", req.Target, "actor", req.Actor, "error", err)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("status.previous", string(res.PreviousStatus)))
	m.metrics.Transition(string(res.PreviousStatus), string(res.NewStatus))
	m.logger.Info("status changed",
		"equipment_id", res.Equipment.ID, "from", res.PreviousStatus, "to", res.NewStatus,
		"actor", req.Actor, "requires_approval", res.RequiresApproval)

	for _, fn := range m.observers {
		fn(res.Equipment.TenantID)
	}
	m.notify(ctx, req, res)

	return res, nil
}

func fatal(op string, err error) error {
	return &model.FatalError{Op: op, Err: err}
}

func (m *Machine) attempt(ctx context.Context, req Request, hook Hook) (*Result, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fatal("beginning transaction", err)
	}
	defer tx.Rollback()

	e, err := store.GetEquipment(ctx, tx, req.EquipmentID)
	if err != nil {
		return nil, fatal("loading equipment", err)
	}
	if e == nil || e.DeletedAt != nil || (req.TenantID != 0 && e.TenantID != req.TenantID) {
		return nil, fmt.Errorf("equipment %d: %w", req.EquipmentID, model.ErrNotFound)
	}

	from := e.Status
	if err := checkRules(e, req); err != nil {
		return nil, err
	}

	now := m.now()
	applied, err := store.UpdateEquipmentStatus(ctx, tx, e.ID, from, req.Target, now)
	if err != nil {
		return nil, fatal("writing status", err)
	}
	if !applied {
		return nil, fmt.Errorf("%s changed while moving to %s: %w", e.Name, req.Target, model.ErrInvalidTransition)
	}

	if err := m.applySideEffects(ctx, tx, e, from, req, now); err != nil {
		return nil, fatal("applying side effects", err)
	}

	e.Status = req.Target
	if hook != nil {
		if err := hook(ctx, tx, e, now); err != nil {
			if model.ErrorKind(err) != model.KindFatal {
				return nil, err
			}
			return nil, fatal("running transition hook", err)
		}
	}

	event := model.StatusTransitionEvent{
		ID:               uuid.NewString(),
		TenantID:         e.TenantID,
		EquipmentID:      e.ID,
		PreviousStatus:   from,
		NewStatus:        req.Target,
		Actor:            req.Actor,
		Reason:           req.Reason,
		Metadata:         req.Metadata,
		RequiresApproval: m.requiresApproval(e, req.Target),
		CreatedAt:        now,
	}
	if err := recordTransition(ctx, tx, event); err != nil {
		return nil, fatal("writing audit entry", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fatal("committing transition", err)
	}

	updated, err := store.GetEquipment(ctx, m.db, e.ID)
	if err != nil || updated == nil {
		updated = e
	}

	return &Result{
		Equipment:        updated,
		PreviousStatus:   from,
		NewStatus:        req.Target,
		RequiresApproval: event.RequiresApproval,
		EventID:          event.ID,
	}, nil
}

// checkRules rejects a request before anything is written. Repeating a
// checkout or a return is a rule violation rather than a graph error.
func checkRules(e *model.Equipment, req Request) error {
	switch {
	case req.Target == model.StatusCheckedOut && e.Status == model.StatusCheckedOut:
		return &model.RuleViolationError{Reason: e.Name + " is already checked out"}
	case req.Target == model.StatusAvailable && e.Status == model.StatusAvailable:
		return &model.RuleViolationError{Reason: e.Name + " is already available"}
	}

	if !CanTransition(e.Status, req.Target) {
		return fmt.Errorf("%s cannot move from %s to %s: %w", e.Name, e.Status, req.Target, model.ErrInvalidTransition)
	}

	if req.Target == model.StatusDamaged && strings.TrimSpace(req.Reason) == "" {
		return &model.RuleViolationError{Reason: "a reason is required to mark equipment as damaged"}
	}
	return nil
}

func (m *Machine) requiresApproval(e *model.Equipment, target model.Status) bool {
	switch target {
	case model.StatusRetired:
		return true
	case model.StatusLost:
		return e.Value > m.approvalThreshold
	}
	return false
}

func (m *Machine) applySideEffects(ctx context.Context, tx *sql.Tx, e *model.Equipment, from model.Status, req Request, now time.Time) error {
	open, err := store.FindOpenTransaction(ctx, tx, e.ID)
	if err != nil {
		return err
	}

	closeOpen := func(status model.TransactionStatus) error {
		if open == nil {
			return nil
		}
		return store.UpdateTransactionStatus(ctx, tx, open.ID, status, &now)
	}

	switch req.Target {
	case model.StatusMaintenance:
		_, err = store.CreateMaintenanceRecord(ctx, tx, e.ID, req.Reason, req.Actor, now)
	case model.StatusDamaged:
		if _, err = store.CreateDamageReport(ctx, tx, e.ID, req.Reason, req.Actor, now); err == nil {
			err = closeOpen(model.TxDamaged)
		}
	case model.StatusRetired:
		err = store.SetEquipmentRetired(ctx, tx, e.ID, now, req.Reason)
	case model.StatusLost:
		err = closeOpen(model.TxLost)
	case model.StatusOverdue:
		if open != nil {
			err = store.UpdateTransactionStatus(ctx, tx, open.ID, model.TxOverdue, nil)
		}
	case model.StatusAvailable:
		if err = closeOpen(model.TxReturned); err == nil && from == model.StatusMaintenance {
			if _, err = store.CompleteMaintenance(ctx, tx, e.ID, now); err == nil {
				err = store.SetEquipmentLastMaintenance(ctx, tx, e.ID, now)
			}
		}
	}
	return err
}

func recordTransition(ctx context.Context, tx *sql.Tx, event model.StatusTransitionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding transition event: %w", err)
	}
	return store.InsertAuditEntry(ctx, tx, model.AuditEntry{
		ID:         event.ID,
		TenantID:   event.TenantID,
		EntityType: model.EntityEquipment,
		EntityID:   event.EquipmentID,
		Action:     model.ActionStatusChange,
		Actor:      event.Actor,
		Payload:    string(payload),
		CreatedAt:  event.CreatedAt,
	})
}

// notify sends the post-commit notifications. Failures are logged only.
func (m *Machine) notify(ctx context.Context, req Request, res *Result) {
	e := res.Equipment
	var messages []model.Notification

	switch res.NewStatus {
	case model.StatusDamaged:
		messages = append(messages, model.Notification{
			Audience: model.AudienceManagers,
			Message:  fmt.Sprintf("%s (%s) was reported damaged: %s", e.Name, e.Code, req.Reason),
		})
	case model.StatusLost:
		messages = append(messages, model.Notification{
			Audience: model.AudienceManagers,
			Message:  fmt.Sprintf("%s (%s) was reported lost", e.Name, e.Code),
		})
	case model.StatusMaintenance:
		messages = append(messages, model.Notification{
			Audience: model.AudienceManagers,
			Message:  fmt.Sprintf("%s (%s) needs maintenance", e.Name, e.Code),
		})
	}
	if res.RequiresApproval {
		messages = append(messages, model.Notification{
			Audience: model.AudienceAdmins,
			Message:  fmt.Sprintf("%s (%s) moved to %s and requires approval", e.Name, e.Code, res.NewStatus),
		})
	}

	for _, n := range messages {
		n.TenantID = e.TenantID
		n.CreatedAt = m.now()
		n.Metadata = map[string]any{
			"equipment_id": e.ID,
			"status":       string(res.NewStatus),
			"actor":        req.Actor,
			"event_id":     res.EventID,
		}
		if err := m.notifier.Notify(ctx, n); err != nil {
			m.logger.Error("sending notification", "equipment_id", e.ID, "audience", n.Audience, "error", err)
		}
	}
}

// IsRejection reports whether err is a recoverable rejection rather than a
// fatal failure.
func IsRejection(err error) bool {
	return err != nil && model.ErrorKind(err) != model.KindFatal
}
