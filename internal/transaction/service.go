// Package transaction lends equipment out and takes it back. Both moves go
// through the workflow machine so the transaction row and the status change
// commit together.
package transaction

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
	"github.com/erazemk/oprema/internal/workflow"
)

// CheckoutRequest describes a checkout.
type CheckoutRequest struct {
	TenantID    int64
	EquipmentID int64
	UserID      int64
	Actor       string
	DueDate     time.Time
	Metadata    map[string]any
}

// Service implements checkout and checkin.
type Service struct {
	db      *sql.DB
	machine *workflow.Machine
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now when validating due dates.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a Service.
func NewService(db *sql.DB, machine *workflow.Machine, opts ...Option) *Service {
	s := &Service{db: db, machine: machine, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout moves equipment to CHECKED_OUT and opens a transaction for the
// borrower in the same database transaction.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*model.Transaction, error) {
	if !req.DueDate.After(s.now()) {
		return nil, &model.RuleViolationError{Reason: "the due date must be in the future"}
	}

	metadata := map[string]any{"user_id": req.UserID, "due_date": req.DueDate.UTC().Format(time.RFC3339)}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	var created *model.Transaction
	_, err := s.machine.AttemptWith(ctx, workflow.Request{
		TenantID:    req.TenantID,
		EquipmentID: req.EquipmentID,
		Target:      model.StatusCheckedOut,
		Actor:       req.Actor,
		Reason:      "checked out",
		Metadata:    metadata,
	}, func(ctx context.Context, tx *sql.Tx, e *model.Equipment, at time.Time) error {
		user, err := store.GetUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if user == nil || user.DeletedAt != nil || user.TenantID != e.TenantID {
			return fmt.Errorf("borrower %d: %w", req.UserID, model.ErrNotFound)
		}
		created, err = store.CreateTransaction(ctx, tx, e.ID, user.ID, at, req.DueDate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Checkin closes an open transaction by moving its equipment back to
// AVAILABLE, and returns the closed transaction.
func (s *Service) Checkin(ctx context.Context, tenantID, transactionID int64, actor string) (*model.Transaction, error) {
	t, err := store.GetTransaction(ctx, s.db, transactionID)
	if err != nil {
		return nil, &model.FatalError{Op: "loading transaction", Err: err}
	}
	if t == nil {
		return nil, fmt.Errorf("transaction %d: %w", transactionID, model.ErrNotFound)
	}
	if !t.Open() {
		return nil, &model.RuleViolationError{Reason: fmt.Sprintf("%s was already returned", t.EquipmentName)}
	}

	_, err = s.machine.AttemptTransition(ctx, workflow.Request{
		TenantID:    tenantID,
		EquipmentID: t.EquipmentID,
		Target:      model.StatusAvailable,
		Actor:       actor,
		Reason:      "returned",
		Metadata:    map[string]any{"transaction_id": t.ID},
	})
	if err != nil {
		return nil, err
	}

	closed, err := store.GetTransaction(ctx, s.db, transactionID)
	if err != nil {
		return nil, &model.FatalError{Op: "reloading transaction", Err: err}
	}
	return closed, nil
}

// FindOpenTransaction returns the equipment's open transaction, or nil.
func (s *Service) FindOpenTransaction(ctx context.Context, equipmentID int64) (*model.Transaction, error) {
	t, err := store.FindOpenTransaction(ctx, s.db, equipmentID)
	if err != nil {
		return nil, &model.FatalError{Op: "finding open transaction", Err: err}
	}
	return t, nil
}
