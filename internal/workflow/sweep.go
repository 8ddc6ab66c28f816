package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// Default sweep thresholds.
const (
	DefaultOverdueAfter        = 72 * time.Hour
	DefaultMaintenanceInterval = 30 * 24 * time.Hour
)

// SweepConfig holds the time thresholds of the automatic transitions.
// Thresholds are compared strictly at the moment the sweep runs, so the
// effective tolerance is the interval of whatever triggers it.
type SweepConfig struct {
	OverdueAfter        time.Duration
	MaintenanceInterval time.Duration
}

// SweepCounts is the outcome of sweeping one tenant.
type SweepCounts struct {
	Overdue     int `json:"overdue"`
	Maintenance int `json:"maintenance"`
}

// SweepReport is the outcome of sweeping every tenant.
type SweepReport struct {
	Tenants     int     `json:"tenants"`
	Overdue     int     `json:"overdue"`
	Maintenance int     `json:"maintenance"`
	Failed      []int64 `json:"failed_tenants,omitempty"`
}

// Sweeper applies time-based transitions. It does not schedule itself.
type Sweeper struct {
	db      *sql.DB
	machine *Machine
	cfg     SweepConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewSweeper creates a Sweeper that shares the machine's logger, metrics
// and clock. Zero thresholds fall back to the defaults.
func NewSweeper(db *sql.DB, machine *Machine, cfg SweepConfig) *Sweeper {
	if cfg.OverdueAfter <= 0 {
		cfg.OverdueAfter = DefaultOverdueAfter
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = DefaultMaintenanceInterval
	}
	return &Sweeper{
		db:      db,
		machine: machine,
		cfg:     cfg,
		metrics: machine.metrics,
		logger:  machine.logger,
		now:     machine.now,
	}
}

// Sweep moves the tenant's checked-out equipment whose due date is older
// than OverdueAfter to OVERDUE, and its available equipment last serviced
// longer than MaintenanceInterval ago to MAINTENANCE. Items that fail are
// logged and skipped; their errors are joined into the returned error.
func (s *Sweeper) Sweep(ctx context.Context, tenantID int64) (SweepCounts, error) {
	var counts SweepCounts
	now := s.now()

	open, err := store.ListCheckedOutTransactions(ctx, s.db, tenantID)
	if err != nil {
		return counts, fmt.Errorf("listing checked out equipment: %w", err)
	}
	available, err := store.ListEquipment(ctx, s.db, store.EquipmentFilter{TenantID: tenantID, Status: model.StatusAvailable})
	if err != nil {
		return counts, fmt.Errorf("listing available equipment: %w", err)
	}

	var errs []error
	overdueBefore := now.Add(-s.cfg.OverdueAfter)
	for _, t := range open {
		if !t.DueDate.Before(overdueBefore) {
			continue
		}
		err := s.apply(ctx, Request{
			TenantID:    tenantID,
			EquipmentID: t.EquipmentID,
			Target:      model.StatusOverdue,
			Actor:       model.ActorSystem,
			Reason:      "due " + t.DueDate.UTC().Format(time.RFC3339),
			Metadata:    map[string]any{"transaction_id": t.ID, "automatic": true},
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		counts.Overdue++
	}

	serviceBefore := now.Add(-s.cfg.MaintenanceInterval)
	for _, e := range available {
		if e.LastMaintenanceDate == nil || !e.LastMaintenanceDate.Before(serviceBefore) {
			continue
		}
		err := s.apply(ctx, Request{
			TenantID:    tenantID,
			EquipmentID: e.ID,
			Target:      model.StatusMaintenance,
			Actor:       model.ActorSystem,
			Reason:      "scheduled maintenance",
			Metadata:    map[string]any{"automatic": true},
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		counts.Maintenance++
	}

	s.metrics.Swept("overdue", counts.Overdue)
	s.metrics.Swept("maintenance", counts.Maintenance)
	return counts, errors.Join(errs...)
}

func (s *Sweeper) apply(ctx context.Context, req Request) error {
	_, err := s.machine.AttemptTransition(ctx, req)
	if err == nil {
		return nil
	}
	s.metrics.SweepError()
	if IsRejection(err) {
		// The item moved since it was listed.
		s.logger.Warn("sweep skipped equipment", "tenant_id", req.TenantID, "equipment_id", req.EquipmentID,
			"target", req.Target, "error", err)
		return nil
	}
	s.logger.Error("sweep transition failed", "tenant_id", req.TenantID, "equipment_id", req.EquipmentID,
		"target", req.Target, "error", err)
	return fmt.Errorf("equipment %d: %w", req.EquipmentID, err)
}

// SweepAll sweeps every tenant in turn. A failing tenant is logged and
// recorded in the report; the remaining tenants are still swept.
func (s *Sweeper) SweepAll(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	tenants, err := store.ListTenants(ctx, s.db)
	if err != nil {
		return report, fmt.Errorf("listing tenants: %w", err)
	}

	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		counts, err := s.Sweep(ctx, t.ID)
		report.Tenants++
		report.Overdue += counts.Overdue
		report.Maintenance += counts.Maintenance
		if err != nil {
			report.Failed = append(report.Failed, t.ID)
			s.logger.Error("sweeping tenant", "tenant_id", t.ID, "tenant", t.Name, "error", err)
		}
	}

	s.logger.Info("sweep finished", "tenants", report.Tenants, "overdue", report.Overdue,
		"maintenance", report.Maintenance, "failed", len(report.Failed))
	return report, nil
}

// Run calls SweepAll every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepAll(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("sweep", "error", err)
			}
		}
	}
}
