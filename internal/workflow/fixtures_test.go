package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

type recordingSink struct {
	mu  sync.Mutex
	got []model.Notification
	err error
}

func (s *recordingSink) Notify(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func (s *recordingSink) audiences() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, n := range s.got {
		out = append(out, n.Audience)
	}
	return out
}

type fixture struct {
	db      *sql.DB
	tenant  *model.Tenant
	user    *model.User
	sink    *recordingSink
	now     time.Time
	machine *Machine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		db:   db.NewTestDB(t),
		sink: &recordingSink{},
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	var err error
	if f.tenant, err = store.CreateTenant(ctx, f.db, "Acme School"); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	if f.user, err = store.CreateUser(ctx, f.db, f.tenant.ID, "alice", "hash", model.RoleUser); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	opts = append([]Option{
		WithNotifier(f.sink),
		WithClock(func() time.Time { return f.now }),
	}, opts...)
	f.machine = New(f.db, opts...)
	return f
}

func (f *fixture) equipment(t *testing.T, e store.NewEquipment) *model.Equipment {
	t.Helper()
	if e.TenantID == 0 {
		e.TenantID = f.tenant.ID
	}
	if e.Code == "" {
		e.Code = e.Name
	}
	created, err := store.CreateEquipment(context.Background(), f.db, e)
	if err != nil {
		t.Fatalf("CreateEquipment: %v", err)
	}
	return created
}

// checkout moves e to CHECKED_OUT with an open transaction due at due.
func (f *fixture) checkout(t *testing.T, e *model.Equipment, due time.Time) {
	t.Helper()
	_, err := f.machine.AttemptWith(context.Background(), Request{
		EquipmentID: e.ID,
		Target:      model.StatusCheckedOut,
		Actor:       f.user.Username,
	}, func(ctx context.Context, tx *sql.Tx, e *model.Equipment, at time.Time) error {
		_, err := store.CreateTransaction(ctx, tx, e.ID, f.user.ID, at, due)
		return err
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
}

func (f *fixture) status(t *testing.T, id int64) model.Status {
	t.Helper()
	e, err := store.GetEquipment(context.Background(), f.db, id)
	if err != nil || e == nil {
		t.Fatalf("GetEquipment(%d): %v", id, err)
	}
	return e.Status
}

func (f *fixture) transitions(t *testing.T, id int64) int {
	t.Helper()
	entries, err := store.ListAuditEntries(context.Background(), f.db, store.AuditFilter{
		EntityType: model.EntityEquipment,
		EntityID:   id,
		Action:     model.ActionStatusChange,
	})
	if err != nil {
		t.Fatalf("ListAuditEntries: %v", err)
	}
	return len(entries)
}

// lastTransition decodes the newest STATUS_CHANGE audit entry of equipment id.
func (f *fixture) lastTransition(t *testing.T, id int64) model.StatusTransitionEvent {
	t.Helper()
	entries, err := store.ListAuditEntries(context.Background(), f.db, store.AuditFilter{
		EntityType: model.EntityEquipment,
		EntityID:   id,
		Action:     model.ActionStatusChange,
		Limit:      1,
	})
	if err != nil {
		t.Fatalf("ListAuditEntries: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected a transition for equipment %d", id)
	}
	var event model.StatusTransitionEvent
	if err := json.Unmarshal([]byte(entries[0].Payload), &event); err != nil {
		t.Fatalf("decoding transition: %v", err)
	}
	return event
}

var errBoom = errors.New("boom")
