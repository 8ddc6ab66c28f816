package command

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/resolver"
	"github.com/erazemk/oprema/internal/store"
	"github.com/erazemk/oprema/internal/transaction"
	"github.com/erazemk/oprema/internal/workflow"
)

type fixture struct {
	db     *sql.DB
	tenant *model.Tenant
	user   *model.User
	now    time.Time
	interp *Interpreter
	exec   *Executor
	items  map[string]*model.Equipment
}

func newFixture(t *testing.T, items ...store.NewEquipment) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		db:    db.NewTestDB(t),
		now:   time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC),
		items: make(map[string]*model.Equipment),
	}
	clock := func() time.Time { return f.now }

	var err error
	if f.tenant, err = store.CreateTenant(ctx, f.db, "Acme School"); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	if f.user, err = store.CreateUser(ctx, f.db, f.tenant.ID, "alice", "hash", model.RoleUser); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	for _, item := range items {
		item.TenantID = f.tenant.ID
		e, err := store.CreateEquipment(ctx, f.db, item)
		if err != nil {
			t.Fatalf("CreateEquipment: %v", err)
		}
		f.items[e.Name] = e
	}

	r := resolver.New(f.db)
	machine := workflow.New(f.db, workflow.WithClock(clock), workflow.OnTransition(r.Invalidate))
	svc := transaction.NewService(f.db, machine, transaction.WithClock(clock))

	f.interp = NewInterpreter(r, nil)
	f.exec = NewExecutor(f.db, r, machine, svc, WithClock(clock))
	return f
}

func (f *fixture) say(t *testing.T, transcript string) Result {
	t.Helper()
	ctx := context.Background()
	intent := f.interp.Interpret(ctx, f.tenant.ID, transcript)
	return f.exec.Execute(ctx, intent, Actor{UserID: f.user.ID, Username: f.user.Username}, f.tenant.ID)
}

func (f *fixture) status(t *testing.T, name string) model.Status {
	t.Helper()
	e, err := store.GetEquipment(context.Background(), f.db, f.items[name].ID)
	if err != nil || e == nil {
		t.Fatalf("GetEquipment(%s): %v", name, err)
	}
	return e.Status
}

func (f *fixture) audit(t *testing.T, action string) []model.AuditEntry {
	t.Helper()
	entries, err := store.ListAuditEntries(context.Background(), f.db, store.AuditFilter{TenantID: f.tenant.ID, Action: action})
	if err != nil {
		t.Fatalf("ListAuditEntries: %v", err)
	}
	return entries
}

func (f *fixture) transactions(t *testing.T) []model.Transaction {
	t.Helper()
	list, err := store.ListTransactions(context.Background(), f.db, store.TransactionFilter{TenantID: f.tenant.ID})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	return list
}

func corpus() []store.NewEquipment {
	return []store.NewEquipment{
		{Name: "Basketball 1", Code: "BB1-001", Value: 30},
		{Name: "Projector", Code: "PRJ-1", Value: 900},
		{Name: "Volleyball Net", Code: "VN-1", Value: 120},
	}
}
