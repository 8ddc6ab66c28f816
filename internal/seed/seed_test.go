package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

const fixtures = `
tenants:
  - name: Acme School
    locations: [Gym, Storage Room]
    users:
      - username: coach
        password: whistle123
        role: manager
    equipment:
      - name: Basketball 1
        code: BB1-001
        category: balls
        location: Gym
        value: 30
        last_maintenance: 2026-01-10T00:00:00Z
      - name: Projector
        code: PRJ-1
        location: Storage Room
        value: 900
  - name: Riverside Club
    equipment:
      - name: Volleyball Net
        code: VN-1
`

func TestApply(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	f, err := Parse(strings.NewReader(fixtures))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	sum, err := Apply(ctx, database, f)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if sum != (Summary{Tenants: 2, Locations: 2, Users: 1, Equipment: 3}) {
		t.Errorf("unexpected summary %+v", sum)
	}

	acme, _ := store.GetTenantByName(ctx, database, "Acme School")
	e, _ := store.GetEquipmentByCode(ctx, database, acme.ID, "BB1-001")
	if e == nil {
		t.Fatal("expected BB1-001 to exist")
	}
	if e.LocationName != "Gym" || e.Status != model.StatusAvailable {
		t.Errorf("unexpected equipment %+v", e)
	}
	if e.LastMaintenanceDate == nil || e.LastMaintenanceDate.Day() != 10 {
		t.Errorf("expected last maintenance on the 10th, got %v", e.LastMaintenanceDate)
	}

	coach, _ := store.GetUserByUsername(ctx, database, "coach")
	if coach == nil || coach.TenantID != acme.ID || coach.Role != model.RoleManager {
		t.Errorf("unexpected coach %+v", coach)
	}
	if coach != nil && coach.PasswordHash == "whistle123" {
		t.Error("expected hashed password")
	}
}

func TestApplyTwiceIsNoop(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f, _ := Parse(strings.NewReader(fixtures))

	if _, err := Apply(ctx, database, f); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	sum, err := Apply(ctx, database, f)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if sum != (Summary{}) {
		t.Errorf("expected nothing created, got %+v", sum)
	}
}

func TestParseRejectsInvalidFixtures(t *testing.T) {
	tests := []struct {
		name, yaml, want string
	}{
		{"unknown field", "tenants:\n  - name: A\n    colour: red\n", "colour"},
		{"missing tenant name", "tenants:\n  - locations: [Gym]\n", "name required"},
		{"bad role", "tenants:\n  - name: A\n    users:\n      - {username: x, password: longenough, role: janitor}\n", "invalid role"},
		{"short password", "tenants:\n  - name: A\n    users:\n      - {username: x, password: short, role: user}\n", "password"},
		{"unknown location", "tenants:\n  - name: A\n    equipment:\n      - {name: Ball, code: B-1, location: Roof}\n", "unknown location"},
		{"missing code", "tenants:\n  - name: A\n    equipment:\n      - {name: Ball}\n", "code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestApplyRollsBackOnConflict(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	other, _ := store.CreateTenant(ctx, database, "Other")
	store.CreateUser(ctx, database, other.ID, "coach", "hash", model.RoleUser)

	f, _ := Parse(strings.NewReader(fixtures))
	if _, err := Apply(ctx, database, f); err == nil {
		t.Fatal("expected error for user of another tenant")
	}

	if tenant, _ := store.GetTenantByName(ctx, database, "Acme School"); tenant != nil {
		t.Error("expected the import to be rolled back")
	}
}
