package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/model"
)

func TestCreateAndGetEquipment(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	tenant := testTenant(t, database, "Acme")
	loc, err := CreateLocation(ctx, database, tenant.ID, "Gym")
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}

	e, err := CreateEquipment(ctx, database, NewEquipment{
		TenantID:   tenant.ID,
		Name:       "Basketball",
		Code:       "BB-001",
		LocationID: &loc.ID,
		Value:      25,
	})
	if err != nil {
		t.Fatalf("CreateEquipment: %v", err)
	}
	if e.Status != model.StatusAvailable {
		t.Errorf("expected AVAILABLE, got %q", e.Status)
	}
	if e.LocationName != "Gym" {
		t.Errorf("expected location 'Gym', got %q", e.LocationName)
	}
	if e.LastMaintenanceDate != nil {
		t.Errorf("expected no maintenance date, got %v", e.LastMaintenanceDate)
	}

	missing, err := GetEquipment(ctx, database, 999)
	if err != nil {
		t.Fatalf("GetEquipment: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing equipment")
	}
}

func TestEquipmentCodeUniquePerTenant(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	acme := testTenant(t, database, "Acme")
	other := testTenant(t, database, "Other")

	testEquipment(t, database, acme.ID, "Ball", "B-1")
	if _, err := CreateEquipment(ctx, database, NewEquipment{TenantID: acme.ID, Name: "Ball 2", Code: "B-1"}); err == nil {
		t.Error("expected duplicate code to be rejected")
	}
	if _, err := CreateEquipment(ctx, database, NewEquipment{TenantID: other.ID, Name: "Ball", Code: "B-1"}); err != nil {
		t.Errorf("expected same code in another tenant to be accepted, got %v", err)
	}
}

func TestListAndCountEquipment(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	tenant := testTenant(t, database, "Acme")

	a := testEquipment(t, database, tenant.ID, "Ball", "B-1")
	testEquipment(t, database, tenant.ID, "Net", "N-1")
	UpdateEquipmentStatus(ctx, database, a.ID, model.StatusAvailable, model.StatusMaintenance, time.Now())

	all, _ := ListEquipment(ctx, database, EquipmentFilter{TenantID: tenant.ID})
	if len(all) != 2 {
		t.Errorf("expected 2 equipment, got %d", len(all))
	}

	inMaintenance, _ := ListEquipment(ctx, database, EquipmentFilter{TenantID: tenant.ID, Status: model.StatusMaintenance})
	if len(inMaintenance) != 1 || inMaintenance[0].ID != a.ID {
		t.Errorf("expected only Ball in maintenance, got %v", inMaintenance)
	}

	counts, err := CountEquipmentByStatus(ctx, database, tenant.ID)
	if err != nil {
		t.Fatalf("CountEquipmentByStatus: %v", err)
	}
	if counts[model.StatusAvailable] != 1 || counts[model.StatusMaintenance] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestSearchEquipment(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	tenant := testTenant(t, database, "Acme")
	other := testTenant(t, database, "Other")

	testEquipment(t, database, tenant.ID, "Basketball", "BB-001")
	testEquipment(t, database, tenant.ID, "Volleyball", "VB-001")
	testEquipment(t, database, tenant.ID, "Net 50%", "N-1")
	testEquipment(t, database, other.ID, "Basketball", "BB-001")

	got, err := SearchEquipment(ctx, database, tenant.ID, "BALL", 10)
	if err != nil {
		t.Fatalf("SearchEquipment: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 matches, got %d", len(got))
	}

	got, _ = SearchEquipment(ctx, database, tenant.ID, "bb-001", 10)
	if len(got) != 1 || got[0].Name != "Basketball" {
		t.Errorf("expected code match, got %v", got)
	}

	got, _ = SearchEquipment(ctx, database, tenant.ID, "%", 10)
	if len(got) != 1 || got[0].Name != "Net 50%" {
		t.Errorf("expected literal percent match, got %v", got)
	}
}

func TestUpdateEquipmentStatusIsConditional(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	tenant := testTenant(t, database, "Acme")
	e := testEquipment(t, database, tenant.ID, "Ball", "B-1")

	ok, err := UpdateEquipmentStatus(ctx, database, e.ID, model.StatusAvailable, model.StatusCheckedOut, time.Now())
	if err != nil || !ok {
		t.Fatalf("expected update to apply, got %v, %v", ok, err)
	}

	ok, err = UpdateEquipmentStatus(ctx, database, e.ID, model.StatusAvailable, model.StatusMaintenance, time.Now())
	if err != nil {
		t.Fatalf("UpdateEquipmentStatus: %v", err)
	}
	if ok {
		t.Error("expected stale update not to apply")
	}

	got, _ := GetEquipment(ctx, database, e.ID)
	if got.Status != model.StatusCheckedOut {
		t.Errorf("expected CHECKED_OUT, got %q", got.Status)
	}
}

func TestEquipmentImage(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	tenant := testTenant(t, database, "Acme")
	e := testEquipment(t, database, tenant.ID, "Ball", "B-1")

	SetEquipmentImage(ctx, database, e.ID, []byte("fake image data"), "image/png")

	data, mime, err := GetEquipmentImage(ctx, database, e.ID)
	if err != nil {
		t.Fatalf("GetEquipmentImage: %v", err)
	}
	if string(data) != "fake image data" || mime != "image/png" {
		t.Errorf("unexpected image %q (%s)", data, mime)
	}
}

func TestDeleteLocationWithEquipment(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	tenant := testTenant(t, database, "Acme")
	loc, _ := CreateLocation(ctx, database, tenant.ID, "Gym")
	CreateEquipment(ctx, database, NewEquipment{TenantID: tenant.ID, Name: "Ball", Code: "B-1", LocationID: &loc.ID})

	if err := DeleteLocation(ctx, database, loc.ID); err == nil {
		t.Error("expected delete of occupied location to fail")
	}
}

func TestUpdateEquipment(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	tenant := testTenant(t, database, "Acme")
	e := testEquipment(t, database, tenant.ID, "Projector", "PRJ-1")

	err := UpdateEquipment(ctx, database, e.ID, EquipmentUpdate{
		Name:      "Projector HD",
		Code:      "PRJ-2",
		Category:  "AV",
		Condition: "good",
		Value:     950,
	})
	if err != nil {
		t.Fatalf("UpdateEquipment: %v", err)
	}

	got, _ := GetEquipment(ctx, database, e.ID)
	if got.Name != "Projector HD" || got.Code != "PRJ-2" || got.Category != "AV" || got.Value != 950 {
		t.Errorf("unexpected equipment after update: %+v", got)
	}
	if got.Status != model.StatusAvailable {
		t.Errorf("expected status untouched, got %s", got.Status)
	}
}

func TestGetEquipmentByCode(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	acme := testTenant(t, database, "Acme")
	other := testTenant(t, database, "Other")
	e := testEquipment(t, database, acme.ID, "Projector", "PRJ-1")

	got, err := GetEquipmentByCode(ctx, database, acme.ID, "PRJ-1")
	if err != nil || got == nil || got.ID != e.ID {
		t.Errorf("expected projector, got %v (%v)", got, err)
	}

	got, err = GetEquipmentByCode(ctx, database, other.ID, "PRJ-1")
	if err != nil || got != nil {
		t.Errorf("expected nil for other tenant, got %v (%v)", got, err)
	}
}
