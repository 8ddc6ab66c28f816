package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/erazemk/oprema/internal/model"
)

func testTenant(t *testing.T, database *sql.DB, name string) *model.Tenant {
	t.Helper()
	tenant, err := CreateTenant(context.Background(), database, name)
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	return tenant
}

func testEquipment(t *testing.T, database *sql.DB, tenantID int64, name, code string) *model.Equipment {
	t.Helper()
	e, err := CreateEquipment(context.Background(), database, NewEquipment{
		TenantID: tenantID,
		Name:     name,
		Code:     code,
	})
	if err != nil {
		t.Fatalf("CreateEquipment: %v", err)
	}
	return e
}
