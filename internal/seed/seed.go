// Package seed imports tenants, locations, users and equipment from a YAML
// fixture file. Importing the same file twice changes nothing.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// File is the root of a fixture file.
type File struct {
	Tenants []Tenant `yaml:"tenants"`
}

// Tenant lists what to create for one tenant.
type Tenant struct {
	Name      string      `yaml:"name"`
	Locations []string    `yaml:"locations"`
	Users     []User      `yaml:"users"`
	Equipment []Equipment `yaml:"equipment"`
}

// User is a fixture user. Passwords are stored hashed.
type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// Equipment is a fixture item. Location refers to a location by name.
type Equipment struct {
	Name            string     `yaml:"name"`
	Code            string     `yaml:"code"`
	Description     string     `yaml:"description"`
	Category        string     `yaml:"category"`
	Location        string     `yaml:"location"`
	Condition       string     `yaml:"condition"`
	Value           float64    `yaml:"value"`
	LastMaintenance *time.Time `yaml:"last_maintenance"`
}

// Summary counts the rows an import created.
type Summary struct {
	Tenants   int `json:"tenants"`
	Locations int `json:"locations"`
	Users     int `json:"users"`
	Equipment int `json:"equipment"`
}

// Parse decodes and validates a fixture file.
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding fixtures: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	for i, t := range f.Tenants {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("tenant %d: name required", i+1)
		}
		locations := make(map[string]bool, len(t.Locations))
		for _, l := range t.Locations {
			locations[l] = true
		}
		for _, u := range t.Users {
			if u.Username == "" {
				return fmt.Errorf("tenant %q: user without username", t.Name)
			}
			if !model.ValidRole(u.Role) {
				return fmt.Errorf("tenant %q: user %q: invalid role %q", t.Name, u.Username, u.Role)
			}
			if err := model.ValidatePassword(u.Password); err != nil {
				return fmt.Errorf("tenant %q: user %q: %w", t.Name, u.Username, err)
			}
		}
		for _, e := range t.Equipment {
			if e.Name == "" || e.Code == "" {
				return fmt.Errorf("tenant %q: equipment needs a name and a code", t.Name)
			}
			if e.Location != "" && !locations[e.Location] {
				return fmt.Errorf("tenant %q: equipment %q: unknown location %q", t.Name, e.Code, e.Location)
			}
		}
	}
	return nil
}

// Apply imports f in a single database transaction. Existing tenants,
// locations and users are matched by name, and equipment by code.
func Apply(ctx context.Context, db *sql.DB, f *File) (Summary, error) {
	var sum Summary

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return sum, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range f.Tenants {
		if err := applyTenant(ctx, tx, t, &sum); err != nil {
			return Summary{}, fmt.Errorf("tenant %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("committing fixtures: %w", err)
	}
	return sum, nil
}

func applyTenant(ctx context.Context, tx *sql.Tx, t Tenant, sum *Summary) error {
	tenant, err := store.GetTenantByName(ctx, tx, t.Name)
	if err != nil {
		return err
	}
	if tenant == nil {
		if tenant, err = store.CreateTenant(ctx, tx, t.Name); err != nil {
			return err
		}
		sum.Tenants++
	}

	locationIDs := make(map[string]int64, len(t.Locations))
	for _, name := range t.Locations {
		loc, err := store.GetLocationByName(ctx, tx, tenant.ID, name)
		if err != nil {
			return err
		}
		if loc == nil {
			if loc, err = store.CreateLocation(ctx, tx, tenant.ID, name); err != nil {
				return err
			}
			sum.Locations++
		}
		locationIDs[name] = loc.ID
	}

	for _, u := range t.Users {
		existing, err := store.GetUserByUsername(ctx, tx, u.Username)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.TenantID != tenant.ID {
				return fmt.Errorf("user %q belongs to another tenant", u.Username)
			}
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		if _, err := store.CreateUser(ctx, tx, tenant.ID, u.Username, string(hash), u.Role); err != nil {
			return err
		}
		sum.Users++
	}

	for _, e := range t.Equipment {
		existing, err := store.GetEquipmentByCode(ctx, tx, tenant.ID, e.Code)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		item := store.NewEquipment{
			TenantID:            tenant.ID,
			Name:                e.Name,
			Code:                e.Code,
			Description:         e.Description,
			Category:            e.Category,
			Condition:           e.Condition,
			Value:               e.Value,
			LastMaintenanceDate: e.LastMaintenance,
		}
		if id, ok := locationIDs[e.Location]; ok {
			item.LocationID = &id
		}
		if _, err := store.CreateEquipment(ctx, tx, item); err != nil {
			return err
		}
		sum.Equipment++
	}
	return nil
}
