package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role     string
		minimum  string
		expected bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleManager, true},
		{RoleAdmin, RoleUser, true},
		{RoleManager, RoleAdmin, false},
		{RoleManager, RoleManager, true},
		{RoleManager, RoleUser, true},
		{RoleUser, RoleAdmin, false},
		{RoleUser, RoleManager, false},
		{RoleUser, RoleUser, true},
		// Unknown roles fail-closed.
		{"unknown", RoleUser, false},
		{RoleAdmin, "unknown", false},
		{"", "", false},
		{"", RoleUser, false},
	}

	for _, tt := range tests {
		got := RoleAtLeast(tt.role, tt.minimum)
		if got != tt.expected {
			t.Errorf("RoleAtLeast(%q, %q) = %v, want %v", tt.role, tt.minimum, got, tt.expected)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"", true},
		{"short", true},
		{strings.Repeat("x", MinPasswordLength-1), true},
		{strings.Repeat("x", MinPasswordLength), false},
		{"a-valid-password", false},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}

func TestValidatePasswordMessage(t *testing.T) {
	err := ValidatePassword("short")
	if err == nil || !strings.Contains(err.Error(), "8 characters") {
		t.Errorf("expected minimum length in error, got %v", err)
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleManager, RoleUser} {
		if !ValidRole(role) {
			t.Errorf("expected %q to be valid", role)
		}
	}
	for _, role := range []string{"", "Admin", "owner", " user"} {
		if ValidRole(role) {
			t.Errorf("expected %q to be invalid", role)
		}
	}
}

func TestUserTenantIsSerialized(t *testing.T) {
	u := User{ID: 1, TenantID: 7, Username: "alice", PasswordHash: "secret", Role: RoleUser}
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"tenant_id":7`) {
		t.Errorf("expected tenant_id in %s", data)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("expected password hash to be omitted, got %s", data)
	}
}
