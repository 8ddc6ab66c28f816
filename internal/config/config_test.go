package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DBPath != "oprema.sqlite3" {
		t.Errorf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.Addr)
	}
	if cfg.SweepInterval != time.Hour {
		t.Errorf("expected 1h sweep interval, got %s", cfg.SweepInterval)
	}
	if cfg.OverdueAfter != 72*time.Hour {
		t.Errorf("expected 72h overdue threshold, got %s", cfg.OverdueAfter)
	}
	if cfg.MaintenanceInterval != 30*24*time.Hour {
		t.Errorf("expected 30 day maintenance interval, got %s", cfg.MaintenanceInterval)
	}
	if cfg.ApprovalThreshold != 500 {
		t.Errorf("expected threshold 500, got %v", cfg.ApprovalThreshold)
	}
	if cfg.LoanPeriod != 7*24*time.Hour {
		t.Errorf("expected 7 day loan period, got %s", cfg.LoanPeriod)
	}
	if cfg.OTLPEndpoint != "" {
		t.Errorf("expected tracing export off, got %q", cfg.OTLPEndpoint)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OPREMA_DB", "/var/lib/oprema/db.sqlite3")
	t.Setenv("OPREMA_OVERDUE_AFTER", "24h")
	t.Setenv("OPREMA_APPROVAL_THRESHOLD", "1000.5")
	t.Setenv("OPREMA_OTLP_ENDPOINT", "localhost:4318")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/var/lib/oprema/db.sqlite3" {
		t.Errorf("expected db path from env, got %q", cfg.DBPath)
	}
	if cfg.OverdueAfter != 24*time.Hour {
		t.Errorf("expected 24h, got %s", cfg.OverdueAfter)
	}
	if cfg.ApprovalThreshold != 1000.5 {
		t.Errorf("expected 1000.5, got %v", cfg.ApprovalThreshold)
	}
	if cfg.OTLPEndpoint != "localhost:4318" {
		t.Errorf("expected endpoint from env, got %q", cfg.OTLPEndpoint)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"OPREMA_SWEEP_INTERVAL", "soon", "parse env"},
		{"OPREMA_SWEEP_INTERVAL", "0s", "sweep interval"},
		{"OPREMA_LOAN_PERIOD", "-1h", "loan period"},
		{"OPREMA_APPROVAL_THRESHOLD", "-5", "approval threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
