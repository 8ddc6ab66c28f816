// Package config loads oprema's runtime configuration from OPREMA_*
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the server and the CLI. Command-line flags
// override the values loaded here.
type Config struct {
	DBPath    string `env:"OPREMA_DB"         envDefault:"oprema.sqlite3"`
	Addr      string `env:"OPREMA_ADDR"       envDefault:":8080"`
	AdminUser string `env:"OPREMA_ADMIN_USER" envDefault:"Admin"`
	Tenant    string `env:"OPREMA_TENANT"     envDefault:"Default"`
	LogPath   string `env:"OPREMA_LOG"`

	SweepInterval       time.Duration `env:"OPREMA_SWEEP_INTERVAL"        envDefault:"1h"`
	OverdueAfter        time.Duration `env:"OPREMA_OVERDUE_AFTER"         envDefault:"72h"`
	MaintenanceInterval time.Duration `env:"OPREMA_MAINTENANCE_INTERVAL"  envDefault:"720h"`
	ResolverTTL         time.Duration `env:"OPREMA_RESOLVER_TTL"          envDefault:"5m"`
	ApprovalThreshold   float64       `env:"OPREMA_APPROVAL_THRESHOLD"    envDefault:"500"`
	LoanPeriod          time.Duration `env:"OPREMA_LOAN_PERIOD"           envDefault:"168h"`

	OTLPEndpoint string `env:"OPREMA_OTLP_ENDPOINT"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the services cannot run with.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"sweep interval":       c.SweepInterval,
		"overdue threshold":    c.OverdueAfter,
		"maintenance interval": c.MaintenanceInterval,
		"resolver ttl":         c.ResolverTTL,
		"loan period":          c.LoanPeriod,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.ApprovalThreshold < 0 {
		return fmt.Errorf("approval threshold must not be negative, got %v", c.ApprovalThreshold)
	}
	return nil
}
