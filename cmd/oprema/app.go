package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/oprema/internal/command"
	"github.com/erazemk/oprema/internal/config"
	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/notify"
	"github.com/erazemk/oprema/internal/resolver"
	"github.com/erazemk/oprema/internal/store"
	"github.com/erazemk/oprema/internal/transaction"
	"github.com/erazemk/oprema/internal/workflow"
)

// app is the wired service stack shared by every subcommand.
type app struct {
	cfg          config.Config
	db           *sql.DB
	metrics      *metrics.Metrics
	resolver     *resolver.Resolver
	machine      *workflow.Machine
	sweeper      *workflow.Sweeper
	transactions *transaction.Service
	interpreter  *command.Interpreter
	executor     *command.Executor
}

// openApp opens the database, creating it with a default tenant and admin
// account if it does not exist yet, and builds the services on top of it.
// The first-run banner is written to out.
func openApp(cfg config.Config, out io.Writer) (*app, error) {
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		database, password, err := initDatabase(cfg.DBPath, cfg.Tenant, cfg.AdminUser)
		if err != nil {
			return nil, fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(out, cfg.DBPath, cfg.Tenant, cfg.AdminUser, password)
		fmt.Fprintln(out)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Ensure schema exists (idempotent).
	if err := db.EnsureSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("ensuring database schema: %w", err)
	}

	slog.Info("database ready", "path", cfg.DBPath)
	return newApp(cfg, database), nil
}

func newApp(cfg config.Config, database *sql.DB) *app {
	logger := slog.Default()
	m := metrics.New()
	r := resolver.New(database, resolver.WithTTL(cfg.ResolverTTL))
	machine := workflow.New(database,
		workflow.WithLogger(logger),
		workflow.WithMetrics(m),
		workflow.WithNotifier(notify.NewStoreSink(database, logger)),
		workflow.WithApprovalThreshold(cfg.ApprovalThreshold),
		workflow.OnTransition(r.Invalidate),
	)
	svc := transaction.NewService(database, machine)

	return &app{
		cfg:      cfg,
		db:       database,
		metrics:  m,
		resolver: r,
		machine:  machine,
		sweeper: workflow.NewSweeper(database, machine, workflow.SweepConfig{
			OverdueAfter:        cfg.OverdueAfter,
			MaintenanceInterval: cfg.MaintenanceInterval,
		}),
		transactions: svc,
		interpreter:  command.NewInterpreter(r, logger),
		executor: command.NewExecutor(database, r, machine, svc,
			command.WithMetrics(m),
			command.WithLogger(logger),
			command.WithLoanPeriod(cfg.LoanPeriod),
		),
	}
}

func (a *app) Close() error {
	return a.db.Close()
}

// actor looks up the tenant and user a CLI command runs as.
func (a *app) actor(ctx context.Context, tenantName, username string) (*model.Tenant, command.Actor, error) {
	tenant, err := store.GetTenantByName(ctx, a.db, tenantName)
	if err != nil {
		return nil, command.Actor{}, err
	}
	if tenant == nil {
		return nil, command.Actor{}, fmt.Errorf("tenant %q not found", tenantName)
	}

	user, err := store.GetUserByUsername(ctx, a.db, username)
	if err != nil {
		return nil, command.Actor{}, err
	}
	if user == nil || user.TenantID != tenant.ID {
		return nil, command.Actor{}, fmt.Errorf("user %q not found in tenant %q", username, tenantName)
	}
	return tenant, command.Actor{UserID: user.ID, Username: user.Username}, nil
}

// initDatabase creates a new database, ensures the schema, and creates the
// first tenant with its admin user.
func initDatabase(path, tenantName, adminUsername string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(op string, err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	if err := db.EnsureSchema(database); err != nil {
		return fail("ensuring schema", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail("generating password", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fail("hashing password", err)
	}

	ctx := context.Background()
	tenant, err := store.CreateTenant(ctx, database, tenantName)
	if err != nil {
		return fail("creating tenant", err)
	}
	if _, err := store.CreateUser(ctx, database, tenant.ID, adminUsername, string(hash), model.RoleAdmin); err != nil {
		return fail("creating admin user", err)
	}

	return database, password, nil
}

// printInitResult prints the database initialization result.
func printInitResult(w io.Writer, dbPath, tenant, username, password string) {
	fmt.Fprintf(w, "Database created: %s\n", dbPath)
	fmt.Fprintln(w, "Schema initialized.")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Admin account created in tenant %s:\n", tenant)
	fmt.Fprintf(w, "  Username: %s\n", username)
	fmt.Fprintf(w, "  Password: %s\n", password)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Save this password, it cannot be recovered.")
	fmt.Fprintln(w, "The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
