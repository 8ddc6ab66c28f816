package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/oprema/internal/api"
	"github.com/erazemk/oprema/internal/seed"
	"github.com/erazemk/oprema/internal/store"
	"github.com/erazemk/oprema/internal/telemetry"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic sweep",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		shutdownTracing, err := telemetry.Setup(ctx, "oprema", cfg.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer shutdownTracing(context.Background())

		a, err := openApp(cfg, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		// Load JWT secret from database (auto-generated on first run).
		jwtSecret, err := store.GetJWTSecret(ctx, a.db)
		if err != nil {
			return fmt.Errorf("getting JWT secret: %w", err)
		}

		srv := &http.Server{
			Addr: cfg.Addr,
			Handler: api.NewRouter(api.Deps{
				DB:           a.db,
				JWTSecret:    jwtSecret,
				Machine:      a.machine,
				Sweeper:      a.sweeper,
				Transactions: a.transactions,
				Resolver:     a.resolver,
				Interpreter:  a.interpreter,
				Executor:     a.executor,
				Metrics:      a.metrics,
				LoanPeriod:   cfg.LoanPeriod,
			}),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			slog.Info("server started", "addr", cfg.Addr, "version", version)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			slog.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("server forced to shutdown", "error", err)
			}
			return nil
		})
		g.Go(func() error {
			slog.Info("sweeper started", "interval", cfg.SweepInterval)
			if err := a.sweeper.Run(gctx, cfg.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("sweeper: %w", err)
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}
		slog.Info("server stopped, closing database")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "listen address (default: :8080)")
}

// --- sweep ---

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark overdue and maintenance-due equipment once",
	Long: `Mark overdue and maintenance-due equipment once.

Without --tenant every tenant is swept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		if !cmd.Flags().Changed("tenant") {
			report, err := a.sweeper.SweepAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		}

		tenant, err := store.GetTenantByName(ctx, a.db, cfg.Tenant)
		if err != nil {
			return err
		}
		if tenant == nil {
			return fmt.Errorf("tenant %q not found", cfg.Tenant)
		}
		counts, err := a.sweeper.Sweep(ctx, tenant.ID)
		if perr := printJSON(cmd.OutOrStdout(), counts); perr != nil {
			return perr
		}
		return err
	},
}

// --- say ---

var sayCmd = &cobra.Command{
	Use:   "say <transcript>",
	Short: "Run a voice command transcript",
	Long: `Run a voice command transcript as --user in --tenant.

Examples:
  oprema say check out basketball one for 3 days
  oprema say --dry-run "send the projector to maintenance"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, actor, err := a.actor(ctx, cfg.Tenant, cfg.AdminUser)
		if err != nil {
			return err
		}

		intent := a.interpreter.Interpret(ctx, tenant.ID, strings.Join(args, " "))
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"intent":   intent,
				"entities": intent.EntityStrings(),
			})
		}

		res := a.executor.Execute(ctx, intent, actor, tenant.ID)
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if !res.Success {
			return errors.New(res.Message)
		}
		return nil
	},
}

func init() {
	sayCmd.Flags().Bool("dry-run", false, "only show how the transcript is understood")
}

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Import tenants, locations, users and equipment from YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening fixtures: %w", err)
		}
		defer f.Close()

		fixtures, err := seed.Parse(f)
		if err != nil {
			return err
		}

		a, err := openApp(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := seed.Apply(ctx, a.db, fixtures)
		if err != nil {
			return err
		}
		slog.Info("fixtures imported", "file", args[0], "tenants", sum.Tenants, "locations", sum.Locations,
			"users", sum.Users, "equipment", sum.Equipment)
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve voice commands over MCP on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(cfg, os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		tenant, actor, err := a.actor(ctx, cfg.Tenant, cfg.AdminUser)
		if err != nil {
			return err
		}

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			DB:          a.db,
			Interpreter: a.interpreter,
			Executor:    a.executor,
			Resolver:    a.resolver,
			TenantID:    tenant.ID,
			Actor:       actor,
		}, version)

		slog.Info("MCP server started (stdio transport)", "tenant", tenant.Name, "user", actor.Username)
		if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}
