// Package api is the HTTP surface of oprema: a JSON API over the workflow,
// transaction and command services, and an MCP tool server.
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/oprema/internal/command"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/resolver"
	"github.com/erazemk/oprema/internal/transaction"
	"github.com/erazemk/oprema/internal/workflow"
)

// Deps holds the services the router dispatches to.
type Deps struct {
	DB           *sql.DB
	JWTSecret    string
	Machine      *workflow.Machine
	Sweeper      *workflow.Sweeper
	Transactions *transaction.Service
	Resolver     *resolver.Resolver
	Interpreter  *command.Interpreter
	Executor     *command.Executor
	Metrics      *metrics.Metrics
	LoanPeriod   time.Duration
}

// NewRouter creates the router with all endpoints registered.
func NewRouter(deps Deps) http.Handler {
	authHandler := &AuthHandler{DB: deps.DB, JWTSecret: deps.JWTSecret}
	usersHandler := &UsersHandler{DB: deps.DB}
	locationsHandler := &LocationsHandler{DB: deps.DB}
	equipmentHandler := &EquipmentHandler{DB: deps.DB, Machine: deps.Machine, Resolver: deps.Resolver}
	transactionsHandler := &TransactionsHandler{DB: deps.DB, Transactions: deps.Transactions, LoanPeriod: deps.LoanPeriod}
	commandsHandler := &CommandsHandler{Interpreter: deps.Interpreter, Executor: deps.Executor}
	workflowHandler := &WorkflowHandler{DB: deps.DB, Sweeper: deps.Sweeper}

	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	r := chi.NewRouter()
	r.Use(LoggingMiddleware)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Public: login.
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(deps.JWTSecret, deps.DB))

			r.Put("/auth/password", authHandler.ChangePassword)
			r.Post("/auth/logout", authHandler.Logout)

			// Users (admin only).
			r.Route("/users", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/", usersHandler.List)
				r.Post("/", usersHandler.Create)
				r.Get("/{id}", usersHandler.Get)
				r.Put("/{id}", usersHandler.Update)
				r.Put("/{id}/password", usersHandler.ResetPassword)
				r.Delete("/{id}", usersHandler.Delete)
			})

			// Locations: read (all roles), write (manager+).
			r.Get("/locations", locationsHandler.List)
			r.With(requireManager).Post("/locations", locationsHandler.Create)
			r.With(requireManager).Delete("/locations/{id}", locationsHandler.Delete)

			// Equipment: read (all roles), write (manager+).
			r.Route("/equipment", func(r chi.Router) {
				r.Get("/", equipmentHandler.List)
				r.Get("/summary", equipmentHandler.Summary)
				r.With(requireManager).Post("/", equipmentHandler.Create)
				r.Get("/{id}", equipmentHandler.Get)
				r.With(requireManager).Put("/{id}", equipmentHandler.Update)
				r.With(requireManager).Delete("/{id}", equipmentHandler.Delete)
				r.Get("/{id}/transitions", equipmentHandler.Transitions)
				r.With(requireManager).Post("/{id}/status", equipmentHandler.Transition)
				r.Get("/{id}/history", equipmentHandler.History)
				r.With(requireManager).Put("/{id}/image", equipmentHandler.UploadImage)
				r.Get("/{id}/image", equipmentHandler.GetImage)
			})

			// Transactions (all roles).
			r.Get("/transactions", transactionsHandler.List)
			r.Post("/transactions/checkout", transactionsHandler.Checkout)
			r.Post("/transactions/{id}/checkin", transactionsHandler.Checkin)

			// Voice commands (all roles).
			r.Post("/commands", commandsHandler.Execute)
			r.Post("/commands/interpret", commandsHandler.Interpret)

			// Workflow (manager+ for notifications, admin for sweeps).
			r.With(requireManager).Get("/notifications", workflowHandler.Notifications)
			r.With(requireAdmin).Post("/workflow/sweep", workflowHandler.Sweep)
		})
	})

	return r
}
