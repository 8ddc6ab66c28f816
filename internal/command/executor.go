package command

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
	"github.com/erazemk/oprema/internal/transaction"
	"github.com/erazemk/oprema/internal/workflow"
)

const (
	// DefaultLoanPeriod is the checkout length when none was said.
	DefaultLoanPeriod = 7 * 24 * time.Hour

	maxCandidates = 5
	listLimit     = 20

	genericFailure = "Something went wrong while handling that. Please try again."
)

// Transitioner executes status transitions.
type Transitioner interface {
	AttemptTransition(ctx context.Context, req workflow.Request) (*workflow.Result, error)
}

// Transactions lends and takes back equipment.
type Transactions interface {
	Checkout(ctx context.Context, req transaction.CheckoutRequest) (*model.Transaction, error)
	Checkin(ctx context.Context, tenantID, transactionID int64, actor string) (*model.Transaction, error)
	FindOpenTransaction(ctx context.Context, equipmentID int64) (*model.Transaction, error)
}

// Actor is the user a command runs on behalf of.
type Actor struct {
	UserID   int64
	Username string
}

func (a Actor) name() string {
	if a.Username == "" {
		return "anonymous"
	}
	return a.Username
}

// Result is what a command returns to its caller. Failures are results
// too; Kind then holds the model error kind.
type Result struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	Data             any      `json:"data,omitempty"`
	Suggestions      []string `json:"suggestions,omitempty"`
	RequiresApproval bool     `json:"requires_approval,omitempty"`
	Kind             string   `json:"kind,omitempty"`
	Intent           Intent   `json:"intent"`
}

// userError is a rejection with a message meant for the speaker.
type userError struct {
	msg         string
	suggestions []string
	err         error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.err }

// Executor runs classified intents.
type Executor struct {
	db           *sql.DB
	resolver     Resolver
	machine      Transitioner
	transactions Transactions
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
	loanPeriod   time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

func WithMetrics(m *metrics.Metrics) ExecutorOption { return func(x *Executor) { x.metrics = m } }

func WithLogger(l *slog.Logger) ExecutorOption { return func(x *Executor) { x.logger = l } }

func WithClock(now func() time.Time) ExecutorOption { return func(x *Executor) { x.now = now } }

func WithLoanPeriod(d time.Duration) ExecutorOption {
	return func(x *Executor) {
		if d > 0 {
			x.loanPeriod = d
		}
	}
}

// NewExecutor creates an Executor.
func NewExecutor(db *sql.DB, r Resolver, machine Transitioner, transactions Transactions, opts ...ExecutorOption) *Executor {
	x := &Executor{
		db:           db,
		resolver:     r,
		machine:      machine,
		transactions: transactions,
		logger:       slog.Default(),
		now:          time.Now,
		loanPeriod:   DefaultLoanPeriod,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Execute runs intent for actor within a tenant. It never fails: every
// outcome, including errors, is a Result, and every call writes exactly one
// VOICE_COMMAND audit entry.
func (x *Executor) Execute(ctx context.Context, intent Intent, actor Actor, tenantID int64) Result {
	ctx, span := tracer.Start(ctx, "command.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("intent.kind", string(intent.Kind)),
		attribute.Int64("tenant.id", tenantID),
	)

	res, equipmentID, err := x.run(ctx, intent, actor, tenantID)
	if err != nil {
		res = x.failure(intent, tenantID, err)
		span.SetStatus(codes.Error, res.Kind)
	} else {
		res.Success = true
	}
	if intent.Stage != StageUnknown {
		intent.Stage = StageExecuted
	}
	res.Intent = intent

	x.metrics.Command(string(intent.Kind), res.Success)
	x.record(ctx, intent, actor, tenantID, equipmentID, res)
	return res
}

func (x *Executor) run(ctx context.Context, intent Intent, actor Actor, tenantID int64) (Result, int64, error) {
	if intent.Kind == KindUnknown || intent.Confidence < MinConfidence {
		return Result{}, 0, &userError{
			msg:         "Sorry, I didn't understand that. Could you rephrase it?",
			suggestions: exampleCommands(),
			err:         model.ErrLowConfidence,
		}
	}

	switch intent.Kind {
	case KindHelp:
		return help(), 0, nil
	case KindList:
		res, err := x.list(ctx, intent, tenantID)
		return res, 0, err
	}

	e, err := x.equipment(ctx, intent, tenantID)
	if err != nil {
		return Result{}, 0, err
	}

	var res Result
	switch intent.Kind {
	case KindCheckout:
		res, err = x.checkout(ctx, intent, actor, tenantID, e)
	case KindCheckin:
		res, err = x.checkin(ctx, actor, tenantID, e)
	case KindSetStatus:
		res, err = x.setStatus(ctx, intent, actor, tenantID, e)
	case KindFind, KindGetStatus:
		res, err = x.describe(ctx, e)
	default:
		err = &userError{msg: "I can't do that yet.", suggestions: exampleCommands(), err: model.ErrLowConfidence}
	}
	return res, e.ID, err
}

// equipment turns the intent's equipment entity into a current record.
// Free text is searched; it must match exactly one item.
func (x *Executor) equipment(ctx context.Context, intent Intent, tenantID int64) (*model.Equipment, error) {
	switch ent := intent.Entities[SlotEquipment].(type) {
	case EquipmentRef:
		e, err := store.GetEquipment(ctx, x.db, ent.Equipment.ID)
		if err != nil {
			return nil, &model.FatalError{Op: "loading equipment", Err: err}
		}
		if e == nil || e.DeletedAt != nil || e.TenantID != tenantID {
			return nil, &userError{msg: fmt.Sprintf("%s no longer exists.", ent.Equipment.Name), err: model.ErrNotFound}
		}
		return e, nil

	case FreeText:
		found, err := x.resolver.Search(ctx, tenantID, ent.Text)
		if err != nil {
			return nil, &model.FatalError{Op: "searching equipment", Err: err}
		}
		switch len(found) {
		case 0:
			return nil, &userError{msg: fmt.Sprintf("I couldn't find any equipment matching %q.", ent.Text), err: model.ErrNotFound}
		case 1:
			return &found[0], nil
		default:
			return nil, &model.AmbiguousError{Query: ent.Text, Candidates: found[:min(len(found), maxCandidates)]}
		}
	}

	return nil, &userError{
		msg: "Which equipment do you mean?",
		err: &model.RuleViolationError{Reason: "no equipment was named"},
	}
}

func (x *Executor) checkout(ctx context.Context, intent Intent, actor Actor, tenantID int64, e *model.Equipment) (Result, error) {
	if actor.UserID == 0 {
		return Result{}, &userError{
			msg: "You need to be signed in to check out equipment.",
			err: &model.RuleViolationError{Reason: "checkout requires a user"},
		}
	}

	period := x.loanPeriod
	if d, ok := intent.Entities[SlotDuration].(DurationRef); ok {
		period = time.Duration(d.Days) * 24 * time.Hour
	}
	due := x.now().Add(period)

	t, err := x.transactions.Checkout(ctx, transaction.CheckoutRequest{
		TenantID:    tenantID,
		EquipmentID: e.ID,
		UserID:      actor.UserID,
		Actor:       actor.name(),
		DueDate:     due,
		Metadata:    map[string]any{"source": "command", "transcript": intent.Transcript},
	})
	if err != nil {
		return Result{}, x.explainTransition(e, model.StatusCheckedOut, err)
	}

	return Result{
		Message: fmt.Sprintf("%s is checked out to you until %s.", e.Name, due.Format("Mon, Jan 2")),
		Data:    t,
	}, nil
}

func (x *Executor) checkin(ctx context.Context, actor Actor, tenantID int64, e *model.Equipment) (Result, error) {
	open, err := x.transactions.FindOpenTransaction(ctx, e.ID)
	if err != nil {
		return Result{}, err
	}
	if open == nil {
		return Result{}, &userError{
			msg: fmt.Sprintf("%s is not checked out.", e.Name),
			err: &model.RuleViolationError{Reason: "no open transaction"},
		}
	}

	t, err := x.transactions.Checkin(ctx, tenantID, open.ID, actor.name())
	if err != nil {
		return Result{}, x.explainTransition(e, model.StatusAvailable, err)
	}

	msg := fmt.Sprintf("%s has been returned. Thanks!", e.Name)
	if open.Status == model.TxOverdue {
		msg = fmt.Sprintf("%s has been returned. It was overdue since %s.", e.Name, open.DueDate.Format("Mon, Jan 2"))
	}
	return Result{Message: msg, Data: t}, nil
}

func (x *Executor) setStatus(ctx context.Context, intent Intent, actor Actor, tenantID int64, e *model.Equipment) (Result, error) {
	ref, ok := intent.Entities[SlotStatus].(StatusRef)
	if !ok {
		return Result{}, &userError{
			msg:         fmt.Sprintf("Which status should %s have?", e.Name),
			suggestions: statusPhrases(workflow.Allowed(e.Status)),
			err:         &model.RuleViolationError{Reason: "no status was named"},
		}
	}
	target, known := model.ParseStatus(string(ref.Status))
	if !known {
		return Result{}, &userError{
			msg:         fmt.Sprintf("%q is not a status I know.", strings.ToLower(string(ref.Status))),
			suggestions: statusPhrases(workflow.Allowed(e.Status)),
			err:         fmt.Errorf("unknown status %q: %w", ref.Status, model.ErrInvalidTransition),
		}
	}

	if target == model.StatusCheckedOut {
		return x.checkout(ctx, intent, actor, tenantID, e)
	}

	reason := intent.Entities.Text(SlotReason)
	if reason == "" && target == model.StatusDamaged {
		reason = "reported by voice: " + intent.Transcript
	}

	wr, err := x.machine.AttemptTransition(ctx, workflow.Request{
		TenantID:    tenantID,
		EquipmentID: e.ID,
		Target:      target,
		Actor:       actor.name(),
		Reason:      reason,
		Metadata: map[string]any{
			"source":     "command",
			"transcript": intent.Transcript,
			"confidence": intent.Confidence,
		},
	})
	if err != nil {
		return Result{}, x.explainTransition(e, target, err)
	}

	msg := fmt.Sprintf("%s is now %s.", e.Name, target.Phrase())
	if wr.RequiresApproval {
		msg += " The change has been flagged for approval."
	}
	return Result{Message: msg, Data: wr, RequiresApproval: wr.RequiresApproval}, nil
}

// explainTransition rewords graph rejections for the speaker.
func (x *Executor) explainTransition(e *model.Equipment, target model.Status, err error) error {
	if !errors.Is(err, model.ErrInvalidTransition) {
		return err
	}
	if workflow.IsTerminal(e.Status) {
		return &userError{msg: fmt.Sprintf("%s is %s and can't change status.", e.Name, e.Status.Phrase()), err: err}
	}
	return &userError{
		msg:         fmt.Sprintf("%s is %s, so it can't be %s.", e.Name, e.Status.Phrase(), target.Phrase()),
		suggestions: statusPhrases(workflow.Allowed(e.Status)),
		err:         err,
	}
}

func (x *Executor) describe(ctx context.Context, e *model.Equipment) (Result, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) is %s", e.Name, e.Code, e.Status.Phrase())

	data := map[string]any{"equipment": e}
	if e.Status == model.StatusCheckedOut || e.Status == model.StatusOverdue {
		open, err := x.transactions.FindOpenTransaction(ctx, e.ID)
		if err != nil {
			return Result{}, err
		}
		if open != nil {
			fmt.Fprintf(&b, " by %s, due %s", open.HolderName, open.DueDate.Format("Mon, Jan 2"))
			data["transaction"] = open
		}
	}
	if e.LocationName != "" {
		if e.Status == model.StatusCheckedOut || e.Status == model.StatusOverdue {
			fmt.Fprintf(&b, ". It is normally kept at %s", e.LocationName)
		} else {
			fmt.Fprintf(&b, " at %s", e.LocationName)
		}
	}
	b.WriteString(".")

	return Result{Message: b.String(), Data: data}, nil
}

func (x *Executor) list(ctx context.Context, intent Intent, tenantID int64) (Result, error) {
	filter := store.EquipmentFilter{TenantID: tenantID, Limit: listLimit}
	if ref, ok := intent.Entities[SlotStatus].(StatusRef); ok {
		s, known := model.ParseStatus(string(ref.Status))
		if !known {
			return Result{}, &userError{
				msg:         fmt.Sprintf("%q is not a status I know.", strings.ToLower(string(ref.Status))),
				suggestions: statusPhrases(model.Statuses),
				err:         &model.RuleViolationError{Reason: "unknown status"},
			}
		}
		filter.Status = s
	}

	items, err := store.ListEquipment(ctx, x.db, filter)
	if err != nil {
		return Result{}, &model.FatalError{Op: "listing equipment", Err: err}
	}
	counts, err := store.CountEquipmentByStatus(ctx, x.db, tenantID)
	if err != nil {
		return Result{}, &model.FatalError{Op: "counting equipment", Err: err}
	}

	data := map[string]any{"equipment": items, "counts": counts}

	if filter.Status != "" {
		if len(items) == 0 {
			return Result{Message: fmt.Sprintf("No equipment is %s.", filter.Status.Phrase()), Data: data}, nil
		}
		names := make([]string, len(items))
		for i, e := range items {
			names[i] = e.Name
		}
		return Result{
			Message: fmt.Sprintf("%d %s %s: %s.", counts[filter.Status], plural(counts[filter.Status], "item is", "items are"),
				filter.Status.Phrase(), strings.Join(names, ", ")),
			Data: data,
		}, nil
	}

	total := 0
	var parts []string
	for _, s := range model.Statuses {
		if n := counts[s]; n > 0 {
			total += n
			parts = append(parts, fmt.Sprintf("%d %s", n, s.Phrase()))
		}
	}
	if total == 0 {
		return Result{Message: "There is no equipment yet.", Data: data}, nil
	}
	return Result{
		Message: fmt.Sprintf("You have %d %s: %s.", total, plural(total, "item", "items"), strings.Join(parts, ", ")),
		Data:    data,
	}, nil
}

// failure turns err into an unsuccessful Result. Fatal errors are logged
// and replaced by a generic message.
func (x *Executor) failure(intent Intent, tenantID int64, err error) Result {
	res := Result{Kind: model.ErrorKind(err)}

	var ue *userError
	var amb *model.AmbiguousError
	var rule *model.RuleViolationError
	switch {
	case errors.As(err, &ue):
		res.Message = ue.msg
		res.Suggestions = ue.suggestions
	case errors.As(err, &amb):
		names := make([]string, len(amb.Candidates))
		for i, c := range amb.Candidates {
			names[i] = fmt.Sprintf("%s (%s)", c.Name, c.Code)
		}
		res.Message = fmt.Sprintf("I found several matches for %q: %s. Which one did you mean?", amb.Query, strings.Join(names, ", "))
		res.Suggestions = names
		res.Data = map[string]any{"candidates": amb.Candidates}
	case errors.As(err, &rule):
		res.Message = capitalize(rule.Reason) + "."
	case res.Kind == model.KindFatal:
		x.logger.Error("executing command", "tenant_id", tenantID, "intent", intent.Kind,
			"transcript", intent.Transcript, "error", err)
		res.Message = genericFailure
	default:
		res.Message = capitalize(err.Error()) + "."
	}
	return res
}

// record writes the VOICE_COMMAND audit entry. A failed write is logged;
// it does not change the result.
func (x *Executor) record(ctx context.Context, intent Intent, actor Actor, tenantID, equipmentID int64, res Result) {
	event := model.VoiceCommandEvent{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		EquipmentID: equipmentID,
		Actor:       actor.name(),
		Transcript:  intent.Transcript,
		Intent:      string(intent.Kind),
		Confidence:  intent.Confidence,
		Entities:    intent.EntityStrings(),
		Success:     res.Success,
		Message:     res.Message,
		CreatedAt:   x.now(),
	}
	payload, err := json.Marshal(event)
	if err == nil {
		err = store.InsertAuditEntry(context.WithoutCancel(ctx), x.db, model.AuditEntry{
			ID:         event.ID,
			TenantID:   tenantID,
			EntityType: model.EntityEquipment,
			EntityID:   equipmentID,
			Action:     model.ActionVoiceCommand,
			Actor:      event.Actor,
			Payload:    string(payload),
			CreatedAt:  event.CreatedAt,
		})
	}
	if err != nil {
		x.logger.Error("recording command", "tenant_id", tenantID, "transcript", intent.Transcript, "error", err)
	}
}

func statusPhrases(statuses []model.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.Phrase()
	}
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
