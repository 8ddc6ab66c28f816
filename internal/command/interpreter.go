package command

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/resolver"
)

// Resolver finds equipment from spoken text.
type Resolver interface {
	Resolve(ctx context.Context, tenantID int64, query string) (resolver.Match, error)
	Search(ctx context.Context, tenantID int64, query string) ([]model.Equipment, error)
}

var tracer = otel.Tracer("github.com/erazemk/oprema/internal/command")

// Interpreter classifies utterances. It never fails: anything it cannot
// classify comes back as UNKNOWN.
type Interpreter struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewInterpreter creates an Interpreter. A nil logger uses slog.Default.
func NewInterpreter(r Resolver, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{resolver: r, logger: logger}
}

// Interpret classifies transcript within a tenant. The first matching
// pattern wins with PatternConfidence. Failing that, an utterance that is
// itself close to an equipment name yields an intent guessed from keywords.
func (in *Interpreter) Interpret(ctx context.Context, tenantID int64, transcript string) Intent {
	ctx, span := tracer.Start(ctx, "command.Interpret")
	defer span.End()

	intent := in.interpret(ctx, tenantID, transcript)
	span.SetAttributes(
		attribute.String("intent.kind", string(intent.Kind)),
		attribute.Float64("intent.confidence", intent.Confidence),
	)
	return intent
}

func (in *Interpreter) interpret(ctx context.Context, tenantID int64, transcript string) Intent {
	text := normalize(transcript)
	intent := Intent{Transcript: transcript, Stage: StageInitial, Entities: Entities{}}

	if text != "" {
		for _, pat := range patterns {
			m := pat.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			intent.Kind = pat.kind
			intent.Confidence = PatternConfidence
			intent.Stage = StageParsed

			for i, name := range pat.re.SubexpNames() {
				if name == "" || m[i] == "" {
					continue
				}
				in.fill(ctx, tenantID, intent.Entities, Slot(name), m[i])
			}
			intent.Stage = StageResolved
			return intent
		}

		match, err := in.resolver.Resolve(ctx, tenantID, text)
		if err != nil {
			in.logger.Warn("resolving utterance", "tenant_id", tenantID, "error", err)
		} else if match.Equipment != nil && match.Score > fuzzyIntentScore {
			intent.Kind = guessKind(text)
			intent.Confidence = match.Score * fuzzyDiscount
			intent.Stage = StageParsed
			intent.Entities[SlotEquipment] = EquipmentRef{Equipment: *match.Equipment, Score: match.Score}
			intent.Stage = StageResolved
			return intent
		}
	}

	intent.Kind = KindUnknown
	intent.Confidence = UnknownConfidence
	intent.Stage = StageUnknown
	return intent
}

func (in *Interpreter) fill(ctx context.Context, tenantID int64, entities Entities, slot Slot, text string) {
	switch slot {
	case SlotEquipment:
		entities[slot] = in.resolveEquipment(ctx, tenantID, stripArticle(text))
	case SlotStatus:
		entities[slot] = StatusRef{Status: NormalizeStatus(text)}
	case SlotDuration:
		if days, ok := parseDays(text); ok {
			entities[slot] = DurationRef{Days: days}
		}
	default:
		entities[slot] = FreeText{Text: text}
	}
}

// resolveEquipment returns an EquipmentRef for a confident match and the
// raw text otherwise.
func (in *Interpreter) resolveEquipment(ctx context.Context, tenantID int64, text string) Entity {
	match, err := in.resolver.Resolve(ctx, tenantID, text)
	if err != nil {
		in.logger.Warn("resolving equipment", "tenant_id", tenantID, "query", text, "error", err)
		return FreeText{Text: text}
	}
	if !match.Confident() {
		return FreeText{Text: text}
	}
	return EquipmentRef{Equipment: *match.Equipment, Score: match.Score}
}
