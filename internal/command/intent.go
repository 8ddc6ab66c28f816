// Package command turns free-form utterances into intents and executes them
// against the workflow and transaction services.
package command

import (
	"encoding/json"
	"strconv"

	"github.com/erazemk/oprema/internal/model"
)

// Kind classifies what an utterance asks for.
type Kind string

// Intent kinds.
const (
	KindCheckout  Kind = "CHECKOUT"
	KindCheckin   Kind = "CHECKIN"
	KindFind      Kind = "FIND"
	KindSetStatus Kind = "SET_STATUS"
	KindGetStatus Kind = "GET_STATUS"
	KindList      Kind = "LIST"
	KindHelp      Kind = "HELP"
	KindUnknown   Kind = "UNKNOWN"
)

// Stage tracks how far an intent got through interpretation and execution.
type Stage string

// Stages. INITIAL leads to PARSED then RESOLVED then EXECUTED, or straight
// to UNKNOWN when nothing matched.
const (
	StageInitial  Stage = "INITIAL"
	StageParsed   Stage = "PARSED"
	StageResolved Stage = "RESOLVED"
	StageExecuted Stage = "EXECUTED"
	StageUnknown  Stage = "UNKNOWN"
)

// Confidence levels.
const (
	PatternConfidence = 0.85
	UnknownConfidence = 0.1

	// MinConfidence is the confidence below which nothing is executed.
	MinConfidence = 0.5

	// fuzzyIntentScore is the whole-utterance match score needed to guess
	// an intent when no pattern matched.
	fuzzyIntentScore = 0.7
	fuzzyDiscount    = 0.8
)

// Slot names the role an entity plays in an intent.
type Slot string

// Slots.
const (
	SlotEquipment Slot = "equipment"
	SlotStatus    Slot = "status"
	SlotDuration  Slot = "duration"
	SlotReason    Slot = "reason"
)

// Entity is one of EquipmentRef, StatusRef, DurationRef or FreeText.
type Entity interface {
	String() string
	entity()
}

// EquipmentRef is an utterance fragment resolved to a specific item.
type EquipmentRef struct {
	Equipment model.Equipment
	Score     float64
}

// StatusRef is a status fragment after synonym normalisation. Status may
// be outside model.Statuses when the text matched no synonym.
type StatusRef struct {
	Status model.Status
}

// DurationRef is a loan period in days.
type DurationRef struct {
	Days int
}

// FreeText is a fragment that could not be resolved with confidence.
type FreeText struct {
	Text string
}

func (EquipmentRef) entity() {}
func (StatusRef) entity()    {}
func (DurationRef) entity()  {}
func (FreeText) entity()     {}

func (e EquipmentRef) String() string { return e.Equipment.Code }
func (s StatusRef) String() string    { return string(s.Status) }
func (d DurationRef) String() string  { return strconv.Itoa(d.Days) + "d" }
func (f FreeText) String() string     { return f.Text }

// Entities maps each filled slot to its entity.
type Entities map[Slot]Entity

// Strings flattens the entities for the audit log.
func (e Entities) Strings() map[string]string {
	if len(e) == 0 {
		return nil
	}
	out := make(map[string]string, len(e))
	for slot, ent := range e {
		out[string(slot)] = ent.String()
	}
	return out
}

// Text returns the free text or the resolved item code in slot, or "".
func (e Entities) Text(slot Slot) string {
	if ent, ok := e[slot]; ok {
		return ent.String()
	}
	return ""
}

// Intent is the classified purpose of one utterance.
type Intent struct {
	Kind       Kind     `json:"kind"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"-"`
	Transcript string   `json:"transcript"`
	Stage      Stage    `json:"stage"`
}

// EntityStrings is Entities in JSON-friendly form.
func (i Intent) EntityStrings() map[string]string {
	return i.Entities.Strings()
}

// MarshalJSON includes the flattened entities.
func (i Intent) MarshalJSON() ([]byte, error) {
	type plain Intent
	return json.Marshal(struct {
		plain
		Entities map[string]string `json:"entities,omitempty"`
	}{plain(i), i.Entities.Strings()})
}
