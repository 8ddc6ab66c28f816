package workflow

import "github.com/erazemk/oprema/internal/model"

type statusSet map[model.Status]struct{}

func toSet(statuses ...model.Status) statusSet {
	set := make(statusSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// transitions is the complete graph of legal status moves. RETIRED has no
// outgoing edges and no status may move to itself.
var transitions = map[model.Status]statusSet{
	model.StatusAvailable:   toSet(model.StatusCheckedOut, model.StatusMaintenance, model.StatusDamaged, model.StatusReserved),
	model.StatusCheckedOut:  toSet(model.StatusAvailable, model.StatusOverdue, model.StatusLost, model.StatusDamaged),
	model.StatusMaintenance: toSet(model.StatusAvailable, model.StatusDamaged, model.StatusRetired),
	model.StatusDamaged:     toSet(model.StatusMaintenance, model.StatusRetired, model.StatusAvailable),
	model.StatusLost:        toSet(model.StatusAvailable, model.StatusRetired),
	model.StatusReserved:    toSet(model.StatusAvailable, model.StatusCheckedOut),
	model.StatusOverdue:     toSet(model.StatusAvailable, model.StatusLost, model.StatusDamaged),
	model.StatusRetired:     toSet(),
}

// CanTransition reports whether the graph has an edge from -> to.
func CanTransition(from, to model.Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// Allowed returns the statuses reachable from s in one move, in the order
// of model.Statuses. Unknown statuses have no moves.
func Allowed(s model.Status) []model.Status {
	set := transitions[s]
	allowed := make([]model.Status, 0, len(set))
	for _, candidate := range model.Statuses {
		if _, ok := set[candidate]; ok {
			allowed = append(allowed, candidate)
		}
	}
	return allowed
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s model.Status) bool {
	return len(transitions[s]) == 0
}
