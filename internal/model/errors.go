package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the workflow, resolver and command layers.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrLowConfidence     = errors.New("low confidence")
)

// RuleViolationError is returned when a transition is legal in the graph but
// rejected by a business rule.
type RuleViolationError struct {
	Reason string
}

func (e *RuleViolationError) Error() string {
	return "business rule violation: " + e.Reason
}

// AmbiguousError is returned when free text matches more than one item.
type AmbiguousError struct {
	Query      string
	Candidates []Equipment
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.Name
	}
	return fmt.Sprintf("%q is ambiguous: %s", e.Query, strings.Join(names, ", "))
}

// FatalError wraps a persistence or side-effect failure. The operation that
// produced it has been rolled back.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error { return e.Err }

// Error kinds, as reported to API clients.
const (
	KindNotFound          = "not_found"
	KindInvalidTransition = "invalid_transition"
	KindBusinessRule      = "business_rule_violation"
	KindAmbiguous         = "ambiguous_entity"
	KindLowConfidence     = "low_confidence"
	KindFatal             = "fatal"
)

// ErrorKind classifies err into one of the Kind constants. Unclassified
// errors are fatal.
func ErrorKind(err error) string {
	var rule *RuleViolationError
	var amb *AmbiguousError
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrLowConfidence):
		return KindLowConfidence
	case errors.As(err, &rule):
		return KindBusinessRule
	case errors.As(err, &amb):
		return KindAmbiguous
	default:
		return KindFatal
	}
}
