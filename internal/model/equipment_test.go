package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"AVAILABLE", StatusAvailable, true},
		{"checked_out", StatusCheckedOut, true},
		{" Retired ", StatusRetired, true},
		{"checked out", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseStatus(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseStatus(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStatusPhrase(t *testing.T) {
	if got := StatusCheckedOut.Phrase(); got != "checked out" {
		t.Errorf("expected 'checked out', got %q", got)
	}
	if got := StatusMaintenance.Phrase(); got != "in maintenance" {
		t.Errorf("expected 'in maintenance', got %q", got)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("equipment 4: %w", ErrNotFound), KindNotFound},
		{fmt.Errorf("wrap: %w", ErrInvalidTransition), KindInvalidTransition},
		{&RuleViolationError{Reason: "reason required"}, KindBusinessRule},
		{&AmbiguousError{Query: "ball"}, KindAmbiguous},
		{ErrLowConfidence, KindLowConfidence},
		{&FatalError{Op: "update", Err: errors.New("disk full")}, KindFatal},
		{errors.New("anything else"), KindFatal},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
