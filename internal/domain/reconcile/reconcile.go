// Package reconcile cross-checks patient demographics between Moka and the
// LabKey system of record before a report is issued.
package reconcile

import (
	"context"
	"fmt"

	"github.com/moka-guys/GeL-Reports/internal/domain/cases"
)

// Demographics is the LabKey view of a participant.
type Demographics struct {
	Name        string
	DateOfBirth string // dd/mm/yyyy
	NHSNumber   string
}

// DemographicSource looks up a participant's demographics in the external
// system of record.
type DemographicSource interface {
	Lookup(ctx context.Context, participantID string) (Demographics, error)
}

// Error reports a reconciliation outcome. Mismatch is an expected business
// outcome that skips the case; a lookup failure wraps its cause.
type Error struct {
	Mismatch bool
	Field    string
	cause    error
}

func (e *Error) Error() string {
	if e.Mismatch {
		return fmt.Sprintf("demographic mismatch on %s between Moka and LabKey", e.Field)
	}
	return fmt.Sprintf("demographic lookup failed: %v", e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Checker compares Moka demographics against the external lookup.
type Checker struct {
	source DemographicSource
}

func NewChecker(source DemographicSource) *Checker {
	return &Checker{source: source}
}

// Reconcile verifies the record's date of birth and NHS number against the
// LabKey lookup. With skip set it succeeds immediately. NHS numbers are
// compared with all internal whitespace stripped from both sides, since the
// two systems format them differently.
func (c *Checker) Reconcile(ctx context.Context, rec *cases.CaseRecord, skip bool) error {
	if skip {
		return nil
	}

	demo, err := c.source.Lookup(ctx, rec.ParticipantID)
	if err != nil {
		return &Error{cause: err}
	}

	if demo.DateOfBirth != rec.DOBString() {
		return &Error{Mismatch: true, Field: "date of birth"}
	}
	if stripSpace(demo.NHSNumber) != stripSpace(rec.NHSNumberString()) {
		return &Error{Mismatch: true, Field: "NHS number"}
	}
	return nil
}

func stripSpace(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
