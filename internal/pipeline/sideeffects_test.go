package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/moka-guys/GeL-Reports/internal/domain/cases"
	"github.com/moka-guys/GeL-Reports/internal/platform/notification"
)

func newTestSequencer(repo cases.Repository, drafter notification.EmailDrafter) *Sequencer {
	return NewSequencer(repo, drafter, notification.NewTemplateEngine(), "jbloggs", zerolog.Nop())
}

func outputFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "PRU_001234_12345678901_123-4_200302.pdf")
}

func TestApply_TerminalHappyPath(t *testing.T) {
	rec := assemblyRecord()
	repo := newMockRepo(rec)
	drafter := &notification.MockDrafter{}
	seq := newTestSequencer(repo, drafter)
	cls, _ := cases.Classify(cases.ResultNegativeNegative)
	out := outputFile(t)

	report := seq.Apply(context.Background(), rec, cls, []byte("%PDF merged"), out)
	if errs := report.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if _, err := os.Stat(out); err != nil {
		t.Error("document not persisted")
	}
	if len(repo.files) != 1 || repo.files[0].Path != out {
		t.Errorf("files = %+v", repo.files)
	}
	if len(repo.testComplete) != 1 || repo.testComplete[0] != rec.TestID {
		t.Errorf("testComplete = %v", repo.testComplete)
	}
	if len(repo.patientCompleted) != 1 {
		t.Errorf("patientCompleted = %v, want guarded update to fire", repo.patientCompleted)
	}
	// One audit entry per status transition performed.
	if len(repo.audits) != 2 {
		t.Errorf("audits = %+v, want 2", repo.audits)
	}
	if len(repo.charges) != 1 || repo.charges[0].Type != cases.BillingNEGNEG || repo.charges[0].Amount != 150.00 {
		t.Errorf("charges = %+v", repo.charges)
	}
	calls := drafter.Calls()
	if len(calls) != 1 {
		t.Fatalf("drafts = %d, want 1", len(calls))
	}
	if calls[0].To != rec.ClinicianReportEmail {
		t.Errorf("draft to = %q", calls[0].To)
	}
	if len(calls[0].Attachments) != 1 || calls[0].Attachments[0] != out {
		t.Errorf("attachments = %v", calls[0].Attachments)
	}
}

func TestApply_NonTerminal(t *testing.T) {
	rec := assemblyRecord()
	rec.ResultCode = cases.ResultNegative
	repo := newMockRepo(rec)
	drafter := &notification.MockDrafter{}
	seq := newTestSequencer(repo, drafter)
	cls, _ := cases.Classify(cases.ResultNegative)

	report := seq.Apply(context.Background(), rec, cls, []byte("%PDF"), outputFile(t))
	if errs := report.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(repo.testChecked) != 1 {
		t.Error("expected minimal check-status transition")
	}
	if len(repo.testComplete) != 0 || len(repo.patientCompleted) != 0 {
		t.Error("non-terminal result must not complete statuses")
	}
	if len(repo.audits) != 1 {
		t.Errorf("audits = %+v, want 1", repo.audits)
	}
	if len(drafter.Calls()) != 0 {
		t.Error("non-terminal result must not draft a notification")
	}
	if len(repo.charges) != 1 || repo.charges[0].Type != cases.BillingNEG {
		t.Errorf("charges = %+v", repo.charges)
	}
}

func TestApply_PatientStatusGuard(t *testing.T) {
	rec := assemblyRecord()
	rec.PatientStatus = 555 // owned by another track of care
	repo := newMockRepo(rec)
	seq := newTestSequencer(repo, &notification.MockDrafter{})
	cls, _ := cases.Classify(cases.ResultNegativeNegative)

	report := seq.Apply(context.Background(), rec, cls, []byte("%PDF"), outputFile(t))
	if errs := report.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(repo.patientCompleted) != 0 {
		t.Error("patient status must not be overwritten when not on the 100K programme value")
	}
	if len(repo.testComplete) != 1 {
		t.Error("test status must still complete")
	}
	// Only the test-status audit entry.
	if len(repo.audits) != 1 {
		t.Errorf("audits = %+v, want 1", repo.audits)
	}
}

func TestApply_BillingFailureDoesNotUndoEarlierSteps(t *testing.T) {
	rec := assemblyRecord()
	repo := newMockRepo(rec)
	repo.billingTargets = nil // zero matches
	drafter := &notification.MockDrafter{}
	seq := newTestSequencer(repo, drafter)
	cls, _ := cases.Classify(cases.ResultNegativeNegative)
	out := outputFile(t)

	report := seq.Apply(context.Background(), rec, cls, []byte("%PDF"), out)

	for _, step := range []string{StepPersistDocument, StepRegisterFile, StepTestStatus, StepPatientStatus} {
		if !report.Succeeded(step) {
			t.Errorf("step %s should have succeeded", step)
		}
	}
	if report.Succeeded(StepBilling) {
		t.Error("billing step should have failed")
	}
	var berr *cases.BillingResolutionError
	errs := report.Errors()
	if len(errs) != 1 || !errors.As(errs[0], &berr) {
		t.Fatalf("errors = %v, want one billing resolution error", errs)
	}
	if berr.Matches != 0 {
		t.Errorf("matches = %d", berr.Matches)
	}
	// Later steps still attempted.
	if len(drafter.Calls()) != 1 {
		t.Error("notification must still be attempted after billing failure")
	}
}

func TestApply_MultipleBillingMatches(t *testing.T) {
	rec := assemblyRecord()
	repo := newMockRepo(rec)
	repo.billingTargets = []cases.BillingTarget{{SpecimenID: 1, TestID: 42}, {SpecimenID: 2, TestID: 42}}
	seq := newTestSequencer(repo, &notification.MockDrafter{})
	cls, _ := cases.Classify(cases.ResultNegativeNegative)

	report := seq.Apply(context.Background(), rec, cls, []byte("%PDF"), outputFile(t))
	var berr *cases.BillingResolutionError
	errs := report.Errors()
	if len(errs) != 1 || !errors.As(errs[0], &berr) || berr.Matches != 2 {
		t.Fatalf("errors = %v, want billing resolution error with 2 matches", errs)
	}
	if len(repo.charges) != 0 {
		t.Error("no charge may be raised on ambiguous resolution")
	}
}

func TestApply_EarlyFailureDoesNotStopLaterSteps(t *testing.T) {
	rec := assemblyRecord()
	repo := newMockRepo(rec)
	repo.registerErr = errors.New("registry insert failed")
	seq := newTestSequencer(repo, &notification.MockDrafter{})
	cls, _ := cases.Classify(cases.ResultNegativeNegative)

	report := seq.Apply(context.Background(), rec, cls, []byte("%PDF"), outputFile(t))
	if report.Succeeded(StepRegisterFile) {
		t.Error("registration should have failed")
	}
	if !report.Succeeded(StepTestStatus) || !report.Succeeded(StepBilling) {
		t.Error("later steps must still be attempted")
	}
	errs := report.Errors()
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), StepRegisterFile) {
		t.Errorf("errors = %v", errs)
	}
}

func TestApply_AuditOnlyAfterSuccessfulTransition(t *testing.T) {
	rec := assemblyRecord()
	repo := newMockRepo(rec)
	repo.testStatusErr = errors.New("update failed")
	seq := newTestSequencer(repo, &notification.MockDrafter{})
	cls, _ := cases.Classify(cases.ResultNegative)

	_ = seq.Apply(context.Background(), rec, cls, []byte("%PDF"), outputFile(t))
	if len(repo.audits) != 0 {
		t.Errorf("audits = %+v, want none when the transition failed", repo.audits)
	}
}
