package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/moka-guys/GeL-Reports/internal/domain/cases"
	"github.com/moka-guys/GeL-Reports/internal/platform/notification"
)

// fileDescription is the fixed tag recorded against the registered report
// file in the test-file registry.
const fileDescription = "100,000 Genomes Project combined report"

// Side-effect step names.
const (
	StepPersistDocument = "persist-document"
	StepRegisterFile    = "register-file"
	StepTestStatus      = "test-status"
	StepPatientStatus   = "patient-status"
	StepAuditLog        = "audit-log"
	StepBilling         = "billing"
	StepNotification    = "notification"
)

// StepResult is one attempted side effect and its outcome.
type StepResult struct {
	Step string
	Err  error
}

// SideEffectReport collects the outcome of every attempted finalization step.
// Failures are collected, never raised: there is no rollback, and a failed
// step does not stop later steps from being attempted. Re-running a partially
// finalized case can therefore duplicate file-registration and audit rows;
// the registry rows carry no idempotency key.
type SideEffectReport struct {
	Steps []StepResult
}

func (r *SideEffectReport) record(step string, err error) {
	r.Steps = append(r.Steps, StepResult{Step: step, Err: err})
}

// Errors returns the failures collected during the run.
func (r *SideEffectReport) Errors() []error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Step, s.Err))
		}
	}
	return errs
}

// Succeeded reports whether the named step ran without error.
func (r *SideEffectReport) Succeeded(step string) bool {
	for _, s := range r.Steps {
		if s.Step == step {
			return s.Err == nil
		}
	}
	return false
}

// Sequencer executes the ordered post-assembly mutations: persist, register,
// status transitions, audit entries, billing, notification.
type Sequencer struct {
	repo      cases.Repository
	drafter   notification.EmailDrafter
	templates *notification.TemplateEngine
	actor     string
	log       zerolog.Logger
	now       func() time.Time
}

func NewSequencer(repo cases.Repository, drafter notification.EmailDrafter, templates *notification.TemplateEngine, actor string, log zerolog.Logger) *Sequencer {
	return &Sequencer{
		repo:      repo,
		drafter:   drafter,
		templates: templates,
		actor:     actor,
		log:       log,
		now:       time.Now,
	}
}

// Apply runs every applicable step and returns the collected report.
func (s *Sequencer) Apply(ctx context.Context, rec *cases.CaseRecord, cls cases.Classification, doc []byte, outputPath string) *SideEffectReport {
	report := &SideEffectReport{}
	now := s.now()

	// 1. Persist the merged document.
	report.record(StepPersistDocument, writeDocument(outputPath, doc))

	// 2. Register the file against the test.
	report.record(StepRegisterFile, s.repo.RegisterFile(ctx, rec.TestID, outputPath, fileDescription, now))

	// 3+4. Status transitions, each with its audit entry.
	if cls.Terminal {
		err := s.repo.SetTestComplete(ctx, rec.TestID, s.actor, now)
		report.record(StepTestStatus, err)
		if err == nil {
			report.record(StepAuditLog, s.repo.InsertAuditLog(ctx, rec.InternalPatientID,
				fmt.Sprintf("NGS test %d report issued; test status set to complete", rec.TestID), s.actor, now))
		}

		updated, err := s.repo.SetPatientComplete(ctx, rec.InternalPatientID, cases.PatientStatus100K)
		report.record(StepPatientStatus, err)
		if err == nil && updated {
			report.record(StepAuditLog, s.repo.InsertAuditLog(ctx, rec.InternalPatientID,
				"100K reporting complete; patient overall status set to complete", s.actor, now))
		}
	} else {
		err := s.repo.SetTestChecked(ctx, rec.TestID, now)
		report.record(StepTestStatus, err)
		if err == nil {
			report.record(StepAuditLog, s.repo.InsertAuditLog(ctx, rec.InternalPatientID,
				fmt.Sprintf("NGS test %d report issued; test status set to checked", rec.TestID), s.actor, now))
		}
	}

	// 5. Billing.
	report.record(StepBilling, s.bill(ctx, rec, cls, now))

	// 6. Clinician notification, terminal results only.
	if cls.Terminal {
		report.record(StepNotification, s.notify(ctx, rec, cls, outputPath))
	}

	for _, err := range report.Errors() {
		s.log.Warn().Err(err).Int("ngs_test_id", rec.TestID).Msg("side effect failed")
	}
	return report
}

func writeDocument(path string, doc []byte) error {
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return fmt.Errorf("write report to %s: %w", path, err)
	}
	return nil
}

func (s *Sequencer) bill(ctx context.Context, rec *cases.CaseRecord, cls cases.Classification, now time.Time) error {
	target, err := s.repo.ResolveBillingTarget(ctx, rec.PatientReferenceID)
	if err != nil {
		return err
	}
	return s.repo.InsertCharge(ctx, target, cls.BillingType, cls.BillingAmount, now)
}

func (s *Sequencer) notify(ctx context.Context, rec *cases.CaseRecord, cls cases.Classification, outputPath string) error {
	subject, body, err := s.templates.Render(notification.ReportIssuedTemplate, map[string]string{
		"pru":            rec.PatientReferenceID,
		"participant_id": rec.ParticipantID,
		"clinician":      rec.ClinicianName,
		"patient_name":   rec.PatientName,
		"summary":        cls.Summary,
	})
	if err != nil {
		return err
	}
	return s.drafter.Compose(ctx, &notification.Draft{
		To:          rec.ClinicianReportEmail,
		Subject:     subject,
		HTMLBody:    body,
		Attachments: []string{outputPath},
	})
}
