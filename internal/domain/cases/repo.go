package cases

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCaseNotFound is returned by FetchCase when no row exists for the test ID.
// The demographics query inner-joins patient, clinician and address records,
// so a missing clinician or address also surfaces as not-found.
var ErrCaseNotFound = errors.New("no case returned for NGS test ID; check records exist in all joined tables (clinician, clinician address)")

// BillingTarget identifies the single specimen/test pair a charge is raised
// against.
type BillingTarget struct {
	SpecimenID int
	TestID     int
}

// BillingResolutionError reports that the PRU did not resolve to exactly one
// specimen/test pair. Both zero and multiple matches are non-fatal: the charge
// is skipped and the error collected for manual follow-up.
type BillingResolutionError struct {
	PatientReferenceID string
	Matches            int
}

func (e *BillingResolutionError) Error() string {
	return fmt.Sprintf("billing target for PRU %s resolved to %d specimen/test pairs, want exactly 1",
		e.PatientReferenceID, e.Matches)
}

// Repository is the narrow surface the pipeline needs from the laboratory
// database. All writes are parameterized statements; field and table identity
// is an integration contract with Moka and comes from configuration.
type Repository interface {
	// FetchCase loads the working record for one NGS test.
	FetchCase(ctx context.Context, testID int) (*CaseRecord, error)

	// RegisterFile records the issued report path against the test.
	RegisterFile(ctx context.Context, testID int, path, description string, at time.Time) error

	// SetTestComplete moves the test to its completed status and stamps the
	// report checker and authoriser with the acting identity.
	SetTestComplete(ctx context.Context, testID int, actor string, at time.Time) error

	// SetTestChecked performs the minimal booking/check status transition for a
	// non-terminal result.
	SetTestChecked(ctx context.Context, testID int, at time.Time) error

	// SetPatientComplete moves the patient's overall status to complete only if
	// it currently equals ifStatus. Returns whether a row was updated.
	SetPatientComplete(ctx context.Context, internalPatientID, ifStatus int) (bool, error)

	// InsertAuditLog appends one patient-log entry describing an action taken.
	InsertAuditLog(ctx context.Context, internalPatientID int, event, actor string, at time.Time) error

	// ResolveBillingTarget finds the exactly-one specimen/test pair for the PRU.
	ResolveBillingTarget(ctx context.Context, patientReferenceID string) (BillingTarget, error)

	// InsertCharge raises a billing charge against a resolved target.
	InsertCharge(ctx context.Context, target BillingTarget, billingType BillingType, amount float64, at time.Time) error
}
