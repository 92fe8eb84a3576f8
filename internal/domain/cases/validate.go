package cases

import (
	"fmt"
	"regexp"
	"strings"
)

var irIDPattern = regexp.MustCompile(`^\d+-\d+$`)

// ValidationError kinds.
const (
	ValidationMissingFields    = "missing-fields"
	ValidationReportingBlocked = "reporting-blocked"
	ValidationIRIDFormat       = "irid-format"
)

// ValidationError reports a data-quality rejection. It is an expected business
// outcome, not a system fault.
type ValidationError struct {
	Kind   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Kind, e.Detail)
}

// Validate runs the gating checks in order and returns the first failure.
//
// allowMissingDemographics exempts DateOfBirth and NHSNumber from the
// completeness check; both are later rendered as "Not available". ignoreBlock
// lets a case through despite its reporting block. Validate has no side
// effects and does not mutate the record.
func Validate(rec *CaseRecord, allowMissingDemographics, ignoreBlock bool) error {
	if missing := missingFields(rec, allowMissingDemographics); len(missing) > 0 {
		return &ValidationError{
			Kind:   ValidationMissingFields,
			Detail: fmt.Sprintf("missing required field(s): %s", strings.Join(missing, ", ")),
		}
	}

	if rec.ReportingBlocked && !ignoreBlock {
		return &ValidationError{
			Kind:   ValidationReportingBlocked,
			Detail: fmt.Sprintf("reporting is blocked for NGS test %d", rec.TestID),
		}
	}

	if !irIDPattern.MatchString(rec.InterpretationRequestID) {
		return &ValidationError{
			Kind:   ValidationIRIDFormat,
			Detail: fmt.Sprintf("interpretation request ID %q does not match <id>-<version>", rec.InterpretationRequestID),
		}
	}

	return nil
}

// missingFields names every absent required field so the operator can fix the
// record in one pass rather than one rejection at a time.
func missingFields(rec *CaseRecord, allowMissingDemographics bool) []string {
	var missing []string

	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	require("PatientName", rec.PatientName)
	require("Sex", rec.Sex)
	if rec.DateOfBirth == nil && !allowMissingDemographics {
		missing = append(missing, "DateOfBirth")
	}
	if (rec.NHSNumber == nil || *rec.NHSNumber == "") && !allowMissingDemographics {
		missing = append(missing, "NHSNumber")
	}
	require("PatientReferenceID", rec.PatientReferenceID)
	require("ParticipantID", rec.ParticipantID)
	require("InterpretationRequestID", rec.InterpretationRequestID)
	require("ClinicianName", rec.ClinicianName)
	require("ClinicianAddress", rec.ClinicianAddress)
	require("ClinicianReportEmail", rec.ClinicianReportEmail)
	if rec.ResultCode == 0 {
		missing = append(missing, "ResultCode")
	}

	return missing
}
