package cases

import (
	"fmt"
	"time"
)

// ResultCode is the Moka item ID recorded against an NGS test result.
type ResultCode int

// Known 100K result codes. Anything outside this set is rejected by Classify.
const (
	ResultNegative           ResultCode = 1189679
	ResultNegativeNegative   ResultCode = 1189680
	ResultPreviouslyReported ResultCode = 1189681
)

// Patient overall-status values (s_StatusOverall item IDs). A patient is only
// moved to complete when their current status is the 100K programme value, so
// a status set by a different track of care is never overwritten.
const (
	PatientStatus100K     = 1202218
	PatientStatusComplete = 4
)

// NotAvailable is rendered on the cover page for DOB/NHS number when the
// missing-demographics bypass is in effect.
const NotAvailable = "Not available"

// CaseRecord is one NGS test's working state for a pipeline run. It is owned
// by a single orchestrator run and never shared across cases.
type CaseRecord struct {
	TestID                  int
	InternalPatientID       int
	PatientName             string
	DateOfBirth             *time.Time
	Sex                     string
	NHSNumber               *string
	PatientReferenceID      string // PRU / PatientTrustID
	ParticipantID           string // GeL proband ID
	InterpretationRequestID string // "<id>-<version>"
	ClinicianName           string
	ClinicianAddress        string
	ClinicianReportEmail    string
	ResultCode              ResultCode
	ReportingBlocked        bool
	PatientStatus           int

	// GeneratedAt is set when the pipeline run starts; it is not a stored field.
	GeneratedAt time.Time
}

// DOBString returns the date of birth as dd/mm/yyyy, or "Not available" when
// the record has none.
func (r *CaseRecord) DOBString() string {
	if r.DateOfBirth == nil {
		return NotAvailable
	}
	return r.DateOfBirth.Format("02/01/2006")
}

// NHSNumberString returns the NHS number, or "Not available" when the record
// has none.
func (r *CaseRecord) NHSNumberString() string {
	if r.NHSNumber == nil || *r.NHSNumber == "" {
		return NotAvailable
	}
	return *r.NHSNumber
}

// CoverData flattens the record into the key/value map consumed by the cover
// page template.
func (r *CaseRecord) CoverData(summary string) map[string]string {
	return map[string]string{
		"clinician":         r.ClinicianName,
		"clinician_address": r.ClinicianAddress,
		"patient_name":      r.PatientName,
		"sex":               r.Sex,
		"DOB":               r.DOBString(),
		"NHSNumber":         r.NHSNumberString(),
		"PRU":               r.PatientReferenceID,
		"GELID":             r.ParticipantID,
		"IRID":              r.InterpretationRequestID,
		"date_reported":     r.GeneratedAt.Format("02/01/2006"),
		"summary":           summary,
	}
}

// BillingType is the cost-code category submitted to the billing system. It is
// independent of the clinical summary text.
type BillingType string

const (
	BillingNEG    BillingType = "NEG"
	BillingNEGNEG BillingType = "NEGNEG"
)

// Classification is derived once per case from the result code; it is never
// persisted.
type Classification struct {
	Summary       string
	BillingType   BillingType
	BillingAmount float64

	// Terminal marks a result that finalises the test and, conditionally, the
	// patient's overall status.
	Terminal bool
}

// ClassificationError reports a result code outside the known enumeration.
type ClassificationError struct {
	Code ResultCode
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("unknown result code %d", e.Code)
}
