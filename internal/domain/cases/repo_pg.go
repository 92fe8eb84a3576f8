package cases

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Tables names the Moka tables the repository reads and writes. The defaults
// match the production database; deployments override them through
// configuration rather than editing SQL.
type Tables struct {
	NGSTest        string
	Patients       string
	PatientsLinked string
	Gender         string
	Checker        string
	Item           string
	TestFile       string
	AuditLog       string
	Specimens      string
	Charges        string
}

// DefaultTables returns the production Moka table names.
func DefaultTables() Tables {
	return Tables{
		NGSTest:        "ngstest",
		Patients:       "patients",
		PatientsLinked: "gwv_patientlinked",
		Gender:         "gw_gendertable",
		Checker:        "checker",
		Item:           "item",
		TestFile:       "ngstestfile",
		AuditLog:       "mokauditlog",
		Specimens:      "dna_specimens",
		Charges:        "billing_charges",
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate rejects table names that are not plain SQL identifiers. Table names
// are interpolated into query text (placeholders cannot name relations), so
// anything else is refused outright.
func (t Tables) Validate() error {
	for _, name := range []string{
		t.NGSTest, t.Patients, t.PatientsLinked, t.Gender, t.Checker,
		t.Item, t.TestFile, t.AuditLog, t.Specimens, t.Charges,
	} {
		if !identPattern.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

// Test status item IDs used by the status transitions.
const (
	testStatusComplete = 1202219
	testStatusChecked  = 1202220
)

type repoPG struct {
	pool   *pgxpool.Pool
	tables Tables
}

// NewRepoPG builds the pgx-backed Moka repository. The pool is opened once per
// process run and reused serially across cases.
func NewRepoPG(pool *pgxpool.Pool, tables Tables) (Repository, error) {
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return &repoPG{pool: pool, tables: tables}, nil
}

func (r *repoPG) conn(context.Context) queryable { return r.pool }

func (r *repoPG) FetchCase(ctx context.Context, testID int) (*CaseRecord, error) {
	// Mirrors the demographics pull: test joined to patient, linked-patient
	// demographics, booking clinician (with optional title and address items)
	// and gender lookup.
	sql := fmt.Sprintf(`
		SELECT t.ngstestid, t.internalpatientid,
			pl.firstname, pl.lastname, pl.dob, g.gender, pl.nhsno, pl.patienttrustid,
			t.gelprobandid, t.irid,
			it.item, c.name, ia.item, c.reportemail,
			t.resultcode, t.blockreporting, p.s_statusoverall
		FROM %s t
			INNER JOIN %s p ON t.internalpatientid = p.internalpatientid
			INNER JOIN %s pl ON pl.patienttrustid = p.patientid
			INNER JOIN %s c ON t.bookby = c.check1id
			LEFT JOIN %s it ON c.title = it.itemid
			INNER JOIN %s ia ON c.address = ia.itemid
			LEFT JOIN %s g ON pl.genderid = g.genderid
		WHERE t.ngstestid = $1`,
		r.tables.NGSTest, r.tables.Patients, r.tables.PatientsLinked,
		r.tables.Checker, r.tables.Item, r.tables.Item, r.tables.Gender)

	var row caseRow
	err := r.conn(ctx).QueryRow(ctx, sql, testID).Scan(
		&row.testID, &row.internalPatientID,
		&row.firstName, &row.lastName, &row.dob, &row.sex, &row.nhsNo, &row.patientRefID,
		&row.participantID, &row.irID,
		&row.clinicianTitle, &row.clinicianName, &row.clinicianAddress, &row.reportEmail,
		&row.resultCode, &row.blocked, &row.patientStatus,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch case %d: %w", testID, err)
	}
	return row.record(), nil
}

// caseRow holds the raw fetch columns. Moka stores most of them as nullable,
// so everything the completeness gate checks is scanned through a pointer and
// NULL is carried into the record as the zero value; the gate then names the
// absent field instead of the scan erroring out as a system fault.
type caseRow struct {
	testID            int
	internalPatientID int
	firstName         *string
	lastName          *string
	dob               *time.Time
	sex               *string
	nhsNo             *string
	patientRefID      *string
	participantID     *string
	irID              *string
	clinicianTitle    *string
	clinicianName     *string
	clinicianAddress  *string
	reportEmail       *string
	resultCode        *int
	blocked           *bool
	patientStatus     *int
}

func (row caseRow) record() *CaseRecord {
	rec := &CaseRecord{
		TestID:                  row.testID,
		InternalPatientID:       row.internalPatientID,
		PatientName:             strings.TrimSpace(orEmpty(row.firstName) + " " + orEmpty(row.lastName)),
		DateOfBirth:             row.dob,
		NHSNumber:               row.nhsNo,
		PatientReferenceID:      orEmpty(row.patientRefID),
		ParticipantID:           orEmpty(row.participantID),
		InterpretationRequestID: orEmpty(row.irID),
		ClinicianName:           orEmpty(row.clinicianName),
		ClinicianAddress:        orEmpty(row.clinicianAddress),
		ClinicianReportEmail:    orEmpty(row.reportEmail),
	}
	if row.clinicianTitle != nil && *row.clinicianTitle != "" && rec.ClinicianName != "" {
		rec.ClinicianName = *row.clinicianTitle + " " + rec.ClinicianName
	}
	if row.sex != nil && *row.sex != "" {
		rec.Sex = *row.sex
	} else {
		rec.Sex = "Unknown"
	}
	if row.resultCode != nil {
		rec.ResultCode = ResultCode(*row.resultCode)
	}
	if row.blocked != nil {
		rec.ReportingBlocked = *row.blocked
	}
	if row.patientStatus != nil {
		rec.PatientStatus = *row.patientStatus
	}
	return rec
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *repoPG) RegisterFile(ctx context.Context, testID int, path, description string, at time.Time) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (ngstestid, filepath, description, datecreated)
		VALUES ($1, $2, $3, $4)`, r.tables.TestFile)
	_, err := r.conn(ctx).Exec(ctx, sql, testID, path, description, at)
	if err != nil {
		return fmt.Errorf("register file for test %d: %w", testID, err)
	}
	return nil
}

func (r *repoPG) SetTestComplete(ctx context.Context, testID int, actor string, at time.Time) error {
	sql := fmt.Sprintf(`
		UPDATE %s SET statusid = $2, check1id = $3, authoriser = $3, resultsdate = $4
		WHERE ngstestid = $1`, r.tables.NGSTest)
	_, err := r.conn(ctx).Exec(ctx, sql, testID, testStatusComplete, actor, at)
	if err != nil {
		return fmt.Errorf("set test %d complete: %w", testID, err)
	}
	return nil
}

func (r *repoPG) SetTestChecked(ctx context.Context, testID int, at time.Time) error {
	sql := fmt.Sprintf(`
		UPDATE %s SET statusid = $2, resultsdate = $3
		WHERE ngstestid = $1`, r.tables.NGSTest)
	_, err := r.conn(ctx).Exec(ctx, sql, testID, testStatusChecked, at)
	if err != nil {
		return fmt.Errorf("set test %d checked: %w", testID, err)
	}
	return nil
}

func (r *repoPG) SetPatientComplete(ctx context.Context, internalPatientID, ifStatus int) (bool, error) {
	// Guarded update: a status owned by another track of care is left alone.
	sql := fmt.Sprintf(`
		UPDATE %s SET s_statusoverall = $2
		WHERE internalpatientid = $1 AND s_statusoverall = $3`, r.tables.Patients)
	tag, err := r.conn(ctx).Exec(ctx, sql, internalPatientID, PatientStatusComplete, ifStatus)
	if err != nil {
		return false, fmt.Errorf("set patient %d complete: %w", internalPatientID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) InsertAuditLog(ctx context.Context, internalPatientID int, event, actor string, at time.Time) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (internalpatientid, logentry, username, logdate)
		VALUES ($1, $2, $3, $4)`, r.tables.AuditLog)
	_, err := r.conn(ctx).Exec(ctx, sql, internalPatientID, event, actor, at)
	if err != nil {
		return fmt.Errorf("insert audit log for patient %d: %w", internalPatientID, err)
	}
	return nil
}

func (r *repoPG) ResolveBillingTarget(ctx context.Context, patientReferenceID string) (BillingTarget, error) {
	sql := fmt.Sprintf(`
		SELECT s.specimenid, t.ngstestid
		FROM %s s
			INNER JOIN %s t ON t.internalpatientid = s.internalpatientid
			INNER JOIN %s p ON p.internalpatientid = s.internalpatientid
		WHERE p.patientid = $1`,
		r.tables.Specimens, r.tables.NGSTest, r.tables.Patients)

	rows, err := r.conn(ctx).Query(ctx, sql, patientReferenceID)
	if err != nil {
		return BillingTarget{}, fmt.Errorf("resolve billing target for PRU %s: %w", patientReferenceID, err)
	}
	defer rows.Close()

	var targets []BillingTarget
	for rows.Next() {
		var t BillingTarget
		if err := rows.Scan(&t.SpecimenID, &t.TestID); err != nil {
			return BillingTarget{}, fmt.Errorf("resolve billing target for PRU %s: %w", patientReferenceID, err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return BillingTarget{}, fmt.Errorf("resolve billing target for PRU %s: %w", patientReferenceID, err)
	}
	if len(targets) != 1 {
		return BillingTarget{}, &BillingResolutionError{PatientReferenceID: patientReferenceID, Matches: len(targets)}
	}
	return targets[0], nil
}

func (r *repoPG) InsertCharge(ctx context.Context, target BillingTarget, billingType BillingType, amount float64, at time.Time) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (specimenid, ngstestid, testtype, amount, chargedate)
		VALUES ($1, $2, $3, $4, $5)`, r.tables.Charges)
	_, err := r.conn(ctx).Exec(ctx, sql, target.SpecimenID, target.TestID, string(billingType), amount, at)
	if err != nil {
		return fmt.Errorf("insert charge for test %d: %w", target.TestID, err)
	}
	return nil
}
