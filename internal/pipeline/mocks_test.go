package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/moka-guys/GeL-Reports/internal/domain/cases"
	"github.com/moka-guys/GeL-Reports/internal/domain/reconcile"
	"github.com/moka-guys/GeL-Reports/internal/platform/remote"
)

// -- Mock Moka repository --

type registeredFile struct {
	TestID      int
	Path        string
	Description string
}

type auditEntry struct {
	PatientID int
	Event     string
	Actor     string
}

type charge struct {
	Target cases.BillingTarget
	Type   cases.BillingType
	Amount float64
}

type mockRepo struct {
	record *cases.CaseRecord

	fetchErr         error
	registerErr      error
	testStatusErr    error
	patientStatusErr error
	auditErr         error
	billingTargets   []cases.BillingTarget
	chargeErr        error
	patientStatusNow int
	files            []registeredFile
	testComplete     []int
	testChecked      []int
	patientCompleted []int
	audits           []auditEntry
	charges          []charge
}

func newMockRepo(rec *cases.CaseRecord) *mockRepo {
	m := &mockRepo{record: rec, billingTargets: []cases.BillingTarget{{SpecimenID: 9, TestID: 42}}}
	if rec != nil {
		m.patientStatusNow = rec.PatientStatus
	}
	return m
}

func (m *mockRepo) writes() int {
	return len(m.files) + len(m.testComplete) + len(m.testChecked) + len(m.patientCompleted) + len(m.audits) + len(m.charges)
}

func (m *mockRepo) FetchCase(_ context.Context, testID int) (*cases.CaseRecord, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if m.record == nil || m.record.TestID != testID {
		return nil, cases.ErrCaseNotFound
	}
	rec := *m.record
	return &rec, nil
}

func (m *mockRepo) RegisterFile(_ context.Context, testID int, path, description string, _ time.Time) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	m.files = append(m.files, registeredFile{TestID: testID, Path: path, Description: description})
	return nil
}

func (m *mockRepo) SetTestComplete(_ context.Context, testID int, _ string, _ time.Time) error {
	if m.testStatusErr != nil {
		return m.testStatusErr
	}
	m.testComplete = append(m.testComplete, testID)
	return nil
}

func (m *mockRepo) SetTestChecked(_ context.Context, testID int, _ time.Time) error {
	if m.testStatusErr != nil {
		return m.testStatusErr
	}
	m.testChecked = append(m.testChecked, testID)
	return nil
}

func (m *mockRepo) SetPatientComplete(_ context.Context, internalPatientID, ifStatus int) (bool, error) {
	if m.patientStatusErr != nil {
		return false, m.patientStatusErr
	}
	if m.patientStatusNow != ifStatus {
		return false, nil
	}
	m.patientStatusNow = cases.PatientStatusComplete
	m.patientCompleted = append(m.patientCompleted, internalPatientID)
	return true, nil
}

func (m *mockRepo) InsertAuditLog(_ context.Context, internalPatientID int, event, actor string, _ time.Time) error {
	if m.auditErr != nil {
		return m.auditErr
	}
	m.audits = append(m.audits, auditEntry{PatientID: internalPatientID, Event: event, Actor: actor})
	return nil
}

func (m *mockRepo) ResolveBillingTarget(_ context.Context, pru string) (cases.BillingTarget, error) {
	if len(m.billingTargets) != 1 {
		return cases.BillingTarget{}, &cases.BillingResolutionError{PatientReferenceID: pru, Matches: len(m.billingTargets)}
	}
	return m.billingTargets[0], nil
}

func (m *mockRepo) InsertCharge(_ context.Context, target cases.BillingTarget, billingType cases.BillingType, amount float64, _ time.Time) error {
	if m.chargeErr != nil {
		return m.chargeErr
	}
	m.charges = append(m.charges, charge{Target: target, Type: billingType, Amount: amount})
	return nil
}

var _ cases.Repository = (*mockRepo)(nil)

// -- Mock renderer / merger --

type mockRenderer struct {
	rendered []map[string]string
	err      error
}

func (m *mockRenderer) Render(_ context.Context, _ string, data map[string]string) ([]byte, error) {
	m.rendered = append(m.rendered, data)
	if m.err != nil {
		return nil, m.err
	}
	return []byte("%PDF cover"), nil
}

type mockMerger struct {
	err error
}

func (m *mockMerger) Merge(parts ...io.ReadSeeker) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []byte
	for _, p := range parts {
		b, err := io.ReadAll(p)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// -- Mock remote runner --

type mockRunner struct {
	cmds       []string
	stdout     string
	stderr     string
	runErr     error
	fetchErr   error
	fetchStats remote.TransferStats
	fetched    []string
}

func (m *mockRunner) Run(_ context.Context, command string) (string, string, error) {
	m.cmds = append(m.cmds, command)
	return m.stdout, m.stderr, m.runErr
}

func (m *mockRunner) Fetch(_ context.Context, remotePath, localPath string, progress func(int64, int64)) (remote.TransferStats, error) {
	m.fetched = append(m.fetched, fmt.Sprintf("%s -> %s", remotePath, localPath))
	if progress != nil {
		progress(m.fetchStats.Transferred, m.fetchStats.Total)
	}
	return m.fetchStats, m.fetchErr
}

// -- Mock demographic source --

type mockDemographics struct {
	demo reconcile.Demographics
	err  error
}

func (m *mockDemographics) Lookup(_ context.Context, _ string) (reconcile.Demographics, error) {
	return m.demo, m.err
}
