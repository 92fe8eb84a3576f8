package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/moka-guys/GeL-Reports/internal/domain/cases"
	"github.com/moka-guys/GeL-Reports/internal/platform/remote"
)

// -- Mock demographic source --

type mockSource struct {
	demo    Demographics
	err     error
	lookups []string
}

func (m *mockSource) Lookup(_ context.Context, participantID string) (Demographics, error) {
	m.lookups = append(m.lookups, participantID)
	if m.err != nil {
		return Demographics{}, m.err
	}
	return m.demo, nil
}

func record() *cases.CaseRecord {
	dob := time.Date(1980, 5, 12, 0, 0, 0, 0, time.UTC)
	nhs := "123 456 7890"
	return &cases.CaseRecord{
		ParticipantID: "12345678901",
		DateOfBirth:   &dob,
		NHSNumber:     &nhs,
	}
}

func TestReconcile_Match(t *testing.T) {
	src := &mockSource{demo: Demographics{
		Name:        "Jo Bloggs",
		DateOfBirth: "12/05/1980",
		NHSNumber:   "1234567890",
	}}
	c := NewChecker(src)
	if err := c.Reconcile(context.Background(), record(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.lookups) != 1 || src.lookups[0] != "12345678901" {
		t.Errorf("lookups = %v", src.lookups)
	}
}

func TestReconcile_NHSWhitespaceInsensitive(t *testing.T) {
	src := &mockSource{demo: Demographics{
		DateOfBirth: "12/05/1980",
		NHSNumber:   " 123 4567 890 ",
	}}
	c := NewChecker(src)
	if err := c.Reconcile(context.Background(), record(), false); err != nil {
		t.Fatalf("whitespace-only NHS difference must reconcile: %v", err)
	}
}

func TestReconcile_DOBMismatch(t *testing.T) {
	src := &mockSource{demo: Demographics{
		DateOfBirth: "13/05/1980",
		NHSNumber:   "1234567890",
	}}
	c := NewChecker(src)
	err := c.Reconcile(context.Background(), record(), false)
	var rerr *Error
	if !errors.As(err, &rerr) || !rerr.Mismatch {
		t.Fatalf("err = %v, want mismatch error", err)
	}
}

func TestReconcile_NHSMismatch(t *testing.T) {
	src := &mockSource{demo: Demographics{
		DateOfBirth: "12/05/1980",
		NHSNumber:   "9999999999",
	}}
	c := NewChecker(src)
	err := c.Reconcile(context.Background(), record(), false)
	var rerr *Error
	if !errors.As(err, &rerr) || !rerr.Mismatch {
		t.Fatalf("err = %v, want mismatch error", err)
	}
}

func TestReconcile_LookupFailure(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	src := &mockSource{err: cause}
	c := NewChecker(src)
	err := c.Reconcile(context.Background(), record(), false)
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("error type = %T", err)
	}
	if rerr.Mismatch {
		t.Error("lookup failure must not report as mismatch")
	}
	if !errors.Is(err, cause) {
		t.Error("cause not wrapped")
	}
}

func TestReconcile_Skip(t *testing.T) {
	src := &mockSource{err: fmt.Errorf("must not be called")}
	c := NewChecker(src)
	if err := c.Reconcile(context.Background(), record(), true); err != nil {
		t.Fatalf("skip must succeed immediately: %v", err)
	}
	if len(src.lookups) != 0 {
		t.Error("lookup performed despite skip")
	}
}

// -- LabKey stdout parsing --

type runnerStub struct {
	stdout string
	stderr string
	err    error
	cmds   []string
}

func (m *runnerStub) Run(_ context.Context, command string) (string, string, error) {
	m.cmds = append(m.cmds, command)
	return m.stdout, m.stderr, m.err
}

func (m *runnerStub) Fetch(_ context.Context, _, _ string, _ func(int64, int64)) (remote.TransferStats, error) {
	panic("not used")
}

func TestLabKeySource_ParsesStdout(t *testing.T) {
	r := &runnerStub{stdout: "'Jo Bloggs,12/05/1980,123 456 7890'\n"}
	src := NewLabKeySource(r, "/apps/LabKey.py")
	demo, err := src.Lookup(context.Background(), "12345678901")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if demo.Name != "Jo Bloggs" || demo.DateOfBirth != "12/05/1980" || demo.NHSNumber != "123 456 7890" {
		t.Errorf("demo = %+v", demo)
	}
	if len(r.cmds) != 1 || r.cmds[0] != "/apps/LabKey.py -i 12345678901" {
		t.Errorf("cmds = %v", r.cmds)
	}
}

func TestLabKeySource_StderrIsFailure(t *testing.T) {
	r := &runnerStub{stderr: "Traceback: boom\n"}
	src := NewLabKeySource(r, "/apps/LabKey.py")
	if _, err := src.Lookup(context.Background(), "1"); err == nil {
		t.Fatal("expected error for non-empty stderr")
	}
}

func TestLabKeySource_EmptyAndMalformedStdout(t *testing.T) {
	for _, stdout := range []string{"", "\n", "'only,two'\n"} {
		r := &runnerStub{stdout: stdout}
		src := NewLabKeySource(r, "/apps/LabKey.py")
		if _, err := src.Lookup(context.Background(), "1"); err == nil {
			t.Fatalf("stdout %q: expected error", stdout)
		}
	}
}
