// Package notification composes clinician-facing email drafts. Drafts are
// written out for human review in the operator's mail client; nothing is ever
// sent automatically.
package notification

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Draft is one outbound email awaiting review.
type Draft struct {
	ID          string
	To          string
	Subject     string
	HTMLBody    string
	Attachments []string
	CreatedAt   time.Time
}

// EmailDrafter hands a composed draft to the operator's mail client.
type EmailDrafter interface {
	Compose(ctx context.Context, d *Draft) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable draft template with {{key}} placeholders.
type Template struct {
	ID      string
	Name    string
	Subject string
	Body    string
}

// TemplateEngine manages draft templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

// ReportIssuedTemplate is the draft sent to the referring clinician when a
// negative-negative report closes a 100K case.
const ReportIssuedTemplate = "report-issued"

func (e *TemplateEngine) registerBuiltIn() {
	t := Template{
		ID:      ReportIssuedTemplate,
		Name:    "100K Report Issued",
		Subject: "100,000 Genomes Project result for {{pru}} ({{participant_id}})",
		Body: "<p>Dear {{clinician}},</p>" +
			"<p>Please find attached the 100,000 Genomes Project report for your patient " +
			"{{patient_name}} ({{pru}}).</p>" +
			"<p>Summary of result: {{summary}}.</p>" +
			"<p>Guy's Genomics Laboratory</p>",
	}
	e.templates[t.ID] = &t
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// File Drafter
// ---------------------------------------------------------------------------

// FileDrafter writes each draft as an .eml file into a drafts directory, the
// counterpart of opening an unsent message in the mail client.
type FileDrafter struct {
	Dir string
}

func NewFileDrafter(dir string) *FileDrafter { return &FileDrafter{Dir: dir} }

// Compose assigns the draft an ID, assembles the MIME message with its
// attachments and writes it to the drafts directory.
func (f *FileDrafter) Compose(_ context.Context, d *Draft) error {
	if d.To == "" {
		return fmt.Errorf("draft has no recipient")
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	msg, err := buildMIME(d)
	if err != nil {
		return err
	}
	path := filepath.Join(f.Dir, d.ID+".eml")
	if err := os.WriteFile(path, msg, 0o644); err != nil {
		return fmt.Errorf("write draft %s: %w", path, err)
	}
	return nil
}

func buildMIME(d *Draft) ([]byte, error) {
	const boundary = "gel-report-draft"

	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", d.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", d.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", d.CreatedAt.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "X-Unsent: 1\r\n")
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	fmt.Fprintf(&b, "Content-Type: text/html; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "%s\r\n", d.HTMLBody)

	for _, path := range d.Attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", path, err)
		}
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: application/pdf; name=%q\r\n", filepath.Base(path))
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n", filepath.Base(path))
		fmt.Fprintf(&b, "Content-Transfer-Encoding: base64\r\n\r\n")
		writeBase64(&b, data)
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String()), nil
}

// writeBase64 emits base64 wrapped at 76 columns per RFC 2045.
func writeBase64(b *strings.Builder, data []byte) {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		b.WriteString(enc[:76])
		b.WriteString("\r\n")
		enc = enc[76:]
	}
	b.WriteString(enc)
	b.WriteString("\r\n")
}

// ---------------------------------------------------------------------------
// Mock Drafter (test double)
// ---------------------------------------------------------------------------

// MockDrafter is a test double for EmailDrafter.
type MockDrafter struct {
	mu         sync.Mutex
	calls      []Draft
	ShouldFail bool
	FailError  string
}

// Compose records the call and optionally returns an error.
func (m *MockDrafter) Compose(_ context.Context, d *Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, *d)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded drafts.
func (m *MockDrafter) Calls() []Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Draft, len(m.calls))
	copy(out, m.calls)
	return out
}
