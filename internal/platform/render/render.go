// Package render turns the cover-page HTML template into a PDF.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Renderer produces a PDF cover page from a template file and a key/value
// data map.
type Renderer interface {
	Render(ctx context.Context, templatePath string, data map[string]string) ([]byte, error)
}

// ChromiumRenderer renders the template with html/template and prints the
// resulting document to PDF through a headless Chromium page.
type ChromiumRenderer struct{}

func NewChromiumRenderer() *ChromiumRenderer { return &ChromiumRenderer{} }

// Render executes the template and prints it. The browser is launched per
// call and torn down before returning; cover pages are issued a handful at a
// time, so startup cost is irrelevant next to the remote I/O around it.
func (r *ChromiumRenderer) Render(ctx context.Context, templatePath string, data map[string]string) ([]byte, error) {
	html, err := RenderHTML(templatePath, data)
	if err != nil {
		return nil, err
	}
	return printToPDF(ctx, html)
}

// RenderHTML executes the cover template against the data map and returns the
// populated document.
func RenderHTML(templatePath string, data map[string]string) (string, error) {
	tpl, err := template.New(filepath.Base(templatePath)).ParseFiles(templatePath)
	if err != nil {
		return "", fmt.Errorf("parse cover template %s: %w", templatePath, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render cover template %s: %w", templatePath, err)
	}
	return buf.String(), nil
}

func printToPDF(ctx context.Context, html string) ([]byte, error) {
	browser := rod.New().Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("start headless browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("load cover html: %w", err)
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, fmt.Errorf("print cover to pdf: %w", err)
	}
	pdf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read printed pdf: %w", err)
	}
	return pdf, nil
}
