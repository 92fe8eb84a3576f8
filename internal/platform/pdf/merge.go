// Package pdf concatenates the generated cover page with the externally
// produced clinical report.
package pdf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Merger joins documents in order into one PDF.
type Merger interface {
	Merge(parts ...io.ReadSeeker) ([]byte, error)
}

// PDFCPUMerger merges with pdfcpu. Bookmark import stays disabled: bookmarks
// carried over from externally generated reports corrupt the merged output.
type PDFCPUMerger struct {
	conf *model.Configuration
}

func NewMerger() *PDFCPUMerger {
	conf := model.NewDefaultConfiguration()
	conf.CreateBookmarks = false
	return &PDFCPUMerger{conf: conf}
}

// Merge concatenates parts preserving their order; the first part supplies
// the first pages of the output.
func (m *PDFCPUMerger) Merge(parts ...io.ReadSeeker) ([]byte, error) {
	if len(parts) < 2 {
		return nil, fmt.Errorf("merge requires at least two documents, got %d", len(parts))
	}
	var out bytes.Buffer
	if err := api.MergeRaw(parts, &out, false, m.conf); err != nil {
		return nil, fmt.Errorf("merge pdf documents: %w", err)
	}
	return out.Bytes(), nil
}
