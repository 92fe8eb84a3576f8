package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/moka-guys/GeL-Reports/internal/domain/cases"
	"github.com/moka-guys/GeL-Reports/internal/platform/pdf"
	"github.com/moka-guys/GeL-Reports/internal/platform/render"
)

// AssemblyError kinds.
const (
	AssemblySourceNotFound  = "source-not-found"
	AssemblyAmbiguousSource = "ambiguous-source"
)

// AssemblyError reports a missing or ambiguous source report. Both require a
// human to fix the technical-reports directory; the pipeline never picks a
// version automatically.
type AssemblyError struct {
	Kind   string
	Detail string
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembly failed (%s): %s", e.Kind, e.Detail)
}

// Assembler renders the cover page and merges it with the matching clinical
// report from the interpretation portal.
type Assembler struct {
	renderer     render.Renderer
	merger       pdf.Merger
	templatePath string
	sourceDir    string
	outputDir    string
}

func NewAssembler(renderer render.Renderer, merger pdf.Merger, templatePath, sourceDir, outputDir string) *Assembler {
	return &Assembler{
		renderer:     renderer,
		merger:       merger,
		templatePath: templatePath,
		sourceDir:    sourceDir,
		outputDir:    outputDir,
	}
}

// Assemble produces the combined report and its deterministic output path.
// The source report is located by ClinicalReport_<irID>-?.pdf, the single
// wildcard standing for the unknown report version; exactly one match is
// required.
func (a *Assembler) Assemble(ctx context.Context, rec *cases.CaseRecord, cls cases.Classification) ([]byte, string, error) {
	cover, err := a.renderer.Render(ctx, a.templatePath, rec.CoverData(cls.Summary))
	if err != nil {
		return nil, "", fmt.Errorf("render cover page: %w", err)
	}

	pattern := fmt.Sprintf("ClinicalReport_%s-?.pdf", rec.InterpretationRequestID)
	matches, err := filepath.Glob(filepath.Join(a.sourceDir, pattern))
	if err != nil {
		return nil, "", fmt.Errorf("search source reports: %w", err)
	}
	switch {
	case len(matches) == 0:
		return nil, "", &AssemblyError{
			Kind: AssemblySourceNotFound,
			Detail: fmt.Sprintf("original GeL report not found; ensure it has been saved as PDF at %s",
				filepath.Join(a.sourceDir, pattern)),
		}
	case len(matches) > 1:
		return nil, "", &AssemblyError{
			Kind: AssemblyAmbiguousSource,
			Detail: fmt.Sprintf("%d versions of the report exist for IR ID %s; ensure only the correct version remains in %s",
				len(matches), rec.InterpretationRequestID, a.sourceDir),
		}
	}

	source, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, "", fmt.Errorf("read source report %s: %w", matches[0], err)
	}

	// Cover first; bookmark import from the source stays disabled in the
	// merger, the documents from the portal corrupt the merge otherwise.
	merged, err := a.merger.Merge(bytes.NewReader(cover), bytes.NewReader(source))
	if err != nil {
		return nil, "", fmt.Errorf("merge cover and source report: %w", err)
	}

	return merged, a.outputPath(rec), nil
}

// outputPath builds <outputDir>/<PRU>_<participantID>_<irID>_<yymmdd>.pdf,
// with the colon in the PRU replaced since it cannot appear in a filename.
func (a *Assembler) outputPath(rec *cases.CaseRecord) string {
	name := fmt.Sprintf("%s_%s_%s_%s.pdf",
		strings.ReplaceAll(rec.PatientReferenceID, ":", "_"),
		rec.ParticipantID,
		rec.InterpretationRequestID,
		rec.GeneratedAt.Format("060102"))
	return filepath.Join(a.outputDir, name)
}
