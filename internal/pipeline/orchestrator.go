package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/moka-guys/GeL-Reports/internal/domain/cases"
	"github.com/moka-guys/GeL-Reports/internal/domain/reconcile"
)

// State is a pipeline stage for one case. Rejected, Failed and Finalized are
// terminal; the others name the last stage completed.
type State string

const (
	StateFetched        State = "fetched"
	StateValidated      State = "validated"
	StateReconciled     State = "reconciled"
	StateRemoteJobsDone State = "remote-jobs-done"
	StateClassified     State = "classified"
	StateAssembled      State = "assembled"
	StateFinalized      State = "finalized"
	StateRejected       State = "rejected"
	StateFailed         State = "failed"
)

// CaseOutcome is the structured result for one test identifier.
type CaseOutcome struct {
	TestID int
	State  State

	// Stage is the stage that was running when the case exited, for rejected
	// and failed outcomes.
	Stage State
	Err   error

	// SideEffects is populated for finalized cases; its collected errors do
	// not change the state.
	SideEffects *SideEffectReport
	OutputPath  string
}

// Rejected reports whether err is an expected business-rule outcome rather
// than a system fault. Remote-program failures (stderr) are business
// rejections; transport and transfer-corruption failures are faults.
func rejected(err error) bool {
	var verr *cases.ValidationError
	var cerr *cases.ClassificationError
	var rerr *reconcile.Error
	var aerr *AssemblyError
	var remerr *RemoteError
	switch {
	case errors.Is(err, cases.ErrCaseNotFound):
		return true
	case errors.As(err, &verr), errors.As(err, &cerr), errors.As(err, &rerr), errors.As(err, &aerr):
		return true
	case errors.As(err, &remerr):
		return remerr.RemoteLogic()
	default:
		return false
	}
}

// Options are the batch-level feature flags applied to every case in a run.
type Options struct {
	// SkipLabKey bypasses demographic reconciliation and exempts DOB/NHS
	// number from the completeness gate.
	SkipLabKey bool
	// IgnoreBlock processes a case despite its reporting block.
	IgnoreBlock bool
	// SubmitExitQuestionnaire runs the remote submission job before
	// classification.
	SubmitExitQuestionnaire bool
	// DownloadSummary retrieves the summary-of-findings PDF from the server.
	DownloadSummary bool
}

// Orchestrator drives one case through the pipeline. Any stage error exits
// the case as Rejected or Failed; the caller moves on to the next identifier
// regardless.
type Orchestrator struct {
	repo      cases.Repository
	checker   *reconcile.Checker
	jobs      *JobRunner
	assembler *Assembler
	sequencer *Sequencer

	opts          Options
	actor         string
	summaryDir    string
	summaryHeader string

	log zerolog.Logger
	now func() time.Time
}

func NewOrchestrator(repo cases.Repository, checker *reconcile.Checker, jobs *JobRunner, assembler *Assembler, sequencer *Sequencer, opts Options, actor, summaryDir, summaryHeader string, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:          repo,
		checker:       checker,
		jobs:          jobs,
		assembler:     assembler,
		sequencer:     sequencer,
		opts:          opts,
		actor:         actor,
		summaryDir:    summaryDir,
		summaryHeader: summaryHeader,
		log:           log,
		now:           time.Now,
	}
}

func exit(testID int, stage State, err error) CaseOutcome {
	state := StateFailed
	if rejected(err) {
		state = StateRejected
	}
	return CaseOutcome{TestID: testID, State: state, Stage: stage, Err: err}
}

// Process runs the full pipeline for one NGS test ID.
func (o *Orchestrator) Process(ctx context.Context, testID int) CaseOutcome {
	rec, err := o.repo.FetchCase(ctx, testID)
	if err != nil {
		// The repository wraps with the test ID already.
		return exit(testID, StateFetched, err)
	}
	rec.GeneratedAt = o.now()

	if err := cases.Validate(rec, o.opts.SkipLabKey, o.opts.IgnoreBlock); err != nil {
		return exit(testID, StateValidated, err)
	}

	if err := o.checker.Reconcile(ctx, rec, o.opts.SkipLabKey); err != nil {
		return exit(testID, StateReconciled, err)
	}

	if o.opts.SubmitExitQuestionnaire {
		if err := o.jobs.SubmitExitQuestionnaire(ctx, rec.InterpretationRequestID, o.actor); err != nil {
			return exit(testID, StateRemoteJobsDone, err)
		}
	}
	if o.opts.DownloadSummary {
		local := filepath.Join(o.summaryDir, fmt.Sprintf("SummaryFindings_%s.pdf", rec.InterpretationRequestID))
		if _, err := o.jobs.DownloadSummaryFindings(ctx, rec.InterpretationRequestID, o.summaryHeader, local); err != nil {
			return exit(testID, StateRemoteJobsDone, err)
		}
	}

	cls, err := cases.Classify(rec.ResultCode)
	if err != nil {
		return exit(testID, StateClassified, err)
	}

	doc, outputPath, err := o.assembler.Assemble(ctx, rec, cls)
	if err != nil {
		return exit(testID, StateAssembled, err)
	}

	report := o.sequencer.Apply(ctx, rec, cls, doc, outputPath)
	return CaseOutcome{
		TestID:      testID,
		State:       StateFinalized,
		Stage:       StateFinalized,
		SideEffects: report,
		OutputPath:  outputPath,
	}
}
