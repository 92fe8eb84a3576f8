package pipeline

import (
	"context"

	"github.com/rs/zerolog"
)

// Summary aggregates a batch run.
type Summary struct {
	Finalized int
	Rejected  int
	Failed    int
	Outcomes  []CaseOutcome
}

// Sink receives per-case outcomes as they happen. Presentation is separate
// from the pipeline so console output stays swappable.
type Sink interface {
	Report(outcome CaseOutcome)
}

// LogSink reports outcomes through zerolog: finalized at info, business
// rejections at warn, system faults at error.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Report(o CaseOutcome) {
	switch o.State {
	case StateFinalized:
		ev := s.Log.Info().Int("ngs_test_id", o.TestID).Str("report", o.OutputPath)
		if o.SideEffects != nil && len(o.SideEffects.Errors()) > 0 {
			ev = ev.Errs("side_effect_errors", o.SideEffects.Errors())
		}
		ev.Msg("report issued")
	case StateRejected:
		s.Log.Warn().Int("ngs_test_id", o.TestID).Str("stage", string(o.Stage)).Err(o.Err).Msg("case rejected")
	default:
		s.Log.Error().Int("ngs_test_id", o.TestID).Str("stage", string(o.Stage)).Err(o.Err).Msg("case failed")
	}
}

// Batch processes test identifiers strictly in order, one case fully through
// the pipeline before the next. A rejected or failed case never stops the
// batch.
type Batch struct {
	orch *Orchestrator
	sink Sink
}

func NewBatch(orch *Orchestrator, sink Sink) *Batch {
	return &Batch{orch: orch, sink: sink}
}

// Run processes every identifier and returns the aggregated summary.
func (b *Batch) Run(ctx context.Context, testIDs []int) Summary {
	var sum Summary
	for _, id := range testIDs {
		outcome := b.orch.Process(ctx, id)
		switch outcome.State {
		case StateFinalized:
			sum.Finalized++
		case StateRejected:
			sum.Rejected++
		default:
			sum.Failed++
		}
		sum.Outcomes = append(sum.Outcomes, outcome)
		if b.sink != nil {
			b.sink.Report(outcome)
		}
	}
	return sum
}
