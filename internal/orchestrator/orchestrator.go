// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator runs a research job through its fixed stage chain:
// research, curation, briefing and compile.
//
// The research stage fans out every configured analyst with bounded
// concurrency and joins once each has committed or failed its slot.
// Curation and briefing fan out per kind the same way. Compile is
// single-threaded and deterministic. Progress goes to the job's publisher.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/equity-research/internal/analyst"
	"github.com/pdiddy/equity-research/internal/state"
	"github.com/pdiddy/equity-research/internal/statusbus"
	"github.com/pdiddy/equity-research/pkg/types"
)

// Curator ranks and filters one raw dataset.
type Curator interface {
	Curate(ctx context.Context, kind types.AnalystKind, raw types.Dataset, company types.Company) (types.Dataset, error)
}

// Summarizer writes the briefing for one curated dataset.
type Summarizer interface {
	Summarize(ctx context.Context, kind types.AnalystKind, curated types.Dataset, company types.Company) (string, error)
}

// PhaseRecorder is told about every phase transition of a job.
type PhaseRecorder interface {
	RecordPhase(ctx context.Context, jobID string, phase types.JobPhase) error
}

// passthrough is the curator used when none is configured.
type passthrough struct{}

func (passthrough) Curate(_ context.Context, _ types.AnalystKind, raw types.Dataset, _ types.Company) (types.Dataset, error) {
	return raw.Clone(), nil
}

const defaultMaxConcurrency = 6

// Options configures an Orchestrator.
type Options struct {
	Analysts   []analyst.Analyst
	Curator    Curator // nil keeps every raw document
	Summarizer Summarizer

	Pipeline types.PipelineConfig
	Compile  types.CompileConfig

	// Recorder, when set, is told about phase transitions. Its errors are
	// logged and ignored.
	Recorder PhaseRecorder

	// Bus, when set, has the job's queue flushed and retired when Run
	// returns, so every event is delivered before the caller sees the result.
	Bus *statusbus.Bus

	Logger *zap.Logger
}

// Orchestrator runs research jobs. It is safe for concurrent use by
// multiple jobs.
type Orchestrator struct {
	opts   Options
	logger *zap.Logger
}

// Result is the outcome of a completed job.
type Result struct {
	JobID      string
	Report     string
	References []string
	State      *state.ResearchState
	Failed     map[types.AnalystKind]string
	Duration   time.Duration
}

// New validates opts and returns an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if len(opts.Analysts) == 0 {
		return nil, eris.New("orchestrator requires at least one analyst")
	}
	if opts.Summarizer == nil {
		return nil, eris.New("orchestrator requires a summarizer")
	}
	seen := make(map[types.AnalystKind]bool, len(opts.Analysts))
	for _, a := range opts.Analysts {
		if !a.Kind().Valid() {
			return nil, eris.Errorf("analyst has unknown kind %q", a.Kind())
		}
		if seen[a.Kind()] {
			return nil, eris.Errorf("two analysts for kind %q", a.Kind())
		}
		seen[a.Kind()] = true
	}
	if opts.Curator == nil {
		opts.Curator = passthrough{}
	}
	if opts.Pipeline.MaxConcurrency <= 0 {
		opts.Pipeline.MaxConcurrency = defaultMaxConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{opts: opts, logger: logger.Named("orchestrator")}, nil
}

// Run drives st through every stage. It returns a Result when the job
// completes, or a *JobError when every analyst failed. Curation and
// briefing failures are recorded on the state and never fail the job.
//
// Pipeline.JobTimeout bounds the research stage only. Curation and
// briefing run on ctx so the datasets that made the deadline still get
// briefed.
func (o *Orchestrator) Run(ctx context.Context, st *state.ResearchState) (*Result, error) {
	start := time.Now()
	jobID := st.JobID()
	logger := o.logger.With(zap.String("job_id", jobID))
	if o.opts.Bus != nil {
		defer o.opts.Bus.CloseJob(jobID)
	}

	if err := o.advance(ctx, st, types.PhaseResearching); err != nil {
		return o.abort(st, logger, err)
	}
	o.publish(st, types.StatusProcessing, fmt.Sprintf("Researching %s", st.Company().Name),
		types.StatusResult{Step: "Research", Fields: map[string]any{"analysts": o.kinds()}})
	o.researchWithin(ctx, st, logger)

	if len(st.Succeeded()) == 0 {
		failures := st.Failed()
		if err := o.advance(ctx, st, types.PhaseFailed); err != nil {
			return o.abort(st, logger, err)
		}
		jerr := &JobError{JobID: jobID, Phase: types.PhaseResearching, Failures: failures}
		logger.Error("job failed", zap.Error(jerr))
		o.publish(st, types.StatusError, jerr.Error(), types.StatusResult{Step: "Error"})
		st.Freeze()
		return nil, jerr
	}

	if err := o.advance(ctx, st, types.PhaseCurating); err != nil {
		return o.abort(st, logger, err)
	}
	o.curate(ctx, st, logger)

	if err := o.advance(ctx, st, types.PhaseBriefing); err != nil {
		return o.abort(st, logger, err)
	}
	o.brief(ctx, st, logger)

	if err := o.advance(ctx, st, types.PhaseCompiling); err != nil {
		return o.abort(st, logger, err)
	}
	o.publish(st, types.StatusProcessing, "Compiling report", types.StatusResult{Step: "Compile"})
	report, refs := Compile(st, o.opts.Compile)
	if err := st.SetReport(report, refs); err != nil {
		return o.abort(st, logger, eris.Wrap(err, "storing report"))
	}

	if err := o.advance(ctx, st, types.PhaseCompleted); err != nil {
		return o.abort(st, logger, err)
	}
	failed := st.Failed()
	o.publish(st, types.StatusCompleted, "Research complete", types.StatusResult{
		Step: "Complete",
		Fields: map[string]any{
			"report":     report,
			"references": st.References(),
		},
	})
	st.Freeze()

	res := &Result{
		JobID:      jobID,
		Report:     report,
		References: st.References(),
		State:      st,
		Failed:     failed,
		Duration:   time.Since(start),
	}
	logger.Info("job completed",
		zap.Int("succeeded", len(st.Succeeded())),
		zap.Int("failed", len(failed)),
		zap.Int("references", len(res.References)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// abort ends a job that broke outside the analysts: subscribers get a
// terminal error event and the record is frozen as it stands.
func (o *Orchestrator) abort(st *state.ResearchState, logger *zap.Logger, err error) (*Result, error) {
	logger.Error("job aborted", zap.String("phase", string(st.Phase())), zap.Error(err))
	o.publish(st, types.StatusError, err.Error(), types.StatusResult{Step: "Error"})
	st.Freeze()
	return nil, err
}

// researchWithin runs the research stage under Pipeline.JobTimeout.
func (o *Orchestrator) researchWithin(ctx context.Context, st *state.ResearchState, logger *zap.Logger) {
	if o.opts.Pipeline.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Pipeline.JobTimeout)
		defer cancel()
	}
	o.research(ctx, st, logger)
}

func (o *Orchestrator) kinds() []string {
	out := make([]string, len(o.opts.Analysts))
	for i, a := range o.opts.Analysts {
		out[i] = string(a.Kind())
	}
	return out
}

// research runs every analyst and records each terminal outcome in its slot.
func (o *Orchestrator) research(ctx context.Context, st *state.ResearchState, logger *zap.Logger) {
	var g errgroup.Group
	g.SetLimit(o.opts.Pipeline.MaxConcurrency)
	for _, a := range o.opts.Analysts {
		g.Go(func() error {
			kind := a.Kind()
			ds, err := runAnalyst(ctx, a, st.View(kind))
			slot := st.Slot(kind)
			if err != nil {
				logger.Warn("analyst failed", zap.String("analyst", string(kind)), zap.Error(err))
				if ferr := slot.Fail(err); ferr != nil {
					logger.Error("recording analyst failure", zap.String("analyst", string(kind)), zap.Error(ferr))
				}
				o.publish(st, types.StatusProcessing, fmt.Sprintf("%s failed: %v", kind.Label(), err),
					types.StatusResult{Step: kind.Label(), AnalystType: string(kind), Fields: map[string]any{"error": err.Error()}})
				return nil
			}
			if cerr := slot.Commit(ds); cerr != nil {
				logger.Error("committing dataset", zap.String("analyst", string(kind)), zap.Error(cerr))
			}
			logger.Debug("analyst finished", zap.String("analyst", string(kind)), zap.Int("documents", len(ds)))
			return nil
		})
	}
	_ = g.Wait()
}

type analystResult struct {
	ds  types.Dataset
	err error
}

// runAnalyst runs a against ctx. If ctx ends first the analyst is abandoned
// and reported as failed; its late result is discarded. A panic in the
// analyst is reported as a failure.
func runAnalyst(ctx context.Context, a analyst.Analyst, v *state.View) (types.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "job deadline reached before start")
	}
	done := make(chan analystResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- analystResult{err: eris.Errorf("analyst panicked: %v\n%s", r, debug.Stack())}
			}
		}()
		ds, err := a.Run(ctx, v)
		done <- analystResult{ds: ds, err: err}
	}()
	select {
	case r := <-done:
		return r.ds, r.err
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "job deadline reached")
	}
}

// curate produces the curated dataset for every succeeded kind.
func (o *Orchestrator) curate(ctx context.Context, st *state.ResearchState, logger *zap.Logger) {
	kinds := st.Succeeded()
	o.publish(st, types.StatusProcessing, fmt.Sprintf("Curating %d datasets", len(kinds)),
		types.StatusResult{Step: "Curation"})
	company := st.Company()

	var g errgroup.Group
	g.SetLimit(o.opts.Pipeline.MaxConcurrency)
	for _, kind := range kinds {
		g.Go(func() error {
			slot := st.Slot(kind)
			curated, err := o.opts.Curator.Curate(ctx, kind, slot.Raw(), company)
			if err != nil {
				logger.Warn("curation failed", zap.String("analyst", string(kind)), zap.Error(err))
				_ = slot.NoteStageError("curation", err)
				return nil
			}
			if err := slot.SetCurated(curated); err != nil {
				logger.Error("storing curated dataset", zap.String("analyst", string(kind)), zap.Error(err))
				return nil
			}
			o.publish(st, types.StatusProcessing, fmt.Sprintf("Kept %d of %d %s documents", len(curated), len(slot.Raw()), kind),
				types.StatusResult{Step: "Curation", AnalystType: string(kind)}.WithDocuments(len(curated)))
			return nil
		})
	}
	_ = g.Wait()
}

// brief writes a briefing for every kind with a non-empty curated dataset.
func (o *Orchestrator) brief(ctx context.Context, st *state.ResearchState, logger *zap.Logger) {
	company := st.Company()
	var kinds []types.AnalystKind
	for _, k := range st.Succeeded() {
		if len(st.Slot(k).Curated()) > 0 {
			kinds = append(kinds, k)
		}
	}
	o.publish(st, types.StatusProcessing, fmt.Sprintf("Writing %d briefings", len(kinds)),
		types.StatusResult{Step: "Briefing"})

	var g errgroup.Group
	g.SetLimit(o.opts.Pipeline.MaxConcurrency)
	for _, kind := range kinds {
		g.Go(func() error {
			slot := st.Slot(kind)
			text, err := o.opts.Summarizer.Summarize(ctx, kind, slot.Curated(), company)
			if err != nil {
				logger.Warn("briefing failed", zap.String("analyst", string(kind)), zap.Error(err))
				_ = slot.NoteStageError("briefing", err)
				return nil
			}
			if err := slot.SetBriefing(text); err != nil {
				logger.Error("storing briefing", zap.String("analyst", string(kind)), zap.Error(err))
				return nil
			}
			o.publish(st, types.StatusProcessing, fmt.Sprintf("%s briefing ready", kind.Label()),
				types.StatusResult{Step: "Briefing", AnalystType: string(kind)})
			return nil
		})
	}
	_ = g.Wait()
}

// advance moves st to next and notifies the recorder. The recorder gets a
// context that survives the job deadline so terminal phases are recorded.
func (o *Orchestrator) advance(ctx context.Context, st *state.ResearchState, next types.JobPhase) error {
	if err := st.Advance(next); err != nil {
		return eris.Wrapf(err, "advancing job %s", st.JobID())
	}
	if o.opts.Recorder != nil {
		if err := o.opts.Recorder.RecordPhase(context.WithoutCancel(ctx), st.JobID(), next); err != nil {
			o.logger.Warn("recording phase", zap.String("job_id", st.JobID()), zap.String("phase", string(next)), zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) publish(st *state.ResearchState, status types.JobStatus, message string, result types.StatusResult) {
	st.Publisher().Publish(st.JobID(), status, message, result)
}
