package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/observability/logging"
	"clinical-notes-service/internal/observability/metrics"
	"clinical-notes-service/internal/service/draft"
	"clinical-notes-service/internal/service/normalize"
	"clinical-notes-service/internal/service/review"
	"clinical-notes-service/internal/service/stt"
)

// Stage names used in failure markers, spans and metrics.
const (
	StageTranscribe = "transcribe"
	StageDraft      = "draft"
	StageNormalize  = "normalize"
	StageReview     = "review"
)

// DefaultOverrideReason is recorded when an operator forces human review.
const DefaultOverrideReason = "Force Human Review enabled by user"

// TransitionSink receives every transition as it is recorded.
// Sink failures are logged and never fail the run.
type TransitionSink interface {
	Name() string
	RecordTransition(ctx context.Context, runID string, ev models.TransitionEvent) error
}

// ResultSink receives every finished run, completed or failed.
type ResultSink interface {
	Name() string
	RecordResult(ctx context.Context, result *models.PipelineResult) error
}

// StageError is returned by a run that aborted at Stage.
type StageError struct {
	Stage string
	Kind  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Options control a single run.
type Options struct {
	ForceHumanReview bool
	LanguageHint     string
	Temperature      *float64
	SessionID        string

	// Attempt is 1 for a first run; a retrier sets it for later attempts.
	Attempt int
}

// Config holds orchestrator settings.
type Config struct {
	StageTimeout   time.Duration
	OverrideReason string
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		StageTimeout:   2 * time.Minute,
		OverrideReason: DefaultOverrideReason,
	}
}

// Deps are the capabilities and sinks a run uses. Sinks, Metrics and Tracer are optional.
type Deps struct {
	Transcriber stt.Transcriber
	Drafter     draft.Drafter
	Normalizer  normalize.Normalizer
	Reviewer    review.Reviewer
	Transitions []TransitionSink
	Results     []ResultSink
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
}

// Orchestrator runs the note pipeline. Runs share no mutable state and may
// execute concurrently.
type Orchestrator struct {
	deps  Deps
	cfg   Config
	newID func() string
	now   func() time.Time
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("clinical-notes-service/pipeline")
	}
	if cfg.OverrideReason == "" {
		cfg.OverrideReason = DefaultOverrideReason
	}
	return &Orchestrator{
		deps:  deps,
		cfg:   cfg,
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithTranscriber returns a copy of o that transcribes with tr.
func (o *Orchestrator) WithTranscriber(tr stt.Transcriber) *Orchestrator {
	c := *o
	c.deps.Transcriber = tr
	return &c
}

type run struct {
	machine *Machine
	result  *models.PipelineResult
	logger  zerolog.Logger
	started time.Time
}

// Run transcribes src and carries the transcript through drafting,
// normalization and review. Every run ends in Final.
//
// A failed stage aborts the run: the returned result holds the partial
// event log and a failure marker, and the error is a *StageError.
// Review verdicts are never errors.
func (o *Orchestrator) Run(ctx context.Context, src models.AudioSource, opts Options) (*models.PipelineResult, error) {
	r := o.begin(opts)
	ctx, span := o.deps.Tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", r.machine.RunID()),
		attribute.String("audio.source", src.Name()),
	))
	defer span.End()

	tr, err := call(ctx, o, StageTranscribe, func(ctx context.Context) (models.Transcript, error) {
		return o.deps.Transcriber.Transcribe(ctx, src, opts.LanguageHint)
	})
	if err != nil {
		return o.abort(ctx, r, span, StageTranscribe, err)
	}
	o.record(ctx, r, models.ActionTranscribe, map[string]any{
		"segmentCount": len(tr.Segments),
		"languageCode": tr.LanguageCode,
		"provider":     o.deps.Transcriber.Provider(),
		"source":       src.Name(),
	})
	return o.continueFrom(ctx, r, span, tr, opts)
}

// RunTranscript runs the pipeline on an existing transcript, such as the
// running transcript of a live session. The transcribe transition is
// recorded without calling the transcriber.
func (o *Orchestrator) RunTranscript(ctx context.Context, tr models.Transcript, opts Options) (*models.PipelineResult, error) {
	r := o.begin(opts)
	ctx, span := o.deps.Tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", r.machine.RunID()),
		attribute.String("session.id", opts.SessionID),
	))
	defer span.End()

	o.record(ctx, r, models.ActionTranscribe, map[string]any{
		"segmentCount": len(tr.Segments),
		"languageCode": tr.LanguageCode,
		"source":       "session",
	})
	return o.continueFrom(ctx, r, span, tr, opts)
}

func (o *Orchestrator) begin(opts Options) *run {
	id := o.newID()
	attempt := opts.Attempt
	if attempt < 1 {
		attempt = 1
	}
	r := &run{
		machine: NewMachine(id, o.now),
		started: time.Now(),
		logger:  logging.WithRun(id),
		result: &models.PipelineResult{
			RunID:     id,
			SessionID: opts.SessionID,
			Attempt:   attempt,
			StartedAt: o.now(),
		},
	}
	o.deps.Metrics.RecordRunStart()
	r.logger.Info().
		Int("attempt", attempt).
		Bool("forceHumanReview", opts.ForceHumanReview).
		Str("sessionId", opts.SessionID).
		Msg("Pipeline run started")
	return r
}

func (o *Orchestrator) continueFrom(ctx context.Context, r *run, span trace.Span, tr models.Transcript, opts Options) (*models.PipelineResult, error) {
	r.result.Transcript = &tr

	d, err := call(ctx, o, StageDraft, func(ctx context.Context) (models.Draft, error) {
		return o.deps.Drafter.Draft(ctx, draft.Request{TranscriptText: tr.Text, Temperature: opts.Temperature})
	})
	if err != nil {
		return o.abort(ctx, r, span, StageDraft, err)
	}
	r.result.Draft = &d
	o.record(ctx, r, models.ActionDraft, map[string]any{
		"draftModelId": d.Model,
		"noteLength":   utf8.RuneCountInString(d.Text),
	})

	n, err := call(ctx, o, StageNormalize, func(ctx context.Context) (models.Normalization, error) {
		return o.deps.Normalizer.Normalize(ctx, tr.Text, d.Text), nil
	})
	if err != nil {
		return o.abort(ctx, r, span, StageNormalize, err)
	}
	r.result.Normalization = &n
	o.record(ctx, r, models.ActionNormalize, map[string]any{
		"perCategoryCount": n.Counts(),
	})

	v, err := call(ctx, o, StageReview, func(context.Context) (models.Verdict, error) {
		return o.deps.Reviewer.Evaluate(tr.Text, d.Text), nil
	})
	if err != nil {
		return o.abort(ctx, r, span, StageReview, err)
	}
	if r.result.Attempt > 1 {
		v = v.WithRetryCount(r.result.Attempt - 1)
	}
	o.record(ctx, r, models.ActionReview, map[string]any{
		"action":  v.Action,
		"reasons": v.Reasons.Clone(),
	})

	if opts.ForceHumanReview {
		v = v.WithOverride(o.cfg.OverrideReason)
		o.record(ctx, r, models.ActionOverride, map[string]any{
			"action":  v.Action,
			"reasons": v.Reasons.Clone(),
		})
	}
	r.result.Verdict = &v

	o.record(ctx, r, models.ActionFinalize, map[string]any{
		"finalAction": v.Action,
	})
	r.result.Outcome = models.OutcomeCompleted
	r.result.Events = r.machine.Events()

	o.deps.Metrics.RecordVerdict(string(v.Action), v.Reasons.Length, v.Reasons.ManualOverride)
	span.SetAttributes(attribute.String("verdict.action", string(v.Action)))
	o.finish(ctx, r)
	r.logger.Info().
		Str("action", string(v.Action)).
		Str("reason", v.Reasons.Reason).
		Bool("manualOverride", v.Reasons.ManualOverride).
		Int("events", len(r.result.Events)).
		Msg("Pipeline run completed")
	return r.result, nil
}

func (o *Orchestrator) abort(ctx context.Context, r *run, span trace.Span, stage string, err error) (*models.PipelineResult, error) {
	kind := models.ErrorKind(err)
	se := &StageError{Stage: stage, Kind: kind, Err: err}

	o.record(ctx, r, models.ActionAbort, map[string]any{
		"stage": stage,
		"kind":  kind,
		"error": err.Error(),
	})
	r.result.Outcome = models.OutcomeFailed
	r.result.Failure = &models.Failure{Stage: stage, Kind: kind, Message: err.Error()}
	r.result.Events = r.machine.Events()

	span.RecordError(err)
	span.SetStatus(codes.Error, se.Error())
	o.finish(ctx, r)
	r.logger.Error().
		Err(err).
		Str("stage", stage).
		Str("kind", kind).
		Msg("Pipeline run aborted")
	return r.result, se
}

func (o *Orchestrator) record(ctx context.Context, r *run, action models.Action, details map[string]any) {
	from := r.machine.State()
	ev, err := r.machine.Apply(action, details)
	if err != nil {
		// Only reachable through a programming error in the stage order.
		r.logger.Error().Err(err).Str("action", string(action)).Msg("Rejected transition")
		return
	}
	r.logger.Debug().
		Str("fromState", from.String()).
		Str("toState", ev.To.String()).
		Str("action", string(action)).
		Msg("Transition recorded")

	for _, sink := range o.deps.Transitions {
		if err := sink.RecordTransition(ctx, r.machine.RunID(), ev); err != nil {
			o.deps.Metrics.RecordSinkError(sink.Name())
			r.logger.Warn().Err(err).Str("sink", sink.Name()).Msg("Transition sink failed")
		}
	}
}

func (o *Orchestrator) finish(ctx context.Context, r *run) {
	o.deps.Metrics.RecordRunEnd(string(r.result.Outcome), time.Since(r.started).Seconds())
	for _, sink := range o.deps.Results {
		if err := sink.RecordResult(ctx, r.result); err != nil {
			o.deps.Metrics.RecordSinkError(sink.Name())
			r.logger.Warn().Err(err).Str("sink", sink.Name()).Msg("Result sink failed")
		}
	}
}

// call runs one stage under the stage timeout. A capability that ignores
// its context is abandoned when the deadline passes.
func call[T any](ctx context.Context, o *Orchestrator, stage string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := o.deps.Tracer.Start(ctx, "pipeline."+stage)
	defer span.End()

	if o.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.StageTimeout)
		defer cancel()
	}

	type outcome struct {
		v   T
		err error
	}
	start := time.Now()
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		ch <- outcome{v, err}
	}()

	var out outcome
	select {
	case out = <-ch:
	case <-ctx.Done():
		out.err = ctx.Err()
	}
	switch {
	case out.err == nil && ctx.Err() != nil:
		// A result delivered after the context ended does not count.
		out.err = ctx.Err()
	case out.err != nil && ctx.Err() != nil && !errors.Is(out.err, ctx.Err()):
		out.err = fmt.Errorf("%w: %v", ctx.Err(), out.err)
	}

	o.deps.Metrics.RecordStage(stage, models.ErrorKind(out.err), time.Since(start).Seconds())
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
	}
	return out.v, out.err
}
