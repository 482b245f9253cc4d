package pipeline

import (
	"context"
	"errors"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/observability/logging"
	"clinical-notes-service/internal/observability/metrics"
)

// RunFunc performs one pipeline run.
type RunFunc func(ctx context.Context, opts Options) (*models.PipelineResult, error)

// Retrier re-runs the pipeline while the verdict asks for regeneration.
// Each attempt is a separate run with its own event log.
type Retrier struct {
	// MaxAttempts bounds the total number of runs. Values below 1 mean 1.
	MaxAttempts int

	// Later attempts draft at BaseTemperature + (attempt-1)*TemperatureStep
	// when TemperatureStep is positive.
	BaseTemperature float64
	TemperatureStep float64

	// OnAttempt, when set, sees every attempt's result including the last.
	OnAttempt func(*models.PipelineResult)

	Metrics *metrics.Metrics
}

// Do calls run until the verdict is not regenerate, a run fails, or
// MaxAttempts is reached. It returns the last attempt, whose verdict carries
// the number of earlier attempts as its retry count.
func (r Retrier) Do(ctx context.Context, opts Options, run RunFunc) (*models.PipelineResult, error) {
	maxAttempts := r.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result *models.PipelineResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		o := opts
		o.Attempt = attempt
		if attempt > 1 && r.TemperatureStep > 0 {
			t := r.BaseTemperature + float64(attempt-1)*r.TemperatureStep
			o.Temperature = &t
		}

		res, err := run(ctx, o)
		if res != nil && r.OnAttempt != nil {
			r.OnAttempt(res)
		}
		if err != nil {
			return res, err
		}
		result = res

		if res.Verdict == nil || res.Verdict.Action != models.VerdictRegenerate {
			break
		}
		if attempt < maxAttempts {
			r.Metrics.RecordRegeneration()
			logger := logging.WithRun(res.RunID)
			logger.Info().
				Int("attempt", attempt).
				Str("reason", res.Verdict.Reasons.Reason).
				Msg("Verdict requested regeneration, retrying")
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}
	if result == nil {
		return nil, errors.New("retrier: no attempt was made")
	}
	return result, nil
}
