package job

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/pipeline"
	"market-predictor/internal/service"
)

const DefaultPredictionInterval = 3 * time.Hour

type PredictionRunner interface {
	Run(ctx context.Context, req service.RunRequest) (*pipeline.RunResult, error)
}

// PredictionJob triggers a full prediction run on a fixed interval.
type PredictionJob struct {
	tracer     trace.Tracer
	logger     zerolog.Logger
	runner     PredictionRunner
	interval   time.Duration
	runOnStart bool
}

func NewPredictionJob(tracer trace.Tracer, runner PredictionRunner, interval time.Duration, runOnStart bool, logger zerolog.Logger) *PredictionJob {
	if interval <= 0 {
		interval = DefaultPredictionInterval
	}
	return &PredictionJob{
		tracer:     tracer,
		logger:     logger.With().Str("component", "prediction-job").Logger(),
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
	}
}

func (j *PredictionJob) Start(ctx context.Context) {
	if j.runner == nil {
		j.logger.Info().Msg("prediction job disabled: no runner")
		<-ctx.Done()
		return
	}

	if j.runOnStart {
		j.runOnce(ctx)
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *PredictionJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "prediction-job.run-once")
	defer span.End()

	result, err := j.runner.Run(ctx, service.RunRequest{})
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		j.logger.Info().Msg("skipping scheduled run: another run is in progress")
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		j.logger.Error().Err(err).Msg("prediction cycle failed")
		return
	}
	if result == nil {
		return
	}
	j.logger.Info().
		Str("run_id", result.RunID).
		Int("predictions", len(result.Predictions)).
		Int("failures", len(result.Failures)).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("prediction cycle complete")
}
