package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/domain"
	"market-predictor/internal/pipeline"
	"market-predictor/internal/progress"
	"market-predictor/internal/provider"
)

var ErrRunInProgress = errors.New("prediction run already in progress")

type Runner interface {
	Run(ctx context.Context, symbols []string, opts ...pipeline.RunOption) (*pipeline.RunResult, error)
}

type QuotaReporter interface {
	Usage() []provider.QuotaUsage
}

type Recorder interface {
	RecordRun(status string, elapsed time.Duration)
	RecordPrediction(p domain.Prediction)
	RecordSentiment(s domain.SentimentResult)
	RecordQuota(provider string, calls, limit int)
}

type RunRequest struct {
	Symbols       []string
	TechnicalOnly bool
}

// PredictionService serializes pipeline runs and keeps the latest result
// for readers.
type PredictionService struct {
	tracer  trace.Tracer
	logger  zerolog.Logger
	runner  Runner
	tracker *progress.Tracker
	quota   QuotaReporter
	metrics Recorder
	symbols []string

	running atomic.Bool
	mu      sync.RWMutex
	latest  *pipeline.RunResult
	lastErr error
}

func NewPredictionService(
	tracer trace.Tracer,
	runner Runner,
	tracker *progress.Tracker,
	quota QuotaReporter,
	symbols []string,
	logger zerolog.Logger,
) *PredictionService {
	return &PredictionService{
		tracer:  tracer,
		logger:  logger.With().Str("component", "prediction-service").Logger(),
		runner:  runner,
		tracker: tracker,
		quota:   quota,
		symbols: append([]string(nil), symbols...),
	}
}

func (s *PredictionService) SetMetrics(r Recorder) {
	s.metrics = r
}

// Run executes one pipeline run, or fails fast with ErrRunInProgress when
// another run holds the guard.
func (s *PredictionService) Run(ctx context.Context, req RunRequest) (*pipeline.RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.execute(ctx, req)
}

// Start takes the run guard before returning and runs in the background.
// It returns ErrRunInProgress without starting anything when the guard is
// held. done, when set, receives the outcome after the guard is released.
func (s *PredictionService) Start(ctx context.Context, req RunRequest, done func(*pipeline.RunResult, error)) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	go func() {
		result, err := s.execute(ctx, req)
		s.running.Store(false)
		if done != nil {
			done(result, err)
		}
	}()
	return nil
}

func (s *PredictionService) execute(ctx context.Context, req RunRequest) (*pipeline.RunResult, error) {
	ctx, span := s.tracer.Start(ctx, "prediction-service.run")
	defer span.End()

	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = s.symbols
	}
	var opts []pipeline.RunOption
	if req.TechnicalOnly {
		opts = append(opts, pipeline.WithoutSentiment())
	}
	span.SetAttributes(attribute.StringSlice("symbols", symbols), attribute.Bool("technical_only", req.TechnicalOnly))

	started := time.Now()
	result, err := s.runner.Run(ctx, symbols, opts...)
	elapsed := time.Since(started)

	s.mu.Lock()
	s.lastErr = err
	if result != nil && len(result.Predictions) > 0 {
		s.latest = result
	}
	s.mu.Unlock()

	s.record(result, err, elapsed)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	return result, nil
}

func (s *PredictionService) record(result *pipeline.RunResult, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	status := "success"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "cancelled"
	case err != nil:
		status = "failed"
	case result != nil && len(result.Failures) > 0:
		status = "partial"
	}
	s.metrics.RecordRun(status, elapsed)
	if result != nil {
		for _, p := range result.Predictions {
			s.metrics.RecordPrediction(p)
		}
		if result.Sentiment != nil {
			s.metrics.RecordSentiment(*result.Sentiment)
		}
	}
	for _, u := range s.Usage() {
		s.metrics.RecordQuota(u.Provider, u.Calls, u.Limit)
	}
}

func (s *PredictionService) Running() bool {
	return s.running.Load()
}

func (s *PredictionService) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// Latest returns the most recent run that produced at least one prediction.
func (s *PredictionService) Latest() (*pipeline.RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}

func (s *PredictionService) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *PredictionService) Predictions() []domain.Prediction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil
	}
	out := make([]domain.Prediction, 0, len(s.latest.Predictions))
	for _, p := range s.latest.Predictions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *PredictionService) Prediction(symbol string) (domain.Prediction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return domain.Prediction{}, false
	}
	p, ok := s.latest.Predictions[symbol]
	return p, ok
}

func (s *PredictionService) Summary() domain.MarketSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return domain.Summarize(nil)
	}
	return domain.Summarize(s.latest.Predictions)
}

func (s *PredictionService) Progress() domain.ProgressState {
	return s.tracker.Snapshot()
}

func (s *PredictionService) SubscribeProgress(buffer int) (<-chan domain.ProgressState, func()) {
	return s.tracker.Subscribe(buffer)
}

func (s *PredictionService) Usage() []provider.QuotaUsage {
	if s.quota == nil {
		return nil
	}
	return s.quota.Usage()
}

// StreamProgress feeds every progress update to sinks until ctx is done.
func (s *PredictionService) StreamProgress(ctx context.Context, sinks ...func(context.Context, domain.ProgressState) error) {
	ch, cancel := s.tracker.Subscribe(64)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-ch:
			if !ok {
				return
			}
			for _, sink := range sinks {
				if err := sink(ctx, state); err != nil {
					s.logger.Debug().Err(err).Msg("progress sink failed")
				}
			}
		}
	}
}
