// Package pipeline sequences one prediction run: fetch, technical analysis,
// shared sentiment, then combination, reporting progress throughout.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/domain"
	"market-predictor/internal/progress"
)

var (
	ErrNoSymbols        = errors.New("no symbols requested")
	ErrAllSymbolsFailed = errors.New("all symbols failed")
)

type Fetcher interface {
	FetchSeries(ctx context.Context, symbol string) (*domain.PriceSeries, error)
}

type Analyzer interface {
	Analyze(series *domain.PriceSeries) domain.TechnicalScoreSet
}

type SentimentAggregator interface {
	Aggregate(ctx context.Context, specs []domain.SentimentSourceSpec) (domain.SentimentResult, error)
}

type Combiner interface {
	Combine(symbol string, tech domain.TechnicalScoreSet, sent domain.SentimentResult) domain.Prediction
}

// SymbolFailure records why one symbol produced no prediction.
type SymbolFailure struct {
	Symbol   string `json:"symbol"`
	Provider string `json:"provider,omitempty"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

type RunResult struct {
	RunID       string                       `json:"run_id"`
	Predictions map[string]domain.Prediction `json:"predictions"`
	Sentiment   *domain.SentimentResult      `json:"sentiment,omitempty"`
	Failures    []SymbolFailure              `json:"failures,omitempty"`
	StartedAt   time.Time                    `json:"started_at"`
	FinishedAt  time.Time                    `json:"finished_at"`
}

type Deps struct {
	Fetcher    Fetcher
	Analyzer   Analyzer
	Sentiment  SentimentAggregator
	Calculator Combiner
	Tracker    *progress.Tracker
	Bands      progress.Bands
	Sources    []domain.SentimentSourceSpec
}

type Pipeline struct {
	tracer     trace.Tracer
	logger     zerolog.Logger
	fetcher    Fetcher
	analyzer   Analyzer
	sentiment  SentimentAggregator
	calculator Combiner
	tracker    *progress.Tracker
	bands      progress.Bands
	sources    []domain.SentimentSourceSpec
	now        func() time.Time
	newRunID   func() string
}

func New(tracer trace.Tracer, logger zerolog.Logger, deps Deps) *Pipeline {
	tracker := deps.Tracker
	if tracker == nil {
		tracker = progress.NewTracker(nil)
	}
	bands := deps.Bands
	if bands == (progress.Bands{}) {
		bands = progress.DefaultBands()
	}
	return &Pipeline{
		tracer:     tracer,
		logger:     logger.With().Str("component", "pipeline").Logger(),
		fetcher:    deps.Fetcher,
		analyzer:   deps.Analyzer,
		sentiment:  deps.Sentiment,
		calculator: deps.Calculator,
		tracker:    tracker,
		bands:      bands,
		sources:    deps.Sources,
		now:        time.Now,
		newRunID:   func() string { return uuid.NewString() },
	}
}

func (p *Pipeline) Tracker() *progress.Tracker {
	return p.tracker
}

type runOptions struct {
	sentiment bool
	sources   []domain.SentimentSourceSpec
}

type RunOption func(*runOptions)

// WithoutSentiment skips aggregation; every prediction is technical only
// and marked degraded.
func WithoutSentiment() RunOption {
	return func(o *runOptions) { o.sentiment = false }
}

// WithSources overrides the configured sentiment sources for one run.
func WithSources(specs []domain.SentimentSourceSpec) RunOption {
	return func(o *runOptions) { o.sources = specs }
}

type fetched struct {
	symbol string
	series *domain.PriceSeries
	tech   domain.TechnicalScoreSet
}

// Run predicts every symbol it can. Per-symbol provider failures are recorded
// in the result; a cancelled context discards partial work and moves the
// tracker to Error.
func (p *Pipeline) Run(ctx context.Context, symbols []string, opts ...RunOption) (*RunResult, error) {
	symbols = normalizeSymbols(symbols)
	if len(symbols) == 0 {
		runID := p.newRunID()
		p.tracker.Reset(runID)
		p.tracker.Fail(ErrNoSymbols.Error())
		p.logger.Warn().Str("run_id", runID).Msg("prediction run rejected: no symbols")
		return nil, ErrNoSymbols
	}
	o := runOptions{sentiment: true, sources: p.sources}
	for _, opt := range opts {
		opt(&o)
	}

	result := &RunResult{
		RunID:       p.newRunID(),
		Predictions: make(map[string]domain.Prediction, len(symbols)),
		StartedAt:   p.now().UTC(),
	}
	p.tracker.Reset(result.RunID)

	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", result.RunID),
		attribute.StringSlice("symbols", symbols),
		attribute.Bool("sentiment", o.sentiment),
	)
	logger := p.logger.With().Str("run_id", result.RunID).Logger()
	logger.Info().Strs("symbols", symbols).Bool("sentiment", o.sentiment).Msg("prediction run started")

	abort := func(err error) (*RunResult, error) {
		p.tracker.Fail(err.Error())
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("prediction run aborted")
		return nil, err
	}

	p.tracker.Update(domain.StageInitializing, p.bands.Initializing, fmt.Sprintf("%d symbols", len(symbols)))

	var (
		ready []fetched
		errs  []error
	)
	for i, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		p.tracker.Update(domain.StageFetchingData, p.bands.At(domain.StageFetchingData, i, len(symbols)), symbol)
		series, err := p.fetcher.FetchSeries(ctx, symbol)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return abort(ctxErr)
		}
		if err == nil && series == nil {
			err = &domain.ProviderError{Kind: domain.ErrInvalidResponse, Symbol: symbol, Err: errors.New("empty series")}
		}
		if err != nil {
			failure := symbolFailure(symbol, err)
			result.Failures = append(result.Failures, failure)
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
			logger.Warn().Str("symbol", symbol).Str("kind", failure.Kind).Err(err).Msg("symbol skipped")
		} else {
			ready = append(ready, fetched{symbol: symbol, series: series})
		}
		p.tracker.Update(domain.StageFetchingData, p.bands.At(domain.StageFetchingData, i+1, len(symbols)), symbol)
	}

	if len(ready) == 0 {
		err := errors.Join(append([]error{ErrAllSymbolsFailed}, errs...)...)
		p.tracker.Fail(ErrAllSymbolsFailed.Error())
		span.SetStatus(codes.Error, ErrAllSymbolsFailed.Error())
		result.FinishedAt = p.now().UTC()
		logger.Error().Err(err).Msg("prediction run failed")
		return result, err
	}

	for i := range ready {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		f := &ready[i]
		p.tracker.Update(domain.StageProcessingTechnical, p.bands.At(domain.StageProcessingTechnical, i, len(ready)), f.symbol)
		f.tech = p.analyze(ctx, f.symbol, f.series)
		p.tracker.Update(domain.StageProcessingTechnical, p.bands.At(domain.StageProcessingTechnical, i+1, len(ready)), f.symbol)
	}

	var sent domain.SentimentResult
	if o.sentiment && p.sentiment != nil {
		p.tracker.Transition(domain.StageProcessingSentiment, "sentiment sources")
		res, err := p.sentiment.Aggregate(ctx, o.sources)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return abort(ctxErr)
			}
			// Aggregation only fails on cancellation; anything else leaves the
			// run technical only.
			logger.Warn().Err(err).Msg("sentiment unavailable")
		} else {
			sent = res
			result.Sentiment = &res
		}
	}
	p.tracker.Update(domain.StageProcessingSentiment, p.bands.Sentiment, "sentiment complete")

	for i, f := range ready {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		p.tracker.Update(domain.StageCalculating, p.bands.At(domain.StageCalculating, i, len(ready)), f.symbol)
		pred := p.calculator.Combine(f.symbol, f.tech, sent)
		pred.RunID = result.RunID
		pred.GeneratedAt = p.now().UTC()
		result.Predictions[f.symbol] = pred
		logger.Info().
			Str("symbol", f.symbol).
			Str("direction", string(pred.Direction)).
			Float64("magnitude", pred.Magnitude).
			Float64("confidence", pred.Confidence).
			Bool("degraded", pred.Degraded).
			Msg("prediction ready")
		p.tracker.Update(domain.StageCalculating, p.bands.At(domain.StageCalculating, i+1, len(ready)), f.symbol)
	}

	if err := ctx.Err(); err != nil {
		return abort(err)
	}
	result.FinishedAt = p.now().UTC()
	p.tracker.Complete()
	span.SetAttributes(attribute.Int("predictions", len(result.Predictions)), attribute.Int("failures", len(result.Failures)))
	logger.Info().
		Int("predictions", len(result.Predictions)).
		Int("failures", len(result.Failures)).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("prediction run complete")
	return result, nil
}

func (p *Pipeline) analyze(ctx context.Context, symbol string, series *domain.PriceSeries) domain.TechnicalScoreSet {
	_, span := p.tracer.Start(ctx, "technical.analyze")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("points", series.Len()))
	return p.analyzer.Analyze(series)
}

func symbolFailure(symbol string, err error) SymbolFailure {
	f := SymbolFailure{Symbol: symbol, Kind: domain.KindName(err), Message: err.Error()}
	if f.Kind == "" {
		f.Kind = "error"
	}
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		f.Provider = perr.Provider
	}
	return f
}

// normalizeSymbols upper-cases, trims and de-duplicates while keeping order.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
