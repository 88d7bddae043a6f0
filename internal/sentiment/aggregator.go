package sentiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/domain"
	"market-predictor/internal/progress"
)

// Reporter receives progress updates while sources are processed.
type Reporter interface {
	Update(stage domain.Stage, percent float64, item string)
}

// Aggregator walks sources strictly in order. Item scoring failures count
// as neutral; a source that cannot be fetched at all is left out of the
// weighted mean.
type Aggregator struct {
	tracer   trace.Tracer
	logger   zerolog.Logger
	sources  SourceFactory
	scorer   Scorer
	reporter Reporter
	bands    progress.Bands
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewAggregator(tracer trace.Tracer, sources SourceFactory, scorer Scorer, logger zerolog.Logger) *Aggregator {
	if scorer == nil {
		scorer = HeuristicScorer{}
	}
	return &Aggregator{
		tracer:  tracer,
		logger:  logger.With().Str("component", "sentiment").Logger(),
		sources: sources,
		scorer:  scorer,
		bands:   progress.DefaultBands(),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func (a *Aggregator) SetReporter(r Reporter, bands progress.Bands) {
	a.reporter = r
	a.bands = bands
}

func (a *Aggregator) Aggregate(ctx context.Context, specs []domain.SentimentSourceSpec) (domain.SentimentResult, error) {
	ctx, span := a.tracer.Start(ctx, "sentiment.aggregate")
	defer span.End()
	span.SetAttributes(attribute.Int("sources", len(specs)))

	started := a.now()
	result := domain.SentimentResult{
		Sources:      make([]domain.SourceResult, 0, len(specs)),
		TotalSources: len(specs),
	}

	total := 0
	for _, spec := range specs {
		if spec.ItemCount > 0 {
			total += spec.ItemCount
		}
	}

	done := 0
	var weightedSum, weightSum float64
	for _, spec := range specs {
		sr, err := a.processSource(ctx, spec, &done, total)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return domain.SentimentResult{}, err
		}
		if !sr.Excluded {
			weightedSum += sr.WeightedAverage * sr.Weight
			weightSum += sr.Weight
		}
		result.Sources = append(result.Sources, sr)
	}

	if weightSum > 0 {
		result.Overall = clampUnit(weightedSum / weightSum)
		result.Available = true
	}
	result.TotalProcessingTime = a.now().Sub(started)
	a.report(done, total, "sentiment aggregated")

	span.SetAttributes(
		attribute.Float64("overall", result.Overall),
		attribute.Bool("available", result.Available),
	)
	a.logger.Info().
		Float64("overall", result.Overall).
		Int("sources", len(specs)).
		Bool("available", result.Available).
		Dur("elapsed", result.TotalProcessingTime).
		Msg("sentiment aggregated")
	return result, nil
}

// processSource only returns an error when ctx is done.
func (a *Aggregator) processSource(ctx context.Context, spec domain.SentimentSourceSpec, done *int, total int) (domain.SourceResult, error) {
	started := a.now()
	sr := domain.SourceResult{Name: spec.Name, Weight: spec.Weight}
	count := max(spec.ItemCount, 0)

	exclude := func(reason error) (domain.SourceResult, error) {
		*done += count
		a.report(*done, total, spec.Name)
		sr.Excluded = true
		sr.Error = reason.Error()
		sr.Duration = a.now().Sub(started)
		a.logger.Warn().Str("source", spec.Name).Err(reason).Msg("sentiment source excluded")
		return sr, nil
	}

	if err := ctx.Err(); err != nil {
		return sr, err
	}
	if count == 0 {
		return exclude(errors.New("no items requested"))
	}
	if spec.Weight <= 0 {
		return exclude(fmt.Errorf("non-positive weight %v", spec.Weight))
	}

	src, err := a.sources.Source(spec)
	if err != nil {
		return exclude(err)
	}
	items, err := src.Fetch(ctx, count)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return sr, ctxErr
	}
	if err != nil {
		return exclude(err)
	}
	if len(items) == 0 {
		return exclude(errors.New("source returned no items"))
	}
	if len(items) > count {
		items = items[:count]
	}

	var sum float64
	for i, item := range items {
		if err := a.sleep(ctx, spec.PerItemDelay); err != nil {
			return sr, err
		}
		score, err := a.scoreItem(ctx, item)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sr, ctxErr
			}
			sr.ItemsFailed++
			a.logger.Debug().Str("source", spec.Name).Str("item", item.ID).Err(err).Msg("item scored as neutral")
			score = 0
		}
		sum += score
		sr.ItemsProcessed++
		*done++
		a.report(*done, total, fmt.Sprintf("%s (%d/%d)", spec.Name, i+1, count))
	}
	// A short feed still moves progress past the items it never delivered.
	if missing := count - len(items); missing > 0 {
		*done += missing
		a.report(*done, total, spec.Name)
	}

	sr.WeightedAverage = sum / float64(sr.ItemsProcessed)
	sr.Duration = a.now().Sub(started)
	a.logger.Debug().
		Str("source", spec.Name).
		Float64("average", sr.WeightedAverage).
		Int("items", sr.ItemsProcessed).
		Int("failed", sr.ItemsFailed).
		Msg("sentiment source scored")
	return sr, nil
}

func (a *Aggregator) scoreItem(ctx context.Context, item Item) (float64, error) {
	if item.Score != nil {
		return clampUnit(*item.Score), nil
	}
	score, err := a.scorer.Score(ctx, item)
	if err != nil {
		return 0, err
	}
	return clampUnit(score), nil
}

func (a *Aggregator) report(done, total int, label string) {
	if a.reporter == nil {
		return
	}
	a.reporter.Update(domain.StageProcessingSentiment, a.bands.At(domain.StageProcessingSentiment, done, total), label)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
