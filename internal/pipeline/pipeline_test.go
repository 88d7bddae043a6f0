package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/domain"
	"market-predictor/internal/predict"
	"market-predictor/internal/progress"
	"market-predictor/internal/technical"
)

type fakeFetcher struct {
	series map[string]*domain.PriceSeries
	errs   map[string]error
	calls  []string
	hook   func(symbol string)
}

func (f *fakeFetcher) FetchSeries(ctx context.Context, symbol string) (*domain.PriceSeries, error) {
	f.calls = append(f.calls, symbol)
	if f.hook != nil {
		f.hook(symbol)
	}
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	return f.series[symbol], nil
}

type fakeAggregator struct {
	result domain.SentimentResult
	err    error
	calls  int
}

func (f *fakeAggregator) Aggregate(ctx context.Context, specs []domain.SentimentSourceSpec) (domain.SentimentResult, error) {
	f.calls++
	if f.err != nil {
		return domain.SentimentResult{}, f.err
	}
	return f.result, nil
}

func risingSeries(symbol string, n int) *domain.PriceSeries {
	s := &domain.PriceSeries{Symbol: symbol, Provider: "test"}
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		// Most recent first.
		s.Points = append(s.Points, domain.PricePoint{
			Date:   base.AddDate(0, 0, -i),
			Close:  100 + float64(n-i),
			Volume: 1_000_000,
		})
	}
	return s
}

func quotaErr(symbol string) error {
	return &domain.ProviderError{Kind: domain.ErrQuotaExceeded, Provider: "alphavantage", Symbol: symbol}
}

func newTestPipeline(t *testing.T, f Fetcher, agg SentimentAggregator) *Pipeline {
	t.Helper()
	analyzer, err := technical.NewAnalyzer(technical.DefaultConfig())
	require.NoError(t, err)
	calc, err := predict.NewCalculator(predict.DefaultConfig())
	require.NoError(t, err)

	p := New(trace.NewNoopTracerProvider().Tracer("test"), zerolog.Nop(), Deps{
		Fetcher:    f,
		Analyzer:   analyzer,
		Sentiment:  agg,
		Calculator: calc,
		Tracker:    progress.NewTracker(nil),
	})
	p.newRunID = func() string { return "run-test" }
	return p
}

func TestRunPartialFailure(t *testing.T) {
	f := &fakeFetcher{
		series: map[string]*domain.PriceSeries{"SPY": risingSeries("SPY", 30)},
		errs:   map[string]error{"VEA": quotaErr("VEA")},
	}
	agg := &fakeAggregator{result: domain.SentimentResult{Overall: 0.2, Available: true}}
	p := newTestPipeline(t, f, agg)

	res, err := p.Run(context.Background(), []string{"spy", "VEA"})
	require.NoError(t, err)

	require.Len(t, res.Predictions, 1)
	pred := res.Predictions["SPY"]
	assert.Equal(t, "run-test", pred.RunID)
	assert.False(t, pred.GeneratedAt.IsZero())
	assert.Equal(t, domain.DirectionUp, pred.Direction)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, SymbolFailure{
		Symbol:   "VEA",
		Provider: "alphavantage",
		Kind:     "quota_exceeded",
		Message:  quotaErr("VEA").Error(),
	}, res.Failures[0])

	s := p.Tracker().Snapshot()
	assert.Equal(t, domain.StageComplete, s.Stage)
	assert.Equal(t, 100.0, s.Percent)
	assert.Equal(t, "run-test", s.RunID)
}

func TestRunSharesSentimentAcrossSymbols(t *testing.T) {
	f := &fakeFetcher{series: map[string]*domain.PriceSeries{
		"SPY": risingSeries("SPY", 30),
		"VEA": risingSeries("VEA", 30),
		"QQQ": risingSeries("QQQ", 3),
	}}
	agg := &fakeAggregator{result: domain.SentimentResult{Overall: -0.3, Available: true}}
	p := newTestPipeline(t, f, agg)

	res, err := p.Run(context.Background(), []string{"SPY", "VEA", "QQQ"})
	require.NoError(t, err)

	assert.Equal(t, 1, agg.calls)
	require.NotNil(t, res.Sentiment)
	for sym, pred := range res.Predictions {
		assert.Equal(t, -0.3, pred.SentimentScore, sym)
		assert.True(t, pred.SentimentAvailable, sym)
	}
	assert.Equal(t, []string{"SPY", "VEA", "QQQ"}, f.calls)
	assert.Contains(t, res.Predictions["QQQ"].Indicators.Neutralized, domain.IndicatorRSI)
}

func TestRunWithoutSentiment(t *testing.T) {
	f := &fakeFetcher{series: map[string]*domain.PriceSeries{"SPY": risingSeries("SPY", 30)}}
	agg := &fakeAggregator{result: domain.SentimentResult{Overall: 0.9, Available: true}}
	p := newTestPipeline(t, f, agg)

	res, err := p.Run(context.Background(), []string{"SPY"}, WithoutSentiment())
	require.NoError(t, err)

	assert.Zero(t, agg.calls)
	assert.Nil(t, res.Sentiment)
	pred := res.Predictions["SPY"]
	assert.True(t, pred.Degraded)
	assert.Zero(t, pred.SentimentScore)
	assert.Contains(t, pred.Explanation, "sentiment unavailable")
}

func TestRunCancelledMidFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &fakeFetcher{
		series: map[string]*domain.PriceSeries{"SPY": risingSeries("SPY", 30), "VEA": risingSeries("VEA", 30)},
		hook: func(symbol string) {
			if symbol == "VEA" {
				cancel()
			}
		},
	}
	agg := &fakeAggregator{}
	p := newTestPipeline(t, f, agg)

	res, err := p.Run(ctx, []string{"SPY", "VEA"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	assert.Zero(t, agg.calls)

	s := p.Tracker().Snapshot()
	assert.Equal(t, domain.StageError, s.Stage)
	assert.Zero(t, s.Percent)
}

func TestRunCancelledDuringSentiment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &fakeFetcher{series: map[string]*domain.PriceSeries{"SPY": risingSeries("SPY", 30)}}
	agg := &cancellingAggregator{cancel: cancel}
	p := newTestPipeline(t, f, agg)

	_, err := p.Run(ctx, []string{"SPY"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StageError, p.Tracker().Snapshot().Stage)
}

type cancellingAggregator struct {
	cancel context.CancelFunc
}

func (c *cancellingAggregator) Aggregate(ctx context.Context, _ []domain.SentimentSourceSpec) (domain.SentimentResult, error) {
	c.cancel()
	return domain.SentimentResult{}, ctx.Err()
}

func TestRunAllSymbolsFail(t *testing.T) {
	f := &fakeFetcher{errs: map[string]error{
		"SPY": &domain.ProviderError{Kind: domain.ErrUnreachable, Provider: "alphavantage", Symbol: "SPY", Err: errors.New("dial tcp: timeout")},
		"VEA": quotaErr("VEA"),
	}}
	agg := &fakeAggregator{}
	p := newTestPipeline(t, f, agg)

	res, err := p.Run(context.Background(), []string{"SPY", "VEA"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllSymbolsFailed)
	assert.ErrorIs(t, err, domain.ErrUnreachable)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	require.NotNil(t, res)
	assert.Len(t, res.Failures, 2)
	assert.Empty(t, res.Predictions)
	assert.Zero(t, agg.calls)
	assert.Equal(t, domain.StageError, p.Tracker().Snapshot().Stage)
}

func TestRunNilSeriesIsInvalid(t *testing.T) {
	f := &fakeFetcher{series: map[string]*domain.PriceSeries{"SPY": risingSeries("SPY", 30)}}
	p := newTestPipeline(t, f, &fakeAggregator{})

	res, err := p.Run(context.Background(), []string{"SPY", "VEA"})
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "invalid_response", res.Failures[0].Kind)
}

func TestRunNoSymbols(t *testing.T) {
	p := newTestPipeline(t, &fakeFetcher{}, &fakeAggregator{})
	_, err := p.Run(context.Background(), []string{" ", ""})
	assert.ErrorIs(t, err, ErrNoSymbols)

	state := p.Tracker().Snapshot()
	assert.Equal(t, domain.StageError, state.Stage)
	assert.Equal(t, 0.0, state.Percent)
	assert.Equal(t, ErrNoSymbols.Error(), state.CurrentItem)
	assert.NotEmpty(t, state.RunID)
}

func TestRunNoSymbolsReplacesPreviousTerminalState(t *testing.T) {
	f := &fakeFetcher{series: map[string]*domain.PriceSeries{"SPY": risingSeries("SPY", 30)}}
	p := newTestPipeline(t, f, &fakeAggregator{result: domain.SentimentResult{Available: true}})
	runs := 0
	p.newRunID = func() string {
		runs++
		return fmt.Sprintf("run-%d", runs)
	}

	res, err := p.Run(context.Background(), []string{"SPY"})
	require.NoError(t, err)
	require.Equal(t, domain.StageComplete, p.Tracker().Snapshot().Stage)

	_, err = p.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoSymbols)
	state := p.Tracker().Snapshot()
	assert.Equal(t, domain.StageError, state.Stage)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "run-2", state.RunID)
}

func TestRunProgressIsMonotonic(t *testing.T) {
	f := &fakeFetcher{
		series: map[string]*domain.PriceSeries{"SPY": risingSeries("SPY", 30), "QQQ": risingSeries("QQQ", 30)},
		errs:   map[string]error{"VEA": quotaErr("VEA")},
	}
	p := newTestPipeline(t, f, &fakeAggregator{result: domain.SentimentResult{Available: true}})
	ch, cancel := p.Tracker().Subscribe(256)

	_, err := p.Run(context.Background(), []string{"SPY", "VEA", "QQQ"})
	require.NoError(t, err)
	cancel()

	var states []domain.ProgressState
	for s := range ch {
		states = append(states, s)
	}
	require.NotEmpty(t, states)

	prev := -1.0
	stages := map[domain.Stage]bool{}
	for _, s := range states {
		if s.RunID != "run-test" {
			continue
		}
		assert.GreaterOrEqual(t, s.Percent, prev)
		prev = s.Percent
		stages[s.Stage] = true
	}
	for _, stage := range []domain.Stage{
		domain.StageInitializing,
		domain.StageFetchingData,
		domain.StageProcessingTechnical,
		domain.StageProcessingSentiment,
		domain.StageCalculating,
		domain.StageComplete,
	} {
		assert.True(t, stages[stage], "missing stage %s", stage)
	}
	assert.Equal(t, 100.0, prev)
}

func TestNormalizeSymbols(t *testing.T) {
	assert.Equal(t, []string{"SPY", "VEA"}, normalizeSymbols([]string{" spy", "VEA", "Spy", ""}))
}
