package sentiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/domain"
	"market-predictor/internal/progress"
)

type staticSource struct {
	name  string
	items []Item
	err   error
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Fetch(ctx context.Context, limit int) ([]Item, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.items) > limit {
		return s.items[:limit], nil
	}
	return s.items, nil
}

type staticFactory map[string]Source

func (f staticFactory) Source(spec domain.SentimentSourceSpec) (Source, error) {
	src, ok := f[spec.Name]
	if !ok {
		return nil, errors.New("unknown source")
	}
	return src, nil
}

type recordingReporter struct {
	percents []float64
	labels   []string
}

func (r *recordingReporter) Update(stage domain.Stage, percent float64, item string) {
	r.percents = append(r.percents, percent)
	r.labels = append(r.labels, item)
}

type stubScorer struct {
	scores map[string]float64
}

func (s stubScorer) Score(_ context.Context, item Item) (float64, error) {
	v, ok := s.scores[item.ID]
	if !ok {
		return 0, errors.New("scoring failed")
	}
	return v, nil
}

func scored(id string, v float64) Item {
	return Item{ID: id, Title: id, Score: &v}
}

func newTestAggregator(f SourceFactory, scorer Scorer) *Aggregator {
	a := NewAggregator(trace.NewNoopTracerProvider().Tracer("test"), f, scorer, zerolog.Nop())
	a.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return a
}

func spec(name string, weight float64, items int) domain.SentimentSourceSpec {
	return domain.SentimentSourceSpec{Name: name, Weight: weight, ItemCount: items}
}

func TestAggregateEmptySources(t *testing.T) {
	a := newTestAggregator(staticFactory{}, nil)

	res, err := a.Aggregate(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Overall)
	assert.False(t, res.Available)
	assert.Zero(t, res.TotalSources)
}

func TestAggregateWeightedMean(t *testing.T) {
	f := staticFactory{
		"A": staticSource{name: "A", items: []Item{scored("a1", 0.3), scored("a2", 0.5)}},
		"B": staticSource{name: "B", items: []Item{scored("b1", -0.2), scored("b2", -0.1), scored("b3", -0.3)}},
	}
	a := newTestAggregator(f, nil)

	res, err := a.Aggregate(context.Background(), []domain.SentimentSourceSpec{spec("A", 5.0, 2), spec("B", 3.0, 3)})
	require.NoError(t, err)
	assert.InDelta(t, 0.175, res.Overall, 1e-12)
	assert.True(t, res.Available)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "A", res.Sources[0].Name)
	assert.InDelta(t, 0.4, res.Sources[0].WeightedAverage, 1e-12)
	assert.InDelta(t, -0.2, res.Sources[1].WeightedAverage, 1e-12)
	assert.Equal(t, 2, res.TotalSources)
}

func TestAggregateExcludesUnreachableSource(t *testing.T) {
	f := staticFactory{
		"A": staticSource{name: "A", items: []Item{scored("a1", 0.4)}},
		"B": staticSource{name: "B", err: errors.New("feed down")},
	}
	a := newTestAggregator(f, nil)

	res, err := a.Aggregate(context.Background(), []domain.SentimentSourceSpec{spec("A", 5.0, 1), spec("B", 3.0, 4)})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, res.Overall, 1e-12)
	assert.True(t, res.Sources[1].Excluded)
	assert.Equal(t, "feed down", res.Sources[1].Error)
	assert.False(t, res.Sources[0].Excluded)
}

func TestAggregateAllExcluded(t *testing.T) {
	f := staticFactory{"B": staticSource{name: "B", err: errors.New("feed down")}}
	a := newTestAggregator(f, nil)

	res, err := a.Aggregate(context.Background(), []domain.SentimentSourceSpec{spec("B", 3.0, 4), spec("missing", 1, 2)})
	require.NoError(t, err)
	assert.Zero(t, res.Overall)
	assert.False(t, res.Available)
	assert.True(t, res.Sources[0].Excluded)
	assert.True(t, res.Sources[1].Excluded)
}

func TestAggregateItemFailureCountsAsNeutral(t *testing.T) {
	f := staticFactory{
		"A": staticSource{name: "A", items: []Item{{ID: "good"}, {ID: "bad"}}},
	}
	a := newTestAggregator(f, stubScorer{scores: map[string]float64{"good": 0.6}})

	res, err := a.Aggregate(context.Background(), []domain.SentimentSourceSpec{spec("A", 2.0, 2)})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, res.Overall, 1e-12)
	assert.Equal(t, 2, res.Sources[0].ItemsProcessed)
	assert.Equal(t, 1, res.Sources[0].ItemsFailed)
}

func TestAggregateZeroItemSourceExcluded(t *testing.T) {
	f := staticFactory{
		"A": staticSource{name: "A", items: []Item{scored("a1", 0.8)}},
		"B": staticSource{name: "B", items: []Item{scored("b1", -0.8)}},
	}
	a := newTestAggregator(f, nil)

	res, err := a.Aggregate(context.Background(), []domain.SentimentSourceSpec{spec("A", 1, 1), spec("B", 1, 0)})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, res.Overall, 1e-12)
	assert.True(t, res.Sources[1].Excluded)
}

func TestAggregateProgressBand(t *testing.T) {
	f := staticFactory{
		"A": staticSource{name: "A", items: []Item{scored("a1", 0.1), scored("a2", 0.2)}},
		"B": staticSource{name: "B", err: errors.New("feed down")},
		"C": staticSource{name: "C", items: []Item{scored("c1", 0.1)}},
	}
	a := newTestAggregator(f, nil)
	rec := &recordingReporter{}
	a.SetReporter(rec, progress.DefaultBands())

	_, err := a.Aggregate(context.Background(), []domain.SentimentSourceSpec{spec("A", 1, 2), spec("B", 1, 1), spec("C", 1, 1)})
	require.NoError(t, err)

	require.NotEmpty(t, rec.percents)
	prev := 50.0
	for _, p := range rec.percents {
		assert.GreaterOrEqual(t, p, prev)
		assert.LessOrEqual(t, p, 75.0)
		prev = p
	}
	assert.Equal(t, 75.0, rec.percents[len(rec.percents)-1])
	assert.Equal(t, 56.25, rec.percents[0])
	assert.Equal(t, "A (1/2)", rec.labels[0])
}

func TestAggregateCancelled(t *testing.T) {
	f := staticFactory{
		"A": staticSource{name: "A", items: []Item{scored("a1", 0.1), scored("a2", 0.2)}},
	}
	a := newTestAggregator(f, nil)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	a.sleep = func(ctx context.Context, d time.Duration) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return ctx.Err()
	}

	_, err := a.Aggregate(ctx, []domain.SentimentSourceSpec{spec("A", 1, 2)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregateHonoursPerItemDelay(t *testing.T) {
	f := staticFactory{"A": staticSource{name: "A", items: []Item{scored("a1", 0), scored("a2", 0)}}}
	a := newTestAggregator(f, nil)
	var waited time.Duration
	a.sleep = func(ctx context.Context, d time.Duration) error {
		waited += d
		return nil
	}

	s := spec("A", 1, 2)
	s.PerItemDelay = 250 * time.Millisecond
	_, err := a.Aggregate(context.Background(), []domain.SentimentSourceSpec{s})
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, waited)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), 0))
}
