package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/cache"
	"market-predictor/internal/config"
	"market-predictor/internal/domain"
	"market-predictor/internal/provider"
	"market-predictor/internal/service"
)

func testConfig() *config.Config {
	return &config.Config{
		AlphaVantageDailyLimit: 25,
		AlphaVantagePerMinute:  5,
		FMPDailyLimit:          250,
		OpenAIModel:            "gpt-4o-mini",
		SeriesCacheTTLSecs:     60,
		Symbols:                []string{"SPY", "VEA"},
	}
}

func stubRedis(t *testing.T, fn func(ctx context.Context, addr string) (*redis.Client, error)) {
	t.Helper()
	orig := initRedisFunc
	initRedisFunc = fn
	t.Cleanup(func() { initRedisFunc = orig })
}

func TestNewWithoutRedis(t *testing.T) {
	stubRedis(t, func(ctx context.Context, addr string) (*redis.Client, error) {
		return nil, cache.ErrDisabled
	})

	a, err := New(context.Background(), testConfig(), trace.NewNoopTracerProvider().Tracer("test"), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.publisher)
	assert.Equal(t, []string{"SPY", "VEA"}, a.Service.Symbols())
	assert.Equal(t, domain.StageIdle, a.Service.Progress().Stage)
	assert.Len(t, a.Tuning.Sources, 10)

	usage := a.Service.Usage()
	require.Len(t, usage, 1)
	assert.Equal(t, provider.ProviderAlphaVantage, usage[0].Provider)
	assert.Equal(t, 25, usage[0].Limit)
}

func TestNewRedisFailureIsNotFatal(t *testing.T) {
	stubRedis(t, func(ctx context.Context, addr string) (*redis.Client, error) {
		return nil, errors.New("connection refused")
	})

	cfg := testConfig()
	cfg.RedisURL = "redis://localhost:6379"
	a, err := New(context.Background(), cfg, trace.NewNoopTracerProvider().Tracer("test"), zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, a.redis)
	assert.NoError(t, a.Close())
}

func TestNewRejectsBadTuning(t *testing.T) {
	stubRedis(t, func(ctx context.Context, addr string) (*redis.Client, error) {
		return nil, cache.ErrDisabled
	})
	orig := loadTuningFunc
	loadTuningFunc = func(path string) (*config.Tuning, error) {
		return nil, errors.New("bad tuning")
	}
	t.Cleanup(func() { loadTuningFunc = orig })

	_, err := New(context.Background(), testConfig(), trace.NewNoopTracerProvider().Tracer("test"), zerolog.Nop())
	require.EqualError(t, err, "bad tuning")
}

func TestProvideQuotaListsFMPOnlyWhenKeyed(t *testing.T) {
	cfg := testConfig()
	cfg.FMPAPIKey = "key"
	usage := ProvideQuota(cfg).Usage()
	require.Len(t, usage, 2)
	assert.Equal(t, provider.ProviderAlphaVantage, usage[0].Provider)
	assert.Equal(t, provider.ProviderFMP, usage[1].Provider)
	assert.Equal(t, 250, usage[1].Limit)
}

func TestProvideFetcherUsesCacheWithRedis(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	cfg := testConfig()
	tuning := config.DefaultTuning()
	av := ProvideAlphaVantage(tracer, ProvideQuota(cfg), cfg, &tuning, ProvideMetrics())

	assert.Same(t, av, ProvideFetcher(tracer, av, nil, cfg, zerolog.Nop()))

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()
	_, ok := ProvideFetcher(tracer, av, client, cfg, zerolog.Nop()).(*service.CachingFetcher)
	assert.True(t, ok)
}

func TestRunProgressFanoutRecordsGauge(t *testing.T) {
	stubRedis(t, func(ctx context.Context, addr string) (*redis.Client, error) {
		return nil, cache.ErrDisabled
	})
	a, err := New(context.Background(), testConfig(), trace.NewNoopTracerProvider().Tracer("test"), zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.RunProgressFanout(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		a.Tracker.Reset("run-1")
		a.Tracker.Update(domain.StageFetchingData, 20, "SPY")
		return progressGauge(t, a) == 20
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fanout did not stop")
	}
}

func progressGauge(t *testing.T, a *App) float64 {
	t.Helper()
	families, err := a.Metrics.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "market_predictor_progress_percent" && len(f.GetMetric()) == 1 {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return -1
}
