// Package app assembles the prediction stack from configuration. Every
// binary builds the same graph through New and then adds its own surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/cache"
	"market-predictor/internal/config"
	"market-predictor/internal/domain"
	"market-predictor/internal/metrics"
	"market-predictor/internal/pipeline"
	"market-predictor/internal/predict"
	"market-predictor/internal/progress"
	"market-predictor/internal/provider"
	"market-predictor/internal/sentiment"
	"market-predictor/internal/service"
	"market-predictor/internal/technical"
)

var (
	initRedisFunc  = cache.InitRedis
	loadTuningFunc = config.LoadTuning
)

// App is the assembled prediction stack.
type App struct {
	Config   *config.Config
	Tuning   *config.Tuning
	Logger   zerolog.Logger
	Metrics  *metrics.Recorder
	Quota    *provider.RateLimiter
	Tracker  *progress.Tracker
	Pipeline *pipeline.Pipeline
	Service  *service.PredictionService

	redis     *redis.Client
	publisher *service.ProgressPublisher
}

// New loads tuning, connects the optional Redis instance and wires the
// pipeline behind a PredictionService.
func New(ctx context.Context, cfg *config.Config, tracer trace.Tracer, logger zerolog.Logger) (*App, error) {
	tuning, err := loadTuningFunc(cfg.TuningFile)
	if err != nil {
		return nil, err
	}

	redisClient, err := initRedisFunc(ctx, cfg.RedisURL)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		redisClient = nil
	case err != nil:
		logger.Warn().Err(err).Msg("redis unavailable, continuing without cache")
		redisClient = nil
	}

	rec := ProvideMetrics()
	quota := ProvideQuota(cfg)
	tracker := progress.NewTracker(nil)

	av := ProvideAlphaVantage(tracer, quota, cfg, tuning, rec)
	fmp := ProvideFMP(tracer, quota, cfg, rec)

	analyzer, err := technical.NewAnalyzer(tuning.Technical)
	if err != nil {
		closeRedis(redisClient)
		return nil, fmt.Errorf("technical config: %w", err)
	}
	calc, err := predict.NewCalculator(tuning.Prediction)
	if err != nil {
		closeRedis(redisClient)
		return nil, err
	}

	p := pipeline.New(tracer, logger, pipeline.Deps{
		Fetcher:    ProvideFetcher(tracer, av, redisClient, cfg, logger),
		Analyzer:   analyzer,
		Sentiment:  ProvideAggregator(tracer, cfg, tuning, av, fmp, tracker, rec, logger),
		Calculator: calc,
		Tracker:    tracker,
		Bands:      tuning.Progress,
		Sources:    tuning.Sources,
	})

	svc := service.NewPredictionService(tracer, p, tracker, quota, cfg.Symbols, logger)
	svc.SetMetrics(rec)

	a := &App{
		Config:   cfg,
		Tuning:   tuning,
		Logger:   logger,
		Metrics:  rec,
		Quota:    quota,
		Tracker:  tracker,
		Pipeline: p,
		Service:  svc,
		redis:    redisClient,
	}
	if redisClient != nil {
		a.publisher = service.NewProgressPublisher(redisClient)
	}
	return a, nil
}

// ProvideMetrics creates the Prometheus recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideQuota creates the daily quota limiter with each provider's window
// opened, so usage reports list them before the first call.
func ProvideQuota(cfg *config.Config) *provider.RateLimiter {
	quota := provider.NewRateLimiter(24*time.Hour, nil)
	quota.CanCall(provider.ProviderAlphaVantage, cfg.AlphaVantageDailyLimit)
	if cfg.FMPAPIKey != "" {
		quota.CanCall(provider.ProviderFMP, cfg.FMPDailyLimit)
	}
	return quota
}

func ProvideAlphaVantage(tracer trace.Tracer, quota *provider.RateLimiter, cfg *config.Config, tuning *config.Tuning, obs provider.CallObserver) *provider.AlphaVantageProvider {
	av := provider.NewAlphaVantageProvider(tracer, quota, provider.AlphaVantageConfig{
		APIKey:     cfg.AlphaVantageAPIKey,
		DailyLimit: cfg.AlphaVantageDailyLimit,
		PerMinute:  cfg.AlphaVantagePerMinute,
		Lookback:   tuning.Lookback,
	})
	av.SetObserver(obs)
	return av
}

func ProvideFMP(tracer trace.Tracer, quota *provider.RateLimiter, cfg *config.Config, obs provider.CallObserver) *provider.FMPProvider {
	fmp := provider.NewFMPProvider(tracer, quota, provider.FMPConfig{
		APIKey:     cfg.FMPAPIKey,
		DailyLimit: cfg.FMPDailyLimit,
	})
	fmp.SetObserver(obs)
	return fmp
}

// ProvideFetcher puts the Redis series cache in front of the market data
// provider when Redis is available.
func ProvideFetcher(tracer trace.Tracer, av *provider.AlphaVantageProvider, redisClient *redis.Client, cfg *config.Config, logger zerolog.Logger) pipeline.Fetcher {
	if redisClient == nil {
		return av
	}
	ttl := time.Duration(cfg.SeriesCacheTTLSecs) * time.Second
	return service.NewCachingFetcher(tracer, av, redisClient, ttl, logger)
}

func ProvideAggregator(
	tracer trace.Tracer,
	cfg *config.Config,
	tuning *config.Tuning,
	av *provider.AlphaVantageProvider,
	fmp *provider.FMPProvider,
	tracker *progress.Tracker,
	obs provider.CallObserver,
	logger zerolog.Logger,
) *sentiment.Aggregator {
	rss := provider.NewRSSProvider(tracer)
	rss.SetObserver(obs)
	reddit := provider.NewRedditProvider(tracer)
	reddit.SetObserver(obs)
	sources := sentiment.Providers{
		AlphaVantage: av,
		FMP:          fmp,
		RSS:          rss,
		Reddit:       reddit,
		Tickers:      strings.Join(cfg.Symbols, ","),
	}
	agg := sentiment.NewAggregator(tracer, sources, sentiment.NewScorer(cfg.OpenAIAPIKey, cfg.OpenAIModel), logger)
	agg.SetReporter(tracker, tuning.Progress)
	return agg
}

// RunProgressFanout mirrors tracker updates into the progress gauge and,
// with Redis, the progress channel. It blocks until ctx is done.
func (a *App) RunProgressFanout(ctx context.Context) {
	sinks := []func(context.Context, domain.ProgressState) error{
		func(_ context.Context, s domain.ProgressState) error {
			a.Metrics.RecordProgress(s)
			return nil
		},
	}
	if a.publisher != nil {
		sinks = append(sinks, a.publisher.Publish)
	}
	a.Service.StreamProgress(ctx, sinks...)
}

func (a *App) Close() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func closeRedis(c *redis.Client) {
	if c != nil {
		_ = c.Close()
	}
}
