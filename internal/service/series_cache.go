package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/domain"
)

const DefaultSeriesCacheTTL = 6 * time.Hour

type SeriesFetcher interface {
	FetchSeries(ctx context.Context, symbol string) (*domain.PriceSeries, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// CachingFetcher serves daily series from Redis when it can, so repeated
// runs within a trading day do not spend provider quota.
type CachingFetcher struct {
	tracer trace.Tracer
	logger zerolog.Logger
	next   SeriesFetcher
	redis  RedisClient
	ttl    time.Duration
}

func NewCachingFetcher(tracer trace.Tracer, next SeriesFetcher, redisClient RedisClient, ttl time.Duration, logger zerolog.Logger) *CachingFetcher {
	if ttl <= 0 {
		ttl = DefaultSeriesCacheTTL
	}
	return &CachingFetcher{
		tracer: tracer,
		logger: logger.With().Str("component", "series-cache").Logger(),
		next:   next,
		redis:  redisClient,
		ttl:    ttl,
	}
}

func (c *CachingFetcher) FetchSeries(ctx context.Context, symbol string) (*domain.PriceSeries, error) {
	ctx, span := c.tracer.Start(ctx, "series-cache.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	if c.redis != nil {
		cached, err := c.getSeriesCache(ctx, symbol)
		if err != nil {
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("series cache read failed")
		}
		if cached != nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	}

	series, err := c.next.FetchSeries(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if c.redis != nil && series != nil {
		if err := c.setSeriesCache(ctx, series); err != nil {
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("series cache write failed")
		}
	}
	return series, nil
}

func seriesKey(symbol string) string {
	return "series:" + strings.ToUpper(symbol)
}

func (c *CachingFetcher) setSeriesCache(ctx context.Context, series *domain.PriceSeries) error {
	data, err := json.Marshal(series)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, seriesKey(series.Symbol), data, c.ttl).Err()
}

func (c *CachingFetcher) getSeriesCache(ctx context.Context, symbol string) (*domain.PriceSeries, error) {
	data, err := c.redis.Get(ctx, seriesKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var series domain.PriceSeries
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, nil
	}
	return &series, nil
}
