package job

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/provider"
)

type QuotaSource interface {
	Usage() []provider.QuotaUsage
}

type QuotaSink interface {
	RecordQuota(provider string, calls, limit int)
}

// QuotaPoller copies quota usage into the metrics sink on an interval so the
// gauges reflect windows that reset between runs.
type QuotaPoller struct {
	tracer       trace.Tracer
	logger       zerolog.Logger
	source       QuotaSource
	sink         QuotaSink
	pollInterval time.Duration
}

func NewQuotaPoller(tracer trace.Tracer, source QuotaSource, sink QuotaSink, pollInterval time.Duration, logger zerolog.Logger) *QuotaPoller {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &QuotaPoller{
		tracer:       tracer,
		logger:       logger.With().Str("component", "quota-poller").Logger(),
		source:       source,
		sink:         sink,
		pollInterval: pollInterval,
	}
}

// Start blocks until ctx is cancelled.
func (p *QuotaPoller) Start(ctx context.Context) {
	p.logger.Debug().Dur("interval", p.pollInterval).Msg("quota poller starting")
	p.pollOnce(ctx)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("quota poller stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *QuotaPoller) pollOnce(ctx context.Context) {
	_, span := p.tracer.Start(ctx, "quota-poller.poll-once")
	defer span.End()

	for _, u := range p.source.Usage() {
		p.sink.RecordQuota(u.Provider, u.Calls, u.Limit)
		if u.Limit > 0 && u.Calls >= u.Limit {
			p.logger.Warn().
				Str("provider", u.Provider).
				Time("resets_at", u.ResetsAt).
				Msg("provider quota exhausted")
		}
	}
}
