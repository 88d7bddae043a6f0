// Package metrics exposes prediction run telemetry to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market-predictor/internal/domain"
)

const namespace = "market_predictor"

// Recorder owns its registry so tests and multiple binaries never collide
// on the global one.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	predictedChange  *prometheus.GaugeVec
	confidence       *prometheus.GaugeVec
	sentimentOverall prometheus.Gauge
	progressPercent  prometheus.Gauge
	quotaCalls       *prometheus.GaugeVec
	quotaLimit       *prometheus.GaugeVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Prediction runs by final status",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of completed prediction runs",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		providerCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Upstream provider calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		providerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of upstream provider calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		predictedChange: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "predicted_change_percent",
				Help:      "Signed predicted change of the latest prediction",
			},
			[]string{"symbol"},
		),
		confidence: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "prediction_confidence",
				Help:      "Confidence of the latest prediction",
			},
			[]string{"symbol"},
		),
		sentimentOverall: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sentiment_overall",
				Help:      "Overall weighted sentiment of the latest run",
			},
		),
		progressPercent: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "progress_percent",
				Help:      "Percent complete of the current run",
			},
		),
		quotaCalls: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "quota_calls",
				Help:      "Calls recorded in the current quota window",
			},
			[]string{"provider"},
		),
		quotaLimit: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "quota_limit",
				Help:      "Call limit of the current quota window",
			},
			[]string{"provider"},
		),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveProviderCall satisfies provider.CallObserver.
func (r *Recorder) ObserveProviderCall(provider, outcome string, elapsed time.Duration) {
	r.providerCalls.WithLabelValues(provider, outcome).Inc()
	r.providerDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (r *Recorder) RecordRun(status string, elapsed time.Duration) {
	r.runsTotal.WithLabelValues(status).Inc()
	if elapsed > 0 {
		r.runDuration.Observe(elapsed.Seconds())
	}
}

func (r *Recorder) RecordPrediction(p domain.Prediction) {
	r.predictedChange.WithLabelValues(p.Symbol).Set(p.SignedChange)
	r.confidence.WithLabelValues(p.Symbol).Set(p.Confidence)
}

func (r *Recorder) RecordSentiment(s domain.SentimentResult) {
	r.sentimentOverall.Set(s.Overall)
}

func (r *Recorder) RecordProgress(s domain.ProgressState) {
	r.progressPercent.Set(s.Percent)
}

func (r *Recorder) RecordQuota(provider string, calls, limit int) {
	r.quotaCalls.WithLabelValues(provider).Set(float64(calls))
	r.quotaLimit.WithLabelValues(provider).Set(float64(limit))
}
