package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/domain"
	"market-predictor/internal/pipeline"
	"market-predictor/internal/provider"
	"market-predictor/internal/service"
)

// PredictionAPI is the slice of the prediction service the HTTP surface uses.
type PredictionAPI interface {
	Run(ctx context.Context, req service.RunRequest) (*pipeline.RunResult, error)
	Start(ctx context.Context, req service.RunRequest, done func(*pipeline.RunResult, error)) error
	Running() bool
	Symbols() []string
	Latest() (*pipeline.RunResult, bool)
	LastError() error
	Predictions() []domain.Prediction
	Prediction(symbol string) (domain.Prediction, bool)
	Summary() domain.MarketSummary
	Progress() domain.ProgressState
	SubscribeProgress(buffer int) (<-chan domain.ProgressState, func())
	Usage() []provider.QuotaUsage
}

type Handler struct {
	tracer      trace.Tracer
	logger      zerolog.Logger
	predictions PredictionAPI
	metrics     http.Handler
	apiKey      string
	runCtx      context.Context
	upgrader    websocket.Upgrader
	pingEvery   time.Duration
}

func New(tracer trace.Tracer, predictions PredictionAPI, logger zerolog.Logger) *Handler {
	return &Handler{
		tracer:      tracer,
		logger:      logger.With().Str("component", "http").Logger(),
		predictions: predictions,
		runCtx:      context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 30 * time.Second,
	}
}

// SetAPIKey guards POST /api/predictions/run. An empty key disables auth.
func (h *Handler) SetAPIKey(key string) {
	h.apiKey = key
}

func (h *Handler) SetMetricsHandler(m http.Handler) {
	h.metrics = m
}

// SetRunContext bounds background runs started over HTTP, normally to the
// server's lifetime.
func (h *Handler) SetRunContext(ctx context.Context) {
	h.runCtx = ctx
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.GET("/predictions", h.GetPredictions)
	api.GET("/predictions/:symbol", h.GetPrediction)
	api.POST("/predictions/run", APIKeyAuth(h.apiKey), h.TriggerRun)
	api.GET("/summary", h.GetSummary)
	api.GET("/progress", h.GetProgress)
	api.GET("/progress/stream", h.StreamProgress)
	api.GET("/usage", h.GetUsage)

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}
}
