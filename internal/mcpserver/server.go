// Package mcpserver exposes the prediction service as MCP tools.
package mcpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"market-predictor/internal/domain"
	"market-predictor/internal/pipeline"
	"market-predictor/internal/provider"
	"market-predictor/internal/service"
)

var ErrRateLimited = errors.New("rate limit exceeded, retry later")

type PredictionService interface {
	Start(ctx context.Context, req service.RunRequest, done func(*pipeline.RunResult, error)) error
	Running() bool
	Symbols() []string
	Latest() (*pipeline.RunResult, bool)
	Predictions() []domain.Prediction
	Prediction(symbol string) (domain.Prediction, bool)
	Summary() domain.MarketSummary
	Progress() domain.ProgressState
	Usage() []provider.QuotaUsage
}

type Options struct {
	Version         string
	RequestTimeout  time.Duration
	RateLimitPerMin int
}

// Server wraps an MCP server whose tools read from and trigger the
// prediction service.
type Server struct {
	tracer  trace.Tracer
	logger  zerolog.Logger
	svc     PredictionService
	mcp     *mcp.Server
	limiter *rate.Limiter
	timeout time.Duration
	runCtx  context.Context
}

func New(tracer trace.Tracer, svc PredictionService, opts Options, logger zerolog.Logger) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 60
	}

	s := &Server{
		tracer:  tracer,
		logger:  logger.With().Str("component", "mcp").Logger(),
		svc:     svc,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RateLimitPerMin)), opts.RateLimitPerMin),
		timeout: opts.RequestTimeout,
		runCtx:  context.Background(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "market-predictor", Version: opts.Version}, nil)
	s.registerTools()
	return s
}

// SetRunContext bounds runs started by run_predictions.
func (s *Server) SetRunContext(ctx context.Context) {
	s.runCtx = ctx
}

func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// RunStdio serves over stdin/stdout until ctx is done or the client hangs up.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves the streamable HTTP transport. A non-empty token is
// required as a bearer token on every request.
func (s *Server) HTTPHandler(token string) http.Handler {
	h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	if token == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// guard applies the shared rate limit and per-request timeout, and opens a
// span for the tool call.
func (s *Server) guard(ctx context.Context, tool string) (context.Context, func(), error) {
	if !s.limiter.Allow() {
		s.logger.Warn().Str("tool", tool).Msg("mcp rate limit exceeded")
		return ctx, func() {}, ErrRateLimited
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	ctx, span := s.tracer.Start(ctx, "mcp."+tool)
	span.SetAttributes(attribute.String("tool", tool))
	return ctx, func() {
		span.End()
		cancel()
	}, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "run_predictions",
		Description: "Start a prediction run in the background. Poll get_progress, then read get_predictions.",
	}, s.runPredictions)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_predictions",
		Description: "Latest predictions with direction, percent change, confidence and explanation. Optionally filter by symbol.",
	}, s.getPredictions)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_progress",
		Description: "Progress of the current or last prediction run: stage, percent, current item and ETA.",
	}, s.getProgress)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_quota_usage",
		Description: "Calls made against each market data provider's daily quota.",
	}, s.getQuotaUsage)
}

func (s *Server) logCall(tool string, err error) {
	if err != nil {
		s.logger.Warn().Str("tool", tool).Err(err).Msg("mcp tool call failed")
		return
	}
	s.logger.Debug().Str("tool", tool).Msg("mcp tool call")
}
