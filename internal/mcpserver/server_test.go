package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"market-predictor/internal/domain"
	"market-predictor/internal/pipeline"
	"market-predictor/internal/provider"
	"market-predictor/internal/service"
)

type stubService struct {
	running bool
	runs    atomic.Int32
	ran     chan service.RunRequest
}

func newStubService() *stubService {
	return &stubService{ran: make(chan service.RunRequest, 1)}
}

var stubPrediction = domain.Prediction{
	Symbol:       "SPY",
	Direction:    domain.DirectionUp,
	SignedChange: 1.4,
	Magnitude:    1.4,
	Confidence:   82,
	Explanation:  "Based on: oversold RSI (28.0)",
	GeneratedAt:  time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC),
}

func (s *stubService) Start(ctx context.Context, req service.RunRequest, done func(*pipeline.RunResult, error)) error {
	if s.running {
		return service.ErrRunInProgress
	}
	s.runs.Add(1)
	s.ran <- req
	if done != nil {
		done(&pipeline.RunResult{}, nil)
	}
	return nil
}

func (s *stubService) Running() bool { return s.running }
func (s *stubService) Symbols() []string { return []string{"SPY", "VEA"} }

func (s *stubService) Latest() (*pipeline.RunResult, bool) {
	return &pipeline.RunResult{RunID: "run-9"}, true
}

func (s *stubService) Predictions() []domain.Prediction { return []domain.Prediction{stubPrediction} }

func (s *stubService) Prediction(symbol string) (domain.Prediction, bool) {
	if symbol == "SPY" {
		return stubPrediction, true
	}
	return domain.Prediction{}, false
}

func (s *stubService) Summary() domain.MarketSummary {
	return domain.Summarize(map[string]domain.Prediction{"SPY": stubPrediction})
}

func (s *stubService) Progress() domain.ProgressState {
	return domain.ProgressState{RunID: "run-9", Stage: domain.StageProcessingTechnical, Percent: 40, CurrentItem: "VEA", ETASeconds: 15}
}

func (s *stubService) Usage() []provider.QuotaUsage {
	return []provider.QuotaUsage{{
		Provider: provider.ProviderAlphaVantage,
		Calls:    4,
		Limit:    25,
		ResetsAt: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
	}}
}

func connect(t *testing.T, srv *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	serverSession, err := srv.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		raw, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return res
}

func newTestServer(svc PredictionService, opts Options) *Server {
	return New(trace.NewNoopTracerProvider().Tracer("test"), svc, opts, zerolog.Nop())
}

func TestListTools(t *testing.T) {
	session := connect(t, newTestServer(newStubService(), Options{}))

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"run_predictions", "get_predictions", "get_progress", "get_quota_usage"}, names)
}

func TestGetPredictions(t *testing.T) {
	session := connect(t, newTestServer(newStubService(), Options{}))

	var out PredictionsOutput
	res := callTool(t, session, "get_predictions", map[string]any{}, &out)
	require.False(t, res.IsError)
	assert.Equal(t, "run-9", out.RunID)
	assert.Equal(t, "bullish", out.Market)
	require.Len(t, out.Predictions, 1)
	assert.Equal(t, "UP", out.Predictions[0].Direction)
	assert.Equal(t, "2026-01-02T15:00:00Z", out.Predictions[0].GeneratedAt)

	res = callTool(t, session, "get_predictions", map[string]any{"symbol": "qqq"}, nil)
	assert.True(t, res.IsError)
}

func TestGetProgressAndQuota(t *testing.T) {
	session := connect(t, newTestServer(newStubService(), Options{}))

	var progress ProgressOutput
	callTool(t, session, "get_progress", map[string]any{}, &progress)
	assert.Equal(t, "processing_technical", progress.Stage)
	assert.Equal(t, 40.0, progress.Percent)
	assert.Equal(t, "15s", progress.ETA)

	var quota QuotaOutput
	callTool(t, session, "get_quota_usage", map[string]any{}, &quota)
	require.Len(t, quota.Providers, 1)
	assert.Equal(t, QuotaView{Provider: "alphavantage", Calls: 4, Limit: 25, ResetsAt: "2026-01-03T00:00:00Z"}, quota.Providers[0])
}

func TestRunPredictionsStartsBackgroundRun(t *testing.T) {
	svc := newStubService()
	session := connect(t, newTestServer(svc, Options{}))

	var out RunOutput
	res := callTool(t, session, "run_predictions", map[string]any{"symbols": []string{" qqq "}, "technical_only": true}, &out)
	require.False(t, res.IsError)
	assert.Equal(t, "started", out.Status)
	assert.Equal(t, []string{"QQQ"}, out.Symbols)

	select {
	case req := <-svc.ran:
		assert.Equal(t, []string{"QQQ"}, req.Symbols)
		assert.True(t, req.TechnicalOnly)
	case <-time.After(time.Second):
		t.Fatal("run was not started")
	}
}

func TestRunPredictionsBusy(t *testing.T) {
	svc := newStubService()
	svc.running = true
	session := connect(t, newTestServer(svc, Options{}))

	res := callTool(t, session, "run_predictions", map[string]any{}, nil)
	assert.True(t, res.IsError)
	assert.Zero(t, svc.runs.Load())
}

func TestRateLimit(t *testing.T) {
	session := connect(t, newTestServer(newStubService(), Options{RateLimitPerMin: 1}))

	res := callTool(t, session, "get_progress", map[string]any{}, nil)
	assert.False(t, res.IsError)
	res = callTool(t, session, "get_progress", map[string]any{}, nil)
	assert.True(t, res.IsError)
}

func TestHTTPHandlerRequiresToken(t *testing.T) {
	srv := newTestServer(newStubService(), Options{})
	h := srv.HTTPHandler("secret")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
