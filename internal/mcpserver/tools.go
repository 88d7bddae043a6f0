package mcpserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"market-predictor/internal/domain"
	"market-predictor/internal/pipeline"
	"market-predictor/internal/service"
)

type RunInput struct {
	Symbols       []string `json:"symbols,omitempty" jsonschema:"ticker symbols to predict; defaults to the configured list"`
	TechnicalOnly bool     `json:"technical_only,omitempty" jsonschema:"skip sentiment aggregation"`
}

type RunOutput struct {
	Status        string   `json:"status"`
	Symbols       []string `json:"symbols"`
	TechnicalOnly bool     `json:"technical_only"`
}

type PredictionsInput struct {
	Symbol string `json:"symbol,omitempty" jsonschema:"return only this symbol"`
}

// PredictionView flattens domain.Prediction for tool output.
type PredictionView struct {
	Symbol         string  `json:"symbol"`
	Direction      string  `json:"direction"`
	ChangePercent  float64 `json:"change_percent"`
	Confidence     float64 `json:"confidence"`
	TechnicalScore float64 `json:"technical_score"`
	SentimentScore float64 `json:"sentiment_score"`
	Degraded       bool    `json:"degraded"`
	Explanation    string  `json:"explanation"`
	GeneratedAt    string  `json:"generated_at"`
}

type PredictionsOutput struct {
	RunID             string           `json:"run_id,omitempty"`
	Running           bool             `json:"running"`
	Market            string           `json:"market"`
	AverageConfidence float64          `json:"average_confidence"`
	Predictions       []PredictionView `json:"predictions"`
}

type EmptyInput struct{}

type ProgressOutput struct {
	RunID          string  `json:"run_id,omitempty"`
	Stage          string  `json:"stage"`
	Percent        float64 `json:"percent"`
	CurrentItem    string  `json:"current_item"`
	ETA            string  `json:"eta"`
	ETASeconds     float64 `json:"eta_seconds"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

type QuotaView struct {
	Provider string `json:"provider"`
	Calls    int    `json:"calls"`
	Limit    int    `json:"limit"`
	ResetsAt string `json:"resets_at"`
}

type QuotaOutput struct {
	Providers []QuotaView `json:"providers"`
}

func (s *Server) runPredictions(ctx context.Context, _ *mcp.CallToolRequest, in RunInput) (*mcp.CallToolResult, RunOutput, error) {
	_, done, err := s.guard(ctx, "run_predictions")
	defer done()
	if err != nil {
		return nil, RunOutput{}, err
	}

	symbols := make([]string, 0, len(in.Symbols))
	for _, sym := range in.Symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	req := service.RunRequest{Symbols: symbols, TechnicalOnly: in.TechnicalOnly}
	err = s.svc.Start(s.runCtx, req, func(_ *pipeline.RunResult, err error) {
		if err != nil {
			s.logger.Error().Err(err).Msg("mcp-triggered run failed")
		}
	})
	if err != nil {
		s.logCall("run_predictions", err)
		return nil, RunOutput{}, err
	}

	if len(symbols) == 0 {
		symbols = s.svc.Symbols()
	}
	s.logCall("run_predictions", nil)
	return nil, RunOutput{Status: "started", Symbols: symbols, TechnicalOnly: in.TechnicalOnly}, nil
}

func (s *Server) getPredictions(ctx context.Context, _ *mcp.CallToolRequest, in PredictionsInput) (*mcp.CallToolResult, PredictionsOutput, error) {
	_, done, err := s.guard(ctx, "get_predictions")
	defer done()
	if err != nil {
		return nil, PredictionsOutput{}, err
	}

	summary := s.svc.Summary()
	out := PredictionsOutput{
		Running:           s.svc.Running(),
		Market:            summary.Sentiment,
		AverageConfidence: summary.AverageConfidence,
		Predictions:       []PredictionView{},
	}
	if latest, ok := s.svc.Latest(); ok {
		out.RunID = latest.RunID
	}

	if sym := strings.ToUpper(strings.TrimSpace(in.Symbol)); sym != "" {
		p, ok := s.svc.Prediction(sym)
		if !ok {
			err := errors.New("no prediction for symbol " + sym)
			s.logCall("get_predictions", err)
			return nil, PredictionsOutput{}, err
		}
		out.Predictions = append(out.Predictions, viewOf(p))
	} else {
		for _, p := range s.svc.Predictions() {
			out.Predictions = append(out.Predictions, viewOf(p))
		}
	}
	s.logCall("get_predictions", nil)
	return nil, out, nil
}

func (s *Server) getProgress(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, ProgressOutput, error) {
	_, done, err := s.guard(ctx, "get_progress")
	defer done()
	if err != nil {
		return nil, ProgressOutput{}, err
	}

	p := s.svc.Progress()
	s.logCall("get_progress", nil)
	return nil, ProgressOutput{
		RunID:          p.RunID,
		Stage:          string(p.Stage),
		Percent:        p.Percent,
		CurrentItem:    p.CurrentItem,
		ETA:            p.ETAString(),
		ETASeconds:     p.ETASeconds,
		ElapsedSeconds: p.ElapsedSeconds,
	}, nil
}

func (s *Server) getQuotaUsage(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, QuotaOutput, error) {
	_, done, err := s.guard(ctx, "get_quota_usage")
	defer done()
	if err != nil {
		return nil, QuotaOutput{}, err
	}

	out := QuotaOutput{Providers: []QuotaView{}}
	for _, u := range s.svc.Usage() {
		out.Providers = append(out.Providers, QuotaView{
			Provider: u.Provider,
			Calls:    u.Calls,
			Limit:    u.Limit,
			ResetsAt: u.ResetsAt.UTC().Format(time.RFC3339),
		})
	}
	s.logCall("get_quota_usage", nil)
	return nil, out, nil
}

func viewOf(p domain.Prediction) PredictionView {
	v := PredictionView{
		Symbol:         p.Symbol,
		Direction:      string(p.Direction),
		ChangePercent:  p.SignedChange,
		Confidence:     p.Confidence,
		TechnicalScore: p.TechnicalScore,
		SentimentScore: p.SentimentScore,
		Degraded:       p.Degraded,
		Explanation:    p.Explanation,
	}
	if !p.GeneratedAt.IsZero() {
		v.GeneratedAt = p.GeneratedAt.UTC().Format(time.RFC3339)
	}
	return v
}
