// Package predict combines technical and sentiment signals into a bounded,
// explained prediction.
package predict

import (
	"fmt"
	"math"
	"strings"

	"market-predictor/internal/domain"
)

type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("prediction config: %w", err)
	}
	return &Calculator{cfg: cfg}, nil
}

func (c *Calculator) Config() Config {
	return c.cfg
}

// Combine is pure. RunID and GeneratedAt are left for the caller to stamp.
// When sentiment is unavailable the technical score carries the full weight
// and the prediction is marked degraded.
func (c *Calculator) Combine(symbol string, tech domain.TechnicalScoreSet, sent domain.SentimentResult) domain.Prediction {
	cfg := c.cfg
	techScore := finite(tech.CompositeScore)

	p := domain.Prediction{
		Symbol:             symbol,
		TechnicalScore:     techScore,
		SentimentAvailable: sent.Available,
		Degraded:           !sent.Available,
		Indicators:         tech,
	}

	var combined float64
	if sent.Available {
		p.SentimentScore = finite(sent.Overall)
		combined = techScore*cfg.TechnicalWeight + p.SentimentScore*cfg.SentimentWeight
	} else if cfg.TechnicalWeight > 0 {
		combined = techScore
	}
	p.CombinedScore = combined

	p.SignedChange = clamp(combined*cfg.ScaleFactor, -cfg.MaxChange, cfg.MaxChange)
	p.Magnitude = math.Abs(p.SignedChange)
	switch {
	case p.SignedChange > cfg.DeadZone:
		p.Direction = domain.DirectionUp
	case p.SignedChange < -cfg.DeadZone:
		p.Direction = domain.DirectionDown
	default:
		p.Direction = domain.DirectionFlat
	}

	confidence := cfg.BaseConfidence + math.Abs(combined)*cfg.Sensitivity
	if tech.HighVolatility {
		confidence -= cfg.HighVolatilityPenalty
	}
	if p.Degraded {
		confidence -= cfg.DegradedPenalty
	}
	p.Confidence = clamp(confidence, cfg.MinConfidence, cfg.MaxConfidence)

	p.Explanation = c.explain(tech, sent)
	return p
}

// explain lists significant components in a fixed order: RSI, momentum,
// moving averages, volume, volatility, sentiment.
func (c *Calculator) explain(tech domain.TechnicalScoreSet, sent domain.SentimentResult) string {
	thr := c.cfg.SignificanceThreshold
	var clauses []string

	switch s := tech.RSIScore; {
	case s >= 0.5:
		clauses = append(clauses, fmt.Sprintf("oversold RSI (%.1f)", tech.RSI))
	case s <= -0.5:
		clauses = append(clauses, fmt.Sprintf("overbought RSI (%.1f)", tech.RSI))
	case s > thr:
		clauses = append(clauses, fmt.Sprintf("RSI leaning oversold (%.1f)", tech.RSI))
	case s < -thr:
		clauses = append(clauses, fmt.Sprintf("RSI leaning overbought (%.1f)", tech.RSI))
	}

	switch s := tech.MomentumScore; {
	case s > thr:
		clauses = append(clauses, fmt.Sprintf("positive momentum (%+.1f%%)", tech.MomentumPct))
	case s < -thr:
		clauses = append(clauses, fmt.Sprintf("negative momentum (%+.1f%%)", tech.MomentumPct))
	}

	switch s := tech.MovingAverageScore; {
	case s > thr:
		clauses = append(clauses, "bullish moving-average trend")
	case s < -thr:
		clauses = append(clauses, "bearish moving-average trend")
	}

	if math.Abs(tech.VolumeScore) > thr {
		clauses = append(clauses, fmt.Sprintf("volume surge (%.1fx average)", tech.VolumeRatio))
	}

	if tech.HighVolatility {
		clauses = append(clauses, fmt.Sprintf("elevated volatility (%.1f%%)", tech.VolatilityPct))
	}

	if sent.Available {
		switch {
		case sent.Overall > thr:
			clauses = append(clauses, "positive news sentiment")
		case sent.Overall < -thr:
			clauses = append(clauses, "negative news sentiment")
		}
	}

	if len(clauses) == 0 {
		clauses = append(clauses, "mixed signals")
	}
	out := "Based on: " + strings.Join(clauses, ", ")
	if !sent.Available {
		out += " (sentiment unavailable, technical only)"
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	v = finite(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
