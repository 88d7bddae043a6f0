package domain

import (
	"fmt"
	"time"
)

type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
	DirectionFlat Direction = "FLAT"
)

// Prediction is the bounded forecast produced for one symbol in one run.
// It is never mutated after creation; the next run supersedes it.
type Prediction struct {
	Symbol             string            `json:"symbol"`
	RunID              string            `json:"run_id,omitempty"`
	Direction          Direction         `json:"direction"`
	Magnitude          float64           `json:"magnitude"`
	SignedChange       float64           `json:"signed_change"`
	Confidence         float64           `json:"confidence"`
	TechnicalScore     float64           `json:"technical_score"`
	SentimentScore     float64           `json:"sentiment_score"`
	CombinedScore      float64           `json:"combined_score"`
	SentimentAvailable bool              `json:"sentiment_available"`
	Degraded           bool              `json:"degraded"`
	Explanation        string            `json:"explanation"`
	Indicators         TechnicalScoreSet `json:"indicators"`
	GeneratedAt        time.Time         `json:"generated_at"`
}

// StateString renders the compact "UP 1.2%" form used by sensor-style consumers.
func (p Prediction) StateString() string {
	return fmt.Sprintf("%s %.1f%%", p.Direction, p.Magnitude)
}

// TechnicalScoreSet holds normalized indicator scores (roughly [-1, 1]) and
// the raw indicator values they were derived from.
type TechnicalScoreSet struct {
	RSIScore           float64 `json:"rsi_score"`
	MomentumScore      float64 `json:"momentum_score"`
	MovingAverageScore float64 `json:"moving_average_score"`
	VolumeScore        float64 `json:"volume_score"`
	VolatilityScore    float64 `json:"volatility_score"`
	CompositeScore     float64 `json:"composite_score"`

	RSI            float64  `json:"rsi"`
	MomentumPct    float64  `json:"momentum_pct"`
	ShortMA        float64  `json:"short_ma"`
	LongMA         float64  `json:"long_ma"`
	VolumeRatio    float64  `json:"volume_ratio"`
	VolatilityPct  float64  `json:"volatility_pct"`
	HighVolatility bool     `json:"high_volatility"`
	Neutralized    []string `json:"neutralized,omitempty"`
}

const (
	IndicatorRSI           = "rsi"
	IndicatorMomentum      = "momentum"
	IndicatorMovingAverage = "moving_average"
	IndicatorVolume        = "volume"
	IndicatorVolatility    = "volatility"
)

// MarketSummary condenses a set of predictions into one market-wide view.
type MarketSummary struct {
	Sentiment         string  `json:"sentiment"`
	Bullish           int     `json:"bullish"`
	Bearish           int     `json:"bearish"`
	Flat              int     `json:"flat"`
	AverageConfidence float64 `json:"average_confidence"`
}

// Summarize reports bullish when every directional prediction is UP, bearish
// when every one is DOWN, and mixed otherwise.
func Summarize(predictions map[string]Prediction) MarketSummary {
	out := MarketSummary{Sentiment: "neutral"}
	if len(predictions) == 0 {
		return out
	}
	var confidence float64
	for _, p := range predictions {
		confidence += p.Confidence
		switch p.Direction {
		case DirectionUp:
			out.Bullish++
		case DirectionDown:
			out.Bearish++
		default:
			out.Flat++
		}
	}
	out.AverageConfidence = confidence / float64(len(predictions))
	switch {
	case out.Bullish > 0 && out.Bearish == 0:
		out.Sentiment = "bullish"
	case out.Bearish > 0 && out.Bullish == 0:
		out.Sentiment = "bearish"
	case out.Bullish > 0 && out.Bearish > 0:
		out.Sentiment = "mixed"
	}
	return out
}
