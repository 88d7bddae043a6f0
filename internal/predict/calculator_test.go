package predict

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-predictor/internal/domain"
	"market-predictor/internal/technical"
)

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator(DefaultConfig())
	require.NoError(t, err)
	return c
}

func available(overall float64) domain.SentimentResult {
	return domain.SentimentResult{Overall: overall, Available: true, TotalSources: 1}
}

func TestCombineOversoldScenario(t *testing.T) {
	c := newTestCalculator(t)
	tech := domain.TechnicalScoreSet{
		RSI:                25,
		RSIScore:           0.583,
		MomentumPct:        2.0,
		MomentumScore:      0.5,
		ShortMA:            101,
		LongMA:             100,
		MovingAverageScore: 0.5,
	}
	tech.CompositeScore = 0.25*tech.RSIScore + 0.30*tech.MomentumScore + 0.25*tech.MovingAverageScore

	p := c.Combine("SPY", tech, available(0.3))

	assert.Equal(t, domain.DirectionUp, p.Direction)
	assert.Greater(t, p.Magnitude, 0.0)
	assert.Greater(t, p.Confidence, DefaultConfig().BaseConfidence)
	assert.Contains(t, p.Explanation, "oversold RSI")
	assert.Contains(t, p.Explanation, "positive news sentiment")
	assert.True(t, strings.HasPrefix(p.Explanation, "Based on: oversold RSI"))
	assert.False(t, p.Degraded)
	assert.InDelta(t, tech.CompositeScore*0.75+0.3*0.25, p.CombinedScore, 1e-12)
}

func TestCombineBoundaryClamping(t *testing.T) {
	c := newTestCalculator(t)
	cfg := c.Config()
	values := []float64{-1e9, -5, -1, -0.33, -0.02, 0, 0.02, 0.33, 1, 5, 1e9, math.NaN(), math.Inf(1), math.Inf(-1)}

	for _, tv := range values {
		for _, sv := range values {
			for _, highVol := range []bool{false, true} {
				for _, avail := range []bool{false, true} {
					tech := domain.TechnicalScoreSet{CompositeScore: tv, HighVolatility: highVol}
					sent := domain.SentimentResult{Overall: sv, Available: avail}
					p := c.Combine("X", tech, sent)

					assert.LessOrEqual(t, p.Magnitude, cfg.MaxChange)
					assert.GreaterOrEqual(t, p.Magnitude, 0.0)
					assert.GreaterOrEqual(t, p.Confidence, cfg.MinConfidence)
					assert.LessOrEqual(t, p.Confidence, cfg.MaxConfidence)
					assert.False(t, math.IsNaN(p.SignedChange))
				}
			}
		}
	}
}

func TestCombineIdempotent(t *testing.T) {
	c := newTestCalculator(t)
	tech := domain.TechnicalScoreSet{CompositeScore: -0.42, MomentumScore: -0.6, MomentumPct: -2.4, HighVolatility: true, VolatilityPct: 2.6}
	sent := available(-0.15)

	first := c.Combine("VEA", tech, sent)
	second := c.Combine("VEA", tech, sent)
	assert.Equal(t, first, second)
	assert.Equal(t, domain.DirectionDown, first.Direction)
	assert.Contains(t, first.Explanation, "negative momentum (-2.4%)")
	assert.Contains(t, first.Explanation, "elevated volatility")
}

func TestCombineDeadZone(t *testing.T) {
	c := newTestCalculator(t)

	p := c.Combine("SPY", domain.TechnicalScoreSet{CompositeScore: 0.02}, available(0))
	assert.Equal(t, domain.DirectionFlat, p.Direction)
	assert.Equal(t, "Based on: mixed signals", p.Explanation)

	p = c.Combine("SPY", domain.TechnicalScoreSet{CompositeScore: 0.04}, available(0))
	assert.Equal(t, domain.DirectionUp, p.Direction)
}

func TestCombineWithoutSentimentIsDegraded(t *testing.T) {
	c := newTestCalculator(t)
	tech := domain.TechnicalScoreSet{CompositeScore: 0.4}

	p := c.Combine("SPY", tech, domain.SentimentResult{Overall: 0.9})

	assert.True(t, p.Degraded)
	assert.False(t, p.SentimentAvailable)
	assert.Zero(t, p.SentimentScore)
	assert.InDelta(t, 0.4, p.CombinedScore, 1e-12)
	assert.InDelta(t, 70+0.4*15-5, p.Confidence, 1e-9)
	assert.Contains(t, p.Explanation, "sentiment unavailable")
	assert.NotContains(t, p.Explanation, "positive news sentiment")
}

func TestCombineExplanationOrder(t *testing.T) {
	c := newTestCalculator(t)
	tech := domain.TechnicalScoreSet{
		RSI:                75,
		RSIScore:           -0.6,
		MomentumScore:      -0.3,
		MomentumPct:        -1.2,
		MovingAverageScore: -0.4,
		VolumeScore:        -0.5,
		VolumeRatio:        1.5,
		CompositeScore:     -0.4,
	}

	p := c.Combine("SPY", tech, available(-0.2))

	want := "Based on: overbought RSI (75.0), negative momentum (-1.2%), bearish moving-average trend, volume surge (1.5x average), negative news sentiment"
	assert.Equal(t, want, p.Explanation)
}

func TestCombineMagnitudeClampsAtMaxChange(t *testing.T) {
	c := newTestCalculator(t)

	p := c.Combine("SPY", domain.TechnicalScoreSet{CompositeScore: 1}, available(1))
	assert.Equal(t, 4.0, p.Magnitude)
	assert.Equal(t, 4.0, p.SignedChange)
	assert.Equal(t, 85.0, p.Confidence)

	p = c.Combine("SPY", domain.TechnicalScoreSet{CompositeScore: -1}, available(-1))
	assert.Equal(t, -4.0, p.SignedChange)
	assert.Equal(t, domain.DirectionDown, p.Direction)
}

func TestNewCalculatorRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SentimentWeight = 0.5
	_, err := NewCalculator(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.MinConfidence = 99
	_, err = NewCalculator(cfg)
	assert.Error(t, err)
}

func TestCombineShortHistoryKeepsBaseConfidence(t *testing.T) {
	c := newTestCalculator(t)
	analyzer, err := technical.NewAnalyzer(technical.DefaultConfig())
	require.NoError(t, err)
	series := &domain.PriceSeries{Symbol: "SPY", Points: []domain.PricePoint{
		{Close: 100, Volume: 1000},
		{Close: 95, Volume: 1000},
		{Close: 100, Volume: 1000},
	}}

	p := c.Combine("SPY", analyzer.Analyze(series), available(0))

	assert.Equal(t, DefaultConfig().BaseConfidence, p.Confidence)
	assert.Equal(t, "Based on: mixed signals", p.Explanation)
	assert.Equal(t, domain.DirectionFlat, p.Direction)
}
