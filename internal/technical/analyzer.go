// Package technical turns a price series into normalized indicator scores.
package technical

import (
	"fmt"
	"math"

	"market-predictor/internal/domain"
	"market-predictor/internal/ta"
)

const neutralRSI = 50

// Analyzer is stateless after construction; Analyze is a pure function of
// its input.
type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("technical config: %w", err)
	}
	return &Analyzer{cfg: cfg}, nil
}

func (a *Analyzer) Config() Config {
	return a.cfg
}

// Analyze scores series. Indicators without enough history fall back to
// their neutral value and are listed in Neutralized.
func (a *Analyzer) Analyze(series *domain.PriceSeries) domain.TechnicalScoreSet {
	closes := series.Closes()
	volumes := series.Volumes()
	w := a.cfg.Weights

	out := domain.TechnicalScoreSet{RSI: neutralRSI}

	if rsi, ok := a.rsi(closes); ok {
		out.RSI = rsi
		out.RSIScore = a.scoreRSI(rsi)
	} else {
		out.Neutralized = append(out.Neutralized, domain.IndicatorRSI)
	}

	if pct, ok := ta.PercentChange(closes, a.cfg.MomentumLookback); ok {
		out.MomentumPct = clamp(pct, -a.cfg.MomentumClampPct, a.cfg.MomentumClampPct)
		out.MomentumScore = out.MomentumPct / a.cfg.MomentumClampPct
	} else {
		out.Neutralized = append(out.Neutralized, domain.IndicatorMomentum)
	}

	short, okShort := ta.SMA(closes, a.cfg.ShortMAPeriod)
	long, okLong := ta.SMA(closes, a.cfg.LongMAPeriod)
	if okShort && okLong && long > 0 {
		out.ShortMA, out.LongMA = short, long
		diffPct := (short - long) / long * 100
		out.MovingAverageScore = clamp(diffPct/a.cfg.MAFullScalePct, -1, 1)
	} else {
		out.Neutralized = append(out.Neutralized, domain.IndicatorMovingAverage)
	}

	// Volume and volatility carry no direction of their own; they lean
	// whichever way the directional indicators already point.
	prevailing := sign(w.RSI*out.RSIScore + w.Momentum*out.MomentumScore + w.MovingAverage*out.MovingAverageScore)

	if ratio, ok := a.volumeRatio(volumes); ok {
		out.VolumeRatio = ratio
		out.VolumeScore = prevailing * clamp(ratio-1, -1, 1)
	} else {
		out.Neutralized = append(out.Neutralized, domain.IndicatorVolume)
	}

	if vol, ok := a.volatility(closes); ok {
		out.VolatilityPct = vol
		out.HighVolatility = vol > a.cfg.VolatilityThresholdPct
		if !out.HighVolatility {
			out.VolatilityScore = prevailing * (1 - vol/a.cfg.VolatilityThresholdPct)
		}
	} else {
		out.Neutralized = append(out.Neutralized, domain.IndicatorVolatility)
	}

	out.CompositeScore = clamp(
		w.Momentum*out.MomentumScore+
			w.RSI*out.RSIScore+
			w.MovingAverage*out.MovingAverageScore+
			w.Volume*out.VolumeScore+
			w.Volatility*out.VolatilityScore,
		-1, 1)
	return out
}

func (a *Analyzer) rsi(closes []float64) (float64, bool) {
	period := min(a.cfg.RSIPeriod, len(closes)-1)
	if period < a.cfg.RSIMinPeriod {
		return 0, false
	}
	v, ok := ta.LastRSI(closes, period)
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// scoreRSI maps RSI onto [-1, 1]: at or beyond the oversold/overbought
// thresholds the score is at least 0.5 in magnitude, and between them it
// runs linearly through 0 at the midpoint.
func (a *Analyzer) scoreRSI(rsi float64) float64 {
	lo, hi := a.cfg.RSIOversold, a.cfg.RSIOverbought
	switch {
	case rsi <= lo:
		return 0.5 + 0.5*(lo-rsi)/lo
	case rsi >= hi:
		return -(0.5 + 0.5*(rsi-hi)/(100-hi))
	default:
		mid := (lo + hi) / 2
		return 0.5 * (mid - rsi) / (mid - lo)
	}
}

// volumeRatio compares the latest volume with the mean of the window before it.
func (a *Analyzer) volumeRatio(volumes []float64) (float64, bool) {
	n := a.cfg.VolumeWindow
	if len(volumes) < n+1 {
		return 0, false
	}
	avg, _ := ta.MeanStd(volumes[len(volumes)-1-n : len(volumes)-1])
	if avg <= 0 {
		return 0, false
	}
	return volumes[len(volumes)-1] / avg, true
}

// volatility is the standard deviation of the last VolatilityWindow daily
// returns; shorter histories are neutral.
func (a *Analyzer) volatility(closes []float64) (float64, bool) {
	n := a.cfg.VolatilityWindow
	if len(closes) < n+1 {
		return 0, false
	}
	returns := ta.PercentReturns(closes[len(closes)-n-1:])
	if len(returns) < n {
		return 0, false
	}
	_, std := ta.MeanStd(returns)
	return std, true
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
