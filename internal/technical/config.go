package technical

import (
	"errors"
	"fmt"
	"math"
)

// Weights are the composite weights of the five indicator scores.
type Weights struct {
	Momentum      float64 `json:"momentum" mapstructure:"momentum" validate:"gte=0"`
	RSI           float64 `json:"rsi" mapstructure:"rsi" validate:"gte=0"`
	MovingAverage float64 `json:"moving_average" mapstructure:"moving_average" validate:"gte=0"`
	Volume        float64 `json:"volume" mapstructure:"volume" validate:"gte=0"`
	Volatility    float64 `json:"volatility" mapstructure:"volatility" validate:"gte=0"`
}

func (w Weights) Sum() float64 {
	return w.Momentum + w.RSI + w.MovingAverage + w.Volume + w.Volatility
}

type Config struct {
	RSIPeriod     int     `json:"rsi_period" mapstructure:"rsi_period" validate:"gt=1"`
	RSIMinPeriod  int     `json:"rsi_min_period" mapstructure:"rsi_min_period" validate:"gt=0"`
	RSIOversold   float64 `json:"rsi_oversold" mapstructure:"rsi_oversold" validate:"gt=0,lt=50"`
	RSIOverbought float64 `json:"rsi_overbought" mapstructure:"rsi_overbought" validate:"gt=50,lt=100"`

	MomentumLookback int     `json:"momentum_lookback" mapstructure:"momentum_lookback" validate:"gt=0"`
	MomentumClampPct float64 `json:"momentum_clamp_pct" mapstructure:"momentum_clamp_pct" validate:"gt=0"`

	ShortMAPeriod  int     `json:"short_ma_period" mapstructure:"short_ma_period" validate:"gt=0"`
	LongMAPeriod   int     `json:"long_ma_period" mapstructure:"long_ma_period" validate:"gtfield=ShortMAPeriod"`
	MAFullScalePct float64 `json:"ma_full_scale_pct" mapstructure:"ma_full_scale_pct" validate:"gt=0"`

	VolumeWindow int `json:"volume_window" mapstructure:"volume_window" validate:"gt=0"`

	VolatilityWindow       int     `json:"volatility_window" mapstructure:"volatility_window" validate:"gt=1"`
	VolatilityThresholdPct float64 `json:"volatility_threshold_pct" mapstructure:"volatility_threshold_pct" validate:"gt=0"`

	Weights Weights `json:"weights" mapstructure:"weights"`
}

func DefaultConfig() Config {
	return Config{
		RSIPeriod:              14,
		RSIMinPeriod:           5,
		RSIOversold:            30,
		RSIOverbought:          70,
		MomentumLookback:       5,
		MomentumClampPct:       4,
		ShortMAPeriod:          5,
		LongMAPeriod:           10,
		MAFullScalePct:         2,
		VolumeWindow:           5,
		VolatilityWindow:       10,
		VolatilityThresholdPct: 2,
		Weights: Weights{
			Momentum:      0.30,
			RSI:           0.25,
			MovingAverage: 0.25,
			Volume:        0.15,
			Volatility:    0.05,
		},
	}
}

// Validate checks the cross-field rules struct tags cannot express.
func (c Config) Validate() error {
	if math.Abs(c.Weights.Sum()-1) > 1e-6 {
		return fmt.Errorf("technical weights must sum to 1.0, got %.4f", c.Weights.Sum())
	}
	if c.RSIMinPeriod > c.RSIPeriod {
		return errors.New("rsi_min_period must not exceed rsi_period")
	}
	if c.RSIOversold >= c.RSIOverbought {
		return errors.New("rsi_oversold must be below rsi_overbought")
	}
	if c.LongMAPeriod <= c.ShortMAPeriod {
		return errors.New("long_ma_period must exceed short_ma_period")
	}
	return nil
}
