package predict

import (
	"errors"
	"fmt"
	"math"
)

type Config struct {
	TechnicalWeight float64 `json:"technical_weight" mapstructure:"technical_weight" validate:"gte=0,lte=1"`
	SentimentWeight float64 `json:"sentiment_weight" mapstructure:"sentiment_weight" validate:"gte=0,lte=1"`

	ScaleFactor float64 `json:"scale_factor" mapstructure:"scale_factor" validate:"gt=0"`
	MaxChange   float64 `json:"max_change" mapstructure:"max_change" validate:"gt=0"`
	DeadZone    float64 `json:"dead_zone" mapstructure:"dead_zone" validate:"gte=0"`

	BaseConfidence float64 `json:"base_confidence" mapstructure:"base_confidence" validate:"gte=0,lte=100"`
	Sensitivity    float64 `json:"sensitivity" mapstructure:"sensitivity" validate:"gte=0"`
	MinConfidence  float64 `json:"min_confidence" mapstructure:"min_confidence" validate:"gte=0,lte=100"`
	MaxConfidence  float64 `json:"max_confidence" mapstructure:"max_confidence" validate:"gte=0,lte=100"`

	HighVolatilityPenalty float64 `json:"high_volatility_penalty" mapstructure:"high_volatility_penalty" validate:"gte=0"`
	DegradedPenalty       float64 `json:"degraded_penalty" mapstructure:"degraded_penalty" validate:"gte=0"`

	// SignificanceThreshold is the component score magnitude that earns a
	// clause in the explanation.
	SignificanceThreshold float64 `json:"significance_threshold" mapstructure:"significance_threshold" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		TechnicalWeight:       0.75,
		SentimentWeight:       0.25,
		ScaleFactor:           4,
		MaxChange:             4,
		DeadZone:              0.1,
		BaseConfidence:        70,
		Sensitivity:           15,
		MinConfidence:         60,
		MaxConfidence:         95,
		HighVolatilityPenalty: 10,
		DegradedPenalty:       5,
		SignificanceThreshold: 0.1,
	}
}

func (c Config) Validate() error {
	if sum := c.TechnicalWeight + c.SentimentWeight; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("technical and sentiment weights must sum to 1.0, got %.4f", sum)
	}
	if c.MinConfidence > c.MaxConfidence {
		return errors.New("min_confidence must not exceed max_confidence")
	}
	if c.MaxChange <= 0 || c.ScaleFactor <= 0 {
		return errors.New("max_change and scale_factor must be positive")
	}
	return nil
}
