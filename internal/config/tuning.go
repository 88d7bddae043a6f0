package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"market-predictor/internal/domain"
	"market-predictor/internal/predict"
	"market-predictor/internal/progress"
	"market-predictor/internal/sentiment"
	"market-predictor/internal/technical"
)

// Tuning holds every numeric knob of the prediction core. Values not set in
// the tuning file keep their defaults.
type Tuning struct {
	Lookback   int                          `mapstructure:"lookback" validate:"gte=2"`
	Technical  technical.Config             `mapstructure:"technical"`
	Prediction predict.Config               `mapstructure:"prediction"`
	Progress   progress.Bands               `mapstructure:"progress"`
	Sources    []domain.SentimentSourceSpec `mapstructure:"sources" validate:"dive"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Lookback:   30,
		Technical:  technical.DefaultConfig(),
		Prediction: predict.DefaultConfig(),
		Progress:   progress.DefaultBands(),
		Sources:    sentiment.DefaultSources(),
	}
}

// LoadTuning overlays the YAML, JSON or TOML file at path onto the defaults.
// An empty path returns the defaults.
func LoadTuning(path string) (*Tuning, error) {
	t := DefaultTuning()
	if strings.TrimSpace(path) == "" {
		return &t, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read tuning file: %w", err)
	}

	// A source list in the file replaces the defaults rather than merging
	// element by element.
	if v.IsSet("sources") {
		t.Sources = nil
	}
	if err := v.Unmarshal(&t, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal tuning: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var validate = validator.New()

func (t *Tuning) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid tuning: %w", err)
	}
	if err := t.Technical.Validate(); err != nil {
		return fmt.Errorf("invalid tuning: %w", err)
	}
	if err := t.Prediction.Validate(); err != nil {
		return fmt.Errorf("invalid tuning: %w", err)
	}
	if err := t.Progress.Validate(); err != nil {
		return fmt.Errorf("invalid tuning: %w", err)
	}

	var errs []error
	seen := make(map[string]struct{}, len(t.Sources))
	for _, s := range t.Sources {
		if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate source name %q", s.Name))
		}
		seen[s.Name] = struct{}{}
		switch s.Kind {
		case domain.SourceKindRSS:
			if strings.TrimSpace(s.FeedURL) == "" {
				errs = append(errs, fmt.Errorf("source %q: rss needs feed_url", s.Name))
			}
		case domain.SourceKindReddit:
			if strings.TrimSpace(s.Subreddit) == "" {
				errs = append(errs, fmt.Errorf("source %q: reddit needs subreddit", s.Name))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid tuning: %w", errors.Join(errs...))
	}
	return nil
}
