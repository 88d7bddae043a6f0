package domain

import "time"

const (
	SourceKindSimulated        = "simulated"
	SourceKindAlphaVantageNews = "alphavantage_news"
	SourceKindFMPNews          = "fmp_news"
	SourceKindRSS              = "rss"
	SourceKindReddit           = "reddit"
)

// SentimentSourceSpec is static configuration for one named sentiment source.
type SentimentSourceSpec struct {
	Name         string        `json:"name" mapstructure:"name" validate:"required"`
	Kind         string        `json:"kind" mapstructure:"kind" validate:"omitempty,oneof=simulated alphavantage_news fmp_news rss reddit"`
	Weight       float64       `json:"weight" mapstructure:"weight" validate:"gt=0"`
	ItemCount    int           `json:"item_count" mapstructure:"item_count" validate:"gte=0"`
	PerItemDelay time.Duration `json:"per_item_delay" mapstructure:"per_item_delay" validate:"gte=0"`

	// Kind specific settings.
	Query      string  `json:"query,omitempty" mapstructure:"query"`
	FeedURL    string  `json:"feed_url,omitempty" mapstructure:"feed_url"`
	Subreddit  string  `json:"subreddit,omitempty" mapstructure:"subreddit"`
	Bias       float64 `json:"bias,omitempty" mapstructure:"bias"`
	Volatility float64 `json:"volatility,omitempty" mapstructure:"volatility" validate:"gte=0"`
}

type SentimentItemScore struct {
	SourceName string  `json:"source_name"`
	Value      float64 `json:"value"`
}

type SourceResult struct {
	Name            string        `json:"name"`
	WeightedAverage float64       `json:"weighted_average_score"`
	Weight          float64       `json:"weight"`
	ItemsProcessed  int           `json:"items_processed"`
	ItemsFailed     int           `json:"items_failed"`
	Excluded        bool          `json:"excluded"`
	Error           string        `json:"error,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// SentimentResult is the weighted aggregate across sources. Overall is
// Σ(avg×weight)/Σweight over included sources, or 0 when nothing was included.
type SentimentResult struct {
	Sources             []SourceResult `json:"sources"`
	Overall             float64        `json:"overall_weighted_sentiment"`
	TotalSources        int            `json:"total_sources"`
	TotalProcessingTime time.Duration  `json:"total_processing_time"`
	Available           bool           `json:"available"`
}
