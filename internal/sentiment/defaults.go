package sentiment

import (
	"time"

	"market-predictor/internal/domain"
)

func simulated(name string, weight float64, items int, delay time.Duration, bias, volatility float64) domain.SentimentSourceSpec {
	return domain.SentimentSourceSpec{
		Name:         name,
		Kind:         domain.SourceKindSimulated,
		Weight:       weight,
		ItemCount:    items,
		PerItemDelay: delay,
		Bias:         bias,
		Volatility:   volatility,
	}
}

// DefaultSources is the built-in source table used when no tuning file
// overrides it.
func DefaultSources() []domain.SentimentSourceSpec {
	ms := time.Millisecond
	return []domain.SentimentSourceSpec{
		simulated("Alpha Vantage News", 5.0, 20, 1250*ms, 0, 0.3),
		simulated("Bloomberg Market", 4.5, 10, 3500*ms, 0.1, 0.3),
		simulated("Reuters Financial", 4.5, 12, 1800*ms, 0, 0.2),
		simulated("Marketaux Financial", 4.0, 15, 2000*ms, -0.05, 0.4),
		simulated("Finnhub Sentiment", 4.0, 18, 1100*ms, 0.02, 0.25),
		simulated("Financial Times", 4.0, 8, 3500*ms, -0.03, 0.25),
		simulated("Wall Street Journal", 4.0, 15, 1300*ms, 0.02, 0.3),
		simulated("CNBC Market News", 3.5, 22, 700*ms, 0.05, 0.4),
		simulated("Yahoo Finance", 3.0, 25, 600*ms, 0.08, 0.35),
		simulated("MarketWatch", 3.0, 15, 1200*ms, -0.02, 0.3),
	}
}
