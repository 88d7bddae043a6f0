package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"market-predictor/internal/domain"
	"market-predictor/internal/provider"
)

type contentFetcher func(ctx context.Context, limit int) ([]provider.ContentItem, error)

// FeedSource adapts a live news or social provider to Source.
type FeedSource struct {
	name  string
	fetch contentFetcher
}

func (s *FeedSource) Name() string { return s.name }

func (s *FeedSource) Fetch(ctx context.Context, limit int) ([]Item, error) {
	content, err := s.fetch(ctx, limit)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(content))
	for _, c := range content {
		items = append(items, Item{
			ID:    c.SourceItemID,
			Title: c.Title,
			Text:  c.Excerpt,
			Score: c.ProviderScore,
		})
	}
	return items, nil
}

type SourceFactory interface {
	Source(spec domain.SentimentSourceSpec) (Source, error)
}

// Providers builds sources from configured specs. Nil providers make the
// matching kinds unavailable.
type Providers struct {
	AlphaVantage *provider.AlphaVantageProvider
	FMP          *provider.FMPProvider
	RSS          *provider.RSSProvider
	Reddit       *provider.RedditProvider

	// Tickers is the default news query when a spec has none.
	Tickers string
}

func (p Providers) Source(spec domain.SentimentSourceSpec) (Source, error) {
	query := strings.TrimSpace(spec.Query)
	if query == "" {
		query = p.Tickers
	}

	switch spec.Kind {
	case "", domain.SourceKindSimulated:
		return NewSimulatedSource(spec.Name, spec.Bias, spec.Volatility), nil
	case domain.SourceKindAlphaVantageNews:
		if p.AlphaVantage == nil {
			return nil, errors.New("alpha vantage news not configured")
		}
		return &FeedSource{name: spec.Name, fetch: func(ctx context.Context, limit int) ([]provider.ContentItem, error) {
			return p.AlphaVantage.FetchNews(ctx, query, limit)
		}}, nil
	case domain.SourceKindFMPNews:
		if !p.FMP.Configured() {
			return nil, errors.New("fmp news not configured")
		}
		return &FeedSource{name: spec.Name, fetch: func(ctx context.Context, limit int) ([]provider.ContentItem, error) {
			return p.FMP.FetchNews(ctx, query, limit)
		}}, nil
	case domain.SourceKindRSS:
		if p.RSS == nil || strings.TrimSpace(spec.FeedURL) == "" {
			return nil, errors.New("rss source needs a feed url")
		}
		return &FeedSource{name: spec.Name, fetch: func(ctx context.Context, limit int) ([]provider.ContentItem, error) {
			return p.RSS.FetchFeed(ctx, spec.FeedURL, limit)
		}}, nil
	case domain.SourceKindReddit:
		if p.Reddit == nil || strings.TrimSpace(spec.Subreddit) == "" {
			return nil, errors.New("reddit source needs a subreddit")
		}
		return &FeedSource{name: spec.Name, fetch: func(ctx context.Context, limit int) ([]provider.ContentItem, error) {
			return p.Reddit.FetchHot(ctx, spec.Subreddit, limit)
		}}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", spec.Kind)
	}
}
