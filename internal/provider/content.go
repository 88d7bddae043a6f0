package provider

import "time"

// ContentItem is one piece of text fetched from a news or social feed.
// ProviderScore is set when the upstream already scored the item's sentiment.
type ContentItem struct {
	Source        string
	SourceItemID  string
	Title         string
	URL           string
	Excerpt       string
	PublishedAt   time.Time
	ProviderScore *float64
}

// CallObserver receives one notification per attempted upstream call.
type CallObserver interface {
	ObserveProviderCall(provider, outcome string, elapsed time.Duration)
}
