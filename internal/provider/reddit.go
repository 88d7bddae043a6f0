package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"market-predictor/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	ProviderReddit = "reddit"

	redditBaseURL     = "https://www.reddit.com"
	defaultUserAgent  = "market-predictor/1.0"
	defaultRedditSize = 25
	maxRedditSize     = 100
)

// RedditProvider reads hot posts from a subreddit's public JSON listing.
type RedditProvider struct {
	client    *http.Client
	baseURL   string
	userAgent string
	tracer    trace.Tracer
	observer  CallObserver
}

func NewRedditProvider(tracer trace.Tracer) *RedditProvider {
	return &RedditProvider{
		client:    &http.Client{Timeout: 20 * time.Second},
		baseURL:   redditBaseURL,
		userAgent: defaultUserAgent,
		tracer:    tracer,
	}
}

func (p *RedditProvider) SetObserver(o CallObserver) {
	p.observer = o
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	SelfText   string  `json:"selftext"`
	CreatedUTC float64 `json:"created_utc"`
	Permalink  string  `json:"permalink"`
	URL        string  `json:"url"`
	Stickied   bool    `json:"stickied"`
	Over18     bool    `json:"over_18"`
}

// FetchHot returns up to limit hot posts. Pinned moderator posts and NSFW
// posts carry no market tone and are skipped.
func (p *RedditProvider) FetchHot(ctx context.Context, subreddit string, limit int) (items []ContentItem, err error) {
	ctx, span := p.tracer.Start(ctx, "reddit.fetch-hot")
	defer span.End()

	subreddit = strings.TrimPrefix(strings.TrimSpace(subreddit), "r/")
	if subreddit == "" {
		return nil, errors.New("subreddit is required")
	}
	if limit <= 0 {
		limit = defaultRedditSize
	}
	limit = min(limit, maxRedditSize)
	span.SetAttributes(attribute.String("subreddit", subreddit), attribute.Int("limit", limit))

	started := time.Now()
	defer func() { observe(p.observer, ProviderReddit, started, err) }()

	base := strings.TrimRight(p.baseURL, "/")
	u := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", base, url.PathEscape(subreddit), limit)
	body, err := getBody(ctx, p.client, ProviderReddit, subreddit, u, map[string]string{
		"Accept":     "application/json",
		"User-Agent": p.userAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", subreddit, err)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, &domain.ProviderError{Kind: domain.ErrInvalidResponse, Provider: ProviderReddit, Symbol: subreddit, Err: fmt.Errorf("decode listing: %w", err)}
	}

	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Stickied || post.Over18 || strings.TrimSpace(post.ID) == "" {
			continue
		}
		title := sanitizeText(post.Title, 300)
		if title == "" {
			continue
		}
		link := strings.TrimSpace(post.URL)
		if permalink := strings.TrimSpace(post.Permalink); permalink != "" {
			link = base + permalink
		}
		items = append(items, ContentItem{
			Source:       ProviderReddit,
			SourceItemID: post.ID,
			Title:        title,
			URL:          link,
			Excerpt:      sanitizeText(post.SelfText, 420),
			PublishedAt:  time.Unix(int64(post.CreatedUTC), 0).UTC(),
		})
	}
	span.SetAttributes(attribute.Int("items", len(items)))
	return items, nil
}

// sanitizeText collapses whitespace and truncates to maxLen bytes without
// splitting a UTF-8 sequence.
func sanitizeText(in string, maxLen int) string {
	in = strings.Join(strings.Fields(in), " ")
	if maxLen <= 0 || len(in) <= maxLen {
		return in
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(in[cut]) {
		cut--
	}
	return in[:cut]
}
