package provider

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"market-predictor/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const ProviderRSS = "rss"

// RSSProvider reads headlines from RSS 2.0 and Atom news feeds.
type RSSProvider struct {
	client   *http.Client
	tracer   trace.Tracer
	observer CallObserver
	now      func() time.Time
}

func NewRSSProvider(tracer trace.Tracer) *RSSProvider {
	return &RSSProvider{
		client: &http.Client{Timeout: 20 * time.Second},
		tracer: tracer,
		now:    time.Now,
	}
}

func (p *RSSProvider) SetObserver(o CallObserver) {
	p.observer = o
}

// feedDoc decodes either format; only one of Channel or Entries is filled.
type feedDoc struct {
	XMLName xml.Name
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			GUID        string `xml:"guid"`
			PubDate     string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
	Entries []struct {
		ID      string        `xml:"id"`
		Title   string        `xml:"title"`
		Summary string        `xml:"summary"`
		Content string        `xml:"content"`
		Updated string        `xml:"updated"`
		Link    []atomLinkRef `xml:"link"`
	} `xml:"entry"`
}

type atomLinkRef struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// FetchFeed returns at most maxItems headlines, newest first as published
// by the feed. Items without a title are dropped.
func (p *RSSProvider) FetchFeed(ctx context.Context, feedURL string, maxItems int) (items []ContentItem, err error) {
	ctx, span := p.tracer.Start(ctx, "rss.fetch-feed")
	defer span.End()

	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, errors.New("feed url is required")
	}
	if maxItems <= 0 {
		maxItems = 25
	}
	span.SetAttributes(attribute.String("feed_url", feedURL))

	started := time.Now()
	defer func() { observe(p.observer, ProviderRSS, started, err) }()

	body, err := getBody(ctx, p.client, ProviderRSS, feedURL, feedURL, map[string]string{
		"Accept":     "application/rss+xml, application/atom+xml, application/xml, text/xml",
		"User-Agent": defaultUserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}

	var doc feedDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &domain.ProviderError{Kind: domain.ErrInvalidResponse, Provider: ProviderRSS, Symbol: feedURL, Err: fmt.Errorf("decode feed: %w", err)}
	}

	add := func(id, title, link, text string, published time.Time) {
		title = sanitizeText(title, 300)
		if title == "" || len(items) >= maxItems {
			return
		}
		if published.IsZero() {
			published = p.now()
		}
		if id = sanitizeText(id, 250); id == "" {
			id = sanitizeText(link, 250)
		}
		if id == "" {
			id = fmt.Sprintf("%s#%d", feedURL, len(items))
		}
		items = append(items, ContentItem{
			Source:       ProviderRSS,
			SourceItemID: id,
			Title:        title,
			URL:          sanitizeText(link, 500),
			Excerpt:      sanitizeText(htmlStrip(text), 420),
			PublishedAt:  published.UTC(),
		})
	}

	if doc.XMLName.Local == "feed" {
		for _, e := range doc.Entries {
			text := e.Summary
			if strings.TrimSpace(text) == "" {
				text = e.Content
			}
			add(e.ID, e.Title, atomLink(e.Link), text, parseFeedDate(e.Updated))
		}
		span.SetAttributes(attribute.Int("items", len(items)))
		return items, nil
	}
	for _, row := range doc.Channel.Items {
		add(row.GUID, row.Title, row.Link, row.Description, parseFeedDate(row.PubDate))
	}
	span.SetAttributes(attribute.Int("items", len(items)))
	return items, nil
}

func atomLink(links []atomLinkRef) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}

func parseFeedDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339, time.RFC822Z, time.RFC822} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// htmlStrip drops markup tags from feed descriptions.
func htmlStrip(in string) string {
	var b strings.Builder
	depth := 0
	for _, r := range in {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
