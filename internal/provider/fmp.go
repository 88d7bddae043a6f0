package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"market-predictor/internal/domain"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const fmpBaseURL = "https://financialmodelingprep.com/api/v3"

type FMPConfig struct {
	APIKey     string
	DailyLimit int
	PerMinute  int
}

// FMPProvider reads stock news from Financial Modeling Prep, the optional
// secondary provider.
type FMPProvider struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	tracer     trace.Tracer
	quota      *RateLimiter
	dailyLimit int
	pacer      *rate.Limiter
	observer   CallObserver
}

func NewFMPProvider(tracer trace.Tracer, quota *RateLimiter, cfg FMPConfig) *FMPProvider {
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = 250
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 4
	}
	if quota == nil {
		quota = NewRateLimiter(0, nil)
	}
	return &FMPProvider{
		client:     &http.Client{Timeout: 20 * time.Second},
		baseURL:    fmpBaseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		tracer:     tracer,
		quota:      quota,
		dailyLimit: cfg.DailyLimit,
		pacer:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), 1),
	}
}

func (p *FMPProvider) SetObserver(o CallObserver) {
	p.observer = o
}

// Configured reports whether a key was supplied.
func (p *FMPProvider) Configured() bool {
	return p != nil && p.apiKey != ""
}

func (p *FMPProvider) FetchNews(ctx context.Context, tickers string, limit int) ([]ContentItem, error) {
	ctx, span := p.tracer.Start(ctx, "fmp.fetch-news")
	defer span.End()

	if !p.Configured() {
		return nil, errors.New("fmp api key not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	if !p.quota.CanCall(ProviderFMP, p.dailyLimit) {
		err := &domain.ProviderError{Kind: domain.ErrQuotaExceeded, Provider: ProviderFMP, Symbol: tickers,
			Err: fmt.Errorf("limit of %d calls per window reached", p.dailyLimit)}
		observe(p.observer, ProviderFMP, time.Now(), err)
		return nil, err
	}
	if err := p.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	p.quota.RecordCall(ProviderFMP)
	started := time.Now()

	params := url.Values{}
	if tickers = strings.TrimSpace(tickers); tickers != "" {
		params.Set("tickers", tickers)
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("apikey", p.apiKey)

	body, err := getBody(ctx, p.client, ProviderFMP, tickers, strings.TrimRight(p.baseURL, "/")+"/stock_news?"+params.Encode(),
		map[string]string{"Accept": "application/json"})
	if err == nil {
		var items []ContentItem
		items, err = decodeFMPNews(body, tickers, limit)
		if err == nil {
			observe(p.observer, ProviderFMP, started, nil)
			return items, nil
		}
	}
	observe(p.observer, ProviderFMP, started, err)
	span.SetStatus(codes.Error, err.Error())
	return nil, fmt.Errorf("fetch fmp news: %w", err)
}

func decodeFMPNews(body []byte, tickers string, limit int) ([]ContentItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		// Errors come back as an object instead of the usual array.
		var errPayload struct {
			Message string `json:"Error Message"`
		}
		_ = json.Unmarshal(trimmed, &errPayload)
		kind := domain.ErrInvalidResponse
		if strings.Contains(strings.ToLower(errPayload.Message), "limit") {
			kind = domain.ErrQuotaExceeded
		}
		return nil, &domain.ProviderError{Kind: kind, Provider: ProviderFMP, Symbol: tickers, Err: errors.New(truncate(errPayload.Message, 200))}
	}

	var rows []struct {
		PublishedDate string `json:"publishedDate"`
		Title         string `json:"title"`
		Text          string `json:"text"`
		URL           string `json:"url"`
	}
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, &domain.ProviderError{Kind: domain.ErrInvalidResponse, Provider: ProviderFMP, Symbol: tickers, Err: fmt.Errorf("decode news: %w", err)}
	}

	items := make([]ContentItem, 0, min(limit, len(rows)))
	for _, row := range rows {
		if len(items) >= limit {
			break
		}
		title := sanitizeText(row.Title, 300)
		if title == "" {
			continue
		}
		publishedAt, _ := time.Parse("2006-01-02 15:04:05", row.PublishedDate)
		items = append(items, ContentItem{
			Source:       "fmp_news",
			SourceItemID: sanitizeText(row.URL, 250),
			Title:        title,
			URL:          sanitizeText(row.URL, 500),
			Excerpt:      sanitizeText(htmlStrip(row.Text), 420),
			PublishedAt:  publishedAt.UTC(),
		})
	}
	return items, nil
}
