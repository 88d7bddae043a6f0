package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"market-predictor/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	alphaVantageBaseURL = "https://www.alphavantage.co/query"
	dailySeriesKey      = "Time Series (Daily)"
)

type AlphaVantageConfig struct {
	APIKey     string
	DailyLimit int
	PerMinute  int
	Lookback   int
}

// AlphaVantageProvider fetches daily price series and news sentiment from
// Alpha Vantage. Every call is checked against the shared quota limiter
// before it is issued and paced to the per-minute cap.
type AlphaVantageProvider struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	tracer     trace.Tracer
	quota      *RateLimiter
	dailyLimit int
	pacer      *rate.Limiter
	lookback   int
	now        func() time.Time
	observer   CallObserver
}

func NewAlphaVantageProvider(tracer trace.Tracer, quota *RateLimiter, cfg AlphaVantageConfig) *AlphaVantageProvider {
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = 25
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 5
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 30
	}
	if quota == nil {
		quota = NewRateLimiter(0, nil)
	}
	return &AlphaVantageProvider{
		client:     &http.Client{Timeout: 30 * time.Second},
		baseURL:    alphaVantageBaseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		tracer:     tracer,
		quota:      quota,
		dailyLimit: cfg.DailyLimit,
		pacer:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), 1),
		lookback:   cfg.Lookback,
		now:        time.Now,
	}
}

func (p *AlphaVantageProvider) SetObserver(o CallObserver) {
	p.observer = o
}

// FetchSeries returns the most recent daily bars for symbol, newest first.
func (p *AlphaVantageProvider) FetchSeries(ctx context.Context, symbol string) (*domain.PriceSeries, error) {
	ctx, span := p.tracer.Start(ctx, "alphavantage.fetch-series")
	defer span.End()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	span.SetAttributes(attribute.String("symbol", symbol))

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", "compact")

	payload, err := p.query(ctx, symbol, params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch series for %s: %w", symbol, err)
	}

	points, err := parseDailySeries(payload, p.lookback)
	if err != nil {
		err = &domain.ProviderError{Kind: domain.ErrInvalidResponse, Provider: ProviderAlphaVantage, Symbol: symbol, Err: err}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("parse series for %s: %w", symbol, err)
	}
	span.SetAttributes(attribute.Int("points", len(points)))

	return &domain.PriceSeries{
		Symbol:    symbol,
		Provider:  ProviderAlphaVantage,
		Points:    points,
		FetchedAt: p.now().UTC(),
	}, nil
}

// FetchNews returns scored news items for the given tickers (comma separated).
func (p *AlphaVantageProvider) FetchNews(ctx context.Context, tickers string, limit int) ([]ContentItem, error) {
	ctx, span := p.tracer.Start(ctx, "alphavantage.fetch-news")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	if tickers = strings.TrimSpace(tickers); tickers != "" {
		params.Set("tickers", tickers)
	}
	params.Set("limit", strconv.Itoa(limit))

	payload, err := p.query(ctx, tickers, params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch news: %w", err)
	}

	raw, ok := payload["feed"]
	if !ok {
		return nil, &domain.ProviderError{Kind: domain.ErrInvalidResponse, Provider: ProviderAlphaVantage, Symbol: tickers, Err: errors.New("missing feed")}
	}
	var feed []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		TimePublished string  `json:"time_published"`
		Summary       string  `json:"summary"`
		OverallScore  float64 `json:"overall_sentiment_score"`
	}
	if err := json.Unmarshal(raw, &feed); err != nil {
		return nil, &domain.ProviderError{Kind: domain.ErrInvalidResponse, Provider: ProviderAlphaVantage, Symbol: tickers, Err: fmt.Errorf("decode feed: %w", err)}
	}

	items := make([]ContentItem, 0, min(limit, len(feed)))
	for _, row := range feed {
		if len(items) >= limit {
			break
		}
		title := sanitizeText(row.Title, 300)
		if title == "" {
			continue
		}
		score := clampUnit(row.OverallScore)
		publishedAt, _ := time.Parse("20060102T150405", row.TimePublished)
		items = append(items, ContentItem{
			Source:        "alphavantage_news",
			SourceItemID:  sanitizeText(row.URL, 250),
			Title:         title,
			URL:           sanitizeText(row.URL, 500),
			Excerpt:       sanitizeText(row.Summary, 420),
			PublishedAt:   publishedAt.UTC(),
			ProviderScore: &score,
		})
	}
	return items, nil
}

// query runs one quota-checked, paced request and returns the decoded top
// level object after screening it for Alpha Vantage's in-band error markers.
func (p *AlphaVantageProvider) query(ctx context.Context, symbol string, params url.Values) (map[string]json.RawMessage, error) {
	if !p.quota.CanCall(ProviderAlphaVantage, p.dailyLimit) {
		err := &domain.ProviderError{
			Kind:     domain.ErrQuotaExceeded,
			Provider: ProviderAlphaVantage,
			Symbol:   symbol,
			Err:      fmt.Errorf("limit of %d calls per window reached", p.dailyLimit),
		}
		observe(p.observer, ProviderAlphaVantage, time.Now(), err)
		return nil, err
	}
	if err := p.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	p.quota.RecordCall(ProviderAlphaVantage)
	started := time.Now()

	params.Set("apikey", p.apiKey)
	body, err := getBody(ctx, p.client, ProviderAlphaVantage, symbol, p.baseURL+"?"+params.Encode(),
		map[string]string{"Accept": "application/json"})
	if err == nil {
		var payload map[string]json.RawMessage
		if uerr := json.Unmarshal(body, &payload); uerr != nil {
			err = &domain.ProviderError{Kind: domain.ErrInvalidResponse, Provider: ProviderAlphaVantage, Symbol: symbol, Err: fmt.Errorf("decode payload: %w", uerr)}
		} else if merr := screenMarkers(payload, symbol); merr != nil {
			err = merr
		} else {
			observe(p.observer, ProviderAlphaVantage, started, nil)
			return payload, nil
		}
	}
	observe(p.observer, ProviderAlphaVantage, started, err)
	return nil, err
}

// screenMarkers distinguishes a rate-limit notice or an error message that
// arrives with HTTP 200 from a genuine data payload.
func screenMarkers(payload map[string]json.RawMessage, symbol string) error {
	if msg, ok := markerText(payload, "Error Message"); ok {
		return &domain.ProviderError{Kind: domain.ErrInvalidResponse, Provider: ProviderAlphaVantage, Symbol: symbol, Err: errors.New(msg)}
	}
	for _, key := range []string{"Note", "Information"} {
		if msg, ok := markerText(payload, key); ok {
			return &domain.ProviderError{Kind: domain.ErrQuotaExceeded, Provider: ProviderAlphaVantage, Symbol: symbol, Err: errors.New(msg)}
		}
	}
	return nil
}

func markerText(payload map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := payload[key]
	if !ok {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		msg = string(raw)
	}
	return truncate(strings.TrimSpace(msg), 200), true
}

func parseDailySeries(payload map[string]json.RawMessage, lookback int) ([]domain.PricePoint, error) {
	raw, ok := payload[dailySeriesKey]
	if !ok {
		return nil, fmt.Errorf("missing %q", dailySeriesKey)
	}

	var bars map[string]struct {
		Open   string `json:"1. open"`
		High   string `json:"2. high"`
		Low    string `json:"3. low"`
		Close  string `json:"4. close"`
		Volume string `json:"5. volume"`
	}
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("decode %q: %w", dailySeriesKey, err)
	}
	if len(bars) == 0 {
		return nil, errors.New("empty time series")
	}

	points := make([]domain.PricePoint, 0, len(bars))
	for date, bar := range bars {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("bad date %q: %w", date, err)
		}
		var values [5]float64
		for i, field := range []string{bar.Open, bar.High, bar.Low, bar.Close, bar.Volume} {
			d, err := decimal.NewFromString(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("bad numeric field %q on %s: %w", field, date, err)
			}
			if d.IsNegative() {
				return nil, fmt.Errorf("negative value %s on %s", d, date)
			}
			values[i] = d.InexactFloat64()
		}
		if values[3] == 0 {
			return nil, fmt.Errorf("zero close on %s", date)
		}
		points = append(points, domain.PricePoint{
			Date:   day.UTC(),
			Open:   values[0],
			High:   values[1],
			Low:    values[2],
			Close:  values[3],
			Volume: values[4],
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.After(points[j].Date) })
	if lookback > 0 && len(points) > lookback {
		points = points[:lookback]
	}
	return points, nil
}

func clampUnit(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < -1:
		return -1
	case v > 1:
		return 1
	default:
		return v
	}
}
