package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"market-predictor/internal/domain"
)

// getBody issues a GET and maps transport and status failures onto the
// provider error taxonomy. Context cancellation is returned unwrapped.
func getBody(ctx context.Context, client *http.Client, providerName, symbol, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.ProviderError{Kind: domain.ErrUnreachable, Provider: providerName, Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.ProviderError{Kind: domain.ErrUnreachable, Provider: providerName, Symbol: symbol, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.ProviderError{
			Kind:     statusKind(resp.StatusCode),
			Provider: providerName,
			Symbol:   symbol,
			Err:      fmt.Errorf("%s API error %d: %s", providerName, resp.StatusCode, truncate(string(body), 200)),
		}
	}
	return body, nil
}

func statusKind(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrQuotaExceeded
	case status >= 500:
		return domain.ErrUnreachable
	default:
		return domain.ErrInvalidResponse
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	if kind := domain.KindName(err); kind != "" {
		return kind
	}
	return "error"
}

func observe(o CallObserver, providerName string, started time.Time, err error) {
	if o == nil {
		return
	}
	o.ObserveProviderCall(providerName, outcomeOf(err), time.Since(started))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
