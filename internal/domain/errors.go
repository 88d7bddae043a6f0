package domain

import (
	"errors"
	"fmt"
)

var (
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrUnreachable      = errors.New("provider unreachable")
	ErrInvalidResponse  = errors.New("invalid provider response")
	ErrInsufficientData = errors.New("insufficient data")
	ErrComputation      = errors.New("computation error")
)

// ProviderError tags a provider failure with its kind, provider and symbol.
// errors.Is matches both the kind sentinel and the wrapped cause.
type ProviderError struct {
	Kind     error
	Provider string
	Symbol   string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Provider, e.Kind)
	if e.Symbol != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Provider, e.Symbol, e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns the taxonomy name for err, or "" when err is unclassified.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrComputation):
		return "computation_error"
	default:
		return ""
	}
}
