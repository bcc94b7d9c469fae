package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/thinkdifferentdot/maybe/internal/common"
)

// ErrorKind classifies provider failures independently of the provider SDK.
type ErrorKind string

// Provider failure kinds.
const (
	KindConnection        ErrorKind = "connection"
	KindTimeout           ErrorKind = "timeout"
	KindRateLimit         ErrorKind = "rate_limit"
	KindAuthentication    ErrorKind = "authentication"
	KindStatus            ErrorKind = "status"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindUnexpected        ErrorKind = "unexpected"
)

// Validation errors, returned before any network call.
var (
	ErrTooManyTransactions = fmt.Errorf("too many transactions to auto-categorize (max %d per request)", MaxTransactionsPerCall)
	ErrNoCategories        = common.ErrNoCategories
	ErrProviderNotFound    = errors.New("unknown LLM provider")
	ErrProviderNotEnabled  = errors.New("LLM provider has no credentials")
)

// ProviderError is a failed provider call translated into a common taxonomy.
type ProviderError struct {
	Err        error
	Provider   string
	Kind       ErrorKind
	StatusCode int
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call could succeed.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindConnection, KindTimeout, KindRateLimit:
		return true
	case KindStatus:
		return e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// ParseError reports that no JSON could be recovered from a model response.
type ParseError struct {
	Excerpt string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse JSON from response: %q", e.Excerpt)
}

// transportError classifies an error returned by an HTTP round trip.
func transportError(provider string, err error) *ProviderError {
	kind := KindConnection
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindUnexpected
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// statusError classifies a non-2xx HTTP status.
func statusError(provider string, status int, body string) *ProviderError {
	kind := KindStatus
	switch status {
	case http.StatusTooManyRequests, 529:
		kind = KindRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuthentication
	}
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: status,
		Err:        fmt.Errorf("%s", truncate(body, excerptLength)),
	}
}

// malformed wraps a decoding failure.
func malformed(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindMalformedResponse, Err: err}
}

// asProviderError makes sure every adapter failure carries a kind.
func asProviderError(provider string, err error) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return malformed(provider, err)
	}
	return &ProviderError{Provider: provider, Kind: KindUnexpected, Err: err}
}
