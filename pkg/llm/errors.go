package llm

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNoEmbedding means the text has nothing to embed (blank, or no usable
// tokens). It is not a provider failure.
var ErrNoEmbedding = errors.New("no embedding available")

var rateLimitText = regexp.MustCompile(`(?i)(status code:? 429|http 429|rate limit)`)

var errEmptyVector = errors.New("provider returned no embedding data")

// EmbeddingServiceError wraps any failure of the remote embedding provider.
type EmbeddingServiceError struct {
	Provider string
	Err      error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// RateLimitError is returned when the completion provider answers 429.
// Quotas are daily, so callers should not retry.
type RateLimitError struct {
	StatusCode int
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rate limited by provider (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("rate limited by provider (HTTP %d): %s", e.StatusCode, e.Body)
}

// ProviderError covers every other completion failure: network, timeout,
// non-2xx status, malformed or empty payload.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("completion provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// asRateLimit digs a RateLimitError out of err. Some client libraries
// flatten transport errors into strings, so the status text is checked too.
func asRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	if rateLimitText.MatchString(err.Error()) {
		return &RateLimitError{StatusCode: 429, Body: err.Error()}, true
	}
	return nil, false
}
