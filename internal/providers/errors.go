package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// RateLimitError signals a 429 from the provider. RetryAfter is zero when
// the provider sent no hint.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimit reports whether err is a provider rate limit.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// errorTypeOf classifies a provider error into the short tags recorded on
// chat results.
func errorTypeOf(err error) string {
	switch {
	case IsRateLimit(err):
		return "rate_limit"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return fmt.Sprintf("http_%d", oaiErr.StatusCode)
	}
	if genErr, ok := geminiAPIError(err); ok {
		return fmt.Sprintf("http_%d", genErr.Code)
	}
	return "http_error"
}

// geminiAPIError unwraps a genai API error regardless of whether the SDK
// surfaced it by value or by pointer.
func geminiAPIError(err error) (genai.APIError, bool) {
	var val genai.APIError
	if errors.As(err, &val) {
		return val, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return genai.APIError{}, false
}

// parseRetryAfter interprets a Retry-After header value, either delta
// seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
