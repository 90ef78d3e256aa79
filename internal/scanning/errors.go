package scanning

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrNoItems means the model answered without a parsable JSON list.
	ErrNoItems = errors.New("no items detected")
	// ErrNoModel means model discovery found nothing that can read images.
	ErrNoModel = errors.New("no usable model found")
)

// RateLimitError reports that the provider is throttling requests. The
// call may be retried after RetryAfter; zero means the provider gave no hint.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s: %v", e.Provider, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// asRateLimit recognizes throttling from the Google client libraries, which
// surface it either as an HTTP 429 or as a gRPC ResourceExhausted status.
func asRateLimit(provider string, err error) (*RateLimitError, bool) {
	if err == nil {
		return nil, false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return &RateLimitError{
			Provider:   provider,
			RetryAfter: parseRetryAfter(apiErr.Header.Get("Retry-After")),
			Err:        err,
		}, true
	}
	if status.Code(err) == codes.ResourceExhausted {
		return &RateLimitError{Provider: provider, Err: err}, true
	}
	if strings.Contains(err.Error(), "429") && strings.Contains(strings.ToLower(err.Error()), "quota") {
		return &RateLimitError{Provider: provider, Err: err}, true
	}
	return nil, false
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}
