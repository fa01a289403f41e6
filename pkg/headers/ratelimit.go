// Package headers formats and parses the rate limit response headers emitted
// by the TokenVault API.
package headers

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Header names used for rate limit information.
const (
	HeaderLimit      = "X-Ratelimit-Limit"
	HeaderRemaining  = "X-Ratelimit-Remaining"
	HeaderRetryAfter = "Retry-After"
)

// RateLimit describes the per-client budget attached to a response.
type RateLimit struct {
	// Limit is the bucket capacity for the client.
	Limit int
	// Remaining is how many requests the client has left in the bucket.
	Remaining int
	// RetryAfter is how long to wait before retrying. Zero when the
	// request was allowed.
	RetryAfter time.Duration
}

// Apply writes the rate limit headers onto an HTTP response.
func (r RateLimit) Apply(h http.Header) {
	h.Set(HeaderLimit, strconv.Itoa(r.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(r.Remaining))
	if r.RetryAfter > 0 {
		h.Set(HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(r.RetryAfter)))
	}
}

// Parse extracts rate limit information from response headers. It returns an
// error when no rate limit headers are present.
func Parse(h http.Header) (RateLimit, error) {
	var result RateLimit

	limitVal := h.Get(HeaderLimit)
	remainingVal := h.Get(HeaderRemaining)
	if limitVal == "" && remainingVal == "" {
		return result, fmt.Errorf("no rate limit headers found")
	}

	result.Limit = parseIntHeader(limitVal)
	result.Remaining = parseIntHeader(remainingVal)

	if retry := h.Get(HeaderRetryAfter); retry != "" {
		if seconds, err := strconv.Atoi(retry); err == nil {
			result.RetryAfter = time.Duration(seconds) * time.Second
		} else if d, err := time.ParseDuration(retry); err == nil {
			result.RetryAfter = d
		}
	}

	return result, nil
}

// retryAfterSeconds rounds up so a sub-second wait never becomes "0".
func retryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

func parseIntHeader(val string) int {
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return n
}
