package alerts

import (
	"sync"
	"time"
)

// Throttler is a token bucket capping the global alert send rate,
// independent of per-user deduplication. A mass revocation (password
// change, workspace policy) must not flood the operator channel.
type Throttler struct {
	rate       float64 // tokens per second
	bucketSize float64
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewThrottler creates a throttler allowing ratePerMinute sends
func NewThrottler(ratePerMinute int, bucketSize int) *Throttler {
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	if bucketSize <= 0 {
		bucketSize = ratePerMinute
	}

	return &Throttler{
		rate:       float64(ratePerMinute) / 60.0,
		bucketSize: float64(bucketSize),
		tokens:     float64(bucketSize),
		lastUpdate: time.Now(),
	}
}

// Allow checks if a send is allowed
func (t *Throttler) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refill()

	if t.tokens >= 1 {
		t.tokens--
		return true
	}
	return false
}

// GetRetryAfter returns the time until the next token is available
func (t *Throttler) GetRetryAfter() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tokens >= 1 {
		return 0
	}

	needed := 1 - t.tokens
	seconds := needed / t.rate
	return time.Duration(seconds * float64(time.Second))
}

func (t *Throttler) refill() {
	now := time.Now()
	elapsed := now.Sub(t.lastUpdate).Seconds()
	t.lastUpdate = now

	t.tokens += t.rate * elapsed
	if t.tokens > t.bucketSize {
		t.tokens = t.bucketSize
	}
}
