package form

import (
	"strings"
	"sync"
	"time"
)

// maxBuckets bounds the throttle table. Past it, full buckets are dropped,
// or the least recently used one when none is full.
const maxBuckets = 10000

// throttle limits login attempts per username with a token bucket.
// Each attempt takes a token; a successful login refills the bucket.
type throttle struct {
	rate  float64 // tokens per second
	burst float64

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens      float64
	lastRefresh time.Time
}

// newThrottle expects rate > 0 and burst > 0; New validates both.
func newThrottle(rate float64, burst int) *throttle {
	return &throttle{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// allow takes a token for username and reports whether the attempt may proceed.
func (t *throttle) allow(username string) bool {
	key := strings.ToLower(username)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[key]
	if !ok {
		if len(t.buckets) >= maxBuckets {
			t.pruneLocked(now)
		}
		b = &bucket{tokens: t.burst, lastRefresh: now}
		t.buckets[key] = b
	}
	t.refillLocked(b, now)

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// reset forgets username, restoring a full bucket.
func (t *throttle) reset(username string) {
	t.mu.Lock()
	delete(t.buckets, strings.ToLower(username))
	t.mu.Unlock()
}

func (t *throttle) refillLocked(b *bucket, now time.Time) {
	b.tokens = t.tokensAt(b, now)
	b.lastRefresh = now
}

func (t *throttle) tokensAt(b *bucket, now time.Time) float64 {
	tokens := b.tokens + now.Sub(b.lastRefresh).Seconds()*t.rate
	return min(tokens, t.burst)
}

func (t *throttle) pruneLocked(now time.Time) {
	var oldest *bucket
	var oldestKey string
	freed := false
	for key, b := range t.buckets {
		if oldest == nil || b.lastRefresh.Before(oldest.lastRefresh) {
			oldest, oldestKey = b, key
		}
		if t.tokensAt(b, now) >= t.burst {
			delete(t.buckets, key)
			freed = true
		}
	}
	if !freed && oldest != nil {
		delete(t.buckets, oldestKey)
	}
}
