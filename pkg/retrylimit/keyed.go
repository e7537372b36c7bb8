package retrylimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pruneEvery is how many Allow calls pass between sweeps of idle keys.
const pruneEvery = 256

// Keyed keeps one token bucket per key, e.g. per guild member. Buckets
// unused for longer than idle are dropped.
type Keyed struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	entries map[string]*keyedEntry
	calls   int
}

type keyedEntry struct {
	lim  *rate.Limiter
	last time.Time
}

// NewKeyed allows burst events per key, refilled at one per every.
func NewKeyed(every time.Duration, burst int) *Keyed {
	if burst < 1 {
		burst = 1
	}
	idle := every * time.Duration(burst)
	if idle < time.Minute {
		idle = time.Minute
	}
	return &Keyed{
		limit:   rate.Every(every),
		burst:   burst,
		idle:    idle,
		entries: make(map[string]*keyedEntry),
	}
}

// Allow reports whether an event for key at now fits the budget and, if so,
// spends a token.
func (k *Keyed) Allow(key string, now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.calls++
	if k.calls%pruneEvery == 0 {
		k.pruneLocked(now)
	}

	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{lim: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = e
	}
	e.last = now
	return e.lim.AllowN(now, 1)
}

// Reset forgets key, giving it a full bucket again.
func (k *Keyed) Reset(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.entries, key)
}

func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *Keyed) pruneLocked(now time.Time) {
	for key, e := range k.entries {
		if now.Sub(e.last) > k.idle {
			delete(k.entries, key)
		}
	}
}
