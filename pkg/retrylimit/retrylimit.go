// Package retrylimit throttles and retries outbound lookups (YouTube pages,
// stream probes). The limiter slows down when the remote side pushes back
// and speeds up again after a quiet period.
//
//	lim := retrylimit.NewLimiter(5, 1, 20, 1, 0.5)
//	err := retrylimit.Do(ctx, lim, retrylimit.DefaultPolicy(), func(ctx context.Context) error {
//	    return fetch(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// quietPeriod is how long after the last throttle the rate may grow again.
const quietPeriod = 10 * time.Second

// Limiter is an adaptive token bucket. Safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	min, max  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastThrot time.Time
}

// NewLimiter creates a limiter starting at initial requests per second,
// bounded by min and max. Each success adds stepUp, each throttle multiplies
// the rate by stepDown.
func NewLimiter(initial, lo, hi, stepUp rate.Limit, stepDown float64) *Limiter {
	if lo <= 0 {
		lo = 1
	}
	if initial < lo {
		initial = lo
	}
	if hi < initial {
		hi = initial
	}
	return &Limiter{
		limiter:  rate.NewLimiter(initial, max(1, int(initial))),
		min:      lo,
		max:      hi,
		stepUp:   stepUp,
		stepDown: stepDown,
	}
}

func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Success lets the rate grow when nothing was throttled recently.
func (l *Limiter) Success() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastThrot) > quietPeriod {
		l.setLocked(l.limiter.Limit() + l.stepUp)
	}
}

// Throttled cuts the rate after the remote side asked us to slow down.
func (l *Limiter) Throttled() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastThrot = time.Now()
	l.setLocked(rate.Limit(float64(l.limiter.Limit()) * l.stepDown))
}

// Limit returns the current requests per second.
func (l *Limiter) Limit() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(l.limiter.Limit())
}

func (l *Limiter) setLocked(r rate.Limit) {
	r = min(max(r, l.min), l.max)
	if r == l.limiter.Limit() {
		return
	}
	l.limiter.SetLimit(r)
	l.limiter.SetBurst(max(1, int(r)))
}

// StatusError is an HTTP response that did not succeed.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Code)
}

// CheckResponse turns a 4xx/5xx response into a *StatusError.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	u := ""
	if resp.Request != nil && resp.Request.URL != nil {
		u = resp.Request.URL.String()
	}
	return &StatusError{Code: resp.StatusCode, URL: u}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Policy controls Do.
type Policy struct {
	Attempts   int
	Delay      time.Duration // first backoff
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
	OnRetry    func(attempt int, err error)
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		Delay:      500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
		Jitter:     true,
	}
}

// Do runs fn until it succeeds, returns a Permanent error, the attempts run
// out or ctx is done. 4xx responses other than 429 are not retried. The last
// error is returned unwrapped from Permanent.
func Do(ctx context.Context, lim *Limiter, p Policy, fn func(context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	delay := p.Delay

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			if lim != nil {
				lim.Success()
			}
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		var se *StatusError
		if errors.As(err, &se) {
			switch {
			case se.Code == http.StatusTooManyRequests:
				if lim != nil {
					lim.Throttled()
					log.Printf("[Retry] rate limited (attempt %d), limit now %.2f rps", attempt, lim.Limit())
				}
			case se.Code >= 500:
				if lim != nil {
					lim.Throttled()
				}
			default:
				return err
			}
		}

		if attempt == p.Attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		wait := delay
		if p.Jitter && wait > 0 {
			wait += rand.N(wait/4 + 1)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", p.Attempts, lastErr)
}
