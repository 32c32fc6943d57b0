package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	minLimit  = 0.1
	backOffBy = 2.0
	recoverBy = 1.5
)

// RateLimiters throttles requests to each registry host separately.
//
// A RoundTripper obtained for a host halves that host's limit the
// first time it sees `HTTP 429 Too Many Requests`. Calling Recover
// after an operation has gone through cleanly raises it again,
// never beyond RPS.
type RateLimiters struct {
	RPS    float64
	Burst  int
	Logger log.Logger

	mu      sync.Mutex
	perHost map[string]*rate.Limiter
}

// limiter returns the limiter for host, creating it at full rate if
// needed. The caller holds the lock.
func (l *RateLimiters) limiter(host string) *rate.Limiter {
	if l.perHost == nil {
		l.perHost = map[string]*rate.Limiter{}
	}
	rl, ok := l.perHost[host]
	if !ok {
		rl = rate.NewLimiter(rate.Limit(l.RPS), l.Burst)
		l.perHost[host] = rl
	}
	return rl
}

func (l *RateLimiters) clip(limit float64) float64 {
	if limit < minLimit {
		return minLimit
	}
	if limit > l.RPS {
		return l.RPS
	}
	return limit
}

func (l *RateLimiters) adjust(host string, factor float64, create bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !create {
		if _, ok := l.perHost[host]; !ok {
			return
		}
	}
	rl := l.limiter(host)
	oldLimit := float64(rl.Limit())
	newLimit := l.clip(oldLimit * factor)
	if oldLimit != newLimit && l.Logger != nil {
		l.Logger.Log("host", host, "rate_limit", strconv.FormatFloat(newLimit, 'f', 2, 64))
	}
	rl.SetLimit(rate.Limit(newLimit))
}

func (l *RateLimiters) backOff(host string) {
	l.adjust(host, 1/backOffBy, true)
}

// Recover nudges the limit for host back up after a success.
func (l *RateLimiters) Recover(host string) {
	l.adjust(host, recoverBy, false)
}

// Limit reports the current requests-per-second allowed for host.
func (l *RateLimiters) Limit(host string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(l.limiter(host).Limit())
}

// RoundTripper wraps rt so requests through it are limited as
// belonging to host.
func (l *RateLimiters) RoundTripper(rt http.RoundTripper, host string) http.RoundTripper {
	l.mu.Lock()
	rl := l.limiter(host)
	l.mu.Unlock()

	var reduceOnce sync.Once
	return &roundTripRateLimiter{
		rl: rl,
		tx: rt,
		slowDown: func() {
			reduceOnce.Do(func() { l.backOff(host) })
		},
	}
}

type roundTripRateLimiter struct {
	rl       *rate.Limiter
	tx       http.RoundTripper
	slowDown func()
}

func (t *roundTripRateLimiter) RoundTrip(r *http.Request) (*http.Response, error) {
	// Wait fails straight away if the request's deadline can't be met.
	if err := t.rl.Wait(r.Context()); err != nil {
		return nil, errors.Wrap(err, "rate limited")
	}
	resp, err := t.tx.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		t.slowDown()
	}
	return resp, nil
}
