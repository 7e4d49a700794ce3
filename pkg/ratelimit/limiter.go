// Package ratelimit paces outbound calls to the content platform.
// Waiting is context-aware: a blocked caller returns as soon as its request is cancelled.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed right now, consuming a token if so
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
}

// TokenBucket is a Limiter backed by rate.Limiter
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket allows requestsPerMinute on average with bursts of up to burst requests
func NewTokenBucket(requestsPerMinute, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	every := time.Minute / time.Duration(max(requestsPerMinute, 1))
	return &TokenBucket{limiter: rate.NewLimiter(rate.Every(every), burst)}
}

func (tb *TokenBucket) Allow() bool {
	return tb.limiter.Allow()
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// Unlimited never blocks; used where pacing is disabled and in tests
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }

// PerHost keeps one token bucket per host so one slow CDN edge cannot starve another
type PerHost struct {
	requestsPerMinute int
	burst             int
	limiters          sync.Map // map[string]*TokenBucket
}

func NewPerHost(requestsPerMinute, burst int) *PerHost {
	return &PerHost{requestsPerMinute: requestsPerMinute, burst: burst}
}

// For returns the limiter for host, creating it on first use
func (p *PerHost) For(host string) Limiter {
	if l, ok := p.limiters.Load(host); ok {
		return l.(*TokenBucket)
	}
	l, _ := p.limiters.LoadOrStore(host, NewTokenBucket(p.requestsPerMinute, p.burst))
	return l.(*TokenBucket)
}
