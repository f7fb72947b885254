package fetcher

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
)

// RateLimiter applies a token bucket per host
type RateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	overrides   map[string]rate.Limit
	defaultRate rate.Limit
	burst       int
}

// NewRateLimiter creates a limiter allowing rps requests per second per host. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &RateLimiter{
		limiters:    make(map[string]*rate.Limiter),
		overrides:   make(map[string]rate.Limit),
		defaultRate: limit,
		burst:       burst,
	}
}

// Wait blocks until a request to rawURL's host is allowed
func (rl *RateLimiter) Wait(ctx context.Context, rawURL string) error {
	host, err := common.ExtractHost(rawURL)
	if err != nil || host == "" {
		return nil
	}
	return rl.limiter(host).Wait(ctx)
}

// SetHostRate overrides the rate for one host, typically from a site's rate_limit
func (rl *RateLimiter) SetHostRate(host string, rps float64) {
	if rps <= 0 {
		return
	}
	host = strings.ToLower(host)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.overrides[host] = rate.Limit(rps)
	if l, ok := rl.limiters[host]; ok {
		l.SetLimit(rate.Limit(rps))
	}
}

// HostRate returns the effective rate for host
func (rl *RateLimiter) HostRate(host string) rate.Limit {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if r, ok := rl.overrides[strings.ToLower(host)]; ok {
		return r
	}
	return rl.defaultRate
}

func (rl *RateLimiter) limiter(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters[host]; ok {
		return l
	}
	limit := rl.defaultRate
	if r, ok := rl.overrides[host]; ok {
		limit = r
	}
	l := rate.NewLimiter(limit, rl.burst)
	rl.limiters[host] = l
	return l
}
