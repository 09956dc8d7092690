package auth

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbukum/gowizard/metrics"
)

// CachingAuthenticator remembers successful authentications so that
// expensive checks such as password hashing run once per credentials.
// Entries expire ExpireAfterAccess after their last use; failed
// authentications are never cached.
type CachingAuthenticator[C comparable, P any] struct {
	underlying Authenticator[C, P]
	cache      *expirable.LRU[C, P]
	requests   *prometheus.CounterVec
}

// NewCachingAuthenticator wraps underlying with a cache bounded by policy.
// When registry is non-nil hits and misses are counted in
// <name>_cache_requests_total.
func NewCachingAuthenticator[C comparable, P any](underlying Authenticator[C, P], policy CachePolicy, registry *metrics.Registry, name string) *CachingAuthenticator[C, P] {
	a := &CachingAuthenticator[C, P]{
		underlying: underlying,
		cache:      expirable.NewLRU[C, P](policy.MaximumSize, nil, ttl(policy.ExpireAfterAccess.Std())),
	}
	if registry != nil {
		if name == "" {
			name = "authenticator"
		}
		a.requests = registry.Counter(name+"_cache_requests_total", "Authentication cache lookups by result.", "result")
	}
	return a
}

func ttl(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d
}

// Authenticate implements Authenticator.
func (a *CachingAuthenticator[C, P]) Authenticate(ctx context.Context, credentials C) (P, bool, error) {
	if p, ok := a.cache.Get(credentials); ok {
		// re-adding restarts the entry's expiry
		a.cache.Add(credentials, p)
		a.count("hit")
		return p, true, nil
	}
	a.count("miss")
	p, ok, err := a.underlying.Authenticate(ctx, credentials)
	if err != nil || !ok {
		return p, ok, err
	}
	a.cache.Add(credentials, p)
	return p, true, nil
}

func (a *CachingAuthenticator[C, P]) count(result string) {
	if a.requests != nil {
		a.requests.WithLabelValues(result).Inc()
	}
}

// Invalidate drops the entry for credentials.
func (a *CachingAuthenticator[C, P]) Invalidate(credentials C) { a.cache.Remove(credentials) }

// InvalidateMatching drops every entry whose credentials match.
func (a *CachingAuthenticator[C, P]) InvalidateMatching(match func(C) bool) {
	for _, k := range a.cache.Keys() {
		if match(k) {
			a.cache.Remove(k)
		}
	}
}

// InvalidateAll empties the cache.
func (a *CachingAuthenticator[C, P]) InvalidateAll() { a.cache.Purge() }

// Size returns the number of cached entries.
func (a *CachingAuthenticator[C, P]) Size() int { return a.cache.Len() }
