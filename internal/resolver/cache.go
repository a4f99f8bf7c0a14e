package resolver

import (
	"context"
	"strings"
	"sync"

	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
	"github.com/couchcryptid/weather-alert-monitor/internal/observability"
)

// Cached wraps a Service with an in-memory cache keyed by normalized token.
// Only successful resolutions are cached, and entries never expire: a token
// resolves to the same coordinates for the life of the process, while failed
// tokens are retried on every cycle.
type Cached struct {
	inner   Service
	metrics *observability.Metrics

	mu      sync.RWMutex
	entries map[string]domain.Coordinates
}

// NewCached creates a cache decorator around a resolution service.
func NewCached(inner Service, metrics *observability.Metrics) *Cached {
	return &Cached{
		inner:   inner,
		metrics: metrics,
		entries: make(map[string]domain.Coordinates),
	}
}

func (c *Cached) Resolve(ctx context.Context, token string) (domain.Coordinates, error) {
	key := strings.ToUpper(strings.TrimSpace(token))

	c.mu.RLock()
	coords, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.metrics.ResolverCache.WithLabelValues("hit").Inc()
		return coords, nil
	}
	c.metrics.ResolverCache.WithLabelValues("miss").Inc()

	coords, err := c.inner.Resolve(ctx, token)
	if err != nil {
		return domain.Coordinates{}, err
	}

	c.mu.Lock()
	c.entries[key] = coords
	c.mu.Unlock()
	return coords, nil
}
