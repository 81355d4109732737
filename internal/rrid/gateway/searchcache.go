package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	platformredis "github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/redis"
)

// SearchCache replays recent search responses from Redis. It is read-through
// and strictly best-effort: any Redis fault degrades to a direct upstream
// call and is logged, never surfaced.
type SearchCache struct {
	client *platformredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewSearchCache wraps the optional Redis client. Returns nil when Redis is
// not configured so the gateway can skip caching entirely.
func NewSearchCache(client *platformredis.Client, ttl time.Duration, logger *slog.Logger) *SearchCache {
	if client == nil {
		return nil
	}
	return &SearchCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(keyword, typeFilter string) string {
	return "rrid:search:" + typeFilter + ":" + strings.ToLower(strings.TrimSpace(keyword))
}

// Get returns the cached hits for a query, if any.
func (c *SearchCache) Get(ctx context.Context, keyword, typeFilter string) ([]Hit, bool) {
	raw, err := c.client.Get(ctx, cacheKey(keyword, typeFilter)).Bytes()
	if err != nil {
		return nil, false
	}
	var hits []Hit
	if err := json.Unmarshal(raw, &hits); err != nil {
		c.logger.WarnContext(ctx, "corrupt search cache entry dropped",
			"keyword", keyword,
			"error", err,
		)
		return nil, false
	}
	return hits, true
}

// Put stores hits under the query key with the configured TTL.
func (c *SearchCache) Put(ctx context.Context, keyword, typeFilter string, hits []Hit) {
	raw, err := json.Marshal(hits)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(keyword, typeFilter), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "search cache write failed",
			"keyword", keyword,
			"error", err,
		)
	}
}
