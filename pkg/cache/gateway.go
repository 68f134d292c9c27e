package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/logging"
)

// Gateway wraps a core.Gateway with read-through caching. Only
// successful results are cached; failures always go back to the
// provider. Cached hits report zero cost since nothing was spent.
type Gateway struct {
	inner  core.Gateway
	cache  Cache
	ttl    time.Duration
	logger *logging.Logger
}

// NewGateway wraps inner with the given cache. A zero ttl caches
// entries without expiry.
func NewGateway(inner core.Gateway, c Cache, ttl time.Duration) *Gateway {
	return &Gateway{inner: inner, cache: c, ttl: ttl, logger: logging.GetLogger()}
}

func (g *Gateway) SendAI(ctx context.Context, req core.AIRequest) (core.AIResult, error) {
	key := RequestKey(req)

	if raw, ok, err := g.cache.Get(ctx, key); err == nil && ok {
		var result core.AIResult
		if err := json.Unmarshal(raw, &result); err == nil {
			result.UsdCost = 0
			return result, nil
		}
		// An undecodable entry is stale data from an older build.
		_ = g.cache.Delete(ctx, key)
	} else if err != nil {
		g.logger.Warn(ctx, "cache read failed, falling through: %v", err)
	}

	result, err := g.inner.SendAI(ctx, req)
	if err != nil || !result.Success {
		return result, err
	}

	if raw, marshalErr := json.Marshal(result); marshalErr == nil {
		if setErr := g.cache.Set(ctx, key, raw, g.ttl); setErr != nil {
			g.logger.Warn(ctx, "cache write failed: %v", setErr)
		}
	}
	return result, nil
}
