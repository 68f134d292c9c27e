// Package cache provides response caching for the AI gateway, so
// repeated identical requests (common when evaluating similar genomes)
// are served without a remote call or cost.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
)

// Cache stores serialized gateway results by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats() Stats
	Close() error
}

// Stats counts cache activity.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Entries int64 `json:"entries"`
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e *entry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// RequestKey derives a stable cache key from everything that affects a
// gateway response.
func RequestKey(req core.AIRequest) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	// AIRequest marshals deterministically: fixed field order, ordered
	// message slice. Schema maps marshal with sorted keys.
	_ = enc.Encode(req)
	return hex.EncodeToString(h.Sum(nil))
}
