package task

import (
	"context"
	"encoding/json"
	"time"

	"clarity-mcp/internal/cache"

	"github.com/sirupsen/logrus"
)

// ResultStore 保存终态结果的键值存储，由 cache.RedisCache 实现
type ResultStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func (p *Poller) loadTerminal(ctx context.Context, sessionID string, logger *logrus.Entry) (*QueryOutput, bool) {
	if p.store == nil {
		return nil, false
	}

	key := cache.ResultKey(sessionID)
	data, found, err := p.store.Get(ctx, key)
	if err != nil {
		logger.WithError(err).Warn("Failed to read cached AuraSR result")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var out QueryOutput
	if err := json.Unmarshal(data, &out); err != nil {
		logger.WithError(err).Warn("Discarding undecodable cached AuraSR result")
		if err := p.store.Delete(ctx, key); err != nil {
			logger.WithError(err).Warn("Failed to evict cached AuraSR result")
		}
		return nil, false
	}

	logger.WithField("status", out.Status).Debug("Serving cached AuraSR result")
	return &out, true
}

func (p *Poller) saveTerminal(ctx context.Context, sessionID string, out *QueryOutput, logger *logrus.Entry) {
	if p.store == nil {
		return
	}

	data, err := json.Marshal(out)
	if err != nil {
		logger.WithError(err).Warn("Failed to encode AuraSR result for cache")
		return
	}
	if err := p.store.Set(ctx, cache.ResultKey(sessionID), data, p.storeTTL); err != nil {
		logger.WithError(err).Warn("Failed to cache AuraSR result")
	}
}

// Compile-time check that RedisCache satisfies ResultStore.
var _ ResultStore = (*cache.RedisCache)(nil)
