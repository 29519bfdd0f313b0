package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/ai-detector/internal/logging"
	"github.com/example/ai-detector/internal/repository"
	"github.com/example/ai-detector/internal/retry"
)

// deletedMarker replaces a cached detection once it is deleted. store never
// overwrites a key, so a lookup that read the row before the delete cannot
// put it back while the marker lives.
const deletedMarker = "deleted"

// resultCache keeps finalized detections for read-through lookups. Cache
// failures never fail the caller; they are logged and the database answers.
type resultCache struct {
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
	policy retry.Policy
}

func newResultCache(cache Cache, ttl time.Duration, logger *zap.Logger) *resultCache {
	return &resultCache{
		cache:  cache,
		ttl:    ttl,
		logger: logger,
		policy: retry.DefaultPolicy(),
	}
}

func detectionCacheKey(id string) string {
	return "detection:" + id
}

func (rc *resultCache) load(ctx context.Context, id string) (*repository.Detection, bool) {
	if rc == nil || rc.cache == nil {
		return nil, false
	}

	var raw string
	err := retry.Do(ctx, rc.logger, rc.policy, "cache.get.detection", id, func() error {
		value, err := rc.cache.Get(ctx, detectionCacheKey(id))
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logging.WithOperation(rc.logger, "cache.get.detection", id).Warn("failed to read cache", zap.Error(err))
		}
		return nil, false
	}
	if raw == deletedMarker {
		return nil, false
	}

	var detection repository.Detection
	if err := json.Unmarshal([]byte(raw), &detection); err != nil {
		logging.WithOperation(rc.logger, "cache.get.detection", id).Warn("failed to decode cached detection", zap.Error(err))
		return nil, false
	}
	return &detection, true
}

// store caches terminal detections only; PROCESSING rows are still changing.
// An existing entry, including a deletion marker, is left alone.
func (rc *resultCache) store(ctx context.Context, detection *repository.Detection) {
	if rc == nil || rc.cache == nil || detection == nil || !detection.IsTerminal() {
		return
	}

	serialized, err := json.Marshal(detection)
	if err != nil {
		logging.WithOperation(rc.logger, "cache.set.detection", detection.ID).Warn("failed to serialize detection", zap.Error(err))
		return
	}
	if err := retry.Do(ctx, rc.logger, rc.policy, "cache.set.detection", detection.ID, func() error {
		_, err := rc.cache.SetIfAbsent(ctx, detectionCacheKey(detection.ID), string(serialized), rc.ttl)
		return err
	}); err != nil {
		logging.WithOperation(rc.logger, "cache.set.detection", detection.ID).Warn("failed to cache detection", zap.Error(err))
	}
}

// invalidate marks ids as deleted for one ttl.
func (rc *resultCache) invalidate(ctx context.Context, ids ...string) {
	if rc == nil || rc.cache == nil {
		return
	}

	for _, id := range ids {
		key := detectionCacheKey(id)
		if err := retry.Do(ctx, rc.logger, rc.policy, "cache.invalidate.detection", id, func() error {
			return rc.cache.Set(ctx, key, deletedMarker, rc.ttl)
		}); err != nil {
			logging.WithOperation(rc.logger, "cache.invalidate.detection", id).Warn("failed to invalidate cache", zap.Error(err))
		}
	}
}
