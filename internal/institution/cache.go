package institution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"circulation-workers/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// absentMarker caches "no value configured" so misses are cheap too.
const absentMarker = "\x00absent"

// CachedSource is a Redis read-through cache in front of another source.
// Writes go to the backing source first and then drop the cached entry, so
// the next read sees the written value.
type CachedSource struct {
	next   ConfigSource
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedSource(next ConfigSource, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedSource {
	return &CachedSource{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "institution-cache"}),
	}
}

func cacheKey(institution, key string) string {
	return fmt.Sprintf("institution:property:%s:%s", strings.ToUpper(institution), key)
}

func (c *CachedSource) GetValue(ctx context.Context, institution, key string) (string, bool, error) {
	ck := cacheKey(institution, key)

	val, err := c.redis.Get(ctx, ck).Result()
	switch {
	case err == nil:
		if val == absentMarker {
			return "", false, nil
		}
		return val, true, nil
	case err != redis.Nil:
		c.logger.Warn("property cache read failed", map[string]interface{}{
			"cacheKey": ck,
			"error":    err,
		})
	}

	value, ok, err := c.next.GetValue(ctx, institution, key)
	if err != nil {
		return "", false, err
	}

	stored := value
	if !ok {
		stored = absentMarker
	}
	if err := c.redis.Set(ctx, ck, stored, c.ttl).Err(); err != nil {
		c.logger.Warn("property cache write failed", map[string]interface{}{
			"cacheKey": ck,
			"error":    err,
		})
	}
	return value, ok, nil
}

func (c *CachedSource) SetValue(ctx context.Context, institution, key, value string) error {
	w, ok := c.next.(ConfigWriter)
	if !ok {
		return fmt.Errorf("configuration source is read-only")
	}
	if err := w.SetValue(ctx, institution, key, value); err != nil {
		return err
	}
	return c.Invalidate(ctx, institution, key)
}

// Invalidate drops the cached entry for institution and key.
func (c *CachedSource) Invalidate(ctx context.Context, institution, key string) error {
	if err := c.redis.Del(ctx, cacheKey(institution, key)).Err(); err != nil {
		return fmt.Errorf("invalidate property cache: %w", err)
	}
	return nil
}
