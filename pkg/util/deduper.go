package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduper creates a deduper; logger may be nil.
func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func dedupKey(handler string, id int64) string {
	return fmt.Sprintf("dedup:%s:%d", handler, id)
}

// AcquireOnce tries to acquire a claim for handler + id.
// returns true if this caller holds the claim
// returns false if another worker holds it
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, id int64) bool {
	key := dedupKey(handler, id)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		// Redis 挂了？不阻止处理，最终靠数据库唯一约束保证幂等
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.Int64("id", id),
				zap.Error(err),
			)
		}
		return true
	}

	// 去重命中：记录日志
	if !ok && d.logger != nil {
		d.logger.Info("Skipped claimed item",
			zap.String("handler", handler),
			zap.Int64("id", id),
			zap.String("dedup_key", key),
		)
	}

	return ok
}

// Release drops a claim so a later attempt can run (used when processing failed).
func (d *Deduper) Release(ctx context.Context, handler string, id int64) {
	if err := d.rdb.Del(ctx, dedupKey(handler, id)).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to release dedup claim",
			zap.String("handler", handler),
			zap.Int64("id", id),
			zap.Error(err),
		)
	}
}
