package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/salescode-agent/server/internal/agent/model"
	errx "github.com/salescode-agent/server/internal/core/error"
	logx "github.com/salescode-agent/server/pkg/logger"
)

// RedisProductLedger keeps a set of product ids per conversation. It expires
// together with the transcript.
type RedisProductLedger struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisProductLedger(rdb redis.Cmdable, ttl time.Duration) *RedisProductLedger {
	return &RedisProductLedger{rdb: rdb, ttl: ttl}
}

func ledgerKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:products", conversationID)
}

func (l *RedisProductLedger) Record(ctx context.Context, conversationID string, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	key := ledgerKey(conversationID)
	members := make([]any, len(productIDs))
	for i, id := range productIDs {
		members[i] = id
	}

	pipe := l.rdb.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	if l.ttl > 0 {
		pipe.Expire(ctx, key, l.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to record products")
		return errx.WrapRedis(err)
	}
	return nil
}

func (l *RedisProductLedger) Contains(ctx context.Context, conversationID, productID string) (bool, error) {
	ok, err := l.rdb.SIsMember(ctx, ledgerKey(conversationID), productID).Result()
	if err != nil {
		return false, errx.WrapRedis(err)
	}
	return ok, nil
}

var _ model.ProductLedger = (*RedisProductLedger)(nil)
