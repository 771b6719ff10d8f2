package redisx

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// OrderCache keeps order records and idempotency keys. Reads and fills log
// failures and treat them as misses. Invalidation reports them.
type OrderCache struct {
	rdb *redis.Client
	log logrus.FieldLogger
}

func NewOrderCache(rdb *redis.Client, log logrus.FieldLogger) *OrderCache {
	return &OrderCache{rdb: rdb, log: log}
}

func (c *OrderCache) GetOrder(ctx context.Context, orderID string) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderView, orderID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).WithField("order_id", orderID).Warn("order cache get")
		}
		return nil, false
	}
	if string(b) == orderTombstone {
		return nil, false
	}
	return b, true
}

// SetOrder only fills an empty slot, so it never overwrites a tombstone.
func (c *OrderCache) SetOrder(ctx context.Context, orderID string, body []byte) {
	if err := c.rdb.SetNX(ctx, fmt.Sprintf(KeyOrderView, orderID), body, TTLOrderView).Err(); err != nil {
		c.log.WithError(err).WithField("order_id", orderID).Warn("order cache set")
	}
}

// InvalidateOrder replaces the entry with a tombstone that outlives any read
// started before the write, so a late SetOrder cannot bring the old record back.
func (c *OrderCache) InvalidateOrder(ctx context.Context, orderID string) error {
	err := c.rdb.Set(ctx, fmt.Sprintf(KeyOrderView, orderID), orderTombstone, TTLOrderTombstone).Err()
	return errors.Wrapf(err, "invalidate order %s", orderID)
}

func (c *OrderCache) LookupIdempotent(ctx context.Context, key string) (string, bool) {
	id, err := c.rdb.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Warn("idempotency lookup")
		}
		return "", false
	}
	return id, id != ""
}

func (c *OrderCache) RememberIdempotent(ctx context.Context, key, orderID string) {
	if err := c.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err(); err != nil {
		c.log.WithError(err).WithField("order_id", orderID).Warn("idempotency remember")
	}
}
