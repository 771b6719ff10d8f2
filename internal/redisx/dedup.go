package redisx

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Dedup remembers processed event ids per consuming service.
type Dedup struct {
	rdb     *redis.Client
	service string
}

func NewDedup(rdb *redis.Client, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service}
}

// Claim marks eventID as taken and reports whether this caller got it first.
func (d *Dedup) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.service, eventID), "1", TTLDedup).Result()
	return ok, errors.Wrap(err, "dedup claim")
}

// Release forgets a claim so a redelivery is processed again.
func (d *Dedup) Release(ctx context.Context, eventID string) error {
	return errors.Wrap(d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.service, eventID)).Err(), "dedup release")
}
