package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Order record without product data: order_view:{order_id}
	KeyOrderView   = "order_view:%s"
	orderTombstone = "-"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderView   = 5 * time.Minute
	// longer than any request timeout
	TTLOrderTombstone = 30 * time.Second
	TTLDedup          = 48 * time.Hour
)
