package redisx

import "time"

const (
	// idem:order:create:{buyer_id}:{idempotency_key} -> order_id | IdemPending
	KeyIdemOrderCreate = "idem:order:create:%s:%s"
	IdemPending        = "pending"

	// order_status:{order_id} -> {"status": "...", "payment_status": "..."}
	KeyOrderStatus = "order_status:%s"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// lock:{name}
	KeyLock = "lock:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLIdemClaim   = 30 * time.Second
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
