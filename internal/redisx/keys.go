package redisx

import "time"

// Key map for everything the order core stores in Redis. Prefixes are
// completed with the id they index; KeyDedup is a fmt template.
const (
	// Single-order cache entry: order:detail:{order_id} -> serialized record
	PrefixOrderDetail = "order:detail:"

	// Per-user order list: order:user:{user_id} -> newline-joined records
	PrefixUserOrders = "order:user:"

	// Stock counter: stock:{product_id} -> decimal text
	PrefixStock = "stock:"

	// Reservation record: reservation:{order_id:product_id} -> csv quad
	PrefixReservation = "reservation:"

	// Dedup of consumed events: dedup:{service}:{event:order_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderCache  = 10 * time.Minute
	TTLReservation = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
