package models

import "time"

// OrderEventKind — конечный набор исходов жизненного цикла ордера.
type OrderEventKind string

const (
	OrderPlaced    OrderEventKind = "placed"
	OrderRejected  OrderEventKind = "rejected"
	OrderCancelled OrderEventKind = "cancelled"
	OrderFilled    OrderEventKind = "filled"    // partial or full fill
	OrderFinalized OrderEventKind = "finalized" // order fully done
	OrderFailed    OrderEventKind = "failed"    // placement failed outright
)

// OrderEvent is delivered by the exchange user feed, one terminal-or-progress
// notification per order transition.
type OrderEvent struct {
	Kind      OrderEventKind
	OrderID   string
	Side      Side
	Price     float64
	Size      float64
	Remaining float64
	Reason    string
	Time      time.Time
}
