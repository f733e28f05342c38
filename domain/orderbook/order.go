package orderbook

import "tvitch/domain/itch"

// Order is a resting displayed order. Shares is what remains after
// cancels and executions.
type Order struct {
	ID     uint64
	Ticker string
	Side   itch.Side
	Price  itch.Price
	Shares uint64
	// Timestamp of the add or replace that created the order.
	Timestamp uint64

	level *PriceLevel
	next  *Order
	prev  *Order
}

func (o *Order) Next() *Order { return o.next }

func resetOrder(o *Order) { *o = Order{} }
