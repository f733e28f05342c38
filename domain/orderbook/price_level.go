package orderbook

import "tvitch/domain/itch"

// PriceLevel is the FIFO queue of orders resting at one price on one side.
type PriceLevel struct {
	Price itch.Price

	head *Order
	tail *Order

	TotalShares uint64
	OrderCount  int
}

// Level is a read-only copy of a price level's aggregates.
type Level struct {
	Price  itch.Price
	Shares uint64
	Orders int
}

func (p *PriceLevel) Level() Level {
	return Level{Price: p.Price, Shares: p.TotalShares, Orders: p.OrderCount}
}

func (p *PriceLevel) enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	o.level = p
	p.TotalShares += o.Shares
	p.OrderCount++
}

func (p *PriceLevel) unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next = nil
	o.prev = nil
	o.level = nil

	p.TotalShares -= o.Shares
	p.OrderCount--
}

// reduce takes n shares off o in place. n must not exceed o.Shares.
func (p *PriceLevel) reduce(o *Order, n uint64) {
	o.Shares -= n
	p.TotalShares -= n
}

func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Head is the oldest order at this price.
func (p *PriceLevel) Head() *Order {
	return p.head
}
