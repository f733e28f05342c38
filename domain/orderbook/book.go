package orderbook

import "tvitch/domain/itch"

// Book is the aggregated depth of one ticker. It is single-writer: only
// the Engine that owns it mutates it.
type Book struct {
	Ticker  string
	NLevels int

	Bids *Ladder
	Asks *Ladder
}

func NewBook(ticker string, nlevels int) *Book {
	return &Book{
		Ticker:  ticker,
		NLevels: nlevels,
		Bids:    newLadder(itch.Buy),
		Asks:    newLadder(itch.Sell),
	}
}

// Depth is the top of a book, bids descending and asks ascending.
type Depth struct {
	Bids []Level
	Asks []Level
}

func (b *Book) side(s itch.Side) *Ladder {
	if s == itch.Buy {
		return b.Bids
	}
	return b.Asks
}

// Levels returns at most n levels per side. n <= 0 uses NLevels.
func (b *Book) Levels(n int) Depth {
	if n <= 0 {
		n = b.NLevels
	}
	return Depth{Bids: b.Bids.Top(n), Asks: b.Asks.Top(n)}
}

// Top returns the best bid and ask. A zero Level means the side is empty.
func (b *Book) Top() (bid, ask Level) {
	if pl := b.Bids.Best(); pl != nil {
		bid = pl.Level()
	}
	if pl := b.Asks.Best(); pl != nil {
		ask = pl.Level()
	}
	return bid, ask
}

// Crossed reports whether the best bid is at or above the best ask. The
// book does not act on it; the feed is authoritative.
func (b *Book) Crossed() bool {
	bid, ask := b.Top()
	return bid.Orders > 0 && ask.Orders > 0 && bid.Price >= ask.Price
}

func (b *Book) insert(o *Order) {
	b.side(o.Side).upsert(o.Price).enqueue(o)
}

func (b *Book) remove(o *Order) {
	pl := o.level
	pl.unlink(o)
	if pl.Empty() {
		b.side(o.Side).remove(pl.Price)
	}
}
