package record

import (
	"tvitch/domain/itch"
	"tvitch/domain/orderbook"
)

func quote(l orderbook.Level) Quote {
	return Quote{Price: l.Price, Shares: l.Shares}
}

func quotes(levels []orderbook.Level) []Quote {
	if len(levels) == 0 {
		return nil
	}
	out := make([]Quote, len(levels))
	for i, l := range levels {
		out[i] = quote(l)
	}
	return out
}

// topOf tolerates a nil book, which yields two empty quotes.
func topOf(b *orderbook.Book) (bid, ask Quote) {
	if b == nil {
		return Quote{}, Quote{}
	}
	bl, al := b.Top()
	return quote(bl), quote(al)
}

// FromBook captures the top NLevels of b.
func FromBook(b *orderbook.Book, ts uint64, final bool) *BookRecord {
	d := b.Levels(0)
	return &BookRecord{
		Ticker:    b.Ticker,
		Timestamp: ts,
		Bids:      quotes(d.Bids),
		Asks:      quotes(d.Asks),
		Final:     final,
	}
}

// FromOrder expects m to have been completed by the engine.
func FromOrder(m *itch.OrderMessage, clamped bool) *OrderRecord {
	return &OrderRecord{
		Type:        m.Type,
		Action:      m.Action,
		Timestamp:   m.Timestamp,
		Ticker:      m.Ticker,
		OrderID:     m.OrderID,
		NewOrderID:  m.NewOrderID,
		Side:        m.Side,
		Price:       m.Price,
		Shares:      m.Shares,
		MatchNumber: m.MatchNumber,
		Printable:   m.Printable,
		Attribution: m.Attribution,
		Clamped:     clamped,
	}
}

// FromExecution describes an execution of a resting order. b is the book
// after the execution.
func FromExecution(m *itch.OrderMessage, t *orderbook.Trade, b *orderbook.Book) *TradeRecord {
	bid, ask := topOf(b)
	return &TradeRecord{
		Type:        m.Type,
		Timestamp:   m.Timestamp,
		Ticker:      t.Ticker,
		Side:        t.Side,
		Price:       t.Price,
		Shares:      t.Shares,
		OrderID:     t.OrderID,
		HasOrderID:  true,
		MatchNumber: t.MatchNumber,
		Printable:   t.Printable,
		Bid:         bid,
		Ask:         ask,
	}
}

// FromTrade describes a P, Q or B message. ticker overrides the message's
// own, which a broken trade does not carry. b may be nil.
func FromTrade(m *itch.TradeMessage, ticker string, b *orderbook.Book) *TradeRecord {
	bid, ask := topOf(b)
	return &TradeRecord{
		Type:        m.Type,
		Timestamp:   m.Timestamp,
		Ticker:      ticker,
		Side:        m.Side,
		Price:       m.Price,
		Shares:      m.Shares,
		OrderID:     m.OrderID,
		HasOrderID:  m.HasOrderID,
		MatchNumber: m.MatchNumber,
		CrossType:   m.CrossType,
		Printable:   !m.Broken(),
		Broken:      m.Broken(),
		Bid:         bid,
		Ask:         ask,
	}
}

func FromNOII(m *itch.NOIIMessage, b *orderbook.Book) *NOIIRecord {
	bid, ask := topOf(b)
	return &NOIIRecord{
		Timestamp:       m.Timestamp,
		Ticker:          m.Ticker,
		PairedShares:    m.PairedShares,
		ImbalanceShares: m.ImbalanceShares,
		Direction:       m.Direction,
		FarPrice:        m.FarPrice,
		NearPrice:       m.NearPrice,
		ReferencePrice:  m.ReferencePrice,
		CrossType:       m.CrossType,
		PriceVariation:  m.PriceVariation,
		Bid:             bid,
		Ask:             ask,
	}
}

func FromSystem(m *itch.SystemMessage) *SystemRecord {
	return &SystemRecord{
		Type:      m.Type,
		Timestamp: m.Timestamp,
		EventCode: m.EventCode,
		Ticker:    m.Ticker,
		Reason:    m.Reason,
	}
}
