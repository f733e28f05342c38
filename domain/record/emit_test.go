package record

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/assert"

	"tvitch/domain/itch"
	"tvitch/domain/orderbook"
)

func TestFromBookAndExecution(t *testing.T) {
	e := orderbook.NewEngine([]string{"AAPL"}, 2)
	for i, p := range []string{"10.00", "10.01", "10.02"} {
		_, err := e.Apply(&itch.OrderMessage{
			Header: itch.Header{Type: 'A'}, Action: itch.ActionAdd, OrderID: uint64(i + 1),
			Ticker: "AAPL", Side: itch.Buy, Price: itch.MustPrice(p), HasPrice: true, Shares: 100,
		})
		assert.NilError(t, err)
	}
	_, err := e.Apply(&itch.OrderMessage{
		Header: itch.Header{Type: 'A'}, Action: itch.ActionAdd, OrderID: 9,
		Ticker: "AAPL", Side: itch.Sell, Price: itch.MustPrice("10.05"), HasPrice: true, Shares: 10,
	})
	assert.NilError(t, err)

	b, _ := e.Book("AAPL")
	rec := FromBook(b, 77, true)
	assert.DeepEqual(t, rec, &BookRecord{
		Ticker:    "AAPL",
		Timestamp: 77,
		Bids: []Quote{
			{Price: itch.MustPrice("10.02"), Shares: 100},
			{Price: itch.MustPrice("10.01"), Shares: 100},
		},
		Asks:  []Quote{{Price: itch.MustPrice("10.05"), Shares: 10}},
		Final: true,
	})

	m := &itch.OrderMessage{
		Header: itch.Header{Type: 'E', Timestamp: 80}, Action: itch.ActionExecute, OrderID: 3, Shares: 40, MatchNumber: 5,
	}
	res, err := e.Apply(m)
	assert.NilError(t, err)
	tr := FromExecution(m, res.Trade, res.Book)
	assert.Equal(t, tr.Ticker, "AAPL")
	assert.Equal(t, tr.Price, itch.MustPrice("10.02"))
	assert.Equal(t, tr.Shares, uint64(40))
	assert.Assert(t, tr.HasOrderID)
	assert.Equal(t, tr.Bid, Quote{Price: itch.MustPrice("10.02"), Shares: 60})
	assert.Equal(t, tr.Ask, Quote{Price: itch.MustPrice("10.05"), Shares: 10})

	or := FromOrder(m, res.Clamped)
	assert.Equal(t, or.Ticker, "AAPL")
	assert.Equal(t, or.Side, itch.Buy)
	assert.Equal(t, or.Action, itch.ActionExecute)
	assert.Equal(t, or.Symbol(), "AAPL")
	assert.Equal(t, or.Time(), uint64(80))
}

func TestFromTradeBroken(t *testing.T) {
	m := &itch.TradeMessage{Header: itch.Header{Type: 'B', Timestamp: 5}, MatchNumber: 42}
	tr := FromTrade(m, "MSFT", nil)
	assert.Assert(t, tr.Broken)
	assert.Assert(t, !tr.Printable)
	assert.Equal(t, tr.Ticker, "MSFT")
	assert.Equal(t, tr.Bid, Quote{})
	assert.Equal(t, tr.RecordType(), TypeTrade)
}

func TestFromSystemAndNOII(t *testing.T) {
	s := FromSystem(&itch.SystemMessage{Header: itch.Header{Type: 'H', Timestamp: 1}, EventCode: 'T', Ticker: "AAPL"})
	assert.Equal(t, s.Symbol(), "AAPL")
	assert.Equal(t, s.EventCode, byte('T'))

	n := FromNOII(&itch.NOIIMessage{
		Header: itch.Header{Type: 'I'}, Ticker: "AAPL", PairedShares: 10, Direction: itch.DirectionBuy,
		NearPrice: itch.MustPrice("9.99"),
	}, orderbook.NewBook("AAPL", 5))
	assert.Equal(t, n.Direction, itch.DirectionBuy)
	assert.Equal(t, n.NearPrice, itch.MustPrice("9.99"))
	assert.Equal(t, n.Ask, Quote{})
}

func TestMultiSink(t *testing.T) {
	ctx := context.Background()
	a := &MemorySink{}
	b := &MemorySink{Err: errors.New("disk full"), FailAfter: 1}
	ms := MultiSink{a, b}

	assert.NilError(t, ms.Write(ctx, &SystemRecord{Type: 'S'}))
	err := ms.Write(ctx, &SystemRecord{Type: 'S'})
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, len(a.Records()), 2)
	assert.Equal(t, len(b.Records()), 1)

	assert.NilError(t, ms.Flush(ctx))
	assert.Equal(t, a.Flushes(), 1)
	assert.Equal(t, b.Flushes(), 1)
}

func TestFilterSink(t *testing.T) {
	ctx := context.Background()
	mem := &MemorySink{}
	f := FilterSink{Next: mem, Types: map[Type]bool{TypeTrade: true}}
	assert.NilError(t, f.Write(ctx, &SystemRecord{}))
	assert.NilError(t, f.Write(ctx, &TradeRecord{Ticker: "AAPL"}))
	assert.Equal(t, len(mem.Records()), 1)
	assert.Equal(t, len(mem.Of(TypeTrade)), 1)
	assert.NilError(t, f.Flush(ctx))
	assert.Equal(t, mem.Flushes(), 1)
}

func TestParseType(t *testing.T) {
	for _, want := range []Type{TypeBook, TypeOrder, TypeTrade, TypeNOII, TypeSystem} {
		got, err := ParseType(want.String())
		assert.NilError(t, err)
		assert.Equal(t, got, want)
	}
	_, err := ParseType("quote")
	assert.ErrorContains(t, err, "unknown type")
}
