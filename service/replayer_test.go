package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gotest.tools/assert"

	"tvitch/domain/itch"
	"tvitch/domain/record"
	"tvitch/snapshot"
)

const ts0 = 34_200_000_000_000 // 09:30

func capture(t *testing.T, v itch.Version, msgs ...itch.Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := itch.NewWriter(&buf, v)
	for _, m := range msgs {
		assert.NilError(t, w.Write(m))
	}
	return buf.Bytes()
}

func hdr(tag byte, i uint64) itch.Header {
	return itch.Header{Type: tag, Timestamp: ts0 + i*1000}
}

func sysEvent(code byte, i uint64) *itch.SystemMessage {
	return &itch.SystemMessage{Header: hdr('S', i), EventCode: code}
}

func addOrder(i, id uint64, ticker string, side itch.Side, price string, shares uint64) *itch.OrderMessage {
	return &itch.OrderMessage{
		Header: hdr('A', i), Action: itch.ActionAdd, OrderID: id, Ticker: ticker,
		Side: side, Price: itch.MustPrice(price), HasPrice: true, Shares: shares,
	}
}

func cancelOrder(i, id, shares uint64) *itch.OrderMessage {
	return &itch.OrderMessage{Header: hdr('X', i), Action: itch.ActionCancel, OrderID: id, Shares: shares}
}

func execOrder(i, id, shares, match uint64) *itch.OrderMessage {
	return &itch.OrderMessage{Header: hdr('E', i), Action: itch.ActionExecute, OrderID: id, Shares: shares, MatchNumber: match}
}

func replay(t *testing.T, cfg Config, data []byte) (Status, *record.MemorySink, *Replayer) {
	t.Helper()
	sink := &record.MemorySink{}
	r, err := NewReplayer(cfg, sink)
	assert.NilError(t, err)
	st := r.Run(context.Background(), bytes.NewReader(data))
	return st, sink, r
}

func types(recs []record.Record) []record.Type {
	out := make([]record.Type, len(recs))
	for i, r := range recs {
		out[i] = r.RecordType()
	}
	return out
}

func TestReplayAddCancelExecute(t *testing.T) {
	for _, v := range []itch.Version{itch.V41, itch.V50} {
		t.Run(v.String(), func(t *testing.T) {
			data := capture(t, v,
				sysEvent('O', 0),
				addOrder(1, 1, "AAPL", itch.Buy, "10.00", 100),
				cancelOrder(2, 1, 50),
				execOrder(3, 1, 50, 900),
			)
			st, sink, r := replay(t, Config{Version: v, Tickers: []string{"AAPL"}}, data)
			assert.Equal(t, st.Outcome, Completed, "%v", st.Reason)

			want := uint64(4)
			if v == itch.V41 {
				want++ // seconds message
			}
			assert.Equal(t, st.Processed, want)

			recs := sink.Records()
			assert.DeepEqual(t, types(recs), []record.Type{
				record.TypeSystem,
				record.TypeOrder, record.TypeBook,
				record.TypeOrder, record.TypeBook,
				record.TypeOrder, record.TypeTrade, record.TypeBook,
			})
			assert.Equal(t, st.Counters.Emitted, uint64(len(recs)))

			trade := recs[6].(*record.TradeRecord)
			assert.Equal(t, trade.Ticker, "AAPL")
			assert.Equal(t, trade.Price, itch.MustPrice("10.00"))
			assert.Equal(t, trade.Shares, uint64(50))
			assert.Equal(t, trade.Type, byte('E'))
			assert.Equal(t, trade.Time(), uint64(ts0+3000))

			cancel := recs[3].(*record.OrderRecord)
			assert.Equal(t, cancel.Ticker, "AAPL")
			assert.Equal(t, cancel.Side, itch.Buy)
			assert.Equal(t, cancel.Price, itch.MustPrice("10.00"))

			mid := recs[4].(*record.BookRecord)
			assert.DeepEqual(t, mid.Bids, []record.Quote{{Price: itch.MustPrice("10.00"), Shares: 50}})

			last := recs[7].(*record.BookRecord)
			assert.Equal(t, len(last.Bids), 0)
			b, _ := r.Engine().Book("AAPL")
			assert.Equal(t, b.Bids.Len(), 0)
		})
	}
}

func TestReplayUntrackedTickerDiscarded(t *testing.T) {
	data := capture(t, itch.V50,
		addOrder(0, 1, "MSFT", itch.Sell, "300.00", 10),
		sysEvent('Q', 1),
		&itch.SystemMessage{Header: hdr('H', 2), Ticker: "MSFT", EventCode: 'H'},
		&itch.SystemMessage{Header: hdr('H', 3), Ticker: "AAPL", EventCode: 'T'},
		&itch.NOIIMessage{Header: hdr('I', 4), Ticker: "MSFT", Direction: itch.DirectionBuy},
		cancelOrder(5, 1, 10),
	)
	st, sink, _ := replay(t, Config{Version: itch.V50, Tickers: []string{"AAPL"}}, data)
	assert.Assert(t, st.OK())
	assert.DeepEqual(t, types(sink.Records()), []record.Type{record.TypeSystem, record.TypeSystem})
	assert.Equal(t, st.Counters.Discarded, uint64(3))
	assert.Equal(t, st.Counters.UnknownOrderReference, uint64(1))
	assert.Equal(t, sink.Records()[1].Symbol(), "AAPL")
}

func TestReplayTruncatedFails(t *testing.T) {
	for _, v := range []itch.Version{itch.V41, itch.V50} {
		t.Run(v.String(), func(t *testing.T) {
			data := capture(t, v,
				addOrder(0, 1, "AAPL", itch.Buy, "10.00", 100),
				addOrder(1, 2, "AAPL", itch.Sell, "10.10", 100),
			)
			data = data[:len(data)-4]

			st, sink, r := replay(t, Config{Version: v, Tickers: []string{"AAPL"}, EmitFinal: true}, data)
			assert.Equal(t, st.Outcome, Failed)
			assert.Assert(t, errors.Is(st.Reason, itch.ErrTruncated), "%v", st.Reason)

			want := uint64(1)
			if v == itch.V41 {
				want++
			}
			assert.Equal(t, st.Processed, want)
			assert.Equal(t, sink.Flushes(), 1)
			assert.Equal(t, len(sink.Of(record.TypeBook)), 1, "no final books after a failure")

			b, _ := r.Engine().Book("AAPL")
			bid, ask := b.Top()
			assert.Equal(t, bid.Shares, uint64(100))
			assert.Equal(t, ask.Orders, 0)
		})
	}
}

func TestReplayUnknownTypeFramedSkipped(t *testing.T) {
	var buf bytes.Buffer
	w := itch.NewWriter(&buf, itch.V50)
	assert.NilError(t, w.Write(addOrder(0, 1, "AAPL", itch.Buy, "10.00", 100)))
	assert.NilError(t, w.WriteRaw([]byte{'Z', 0, 0, 0, 0, 0, 0}))
	assert.NilError(t, w.Write(cancelOrder(1, 1, 10)))

	st, sink, _ := replay(t, Config{Version: itch.V50, Tickers: []string{"AAPL"}}, buf.Bytes())
	assert.Assert(t, st.OK(), "%v", st.Reason)
	assert.Equal(t, st.Processed, uint64(2))
	assert.Equal(t, st.Counters.UnknownMessageType, uint64(1))
	assert.Equal(t, len(sink.Of(record.TypeOrder)), 2)
}

func TestReplayUnknownTypeUnframedFatal(t *testing.T) {
	data := capture(t, itch.V41, addOrder(0, 1, "AAPL", itch.Buy, "10.00", 100))
	data = append(data, 'Z', 0, 0, 0, 0)

	st, _, _ := replay(t, Config{Version: itch.V41, Tickers: []string{"AAPL"}}, data)
	assert.Equal(t, st.Outcome, Failed)
	ute, ok := itch.AsUnknownType(st.Reason)
	assert.Assert(t, ok, "%v", st.Reason)
	assert.Equal(t, ute.Tag, byte('Z'))
	assert.Equal(t, st.Counters.UnknownMessageType, uint64(1))
	assert.Equal(t, st.Processed, uint64(2))
}

func TestReplayBrokenTradeResolved(t *testing.T) {
	data := capture(t, itch.V50,
		&itch.TradeMessage{Header: hdr('P', 0), Ticker: "AAPL", Side: itch.Buy, Shares: 10, Price: itch.MustPrice("10.00"), MatchNumber: 77},
		&itch.TradeMessage{Header: hdr('P', 1), Ticker: "MSFT", Side: itch.Buy, Shares: 10, Price: itch.MustPrice("300"), MatchNumber: 78},
		addOrder(2, 5, "AAPL", itch.Sell, "10.05", 10),
		execOrder(3, 5, 10, 79),
		&itch.TradeMessage{Header: hdr('B', 4), MatchNumber: 77},
		&itch.TradeMessage{Header: hdr('B', 5), MatchNumber: 78},
		&itch.TradeMessage{Header: hdr('B', 6), MatchNumber: 79},
		&itch.TradeMessage{Header: hdr('B', 7), MatchNumber: 77},
	)
	st, sink, _ := replay(t, Config{Version: itch.V50, Tickers: []string{"AAPL"}}, data)
	assert.Assert(t, st.OK())

	trades := sink.Of(record.TypeTrade)
	assert.Equal(t, len(trades), 4)
	var broken []*record.TradeRecord
	for _, r := range trades {
		if tr := r.(*record.TradeRecord); tr.Broken {
			broken = append(broken, tr)
		}
	}
	assert.Equal(t, len(broken), 2)
	assert.Equal(t, broken[0].MatchNumber, uint64(77))
	assert.Equal(t, broken[0].Ticker, "AAPL")
	assert.Equal(t, broken[1].MatchNumber, uint64(79))
	// MSFT trade, its break and the repeated break of 77.
	assert.Equal(t, st.Counters.Discarded, uint64(3))
}

func TestReplayRecoverableCounters(t *testing.T) {
	data := capture(t, itch.V50,
		addOrder(0, 1, "AAPL", itch.Buy, "10.00", 100),
		addOrder(1, 1, "AAPL", itch.Buy, "10.00", 100),
		cancelOrder(2, 42, 1),
		cancelOrder(3, 1, 500),
	)
	st, sink, r := replay(t, Config{Version: itch.V50, Tickers: []string{"AAPL"}}, data)
	assert.Assert(t, st.OK())
	assert.DeepEqual(t, st.Counters, Counters{
		DuplicateOrderID:      1,
		UnknownOrderReference: 1,
		ClampedCancelOverflow: 1,
		Emitted:               4,
	})
	orders := sink.Of(record.TypeOrder)
	assert.Assert(t, orders[1].(*record.OrderRecord).Clamped)
	assert.Equal(t, r.Engine().Len(), 0)
}

func TestReplayContextCanceled(t *testing.T) {
	data := capture(t, itch.V50, addOrder(0, 1, "AAPL", itch.Buy, "10.00", 100))
	sink := &record.MemorySink{}
	r, err := NewReplayer(Config{Version: itch.V50, Tickers: []string{"AAPL"}}, sink)
	assert.NilError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := r.Run(ctx, bytes.NewReader(data))
	assert.Equal(t, st.Outcome, Failed)
	assert.Assert(t, errors.Is(st.Reason, context.Canceled))
	assert.Equal(t, st.Processed, uint64(0))
	assert.Equal(t, sink.Flushes(), 1)
}

func TestReplaySinkErrorIsFatal(t *testing.T) {
	data := capture(t, itch.V50,
		sysEvent('O', 0),
		addOrder(1, 1, "AAPL", itch.Buy, "10.00", 100),
		addOrder(2, 2, "AAPL", itch.Buy, "10.00", 100),
	)
	sink := &record.MemorySink{Err: errors.New("disk full"), FailAfter: 2}
	r, err := NewReplayer(Config{Version: itch.V50, Tickers: []string{"AAPL"}}, sink)
	assert.NilError(t, err)

	st := r.Run(context.Background(), bytes.NewReader(data))
	assert.Equal(t, st.Outcome, Failed)
	assert.ErrorContains(t, st.Reason, "disk full")
	assert.Equal(t, st.Processed, uint64(2))
	assert.Equal(t, sink.Flushes(), 1)
}

func TestReplayEmitFinalAndCheckpoint(t *testing.T) {
	data := capture(t, itch.V50,
		addOrder(0, 1, "AAPL", itch.Buy, "10.00", 100),
		addOrder(1, 2, "MSFT", itch.Sell, "300.00", 5),
	)
	dir := t.TempDir()
	cfg := Config{
		Version:       itch.V50,
		Tickers:       []string{"MSFT", "AAPL"},
		EmitFinal:     true,
		CheckpointDir: dir,
		Name:          "day",
	}
	st, sink, _ := replay(t, cfg, data)
	assert.Assert(t, st.OK())

	books := sink.Of(record.TypeBook)
	assert.Equal(t, len(books), 4)
	final := books[2:]
	assert.Equal(t, final[0].Symbol(), "AAPL")
	assert.Equal(t, final[1].Symbol(), "MSFT")
	for _, b := range final {
		assert.Assert(t, b.(*record.BookRecord).Final)
		assert.Equal(t, b.Time(), uint64(ts0+1000))
	}

	assert.Assert(t, st.Checkpoint != "")
	snap, e, err := snapshot.Load(st.Checkpoint)
	assert.NilError(t, err)
	assert.Equal(t, snap.RunID, st.RunID)
	assert.Equal(t, snap.Outcome, "completed")
	assert.Equal(t, snap.LastTimestamp, uint64(ts0+1000))
	assert.Equal(t, e.Len(), 2)
}

func TestReplayCheckpointRecordsFailure(t *testing.T) {
	data := capture(t, itch.V50,
		addOrder(0, 1, "AAPL", itch.Buy, "10.00", 100),
		addOrder(1, 2, "AAPL", itch.Sell, "10.10", 100),
	)
	data = data[:len(data)-4]
	cfg := Config{Version: itch.V50, Tickers: []string{"AAPL"}, CheckpointDir: t.TempDir(), Name: "cut"}

	st, _, _ := replay(t, cfg, data)
	assert.Equal(t, st.Outcome, Failed)
	snap, err := snapshot.Read(st.Checkpoint)
	assert.NilError(t, err)
	assert.Equal(t, snap.Outcome, "failed")
	assert.Equal(t, snap.LastTimestamp, uint64(ts0))
}

func TestReplayIsDeterministic(t *testing.T) {
	data := capture(t, itch.V50,
		addOrder(0, 1, "AAPL", itch.Buy, "10.00", 100),
		addOrder(1, 2, "AAPL", itch.Buy, "10.01", 100),
		execOrder(2, 2, 30, 1),
		cancelOrder(3, 1, 20),
	)
	cfg := Config{Version: itch.V50, Tickers: []string{"AAPL"}, EmitFinal: true}
	_, a, _ := replay(t, cfg, data)
	_, b, _ := replay(t, cfg, data)
	assert.DeepEqual(t, a.Records(), b.Records())
}

func TestNewReplayerValidation(t *testing.T) {
	_, err := NewReplayer(Config{Version: itch.V50}, &record.MemorySink{})
	assert.ErrorContains(t, err, "no tickers")
	_, err = NewReplayer(Config{Tickers: []string{"AAPL"}}, &record.MemorySink{})
	assert.ErrorContains(t, err, "unsupported version")
	_, err = NewReplayer(Config{Version: itch.V41, Tickers: []string{"AAPL"}}, nil)
	assert.ErrorContains(t, err, "nil sink")
}

func TestReplayerSingleUse(t *testing.T) {
	r, err := NewReplayer(Config{Version: itch.V50, Tickers: []string{"AAPL"}}, &record.MemorySink{})
	assert.NilError(t, err)
	assert.Assert(t, r.Run(context.Background(), bytes.NewReader(nil)).OK())
	st := r.Run(context.Background(), bytes.NewReader(nil))
	assert.Equal(t, st.Outcome, Failed)
}

func TestReplayLogsCrossedAndDuplicates(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	data := capture(t, itch.V50,
		addOrder(0, 1, "AAPL", itch.Buy, "10.10", 100),
		addOrder(1, 2, "AAPL", itch.Sell, "10.00", 100),
		addOrder(2, 1, "AAPL", itch.Buy, "9.00", 5),
	)
	sink := &record.MemorySink{}
	r, err := NewReplayer(Config{Version: itch.V50, Tickers: []string{"AAPL"}}, sink, WithLogger(zap.New(core)))
	assert.NilError(t, err)
	st := r.Run(context.Background(), bytes.NewReader(data))
	assert.Assert(t, st.OK())
	assert.Equal(t, st.Counters.DuplicateOrderID, uint64(1))

	crossed := logs.FilterMessage("replay: crossed book").All()
	assert.Equal(t, len(crossed), 1)
	assert.Equal(t, crossed[0].ContextMap()["ticker"], "AAPL")

	dup := logs.FilterMessage("replay: duplicate order id").All()
	assert.Equal(t, len(dup), 1)
	assert.Equal(t, dup[0].ContextMap()["live_ticker"], "AAPL")
	assert.Equal(t, dup[0].ContextMap()["id"], uint64(1))
}
