package main

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gotest.tools/assert"

	"tvitch/domain/itch"
	"tvitch/domain/orderbook"
	"tvitch/infra/store"
	"tvitch/snapshot"
)

func TestHydrate(t *testing.T) {
	dir := t.TempDir()
	ckpts := filepath.Join(dir, "ckpt")

	e := orderbook.NewEngine([]string{"AAPL", "MSFT"}, 3)
	_, err := e.Apply(&itch.OrderMessage{
		Header: itch.Header{Type: 'A', Timestamp: 99}, Action: itch.ActionAdd, OrderID: 1,
		Ticker: "AAPL", Side: itch.Sell, Shares: 10, Price: itch.MustPrice("20.00"), HasPrice: true,
	})
	assert.NilError(t, err)
	w := &snapshot.Writer{Dir: ckpts}
	_, err = w.Write("S013019-v50", snapshot.Meta{RunID: "r1", Version: "5.0", Processed: 3, Outcome: "completed", LastTimestamp: 120}, e)
	assert.NilError(t, err)

	st, err := store.Open(filepath.Join(dir, "store"))
	assert.NilError(t, err)
	defer st.Close()

	n, err := hydrate(ckpts, st, zap.NewNop())
	assert.NilError(t, err)
	assert.Equal(t, n, 2)

	b, err := st.Book("AAPL", "S013019-v50")
	assert.NilError(t, err)
	assert.Equal(t, b.Timestamp, uint64(120))
	assert.Equal(t, len(b.Asks), 1)
	assert.Equal(t, b.Asks[0].Price, itch.MustPrice("20.00"))

	// already stored books are left alone
	n, err = hydrate(ckpts, st, zap.NewNop())
	assert.NilError(t, err)
	assert.Equal(t, n, 0)
}

func TestHydrateSkipsFailedReplays(t *testing.T) {
	dir := t.TempDir()
	ckpts := filepath.Join(dir, "ckpt")

	e := orderbook.NewEngine([]string{"AAPL"}, 3)
	_, err := e.Apply(&itch.OrderMessage{
		Header: itch.Header{Type: 'A', Timestamp: 5}, Action: itch.ActionAdd, OrderID: 1,
		Ticker: "AAPL", Side: itch.Buy, Shares: 10, Price: itch.MustPrice("19.00"), HasPrice: true,
	})
	assert.NilError(t, err)
	w := &snapshot.Writer{Dir: ckpts}
	_, err = w.Write("S013119-v50", snapshot.Meta{RunID: "r2", Version: "5.0", Processed: 1, Outcome: "failed", LastTimestamp: 5}, e)
	assert.NilError(t, err)

	st, err := store.Open(filepath.Join(dir, "store"))
	assert.NilError(t, err)
	defer st.Close()

	n, err := hydrate(ckpts, st, zap.NewNop())
	assert.NilError(t, err)
	assert.Equal(t, n, 0)
	_, err = st.Book("AAPL", "S013119-v50")
	assert.Assert(t, errors.Is(err, store.ErrNotFound), "%v", err)
}
