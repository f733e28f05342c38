package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"gotest.tools/assert"

	"tvitch/domain/itch"
	"tvitch/domain/record"
	"tvitch/infra/csvdb"
	"tvitch/infra/outbox"
	"tvitch/infra/store"
	"tvitch/infra/wire"
)

func TestDateFromName(t *testing.T) {
	assert.Equal(t, dateFromName("S013019-v50"), "2019-01-30")
	assert.Equal(t, dateFromName("S022717-v41"), "2017-02-27")
	assert.Equal(t, dateFromName("capture"), "capture")
}

func TestSplitList(t *testing.T) {
	assert.DeepEqual(t, splitList(" AAPL, ,MSFT,"), []string{"AAPL", "MSFT"})
	assert.Assert(t, splitList("") == nil)
}

func TestParseFlags(t *testing.T) {
	o, files, err := parseFlags([]string{"-version", "4.1", "-tickers", "AAPL", "-workers", "4", "a.bin", "b.bin"})
	assert.NilError(t, err)
	assert.Equal(t, o.version, "4.1")
	assert.Equal(t, o.workers, 4)
	assert.Equal(t, o.nlevels, 5)
	assert.DeepEqual(t, files, []string{"a.bin", "b.bin"})
}

func writeCapture(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	w := itch.NewWriter(&buf, itch.V50)
	hdr := itch.Header{Type: 'A', Timestamp: 34_200_000_000_000}
	assert.NilError(t, w.Write(&itch.SystemMessage{Header: itch.Header{Type: 'S', Timestamp: 1}, EventCode: 'O'}))
	assert.NilError(t, w.Write(&itch.OrderMessage{Header: hdr, Action: itch.ActionAdd, OrderID: 1,
		Ticker: "AAPL", Side: itch.Buy, Shares: 100, Price: itch.MustPrice("10.00"), HasPrice: true}))
	assert.NilError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestRunWritesDatabaseAndStore(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "S013019-v50.bin")
	writeCapture(t, in)

	o := options{
		version:  "5.0",
		tickers:  "AAPL",
		nlevels:  2,
		db:       filepath.Join(dir, "db"),
		build:    true,
		storeDir: filepath.Join(dir, "store"),
		workers:  1,
		format:   "proto",
	}
	failed, err := run(context.Background(), o, []string{in}, zap.NewNop())
	assert.NilError(t, err)
	assert.Equal(t, failed, 0)

	_, err = os.Stat(filepath.Join(dir, "db", "books", "aapl.csv"))
	assert.NilError(t, err)
	assert.NilError(t, csvdb.Teardown(filepath.Join(dir, "db")))

	st, err := store.Open(filepath.Join(dir, "store"))
	assert.NilError(t, err)
	defer st.Close()
	b, err := st.Book("AAPL", "S013019-v50")
	assert.NilError(t, err)
	assert.Equal(t, len(b.Bids), 1)
	statuses, err := st.Statuses()
	assert.NilError(t, err)
	assert.Equal(t, len(statuses), 1)
	assert.Equal(t, statuses[0].Date, "2019-01-30")
}

func TestRunRejectsBadLevels(t *testing.T) {
	for _, n := range []int{0, -3} {
		_, err := run(context.Background(), options{version: "5.0", tickers: "AAPL", nlevels: n}, []string{"x"}, zap.NewNop())
		assert.ErrorContains(t, err, "-nlevels")
	}
}

func TestParseTypes(t *testing.T) {
	types, err := parseTypes("book, trade")
	assert.NilError(t, err)
	assert.DeepEqual(t, types, map[record.Type]bool{record.TypeBook: true, record.TypeTrade: true})

	types, err = parseTypes("")
	assert.NilError(t, err)
	assert.Assert(t, types == nil)

	_, err = parseTypes("book,quotes")
	assert.ErrorContains(t, err, "unknown type")
}

func TestRunFiltersOutboxTypes(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "S013019-v50.bin")
	writeCapture(t, in)

	o := options{
		version:   "5.0",
		tickers:   "AAPL",
		nlevels:   2,
		db:        filepath.Join(dir, "db"),
		build:     true,
		workers:   1,
		outboxDir: filepath.Join(dir, "outbox"),
		format:    "json",
		types:     "book",
	}
	failed, err := run(context.Background(), o, []string{in}, zap.NewNop())
	assert.NilError(t, err)
	assert.Equal(t, failed, 0)

	box, err := outbox.Open(o.outboxDir)
	assert.NilError(t, err)
	defer box.Close()
	var got []record.Type
	assert.NilError(t, box.ScanByState(outbox.StateNew, 0, func(_ uint64, e outbox.Entry) error {
		r, err := wire.JSON{}.Unmarshal(e.Payload)
		if err != nil {
			return err
		}
		got = append(got, r.RecordType())
		return nil
	}))
	assert.DeepEqual(t, got, []record.Type{record.TypeBook})
}

func TestRunRequiresTickers(t *testing.T) {
	_, err := run(context.Background(), options{version: "5.0"}, []string{"x"}, zap.NewNop())
	assert.ErrorContains(t, err, "-tickers")
}
