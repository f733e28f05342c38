package csvdb

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"

	"github.com/pkg/errors"

	"tvitch/domain/itch"
	"tvitch/domain/record"
)

// DefaultBufferSize is how many bytes of rows a Recorder holds before it
// writes them to its file.
const DefaultBufferSize = 1 << 16

func encodeRow(row []string) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(row)
	w.Flush()
	return buf.Bytes()
}

// Recorder accumulates complete rows for one table file and appends them
// in one write once its buffer is full or it is flushed.
type Recorder struct {
	t     *table
	buf   bytes.Buffer
	w     *csv.Writer
	limit int
}

func newRecorder(t *table, limit int) *Recorder {
	r := &Recorder{t: t, limit: limit}
	r.w = csv.NewWriter(&r.buf)
	return r
}

func (r *Recorder) Push(row []string) error {
	if err := r.w.Write(row); err != nil {
		return errors.Wrap(err, "csvdb: encode row")
	}
	r.w.Flush()
	if r.buf.Len() >= r.limit {
		return r.Flush()
	}
	return nil
}

func (r *Recorder) Flush() error {
	if r.buf.Len() == 0 {
		return nil
	}
	if err := r.t.append(r.buf.Bytes()); err != nil {
		return errors.Wrap(err, "csvdb: append")
	}
	r.buf.Reset()
	return nil
}

// Sink writes the records of one replay into the database.
type Sink struct {
	db      *DB
	date    string
	nlevels int
	limit   int
	recs    map[string]*Recorder
}

// Sink returns a sink tagging rows with date. nlevels fixes the number of
// level columns of the book table.
func (db *DB) Sink(date string, nlevels int) *Sink {
	return &Sink{db: db, date: date, nlevels: nlevels, limit: DefaultBufferSize, recs: map[string]*Recorder{}}
}

func (s *Sink) recorder(tbl, name string) (*Recorder, error) {
	key := tbl + "/" + name
	if r, ok := s.recs[key]; ok {
		return r, nil
	}
	t, err := s.db.table(tbl, name, s.header(tbl))
	if err != nil {
		return nil, err
	}
	r := newRecorder(t, s.limit)
	s.recs[key] = r
	return r, nil
}

func (s *Sink) Write(_ context.Context, rec record.Record) error {
	var (
		tbl  string
		name = rec.Symbol()
		row  []string
	)
	switch r := rec.(type) {
	case *record.BookRecord:
		tbl, row = "books", s.bookRow(r)
	case *record.OrderRecord:
		tbl, row = "messages", s.orderRow(r)
	case *record.TradeRecord:
		tbl, row = "trades", s.tradeRow(r)
	case *record.NOIIRecord:
		tbl, row = "noii", s.noiiRow(r)
	case *record.SystemRecord:
		tbl, name, row = "system", "system", s.systemRow(r)
	default:
		return errors.Errorf("csvdb: unsupported record %T", rec)
	}
	r, err := s.recorder(tbl, name)
	if err != nil {
		return err
	}
	return r.Push(row)
}

func (s *Sink) Flush(context.Context) error {
	var first error
	for _, r := range s.recs {
		if err := r.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// -------------------- Rows --------------------

func (s *Sink) header(tbl string) []string {
	switch tbl {
	case "books":
		h := []string{"date", "timestamp"}
		for _, side := range []string{"bid", "ask"} {
			for i := 1; i <= s.nlevels; i++ {
				n := strconv.Itoa(i)
				h = append(h, side+"_price_"+n, side+"_shares_"+n)
			}
		}
		return append(h, "final")
	case "messages":
		return []string{"date", "timestamp", "type", "action", "order_id", "new_order_id",
			"side", "price", "shares", "match", "printable", "attribution", "clamped"}
	case "trades":
		return []string{"date", "timestamp", "type", "side", "price", "shares", "order_id",
			"match", "cross_type", "printable", "broken", "bid_price", "bid_shares", "ask_price", "ask_shares"}
	case "noii":
		return []string{"date", "timestamp", "paired", "imbalance", "direction", "far", "near",
			"reference", "cross_type", "variation", "bid_price", "bid_shares", "ask_price", "ask_shares"}
	}
	return []string{"date", "timestamp", "type", "event", "ticker", "reason"}
}

func u(v uint64) string { return strconv.FormatUint(v, 10) }

func b(v bool) string { return strconv.FormatBool(v) }

// c renders an optional single character field.
func c(v byte) string {
	if v == 0 || v == ' ' {
		return ""
	}
	return string(rune(v))
}

func side(v itch.Side) string {
	if v == itch.SideNone {
		return ""
	}
	return c(byte(v))
}

func quote(q record.Quote) []string {
	if q.Shares == 0 {
		return []string{"", ""}
	}
	return []string{q.Price.String(), u(q.Shares)}
}

func (s *Sink) levels(qs []record.Quote) []string {
	out := make([]string, 0, 2*s.nlevels)
	for i := 0; i < s.nlevels; i++ {
		if i < len(qs) {
			out = append(out, quote(qs[i])...)
		} else {
			out = append(out, "", "")
		}
	}
	return out
}

func (s *Sink) bookRow(r *record.BookRecord) []string {
	row := []string{s.date, u(r.Timestamp)}
	row = append(row, s.levels(r.Bids)...)
	row = append(row, s.levels(r.Asks)...)
	return append(row, b(r.Final))
}

func (s *Sink) orderRow(r *record.OrderRecord) []string {
	return []string{s.date, u(r.Timestamp), c(r.Type), r.Action.String(), u(r.OrderID), u(r.NewOrderID),
		side(r.Side), r.Price.String(), u(r.Shares), u(r.MatchNumber), c(r.Printable), r.Attribution, b(r.Clamped)}
}

func (s *Sink) tradeRow(r *record.TradeRecord) []string {
	orderID := ""
	if r.HasOrderID {
		orderID = u(r.OrderID)
	}
	row := []string{s.date, u(r.Timestamp), c(r.Type), side(r.Side), r.Price.String(), u(r.Shares), orderID,
		u(r.MatchNumber), c(r.CrossType), b(r.Printable), b(r.Broken)}
	row = append(row, quote(r.Bid)...)
	return append(row, quote(r.Ask)...)
}

func (s *Sink) noiiRow(r *record.NOIIRecord) []string {
	row := []string{s.date, u(r.Timestamp), u(r.PairedShares), u(r.ImbalanceShares), c(byte(r.Direction)),
		r.FarPrice.String(), r.NearPrice.String(), r.ReferencePrice.String(), c(r.CrossType), c(r.PriceVariation)}
	row = append(row, quote(r.Bid)...)
	return append(row, quote(r.Ask)...)
}

func (s *Sink) systemRow(r *record.SystemRecord) []string {
	return []string{s.date, u(r.Timestamp), c(r.Type), c(r.EventCode), r.Ticker, r.Reason}
}
