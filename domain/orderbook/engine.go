package orderbook

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tvitch/domain/itch"
	"tvitch/infra/memory"
)

// DefaultLevels is the depth kept in book records when none is configured.
const DefaultLevels = 5

// Engine owns the books of a fixed ticker set and the order index shared
// by all of them. Order reference numbers are unique across securities
// for a trading day, and only adds carry a ticker, so one index serves
// every book.
//
// Engine is not safe for concurrent use.
type Engine struct {
	nlevels int
	tickers []string
	books   map[string]*Book
	orders  map[uint64]*Order
	pool    *memory.Pool[Order]
	logger  *zap.Logger
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPool shares an order pool between engines, for instance across
// the files of one batch.
func WithPool(p *memory.Pool[Order]) Option {
	return func(e *Engine) {
		if p != nil {
			e.pool = p
		}
	}
}

func NewOrderPool() *memory.Pool[Order] {
	return memory.NewPool(func() *Order { return &Order{} }, resetOrder)
}

// NewEngine tracks the given tickers. Tickers are matched after trimming
// the space padding of the wire format.
func NewEngine(tickers []string, nlevels int, opts ...Option) *Engine {
	if nlevels <= 0 {
		nlevels = DefaultLevels
	}
	e := &Engine{
		nlevels: nlevels,
		books:   make(map[string]*Book, len(tickers)),
		orders:  make(map[uint64]*Order),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = NewOrderPool()
	}
	for _, t := range tickers {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := e.books[t]; ok {
			continue
		}
		e.books[t] = NewBook(t, nlevels)
		e.tickers = append(e.tickers, t)
	}
	sort.Strings(e.tickers)
	return e
}

func (e *Engine) NLevels() int { return e.nlevels }

func (e *Engine) Tracks(ticker string) bool {
	_, ok := e.books[ticker]
	return ok
}

func (e *Engine) Book(ticker string) (*Book, bool) {
	b, ok := e.books[ticker]
	return b, ok
}

// Books returns the tracked books ordered by ticker.
func (e *Engine) Books() []*Book {
	out := make([]*Book, 0, len(e.tickers))
	for _, t := range e.tickers {
		out = append(out, e.books[t])
	}
	return out
}

func (e *Engine) Tickers() []string {
	return append([]string(nil), e.tickers...)
}

// Len is the number of resting orders across all books.
func (e *Engine) Len() int { return len(e.orders) }

// Order returns a copy of a resting order.
func (e *Engine) Order(id uint64) (Order, bool) {
	o, ok := e.orders[id]
	if !ok {
		return Order{}, false
	}
	return detached(o), true
}

// Walk visits every resting order by ticker, side, price best first and
// queue position. Restoring orders in this sequence rebuilds identical
// books.
func (e *Engine) Walk(fn func(Order) bool) {
	for _, b := range e.Books() {
		for _, side := range []*Ladder{b.Bids, b.Asks} {
			stop := false
			side.Walk(func(pl *PriceLevel) bool {
				for o := pl.Head(); o != nil; o = o.Next() {
					if !fn(detached(o)) {
						stop = true
						return false
					}
				}
				return true
			})
			if stop {
				return
			}
		}
	}
}

// Restore puts a previously walked order back on its book.
func (e *Engine) Restore(o Order) error {
	book, ok := e.books[o.Ticker]
	if !ok {
		return errors.Wrapf(ErrUntracked, "ticker %q", o.Ticker)
	}
	if _, dup := e.orders[o.ID]; dup {
		return errors.Wrapf(ErrDuplicateOrderID, "order %d", o.ID)
	}
	e.rest(book, o.ID, o.Side, o.Price, o.Shares, o.Timestamp)
	return nil
}

// Trade is the execution of a resting order.
type Trade struct {
	Ticker      string
	Side        itch.Side
	Price       itch.Price
	Shares      uint64
	OrderID     uint64
	MatchNumber uint64
	Printable   bool
}

// Result describes the effect of one applied order message.
type Result struct {
	Book *Book
	// Clamped is set when a cancel or execute asked for more shares than
	// were resting; the order was removed.
	Clamped bool
	Trade   *Trade
}

// Apply mutates the books for one order message. On success m is
// completed in place with the ticker and side of the referenced order,
// and with its resting price where the message carries none.
//
// ErrDuplicateOrderID, ErrUnknownOrder and ErrUntracked leave the books
// unchanged and are not fatal to a replay.
func (e *Engine) Apply(m *itch.OrderMessage) (Result, error) {
	switch m.Action {
	case itch.ActionAdd:
		return e.add(m)
	case itch.ActionCancel:
		return e.cancel(m)
	case itch.ActionDelete:
		return e.delete(m)
	case itch.ActionExecute:
		return e.execute(m)
	case itch.ActionReplace:
		return e.replace(m)
	}
	return Result{}, errors.Errorf("orderbook: unsupported action %s", m.Action)
}

// ---- actions ----

func (e *Engine) add(m *itch.OrderMessage) (Result, error) {
	book, ok := e.books[m.Ticker]
	if !ok {
		return Result{}, errors.Wrapf(ErrUntracked, "ticker %q", m.Ticker)
	}
	if _, dup := e.orders[m.OrderID]; dup {
		e.logger.Debug("orderbook: duplicate add dropped", zap.Uint64("order", m.OrderID))
		return Result{Book: book}, errors.Wrapf(ErrDuplicateOrderID, "order %d", m.OrderID)
	}
	e.rest(book, m.OrderID, m.Side, m.Price, m.Shares, m.Timestamp)
	return Result{Book: book}, nil
}

func (e *Engine) cancel(m *itch.OrderMessage) (Result, error) {
	o, book, err := e.lookup(m)
	if err != nil {
		return Result{}, err
	}
	_, clamped := e.take(book, o, m.Shares)
	return Result{Book: book, Clamped: clamped}, nil
}

func (e *Engine) delete(m *itch.OrderMessage) (Result, error) {
	o, book, err := e.lookup(m)
	if err != nil {
		return Result{}, err
	}
	e.take(book, o, o.Shares)
	return Result{Book: book}, nil
}

func (e *Engine) execute(m *itch.OrderMessage) (Result, error) {
	o, book, err := e.lookup(m)
	if err != nil {
		return Result{}, err
	}
	trade := &Trade{
		Ticker:      o.Ticker,
		Side:        o.Side,
		Price:       m.Price,
		OrderID:     o.ID,
		MatchNumber: m.MatchNumber,
		Printable:   m.Printable != 'N',
	}
	applied, clamped := e.take(book, o, m.Shares)
	trade.Shares = applied
	return Result{Book: book, Clamped: clamped, Trade: trade}, nil
}

// replace keeps side and ticker, retires the old id and rests the new id
// at the back of its level, even when the price is unchanged.
func (e *Engine) replace(m *itch.OrderMessage) (Result, error) {
	o, book, err := e.lookup(m)
	if err != nil {
		return Result{}, err
	}
	if _, dup := e.orders[m.NewOrderID]; dup {
		e.logger.Debug("orderbook: replace onto live id dropped",
			zap.Uint64("order", m.OrderID), zap.Uint64("new_order", m.NewOrderID))
		return Result{Book: book}, errors.Wrapf(ErrDuplicateOrderID, "order %d", m.NewOrderID)
	}
	side := o.Side
	e.take(book, o, o.Shares)
	e.rest(book, m.NewOrderID, side, m.Price, m.Shares, m.Timestamp)
	return Result{Book: book}, nil
}

// ---- index ----

// lookup resolves the referenced order and completes m from it.
func (e *Engine) lookup(m *itch.OrderMessage) (*Order, *Book, error) {
	o, ok := e.orders[m.OrderID]
	if !ok {
		return nil, nil, errors.Wrapf(ErrUnknownOrder, "order %d", m.OrderID)
	}
	m.Ticker = o.Ticker
	m.Side = o.Side
	if !m.HasPrice {
		m.Price = o.Price
	}
	return o, e.books[o.Ticker], nil
}

// rest indexes a new order and queues it on its level. An order with no
// shares never rests.
func (e *Engine) rest(book *Book, id uint64, side itch.Side, price itch.Price, shares, ts uint64) {
	if shares == 0 {
		return
	}
	o := e.pool.Get()
	o.ID = id
	o.Ticker = book.Ticker
	o.Side = side
	o.Price = price
	o.Shares = shares
	o.Timestamp = ts
	book.insert(o)
	e.orders[id] = o
}

// take removes up to n shares from o, dropping it once nothing remains.
func (e *Engine) take(book *Book, o *Order, n uint64) (applied uint64, clamped bool) {
	applied = n
	if n > o.Shares {
		applied = o.Shares
		clamped = true
		e.logger.Debug("orderbook: clamped to remaining shares",
			zap.Uint64("order", o.ID), zap.Uint64("requested", n), zap.Uint64("remaining", o.Shares))
	}
	if applied < o.Shares {
		o.level.reduce(o, applied)
		return applied, clamped
	}
	book.remove(o)
	delete(e.orders, o.ID)
	e.pool.Put(o)
	return applied, clamped
}

func detached(o *Order) Order {
	c := *o
	c.level, c.next, c.prev = nil, nil, nil
	return c
}
