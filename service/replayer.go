package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tvitch/domain/itch"
	"tvitch/domain/orderbook"
	"tvitch/domain/record"
	"tvitch/infra/memory"
	"tvitch/snapshot"
)

// Observer receives replay events for metrics.
type Observer interface {
	Decoded(tag byte)
	Anomaly(kind string)
	Emitted(t record.Type)
	Finished(outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Decoded(byte)                   {}
func (nopObserver) Anomaly(string)                 {}
func (nopObserver) Emitted(record.Type)            {}
func (nopObserver) Finished(string, time.Duration) {}

const (
	anomalyUnknownType  = "unknown_message_type"
	anomalyDuplicateID  = "duplicate_order_id"
	anomalyUnknownOrder = "unknown_order_reference"
	anomalyClamped      = "clamped_cancel_overflow"
	anomalyDiscarded    = "discarded"
)

type Option func(*Replayer)

func WithLogger(l *zap.Logger) Option {
	return func(r *Replayer) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(r *Replayer) {
		if o != nil {
			r.obs = o
		}
	}
}

// WithOrderPool shares order allocations across replays.
func WithOrderPool(p *memory.Pool[orderbook.Order]) Option {
	return func(r *Replayer) { r.pool = p }
}

// Replayer replays one capture. It is single use and not safe for
// concurrent use; run several Replayers for several files.
type Replayer struct {
	cfg    Config
	sink   record.Sink
	logger *zap.Logger
	obs    Observer
	pool   *memory.Pool[orderbook.Order]

	engine *orderbook.Engine
	// matches maps the match number of every emitted trade to its ticker
	// so that broken trade notices can be attributed.
	matches  map[uint64]string
	counters Counters
	lastTS   uint64
	ran      bool
}

func NewReplayer(cfg Config, sink record.Sink, opts ...Option) (*Replayer, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.New("service: nil sink")
	}

	r := &Replayer{
		cfg:     cfg,
		sink:    sink,
		logger:  zap.NewNop(),
		obs:     nopObserver{},
		matches: make(map[uint64]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.engine = orderbook.NewEngine(cfg.Tickers, cfg.NLevels,
		orderbook.WithLogger(r.logger), orderbook.WithPool(r.pool))
	return r, nil
}

// Engine exposes the books. They remain queryable after a failed run and
// reflect every message applied before the failure.
func (r *Replayer) Engine() *orderbook.Engine { return r.engine }

// Run replays in until it ends or a fatal error occurs. The sink is
// flushed on every exit path.
func (r *Replayer) Run(ctx context.Context, in io.Reader) Status {
	st := Status{
		RunID:   uuid.NewString(),
		Name:    r.cfg.Name,
		Started: time.Now(),
	}
	log := r.logger.With(zap.String("run", st.RunID), zap.String("name", r.cfg.Name))

	if r.ran {
		st.Outcome = Failed
		st.Reason = errors.New("service: replayer already ran")
		return st
	}
	r.ran = true

	log.Info("replay: start",
		zap.Stringer("version", r.cfg.Version),
		zap.Strings("tickers", r.engine.Tickers()),
		zap.Int("levels", r.cfg.NLevels))

	reason := r.loop(ctx, in, &st)
	if reason == nil && r.cfg.EmitFinal {
		reason = r.emitFinal(ctx)
	}
	// Flushing must happen even after cancellation.
	if err := r.sink.Flush(context.WithoutCancel(ctx)); err != nil && reason == nil {
		reason = errors.WithMessage(err, "replay: flush sink")
	}

	st.Counters = r.counters
	st.Elapsed = time.Since(st.Started)
	if reason != nil {
		st.Outcome = Failed
		st.Reason = reason
	} else {
		st.Outcome = Completed
	}
	st.Checkpoint = r.checkpoint(st, log)
	r.obs.Finished(st.Outcome.String(), st.Elapsed)

	fields := []zap.Field{
		zap.Stringer("outcome", st.Outcome),
		zap.Uint64("processed", st.Processed),
		zap.Uint64("emitted", st.Counters.Emitted),
		zap.Uint64("unknown_type", st.Counters.UnknownMessageType),
		zap.Uint64("duplicate_id", st.Counters.DuplicateOrderID),
		zap.Uint64("unknown_order", st.Counters.UnknownOrderReference),
		zap.Uint64("clamped", st.Counters.ClampedCancelOverflow),
		zap.Uint64("discarded", st.Counters.Discarded),
		zap.Duration("elapsed", st.Elapsed),
	}
	if st.Outcome == Failed {
		log.Error("replay: failed", append(fields, zap.Error(st.Reason))...)
	} else {
		log.Info("replay: done", fields...)
	}
	return st
}

func (r *Replayer) loop(ctx context.Context, in io.Reader, st *Status) error {
	stream := itch.NewStream(in, r.cfg.Version)
	for n := 0; ; n++ {
		if n%r.cfg.CheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		m, err := stream.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ute, ok := itch.AsUnknownType(err); ok {
				r.counters.UnknownMessageType++
				r.obs.Anomaly(anomalyUnknownType)
				if ute.Framed {
					r.logger.Debug("replay: skipped unknown message type",
						zap.String("type", string(rune(ute.Tag))), zap.Int64("offset", stream.Offset()))
					continue
				}
			}
			return errors.WithMessagef(err, "replay: at offset %d", stream.Offset())
		}

		st.Processed++
		h := m.Meta()
		r.lastTS = h.Timestamp
		r.obs.Decoded(h.Type)
		if err := r.handle(ctx, m); err != nil {
			return err
		}
	}
}

func (r *Replayer) handle(ctx context.Context, m itch.Message) error {
	switch msg := m.(type) {
	case *itch.OrderMessage:
		return r.order(ctx, msg)
	case *itch.TradeMessage:
		return r.trade(ctx, msg)
	case *itch.SystemMessage:
		return r.system(ctx, msg)
	case *itch.NOIIMessage:
		return r.noii(ctx, msg)
	}
	return nil
}

// ---- message routing ----

func (r *Replayer) order(ctx context.Context, m *itch.OrderMessage) error {
	if m.Action == itch.ActionAdd && !r.engine.Tracks(m.Ticker) {
		r.discard()
		return nil
	}

	res, err := r.engine.Apply(m)
	switch {
	case err == nil:
	case errors.Is(err, orderbook.ErrDuplicateOrderID):
		r.counters.DuplicateOrderID++
		r.obs.Anomaly(anomalyDuplicateID)
		id := m.OrderID
		if m.Action == itch.ActionReplace {
			id = m.NewOrderID
		}
		if live, ok := r.engine.Order(id); ok {
			r.logger.Debug("replay: duplicate order id",
				zap.Uint64("id", id), zap.String("live_ticker", live.Ticker), zap.Uint64("ts", m.Timestamp))
		}
		return nil
	case errors.Is(err, orderbook.ErrUnknownOrder):
		// Also covers every reference to an untracked ticker's orders.
		r.counters.UnknownOrderReference++
		r.obs.Anomaly(anomalyUnknownOrder)
		return nil
	case errors.Is(err, orderbook.ErrUntracked):
		r.discard()
		return nil
	default:
		return errors.WithMessage(err, "replay: apply")
	}

	if res.Book.Crossed() {
		r.logger.Debug("replay: crossed book", zap.String("ticker", res.Book.Ticker), zap.Uint64("ts", m.Timestamp))
	}
	if res.Clamped {
		r.counters.ClampedCancelOverflow++
		r.obs.Anomaly(anomalyClamped)
	}
	if err := r.emit(ctx, record.FromOrder(m, res.Clamped)); err != nil {
		return err
	}
	if res.Trade != nil {
		r.matches[res.Trade.MatchNumber] = res.Trade.Ticker
		if err := r.emit(ctx, record.FromExecution(m, res.Trade, res.Book)); err != nil {
			return err
		}
	}
	return r.emit(ctx, record.FromBook(res.Book, m.Timestamp, false))
}

func (r *Replayer) trade(ctx context.Context, m *itch.TradeMessage) error {
	if m.Broken() {
		ticker, ok := r.matches[m.MatchNumber]
		if !ok {
			r.discard()
			return nil
		}
		delete(r.matches, m.MatchNumber)
		book, _ := r.engine.Book(ticker)
		return r.emit(ctx, record.FromTrade(m, ticker, book))
	}

	book, ok := r.engine.Book(m.Ticker)
	if !ok {
		r.discard()
		return nil
	}
	r.matches[m.MatchNumber] = m.Ticker
	return r.emit(ctx, record.FromTrade(m, m.Ticker, book))
}

// system routes market-wide events unconditionally and trading actions
// only for tracked tickers.
func (r *Replayer) system(ctx context.Context, m *itch.SystemMessage) error {
	if m.Ticker != "" && !r.engine.Tracks(m.Ticker) {
		r.discard()
		return nil
	}
	return r.emit(ctx, record.FromSystem(m))
}

func (r *Replayer) noii(ctx context.Context, m *itch.NOIIMessage) error {
	book, ok := r.engine.Book(m.Ticker)
	if !ok {
		r.discard()
		return nil
	}
	return r.emit(ctx, record.FromNOII(m, book))
}

func (r *Replayer) emitFinal(ctx context.Context) error {
	for _, b := range r.engine.Books() {
		if err := r.emit(ctx, record.FromBook(b, r.lastTS, true)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Replayer) emit(ctx context.Context, rec record.Record) error {
	if err := r.sink.Write(ctx, rec); err != nil {
		return errors.WithMessage(err, "replay: write sink")
	}
	r.counters.Emitted++
	r.obs.Emitted(rec.RecordType())
	return nil
}

func (r *Replayer) discard() {
	r.counters.Discarded++
	r.obs.Anomaly(anomalyDiscarded)
}

func (r *Replayer) checkpoint(st Status, log *zap.Logger) string {
	if r.cfg.CheckpointDir == "" {
		return ""
	}
	w := &snapshot.Writer{Dir: r.cfg.CheckpointDir}
	path, err := w.Write(r.cfg.Name, snapshot.Meta{
		RunID:         st.RunID,
		Version:       r.cfg.Version.String(),
		Processed:     st.Processed,
		Outcome:       st.Outcome.String(),
		LastTimestamp: r.lastTS,
	}, r.engine)
	if err != nil {
		log.Warn("replay: checkpoint failed", zap.Error(err))
		return ""
	}
	log.Debug("replay: checkpoint written", zap.String("path", path), zap.Int("orders", r.engine.Len()))
	return path
}
