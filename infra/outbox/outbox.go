// Package outbox is a durable queue of serialized records awaiting
// delivery to Kafka. Entries move from NEW to SENT to ACKED, or to FAILED
// once retries are exhausted.
package outbox

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"tvitch/domain/record"
	"tvitch/infra/wire"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Entry --------------------

type Entry struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Key         []byte
	Payload     []byte
}

const headerLen = 1 + 4 + 8 + 2

// binary encoding: [state:1][retries:4][lastAttempt:8][keyLen:2][key][payload]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, headerLen+len(e.Key)+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(e.Key)))
	n := copy(buf[headerLen:], e.Key)
	copy(buf[headerLen+n:], e.Payload)
	return buf
}

// decodeEntry copies, since pebble values are only valid until the
// iterator moves.
func decodeEntry(b []byte) (Entry, error) {
	if len(b) < headerLen {
		return Entry{}, errors.New("outbox: short entry")
	}
	kl := int(binary.BigEndian.Uint16(b[13:15]))
	if len(b) < headerLen+kl {
		return Entry{}, errors.New("outbox: short entry key")
	}
	return Entry{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Key:         append([]byte(nil), b[headerLen:headerLen+kl]...),
		Payload:     append([]byte(nil), b[headerLen+kl:]...),
	}, nil
}

// -------------------- Outbox --------------------

type Outbox struct {
	db *pebble.DB
	// seq is the id of the last appended entry. Ids are never reused.
	seq atomic.Uint64
}

// Open opens or creates the outbox in dir and resumes numbering after
// the highest stored entry.
func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "outbox: open %s", dir)
	}
	o := &Outbox{db: db}
	last, err := o.lastSeq()
	if err != nil {
		db.Close()
		return nil, err
	}
	o.seq.Store(last)
	return o, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// LastSeq is the id of the most recently appended entry.
func (o *Outbox) LastSeq() uint64 { return o.seq.Load() }

// Append stores a NEW entry and returns its id.
func (o *Outbox) Append(key, payload []byte) (uint64, error) {
	seq := o.seq.Add(1)
	err := o.db.Set(keyFor(seq), encodeEntry(Entry{State: StateNew, Key: key, Payload: payload}), pebble.Sync)
	if err != nil {
		return 0, errors.Wrap(err, "outbox: append")
	}
	return seq, nil
}

func (o *Outbox) Get(seq uint64) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return Entry{}, errors.Wrapf(err, "outbox: get %d", seq)
	}
	defer closer.Close()
	return decodeEntry(val)
}

// UpdateState records a delivery attempt outcome.
func (o *Outbox) UpdateState(seq uint64, state State, retries uint32) error {
	e, err := o.Get(seq)
	if err != nil {
		return err
	}
	e.State = state
	e.Retries = retries
	e.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq), encodeEntry(e), pebble.Sync)
}

func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

// -------------------- Scan --------------------

// ScanByState visits entries in the given state in id order. limit <= 0
// means no limit.
func (o *Outbox) ScanByState(state State, limit int, fn func(seq uint64, e Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return errors.Wrap(err, "outbox: iterate")
	}
	defer iter.Close()

	visited := 0
	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) == 0 || State(val[0]) != state {
			continue
		}
		e, err := decodeEntry(val)
		if err != nil {
			return err
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(seq, e); err != nil {
			return err
		}
		visited++
		if limit > 0 && visited >= limit {
			break
		}
	}
	return iter.Error()
}

// PurgeAcked deletes every ACKED entry and returns how many were removed.
func (o *Outbox) PurgeAcked() (int, error) {
	b := o.db.NewBatch()
	defer b.Close()

	n := 0
	err := o.ScanByState(StateAcked, 0, func(seq uint64, _ Entry) error {
		n++
		return b.Delete(keyFor(seq), nil)
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, errors.Wrap(err, "outbox: purge")
	}
	return n, nil
}

func (o *Outbox) lastSeq() (uint64, error) {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return 0, errors.Wrap(err, "outbox: iterate")
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// -------------------- Sink --------------------

// DefaultBatch is how many records a Sink stages before committing them.
const DefaultBatch = 4096

// maxBatchBytes bounds the staged batch whatever the record count.
const maxBatchBytes = 64 << 20

// Sink appends serialized records to the outbox. Appends are staged in a
// batch that is committed once it holds limit records or maxBatchBytes,
// and on Flush.
type Sink struct {
	box   *Outbox
	ser   wire.Serializer
	batch *pebble.Batch
	n     int
	limit int
}

func (o *Outbox) Sink(ser wire.Serializer) *Sink {
	return &Sink{box: o, ser: ser, batch: o.db.NewBatch(), limit: DefaultBatch}
}

func (s *Sink) Write(_ context.Context, r record.Record) error {
	payload, err := s.ser.Marshal(r)
	if err != nil {
		return err
	}
	e := Entry{State: StateNew, Key: wire.Key(r), Payload: payload}
	if err := s.batch.Set(keyFor(s.box.seq.Add(1)), encodeEntry(e), nil); err != nil {
		return errors.Wrap(err, "outbox: stage")
	}
	s.n++
	if s.n >= s.limit || s.batch.Len() >= maxBatchBytes {
		return s.commit()
	}
	return nil
}

func (s *Sink) Flush(context.Context) error {
	return s.commit()
}

func (s *Sink) commit() error {
	if s.batch.Empty() {
		return nil
	}
	if err := s.batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "outbox: commit")
	}
	s.batch.Reset()
	s.n = 0
	return nil
}

func (s *Sink) Close() error {
	return s.batch.Close()
}

// -------------------- Helpers --------------------

const keyPrefix = "rec/"

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	seq, err := strconv.ParseUint(string(b[len(keyPrefix):]), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "outbox: bad key %q", b)
	}
	return seq, nil
}
