// Package store keeps the results of replays in pebble: the final book of
// every tracked ticker per job and the terminal status of every replayed
// input, keyed by its fingerprint.
package store

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"tvitch/domain/record"
	"tvitch/infra/wire"
	"tvitch/service"
)

var ErrNotFound = errors.New("store: not found")

const (
	bookPrefix   = "book/"
	statusPrefix = "status/"
)

type Store struct {
	db  *pebble.DB
	ser wire.Proto
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "store: open %s", dir)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// -------------------- Books --------------------

// BookEntry is the stored final book of one ticker for one job.
type BookEntry struct {
	Job  string
	Book *record.BookRecord
}

func bookKey(ticker, job string) []byte {
	return []byte(bookPrefix + ticker + "/" + job)
}

func (s *Store) PutBook(job string, r *record.BookRecord) error {
	b, err := s.ser.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Set(bookKey(r.Ticker, job), b, pebble.Sync)
}

func (s *Store) Book(ticker, job string) (*record.BookRecord, error) {
	val, closer, err := s.db.Get(bookKey(ticker, job))
	if err == pebble.ErrNotFound {
		return nil, errors.Wrapf(ErrNotFound, "book %s/%s", ticker, job)
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: get book")
	}
	defer closer.Close()
	return s.decodeBook(val)
}

// Books returns the stored books of ticker ordered by job name.
func (s *Store) Books(ticker string) ([]BookEntry, error) {
	prefix := bookPrefix + ticker + "/"
	var out []BookEntry
	err := s.scan(prefix, func(key, val []byte) error {
		r, err := s.decodeBook(val)
		if err != nil {
			return err
		}
		out = append(out, BookEntry{Job: string(key[len(prefix):]), Book: r})
		return nil
	})
	return out, err
}

// Tickers lists every ticker with at least one stored book.
func (s *Store) Tickers() ([]string, error) {
	seen := map[string]bool{}
	err := s.scan(bookPrefix, func(key, _ []byte) error {
		rest := key[len(bookPrefix):]
		if i := bytes.IndexByte(rest, '/'); i > 0 {
			seen[string(rest[:i])] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) decodeBook(val []byte) (*record.BookRecord, error) {
	r, err := s.ser.Unmarshal(val)
	if err != nil {
		return nil, errors.WithMessage(err, "store: decode book")
	}
	b, ok := r.(*record.BookRecord)
	if !ok {
		return nil, errors.Errorf("store: stored %s where a book was expected", r.RecordType())
	}
	return b, nil
}

// -------------------- Statuses --------------------

// StatusEntry is the persisted form of a replay status.
type StatusEntry struct {
	Fingerprint string           `json:"fingerprint"`
	Job         string           `json:"job"`
	Path        string           `json:"path"`
	Version     string           `json:"version"`
	Date        string           `json:"date,omitempty"`
	RunID       string           `json:"run_id"`
	Outcome     string           `json:"outcome"`
	Processed   uint64           `json:"processed"`
	Reason      string           `json:"reason,omitempty"`
	Counters    service.Counters `json:"counters"`
	Started     time.Time        `json:"started"`
	ElapsedMs   int64            `json:"elapsed_ms"`
}

func (s *Store) SaveStatus(fingerprint string, job service.Job, st service.Status) error {
	e := StatusEntry{
		Fingerprint: fingerprint,
		Job:         job.Name,
		Path:        job.Path,
		Version:     job.Version.String(),
		Date:        job.Date,
		RunID:       st.RunID,
		Outcome:     st.Outcome.String(),
		Processed:   st.Processed,
		Counters:    st.Counters,
		Started:     st.Started.UTC(),
		ElapsedMs:   st.Elapsed.Milliseconds(),
	}
	if st.Reason != nil {
		e.Reason = st.Reason.Error()
	}
	b, err := jsoniter.Marshal(&e)
	if err != nil {
		return errors.Wrap(err, "store: encode status")
	}
	return s.db.Set([]byte(statusPrefix+fingerprint), b, pebble.Sync)
}

func (s *Store) Status(fingerprint string) (StatusEntry, error) {
	val, closer, err := s.db.Get([]byte(statusPrefix + fingerprint))
	if err == pebble.ErrNotFound {
		return StatusEntry{}, errors.Wrapf(ErrNotFound, "status %s", fingerprint)
	}
	if err != nil {
		return StatusEntry{}, errors.Wrap(err, "store: get status")
	}
	defer closer.Close()

	var e StatusEntry
	if err := jsoniter.Unmarshal(val, &e); err != nil {
		return StatusEntry{}, errors.Wrap(err, "store: decode status")
	}
	return e, nil
}

// Done reports whether the input with this fingerprint already completed.
func (s *Store) Done(fingerprint string) (bool, error) {
	e, err := s.Status(fingerprint)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.Outcome == service.Completed.String(), nil
}

// Statuses returns every stored status, most recent first.
func (s *Store) Statuses() ([]StatusEntry, error) {
	var out []StatusEntry
	err := s.scan(statusPrefix, func(_, val []byte) error {
		var e StatusEntry
		if err := jsoniter.Unmarshal(val, &e); err != nil {
			return errors.Wrap(err, "store: decode status")
		}
		out = append(out, e)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Started.After(out[j].Started) })
	return out, err
}

// -------------------- Sink --------------------

// BookSink stores the final book records of one job. Other records are
// ignored. Writes are batched and committed on Flush.
type BookSink struct {
	store *Store
	job   string
	batch *pebble.Batch
}

func (s *Store) BookSink(job string) *BookSink {
	return &BookSink{store: s, job: job, batch: s.db.NewBatch()}
}

func (b *BookSink) Write(_ context.Context, r record.Record) error {
	br, ok := r.(*record.BookRecord)
	if !ok || !br.Final {
		return nil
	}
	val, err := b.store.ser.Marshal(br)
	if err != nil {
		return err
	}
	return b.batch.Set(bookKey(br.Ticker, b.job), val, nil)
}

func (b *BookSink) Flush(context.Context) error {
	if b.batch.Empty() {
		return nil
	}
	if err := b.batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "store: commit books")
	}
	b.batch.Reset()
	return nil
}

// Close releases the pending batch without committing it.
func (b *BookSink) Close() error {
	return b.batch.Close()
}

// -------------------- Helpers --------------------

func (s *Store) scan(prefix string, fn func(key, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return errors.Wrap(err, "store: iterate")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// upperBound is the smallest key greater than every key with prefix.
func upperBound(prefix string) []byte {
	return []byte(strings.TrimSuffix(prefix, "/") + "0")
}
