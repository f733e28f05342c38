package record

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Sink consumes records. Write may buffer; Flush makes everything written
// so far durable or delivered.
type Sink interface {
	Write(ctx context.Context, r Record) error
	Flush(ctx context.Context) error
}

// MultiSink fans every record out to all sinks in order and stops at the
// first failure.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, r Record) error {
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes every sink even if one fails and returns the first error.
func (m MultiSink) Flush(ctx context.Context) error {
	var first error
	for _, s := range m {
		if err := s.Flush(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FilterSink forwards only records of the given types.
type FilterSink struct {
	Next  Sink
	Types map[Type]bool
}

func (f FilterSink) Write(ctx context.Context, r Record) error {
	if !f.Types[r.RecordType()] {
		return nil
	}
	return f.Next.Write(ctx, r)
}

func (f FilterSink) Flush(ctx context.Context) error { return f.Next.Flush(ctx) }

// MemorySink keeps every record in memory. It is safe for concurrent use.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	flushes int
	// Err, when set, is returned from Write once FailAfter records are
	// stored.
	Err       error
	FailAfter int
}

func (s *MemorySink) Write(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil && len(s.records) >= s.FailAfter {
		return errors.WithMessage(s.Err, "memory sink")
	}
	s.records = append(s.records, r)
	return nil
}

func (s *MemorySink) Flush(context.Context) error {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Of returns the records of one type in emission order.
func (s *MemorySink) Of(t Type) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.RecordType() == t {
			out = append(out, r)
		}
	}
	return out
}

func (s *MemorySink) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}
