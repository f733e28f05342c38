package main

import (
	"regexp"
	"strings"

	"tvitch/domain/record"
	"tvitch/infra/csvdb"
	"tvitch/infra/kafka"
	"tvitch/infra/outbox"
	"tvitch/infra/store"
	"tvitch/infra/wire"
	"tvitch/service"
)

// sinkSet builds the sink of every job from the outputs configured on the
// command line.
type sinkSet struct {
	db       *csvdb.DB
	nlevels  int
	store    *store.Store
	box      *outbox.Outbox
	ser      wire.Serializer
	producer *kafka.Producer
	// types, when set, limits the records sent to the outbox and Kafka.
	types map[record.Type]bool
}

func (s *sinkSet) filter(next record.Sink) record.Sink {
	if s.types == nil {
		return next
	}
	return record.FilterSink{Next: next, Types: s.types}
}

func (s *sinkSet) build(job service.Job) (record.Sink, func() error, error) {
	sinks := record.MultiSink{s.db.Sink(job.Date, s.nlevels)}
	var closers []func() error

	if s.store != nil {
		bs := s.store.BookSink(job.Name)
		sinks = append(sinks, bs)
		closers = append(closers, bs.Close)
	}
	if s.box != nil {
		ob := s.box.Sink(s.ser)
		sinks = append(sinks, s.filter(ob))
		closers = append(closers, ob.Close)
	}
	if s.producer != nil {
		sinks = append(sinks, s.filter(kafka.NewSink(s.producer, s.ser, kafka.DefaultBatch)))
	}

	release := func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return sinks, release, nil
}

// parseTypes reads a comma separated list of record type names. An empty
// list selects every type.
func parseTypes(s string) (map[record.Type]bool, error) {
	names := splitList(s)
	if len(names) == 0 {
		return nil, nil
	}
	types := make(map[record.Type]bool, len(names))
	for _, n := range names {
		t, err := record.ParseType(n)
		if err != nil {
			return nil, err
		}
		types[t] = true
	}
	return types, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NASDAQ names captures SMMDDYY, e.g. S013019-v50.
var captureDate = regexp.MustCompile(`(\d{2})(\d{2})(\d{2})`)

// dateFromName returns the capture date in a file name as YYYY-MM-DD, or
// the name itself when it holds none.
func dateFromName(name string) string {
	m := captureDate.FindStringSubmatch(name)
	if m == nil {
		return name
	}
	return "20" + m[3] + "-" + m[1] + "-" + m[2]
}
