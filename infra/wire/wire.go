// Package wire serializes records for the outbox and Kafka. Two formats
// are offered: a protobuf wire encoding written with protowire, and JSON
// via jsoniter.
package wire

import (
	"github.com/pkg/errors"

	"tvitch/domain/record"
)

type Serializer interface {
	Name() string
	ContentType() string
	Marshal(r record.Record) ([]byte, error)
	Unmarshal(b []byte) (record.Record, error)
}

var ErrUnknownRecord = errors.New("wire: unknown record type")

// ByName returns the serializer called name: "proto" or "json".
func ByName(name string) (Serializer, error) {
	switch name {
	case "proto", "protobuf":
		return Proto{}, nil
	case "json":
		return JSON{}, nil
	}
	return nil, errors.Errorf("wire: unknown format %q", name)
}

// Key is the partitioning key of a record: its ticker, or the record type
// for market-wide events.
func Key(r record.Record) []byte {
	if s := r.Symbol(); s != "" {
		return []byte(s)
	}
	return []byte(r.RecordType().String())
}
