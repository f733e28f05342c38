package kafka

import (
	"context"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"tvitch/domain/record"
	"tvitch/infra/wire"
)

// DefaultBatch is how many records a Sink buffers before sending.
const DefaultBatch = 500

// Sink publishes records keyed by ticker, so every record of a ticker
// lands on one partition in emission order.
type Sink struct {
	producer *Producer
	ser      wire.Serializer
	batch    int
	pending  []kafka.Message
}

func NewSink(p *Producer, ser wire.Serializer, batch int) *Sink {
	if batch <= 0 {
		batch = DefaultBatch
	}
	return &Sink{producer: p, ser: ser, batch: batch}
}

func (s *Sink) Write(ctx context.Context, r record.Record) error {
	value, err := s.ser.Marshal(r)
	if err != nil {
		return err
	}
	s.pending = append(s.pending, kafka.Message{
		Key:   wire.Key(r),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte(s.ser.ContentType())},
			{Key: "record-type", Value: []byte(r.RecordType().String())},
		},
	})
	if len(s.pending) >= s.batch {
		return s.Flush(ctx)
	}
	return nil
}

func (s *Sink) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.producer.Send(ctx, s.pending...); err != nil {
		return errors.Wrapf(err, "kafka: send %d records", len(s.pending))
	}
	s.pending = s.pending[:0]
	return nil
}
