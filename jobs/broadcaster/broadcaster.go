// Package broadcaster drains the record outbox to Kafka. Entries move
// NEW -> SENT -> ACKED; a failed send puts the entry back to NEW until it
// has used up its retries and is parked as FAILED.
package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tvitch/infra/metrics"
	"tvitch/infra/outbox"
)

const (
	DefaultInterval   = 250 * time.Millisecond
	DefaultBatch      = 512
	DefaultMaxRetries = 5
)

type Config struct {
	Topic       string
	Interval    time.Duration
	Batch       int
	MaxRetries  uint32
	ContentType string
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Batch <= 0 {
		c.Batch = DefaultBatch
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

type Broadcaster struct {
	box      *outbox.Outbox
	producer sarama.SyncProducer
	cfg      Config
	logger   *zap.Logger
}

// NewProducer dials brokers with a producer that waits for every in-sync
// replica.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "broadcaster: dial")
	}
	return p, nil
}

func New(box *outbox.Outbox, producer sarama.SyncProducer, cfg Config, logger *zap.Logger) (*Broadcaster, error) {
	if cfg.Topic == "" {
		return nil, errors.New("broadcaster: no topic")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.setDefaults()
	return &Broadcaster{box: box, producer: producer, cfg: cfg, logger: logger}, nil
}

// Recover returns entries left SENT by an interrupted run to NEW so they
// are published again.
func (b *Broadcaster) Recover() (int, error) {
	var stale []uint64
	err := b.box.ScanByState(outbox.StateSent, 0, func(seq uint64, _ outbox.Entry) error {
		stale = append(stale, seq)
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, seq := range stale {
		e, err := b.box.Get(seq)
		if err != nil {
			return 0, err
		}
		if err := b.box.UpdateState(seq, outbox.StateNew, e.Retries); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// Run publishes pending entries every interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	if n, err := b.Recover(); err != nil {
		return err
	} else if n > 0 {
		b.logger.Info("broadcaster: requeued stale entries", zap.Int("count", n))
	}
	b.logger.Info("broadcaster: started", zap.String("topic", b.cfg.Topic))

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("broadcaster: stopped")
			return nil
		case <-ticker.C:
			if _, err := b.Drain(ctx); err != nil {
				b.logger.Warn("broadcaster: drain", zap.Error(err))
			}
		}
	}
}

type pending struct {
	seq uint64
	e   outbox.Entry
}

// Drain publishes up to one batch of NEW entries and returns how many
// were acknowledged. Send failures are recorded on the entry, not
// returned.
func (b *Broadcaster) Drain(ctx context.Context) (int, error) {
	var batch []pending
	err := b.box.ScanByState(outbox.StateNew, b.cfg.Batch, func(seq uint64, e outbox.Entry) error {
		batch = append(batch, pending{seq: seq, e: e})
		return nil
	})
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, p := range batch {
		if ctx.Err() != nil {
			break
		}
		if err := b.box.UpdateState(p.seq, outbox.StateSent, p.e.Retries); err != nil {
			return acked, err
		}

		if _, _, err := b.producer.SendMessage(b.message(p.e)); err != nil {
			metrics.Published(false)
			retries := p.e.Retries + 1
			state := outbox.StateNew
			if retries >= b.cfg.MaxRetries {
				state = outbox.StateFailed
				b.logger.Error("broadcaster: giving up on entry",
					zap.Uint64("seq", p.seq), zap.Uint32("retries", retries), zap.Error(err))
			}
			if err := b.box.UpdateState(p.seq, state, retries); err != nil {
				return acked, err
			}
			continue
		}

		metrics.Published(true)
		if err := b.box.UpdateState(p.seq, outbox.StateAcked, p.e.Retries); err != nil {
			return acked, err
		}
		acked++
	}

	if acked > 0 {
		if _, err := b.box.PurgeAcked(); err != nil {
			return acked, err
		}
	}
	return acked, nil
}

func (b *Broadcaster) message(e outbox.Entry) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic: b.cfg.Topic,
		Key:   sarama.ByteEncoder(e.Key),
		Value: sarama.ByteEncoder(e.Payload),
	}
	if b.cfg.ContentType != "" {
		msg.Headers = []sarama.RecordHeader{{Key: []byte("content-type"), Value: []byte(b.cfg.ContentType)}}
	}
	return msg
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
