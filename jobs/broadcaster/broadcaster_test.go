package broadcaster

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/pkg/errors"
	"gotest.tools/assert"

	"tvitch/infra/outbox"
)

func openBox(t *testing.T) *outbox.Outbox {
	t.Helper()
	box, err := outbox.Open(t.TempDir())
	assert.NilError(t, err)
	t.Cleanup(func() { box.Close() })
	return box
}

func count(t *testing.T, box *outbox.Outbox, s outbox.State) int {
	t.Helper()
	n := 0
	assert.NilError(t, box.ScanByState(s, 0, func(uint64, outbox.Entry) error {
		n++
		return nil
	}))
	return n
}

func TestDrainPublishesAndPurges(t *testing.T) {
	box := openBox(t)
	for _, k := range []string{"AAPL", "MSFT", "AAPL"} {
		_, err := box.Append([]byte(k), []byte("payload-"+k))
		assert.NilError(t, err)
	}

	p := mocks.NewSyncProducer(t, nil)
	var keys []string
	check := func(msg *sarama.ProducerMessage) error {
		k, _ := msg.Key.Encode()
		keys = append(keys, string(k))
		if msg.Topic != "itch.records" {
			return errors.Errorf("topic %q", msg.Topic)
		}
		return nil
	}
	for i := 0; i < 3; i++ {
		p.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(check)
	}

	b, err := New(box, p, Config{Topic: "itch.records", ContentType: "application/json"}, nil)
	assert.NilError(t, err)
	defer b.Close()

	n, err := b.Drain(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, n, 3)
	assert.DeepEqual(t, keys, []string{"AAPL", "MSFT", "AAPL"})
	assert.Equal(t, count(t, box, outbox.StateNew), 0)
	assert.Equal(t, count(t, box, outbox.StateAcked), 0)
}

func TestDrainRetriesThenFails(t *testing.T) {
	box := openBox(t)
	seq, err := box.Append([]byte("AAPL"), []byte("x"))
	assert.NilError(t, err)

	p := mocks.NewSyncProducer(t, nil)
	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	b, err := New(box, p, Config{Topic: "t", MaxRetries: 2}, nil)
	assert.NilError(t, err)
	defer b.Close()

	n, err := b.Drain(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, n, 0)
	e, err := box.Get(seq)
	assert.NilError(t, err)
	assert.Equal(t, e.State, outbox.StateNew)
	assert.Equal(t, e.Retries, uint32(1))

	_, err = b.Drain(context.Background())
	assert.NilError(t, err)
	e, err = box.Get(seq)
	assert.NilError(t, err)
	assert.Equal(t, e.State, outbox.StateFailed)

	// parked entries are not picked up again
	n, err = b.Drain(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, n, 0)
}

func TestRecoverRequeuesSent(t *testing.T) {
	box := openBox(t)
	seq, err := box.Append([]byte("AAPL"), []byte("x"))
	assert.NilError(t, err)
	assert.NilError(t, box.UpdateState(seq, outbox.StateSent, 3))

	p := mocks.NewSyncProducer(t, nil)
	b, err := New(box, p, Config{Topic: "t"}, nil)
	assert.NilError(t, err)
	defer b.Close()

	n, err := b.Recover()
	assert.NilError(t, err)
	assert.Equal(t, n, 1)
	e, err := box.Get(seq)
	assert.NilError(t, err)
	assert.Equal(t, e.State, outbox.StateNew)
	assert.Equal(t, e.Retries, uint32(3))
}

func TestNewRequiresTopic(t *testing.T) {
	_, err := New(openBox(t), mocks.NewSyncProducer(t, nil), Config{}, nil)
	assert.ErrorContains(t, err, "no topic")
}
