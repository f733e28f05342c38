package main

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"go.uber.org/zap"
	"gotest.tools/assert"

	"tvitch/infra/outbox"
	"tvitch/jobs/broadcaster"
)

func TestJobsWaitForSlowShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bg := &jobs{logger: zap.NewNop()}

	var finished atomic.Bool
	bg.Go(ctx, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	cancel()
	bg.Wait()
	assert.Assert(t, finished.Load())
}

func TestBroadcasterStopsBeforeOutboxCloses(t *testing.T) {
	box, err := outbox.Open(filepath.Join(t.TempDir(), "outbox"))
	assert.NilError(t, err)

	p := mocks.NewSyncProducer(t, nil)
	bc, err := broadcaster.New(box, p, broadcaster.Config{Topic: "t", Interval: time.Millisecond}, nil)
	assert.NilError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	bg := &jobs{logger: zap.NewNop()}
	bg.Go(ctx, "broadcaster", bc.Run)
	time.Sleep(10 * time.Millisecond)

	cancel()
	bg.Wait()
	assert.NilError(t, bc.Close())
	assert.NilError(t, box.Close())
}
