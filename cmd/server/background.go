package main

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// jobs runs background loops that use resources owned by main. Wait must
// return before those resources are closed.
type jobs struct {
	wg     sync.WaitGroup
	logger *zap.Logger
}

func (j *jobs) Go(ctx context.Context, name string, fn func(context.Context) error) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		if err := fn(ctx); err != nil {
			j.logger.Error("server: background job exited", zap.String("job", name), zap.Error(err))
		}
	}()
}

func (j *jobs) Wait() { j.wg.Wait() }
