package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tvitch/domain/itch"
	"tvitch/domain/orderbook"
	"tvitch/domain/record"
	"tvitch/infra/feed"
	"tvitch/infra/memory"
)

// Job is one capture file to replay.
type Job struct {
	Name    string
	Path    string
	Version itch.Version
	Date    string
}

// JobName derives a job name from a capture path, dropping directory and
// extensions.
func JobName(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// SinkFactory builds the sink of one job. release is called once the
// replay has finished and the sink has been flushed.
type SinkFactory func(job Job) (sink record.Sink, release func() error, err error)

// StatusStore remembers finished replays by input fingerprint.
type StatusStore interface {
	Done(fingerprint string) (bool, error)
	SaveStatus(fingerprint string, job Job, st Status) error
}

type BatchConfig struct {
	// Workers bounds the replays running at once.
	Workers int
	// Replay is the template for every job; Version and Name come from
	// the job.
	Replay Config
	// SkipDone skips jobs whose input already completed once.
	SkipDone bool
}

type JobResult struct {
	Job         Job
	Fingerprint string
	Status      Status
	Skipped     bool
	// Err is set when the job could not be started or recorded. Replay
	// failures are reported in Status.
	Err error
}

type BatchOption func(*Batch)

func WithBatchLogger(l *zap.Logger) BatchOption {
	return func(b *Batch) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithStatusStore(s StatusStore) BatchOption {
	return func(b *Batch) { b.store = s }
}

// WithObservers supplies a metrics observer per ITCH version.
func WithObservers(fn func(itch.Version) Observer) BatchOption {
	return func(b *Batch) { b.observers = fn }
}

// Batch replays independent files in parallel. Each job owns its
// replayer, engine and sink; one failing job never stops the others.
type Batch struct {
	cfg       BatchConfig
	sinks     SinkFactory
	store     StatusStore
	observers func(itch.Version) Observer
	logger    *zap.Logger
	pool      *memory.Pool[orderbook.Order]
}

func NewBatch(cfg BatchConfig, sinks SinkFactory, opts ...BatchOption) *Batch {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	b := &Batch{
		cfg:    cfg,
		sinks:  sinks,
		logger: zap.NewNop(),
		pool:   orderbook.NewOrderPool(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run replays every job and returns the results in job order.
func (b *Batch) Run(ctx context.Context, jobs []Job) []JobResult {
	results := make([]JobResult, len(jobs))
	sem := make(chan struct{}, b.cfg.Workers)
	var wg sync.WaitGroup

	seen := make(map[string]bool, len(jobs))
	for i, job := range jobs {
		if job.Name == "" {
			job.Name = JobName(job.Path)
		}
		// The name keys checkpoints, stored books and CSV rows.
		if seen[job.Name] {
			results[i] = JobResult{Job: job, Err: errors.Errorf("batch: duplicate job name %q", job.Name)}
			b.logger.Error("batch: duplicate job name", zap.String("job", job.Name), zap.String("path", job.Path))
			continue
		}
		seen[job.Name] = true
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, job Job) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = b.run(ctx, job)
		}(i, job)
	}
	wg.Wait()

	gets, allocs := b.pool.Stats()
	b.logger.Info("batch: done",
		zap.Int("jobs", len(jobs)),
		zap.Uint64("orders", gets),
		zap.Uint64("order_allocs", allocs))
	return results
}

func (b *Batch) run(ctx context.Context, job Job) JobResult {
	res := JobResult{Job: job}
	log := b.logger.With(zap.String("job", job.Name), zap.String("path", job.Path))

	if b.store != nil {
		fp, err := feed.Fingerprint(job.Path)
		if err != nil {
			res.Err = err
			log.Error("batch: fingerprint failed", zap.Error(err))
			return res
		}
		res.Fingerprint = fp
		if b.cfg.SkipDone {
			done, err := b.store.Done(fp)
			if err != nil {
				res.Err = errors.WithMessage(err, "batch: status lookup")
				return res
			}
			if done {
				res.Skipped = true
				log.Info("batch: already replayed, skipping", zap.String("fingerprint", fp))
				return res
			}
		}
	}

	in, err := feed.Open(job.Path)
	if err != nil {
		res.Err = err
		log.Error("batch: open failed", zap.Error(err))
		return res
	}
	defer in.Close()

	sink, release, err := b.sinks(job)
	if err != nil {
		res.Err = errors.WithMessage(err, "batch: build sink")
		log.Error("batch: sink failed", zap.Error(err))
		return res
	}

	cfg := b.cfg.Replay
	cfg.Version = job.Version
	cfg.Name = job.Name
	opts := []Option{WithLogger(log), WithOrderPool(b.pool)}
	if b.observers != nil {
		opts = append(opts, WithObserver(b.observers(job.Version)))
	}

	rp, err := NewReplayer(cfg, sink, opts...)
	if err != nil {
		res.Err = err
		if release != nil {
			release()
		}
		return res
	}
	res.Status = rp.Run(ctx, in)

	if release != nil {
		if err := release(); err != nil {
			res.Err = errors.WithMessage(err, "batch: release sink")
			log.Error("batch: release failed", zap.Error(err))
		}
	}
	if b.store != nil {
		if err := b.store.SaveStatus(res.Fingerprint, job, res.Status); err != nil && res.Err == nil {
			res.Err = errors.WithMessage(err, "batch: save status")
		}
	}
	return res
}
