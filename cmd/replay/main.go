// Command replay decodes TotalView ITCH captures and writes their message,
// trade and order book records to a CSV database, and optionally to a
// pebble store, an outbox or Kafka.
//
//	replay -version 5.0 -tickers AAPL,MSFT -db ./data S013019-v50.txt.gz S013119-v50.txt.gz
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tvitch/domain/itch"
	"tvitch/infra/csvdb"
	"tvitch/infra/kafka"
	"tvitch/infra/logging"
	"tvitch/infra/metrics"
	"tvitch/infra/outbox"
	"tvitch/infra/store"
	"tvitch/infra/wire"
	"tvitch/service"
)

type options struct {
	version    string
	date       string
	tickers    string
	nlevels    int
	db         string
	build      bool
	teardown   bool
	storeDir   string
	skipDone   bool
	workers    int
	checkpoint string
	outboxDir  string
	format     string
	types      string
	brokers    string
	topic      string
	logLevel   string
	dev        bool
}

func parseFlags(args []string) (options, []string, error) {
	var o options
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.StringVar(&o.version, "version", "5.0", "ITCH version of the inputs (4.1 or 5.0)")
	fs.StringVar(&o.date, "date", "", "date to tag rows with; derived from each file name when empty")
	fs.StringVar(&o.tickers, "tickers", "", "comma separated tickers to track")
	fs.IntVar(&o.nlevels, "nlevels", 5, "order book levels per book record")
	fs.StringVar(&o.db, "db", "./data", "CSV database directory")
	fs.BoolVar(&o.build, "build", false, "scaffold the CSV database if missing")
	fs.BoolVar(&o.teardown, "teardown", false, "delete the CSV database and exit")
	fs.StringVar(&o.storeDir, "store", "", "pebble store for final books and replay statuses")
	fs.BoolVar(&o.skipDone, "skip-done", false, "skip inputs the store has already completed")
	fs.IntVar(&o.workers, "workers", 1, "files replayed in parallel")
	fs.StringVar(&o.checkpoint, "checkpoint", "", "directory for end-of-replay order snapshots")
	fs.StringVar(&o.outboxDir, "outbox", "", "pebble outbox receiving every record")
	fs.StringVar(&o.format, "format", "proto", "record encoding for outbox and Kafka (proto or json)")
	fs.StringVar(&o.types, "outbox-types", "", "record types sent to the outbox and Kafka (book,order,trade,noii,system); all when empty")
	fs.StringVar(&o.brokers, "brokers", "", "comma separated Kafka brokers")
	fs.StringVar(&o.topic, "topic", "itch.records", "Kafka topic")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level")
	fs.BoolVar(&o.dev, "dev", false, "human readable logs")
	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	return o, fs.Args(), nil
}

func main() {
	o, files, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	logger, err := logging.New(o.logLevel, o.dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	if o.teardown {
		if err := csvdb.Teardown(o.db); err != nil {
			logger.Fatal("replay: teardown", zap.Error(err))
		}
		return
	}
	if len(files) == 0 {
		logger.Fatal("replay: no input files")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed, err := run(ctx, o, files, logger)
	if err != nil {
		logger.Fatal("replay: setup", zap.Error(err))
	}
	if failed > 0 {
		logger.Error("replay: some inputs failed", zap.Int("failed", failed))
		os.Exit(1)
	}
}

// run replays files and returns how many did not complete.
func run(ctx context.Context, o options, files []string, logger *zap.Logger) (int, error) {
	version, err := itch.ParseVersion(o.version)
	if err != nil {
		return 0, err
	}
	tickers := splitList(o.tickers)
	if len(tickers) == 0 {
		return 0, errors.New("replay: -tickers is required")
	}
	if o.nlevels <= 0 {
		return 0, errors.Errorf("replay: -nlevels must be positive, got %d", o.nlevels)
	}
	types, err := parseTypes(o.types)
	if err != nil {
		return 0, err
	}

	if o.build {
		if err := csvdb.Build(o.db); err != nil {
			return 0, err
		}
	}
	db, err := csvdb.Open(o.db)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	sinks := &sinkSet{db: db, nlevels: o.nlevels, types: types}
	batchOpts := []service.BatchOption{
		service.WithBatchLogger(logger),
		service.WithObservers(func(v itch.Version) service.Observer { return metrics.NewObserver(v.String()) }),
	}

	if o.storeDir != "" {
		st, err := store.Open(o.storeDir)
		if err != nil {
			return 0, err
		}
		defer st.Close()
		sinks.store = st
		batchOpts = append(batchOpts, service.WithStatusStore(st))
	}
	if o.outboxDir != "" || o.brokers != "" {
		if sinks.ser, err = wire.ByName(o.format); err != nil {
			return 0, err
		}
	}
	if o.outboxDir != "" {
		box, err := outbox.Open(o.outboxDir)
		if err != nil {
			return 0, err
		}
		defer box.Close()
		sinks.box = box
	}
	if o.brokers != "" {
		p := kafka.NewProducer(splitList(o.brokers), o.topic)
		defer p.Close()
		sinks.producer = p
	}

	jobs := make([]service.Job, len(files))
	for i, f := range files {
		name := service.JobName(f)
		date := o.date
		if date == "" {
			date = dateFromName(name)
		}
		jobs[i] = service.Job{Name: name, Path: f, Version: version, Date: date}
	}

	batch := service.NewBatch(service.BatchConfig{
		Workers:  o.workers,
		SkipDone: o.skipDone,
		Replay: service.Config{
			Tickers:       tickers,
			NLevels:       o.nlevels,
			EmitFinal:     sinks.store != nil,
			CheckpointDir: o.checkpoint,
		},
	}, sinks.build, batchOpts...)

	failed := 0
	for _, res := range batch.Run(ctx, jobs) {
		switch {
		case res.Err != nil:
			failed++
			logger.Error("replay: job error", zap.String("job", res.Job.Name), zap.Error(res.Err))
		case res.Skipped:
			logger.Info("replay: skipped", zap.String("job", res.Job.Name))
		case !res.Status.OK():
			failed++
			logger.Error("replay: "+res.Status.String(), zap.String("run_id", res.Status.RunID))
		default:
			logger.Info("replay: "+res.Status.String(),
				zap.String("run_id", res.Status.RunID),
				zap.Any("counters", res.Status.Counters))
		}
	}
	return failed, nil
}
