// Command server serves replay results: final books and replay statuses
// from the pebble store over gRPC and HTTP. On startup it stores the books
// of any checkpoints not yet in the store, and it can drain a record
// outbox to Kafka while running.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"tvitch/api/grpcserver"
	"tvitch/api/httpserver"
	"tvitch/infra/logging"
	"tvitch/infra/outbox"
	"tvitch/infra/store"
	"tvitch/infra/wire"
	"tvitch/jobs/broadcaster"
)

func main() {
	var (
		storeDir   = flag.String("store", "./store", "pebble store written by replay")
		checkpoint = flag.String("checkpoints", "", "checkpoint directory to hydrate the store from")
		grpcAddr   = flag.String("grpc", ":50051", "gRPC listen address")
		httpAddr   = flag.String("http", ":8080", "HTTP listen address")
		outboxDir  = flag.String("outbox", "", "outbox to drain to Kafka")
		brokers    = flag.String("brokers", "", "comma separated Kafka brokers")
		topic      = flag.String("topic", "itch.records", "Kafka topic")
		format     = flag.String("format", "proto", "encoding of outbox records (proto or json)")
		logLevel   = flag.String("log-level", "info", "log level")
		dev        = flag.Bool("dev", false, "human readable logs")
	)
	flag.Parse()

	logger, err := logging.New(*logLevel, *dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	// ---------------- Store ----------------

	st, err := store.Open(*storeDir)
	if err != nil {
		logger.Fatal("server: open store", zap.Error(err))
	}
	defer st.Close()

	if *checkpoint != "" && exists(*checkpoint) {
		n, err := hydrate(*checkpoint, st, logger)
		if err != nil {
			logger.Fatal("server: hydrate", zap.Error(err))
		}
		logger.Info("server: hydrated store", zap.Int("books", n))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Background Jobs ----------------

	bg := &jobs{logger: logger}

	if *outboxDir != "" && *brokers != "" {
		ser, err := wire.ByName(*format)
		if err != nil {
			logger.Fatal("server: format", zap.Error(err))
		}
		box, err := outbox.Open(*outboxDir)
		if err != nil {
			logger.Fatal("server: open outbox", zap.Error(err))
		}
		defer box.Close()

		producer, err := broadcaster.NewProducer(strings.Split(*brokers, ","))
		if err != nil {
			logger.Fatal("server: kafka", zap.Error(err))
		}
		bc, err := broadcaster.New(box, producer, broadcaster.Config{
			Topic:       *topic,
			ContentType: ser.ContentType(),
		}, logger)
		if err != nil {
			logger.Fatal("server: broadcaster", zap.Error(err))
		}
		defer bc.Close()
		bg.Go(ctx, "broadcaster", bc.Run)
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", *grpcAddr)
	if err != nil {
		logger.Fatal("server: listen", zap.Error(err))
	}
	grpcSrv := grpc.NewServer()
	grpcserver.NewServer(st, logger).Register(grpcSrv)
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("server: gRPC exited", zap.Error(err))
		}
	}()

	// ---------------- HTTP ----------------

	httpSrv := &http.Server{
		Addr:              *httpAddr,
		Handler:           httpserver.NewServer(st, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server: HTTP exited", zap.Error(err))
		}
	}()

	logger.Info("server: running", zap.String("grpc", *grpcAddr), zap.String("http", *httpAddr))
	<-ctx.Done()

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdown)
	grpcSrv.GracefulStop()
	// the deferred closes of the outbox and producer run after this
	bg.Wait()
	logger.Info("server: stopped")
}
