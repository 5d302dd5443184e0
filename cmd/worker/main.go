// Command worker runs a filemesh storage worker: it serves chunk
// storage/retrieval over RPC, consumes placement-bound chunks off the
// broker, and beacons its own liveness to the scheduler.
//
// Logging: a base *slog.Logger is created here and passed to every
// component via dependency injection. No global slog configuration.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/kluzzebass/filemesh/internal/broker"
	"github.com/kluzzebass/filemesh/internal/consumer"
	"github.com/kluzzebass/filemesh/internal/heartbeat"
	"github.com/kluzzebass/filemesh/internal/rpcpool"
	"github.com/kluzzebass/filemesh/internal/schedulerrpc"
	"github.com/kluzzebass/filemesh/internal/settings"
	"github.com/kluzzebass/filemesh/internal/storage"
	"github.com/kluzzebass/filemesh/internal/workerrpc"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var jsonLogs bool
	root := &cobra.Command{
		Use:   "worker",
		Short: "Run a filemesh storage worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonLogs {
				logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			return run(ctx, logger)
		},
	}
	root.Flags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON instead of text")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg := settings.LoadWorker()
	logger = logger.With("worker_id", cfg.WorkerID)

	backend, err := storage.NewBackend(ctx, storage.Config{
		Kind:        cfg.StorageBackend,
		Root:        cfg.StorageRoot,
		Bucket:      cfg.StorageBucket,
		AzureURL:    cfg.AzureAccountURL,
		Container:   cfg.AzureContainer,
		Compression: cfg.StorageCompressed,
	})
	if err != nil {
		return fmt.Errorf("create storage backend: %w", err)
	}
	engine := storage.NewEngine(cfg.WorkerID, backend)

	pool := rpcpool.New()
	schedulerClient := schedulerrpc.NewClient(cfg.SchedulerAddress(), pool)

	heartbeatPeriod, err := time.ParseDuration(cfg.HeartbeatPeriod)
	if err != nil {
		return fmt.Errorf("parse heartbeat period: %w", err)
	}
	beacon, err := heartbeat.New(schedulerClient, cfg.WorkerID, cfg.Address(), heartbeatPeriod, logger)
	if err != nil {
		return fmt.Errorf("create heartbeat beacon: %w", err)
	}
	if err := beacon.Start(ctx); err != nil {
		return fmt.Errorf("start heartbeat beacon: %w", err)
	}
	defer beacon.Stop()

	brokerConsumer, err := broker.NewConsumer(cfg.BrokerAddrs(), cfg.BrokerTopic, cfg.ConsumerGroup, logger)
	if err != nil {
		return fmt.Errorf("create broker consumer: %w", err)
	}
	defer brokerConsumer.Close()

	cons := consumer.New(brokerConsumer, schedulerClient, engine, workerrpc.NewClient(pool), cfg.WorkerID, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := cons.Run(ctx); err != nil {
			logger.Error("consumer stopped with error", "error", err)
		}
	}()

	rpcHandler := workerrpc.NewHandler(engine, logger)
	rpcServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           rpcHandler.H2CHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("worker rpc listening", "addr", rpcServer.Addr)
		if err := rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rpc server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("worker shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = rpcServer.Shutdown(shutdownCtx)
	wg.Wait()

	return nil
}
