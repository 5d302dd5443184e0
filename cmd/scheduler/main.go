// Command scheduler runs the filemesh scheduler: the ingest HTTP
// surface, the placement oracle, and the worker registry. The chunk
// consumer (C5) runs only on workers, per spec — the scheduler never
// places itself as a chunk destination.
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
	"github.com/kluzzebass/filemesh/internal/ingest"
	"github.com/kluzzebass/filemesh/internal/metadata/sqlite"
	"github.com/kluzzebass/filemesh/internal/oracle"
	"github.com/kluzzebass/filemesh/internal/reaper"
	"github.com/kluzzebass/filemesh/internal/registry"
	"github.com/kluzzebass/filemesh/internal/rpcpool"
	"github.com/kluzzebass/filemesh/internal/schedulerrpc"
	"github.com/kluzzebass/filemesh/internal/settings"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var jsonLogs bool
	root := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the filemesh scheduler",
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
	cfg := settings.LoadScheduler()

	gateway, err := sqlite.NewStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer gateway.Close()

	livenessTimeout, err := time.ParseDuration(cfg.LivenessTimeout)
	if err != nil {
		return fmt.Errorf("parse liveness timeout: %w", err)
	}
	reg := registry.New(livenessTimeout)

	o := oracle.New(reg, gateway, nil, logger)

	reaperPeriod, err := time.ParseDuration(cfg.ReaperPeriod)
	if err != nil {
		return fmt.Errorf("parse reaper period: %w", err)
	}
	reap, err := reaper.New(reg, reaperPeriod, nil, logger)
	if err != nil {
		return fmt.Errorf("create reaper: %w", err)
	}
	if err := reap.Start(); err != nil {
		return fmt.Errorf("start reaper: %w", err)
	}
	defer reap.Stop()

	pub, err := broker.NewPublisher(cfg.BrokerAddrs, cfg.BrokerTopic)
	if err != nil {
		return fmt.Errorf("create broker publisher: %w", err)
	}
	defer pub.Close()

	pool := rpcpool.New()

	rpcHandler := schedulerrpc.NewHandler(reg, o, nil, logger)
	rpcServer := &http.Server{
		Addr:              cfg.RPCAddr,
		Handler:           rpcHandler.H2CHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("scheduler rpc listening", "addr", cfg.RPCAddr)
		if err := rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rpc server error", "error", err)
		}
	}()

	ingestHandler := ingest.New(gateway, pub, pool, logger)
	var rlWG sync.WaitGroup
	ingestHandler.StartRateLimiterCleanup(ctx, &rlWG)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           ingestHandler.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("ingest http listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("scheduler shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = rpcServer.Shutdown(shutdownCtx)
	rlWG.Wait()
	wg.Wait()

	return nil
}
