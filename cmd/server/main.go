package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/framechat/internal/config"
	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/internal/supervisor"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
		Output: os.Stderr,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("server stopped with error")
	}
	logging.Info().Msg("server stopped")
}

func run(cfg *config.Config) error {
	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	for _, svc := range a.core {
		tree.AddCoreService(svc)
	}
	for _, svc := range a.network {
		tree.AddNetworkService(svc)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// The tree outlives the signal so sessions can drain before listeners
	// and background workers stop.
	treeCtx, stopTree := context.WithCancel(context.Background())
	defer stopTree()

	g, gctx := errgroup.WithContext(treeCtx)
	g.Go(func() error {
		return tree.Serve(gctx)
	})

	logging.Info().
		Str("addr", cfg.Server.Addr).
		Str("tcp_addr", cfg.Server.TCPAddr).
		Str("presence_policy", cfg.Presence.Policy).
		Str("room_store", cfg.Rooms.Store).
		Bool("cluster", cfg.Cluster.Enabled).
		Msg("server starting")

	select {
	case <-sigCtx.Done():
		logging.Info().Msg("shutdown signal received")
	case <-gctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	if err := a.hub.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("sessions did not drain before the deadline")
	}
	cancel()

	stopTree()
	err = g.Wait()
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop in time")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
