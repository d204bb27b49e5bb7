package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"

	"github.com/BioHazard786/Warpcast/backend/internal/config"
	"github.com/BioHazard786/Warpcast/backend/internal/server"
	"github.com/BioHazard786/Warpcast/backend/internal/signaling"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration & Logger
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Create the Hub and run its event loop in a separate goroutine
	store := signaling.NewRoomStore()
	presence := signaling.NewPresence()
	hub := signaling.NewHub(store, presence, log)
	go hub.Run(ctx)

	// 4. Register our handlers
	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server.NewRouter(hub, cfg, server.NewStats(store, presence, log), log),
	}

	// 5. Start the server
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting signaling server", "addr", cfg.Addr())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
