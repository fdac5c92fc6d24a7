package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/MarSonyTM/ft-irc/internal/logging"
	"github.com/MarSonyTM/ft-irc/server"
)

// waitForShutdown blocks until SIGINT or SIGTERM, then requests a graceful
// server shutdown. Run in its own goroutine alongside srv.Start, which
// blocks the main goroutine until shutdown completes.
func waitForShutdown(srv *server.Server, log logging.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received")
	srv.Stop()
}
