// Command edgegate runs the authentication gatekeeper as a reverse proxy in
// front of an origin, or runs the reference token validator.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("edgegate failed", slog.String("err", err.Error()))
		cancel()
		os.Exit(1)
	}
}
