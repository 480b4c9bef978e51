//go:build !windows

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

func listenForReloadSignal(ctx context.Context, reloads chan<- struct{}) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, unix.SIGHUP)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			slog.Info("Received SIGHUP, reloading config")
			notify(reloads)
		}
	}
}
