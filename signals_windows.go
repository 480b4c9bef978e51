//go:build windows

package main

import "context"

// Windows has no reload signal, the mtime poller covers it.
func listenForReloadSignal(context.Context, chan<- struct{}) {}
