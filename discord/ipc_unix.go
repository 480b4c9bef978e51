//go:build !windows

package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"

	"github.com/marcus-crane/presence-bridge/utils"
)

// IPCPaths lists the socket paths probed for one slot, in order.
func IPCPaths(slot int) []string {
	name := fmt.Sprintf("discord-ipc-%d", slot)
	var paths []string
	for _, dir := range []string{utils.GetEnv("TMPDIR", ""), utils.GetEnv("XDG_RUNTIME_DIR", "")} {
		if dir == "" {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	if runtime := utils.GetEnv("XDG_RUNTIME_DIR", ""); runtime != "" {
		// Sandboxed clients put their socket a level deeper
		paths = append(paths,
			filepath.Join(runtime, "app", "com.discordapp.Discord", name),
			filepath.Join(runtime, "snap.discord", name),
		)
	}
	return append(paths, "/tmp/"+name, "/private/tmp/"+name)
}

func dialIPC(ctx context.Context, slot int) (io.ReadWriteCloser, error) {
	var dialer net.Dialer
	var errs []error
	for _, path := range IPCPaths(slot) {
		conn, err := dialer.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("no unix discord ipc socket found for slot %d: %w", slot, errors.Join(errs...))
}
