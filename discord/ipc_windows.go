//go:build windows

package discord

import (
	"context"
	"fmt"
	"io"

	"github.com/Microsoft/go-winio"
)

func IPCPaths(slot int) []string {
	return []string{fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, slot)}
}

// dialIPC opens the pipe with overlapped I/O so that ctx and later deadlines
// bound every read and write.
func dialIPC(ctx context.Context, slot int) (io.ReadWriteCloser, error) {
	conn, err := winio.DialPipeContext(ctx, IPCPaths(slot)[0])
	if err != nil {
		return nil, fmt.Errorf("discord ipc pipe %d unavailable: %w", slot, err)
	}
	return conn, nil
}
