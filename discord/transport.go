package discord

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/coder/websocket"
)

// transport carries one request and waits for exactly one response.
type transport interface {
	roundTrip(ctx context.Context, opcode int32, payload []byte) ([]byte, error)
	Close() error
	kind() string
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

type ipcTransport struct {
	conn io.ReadWriteCloser
}

func (t *ipcTransport) roundTrip(ctx context.Context, opcode int32, payload []byte) ([]byte, error) {
	if d, ok := t.conn.(deadliner); ok {
		// A zero deadline clears whatever the previous request set
		deadline, _ := ctx.Deadline()
		if err := d.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("failed to set ipc deadline: %w", err)
		}
	}
	if err := WriteFrame(t.conn, opcode, payload); err != nil {
		return nil, err
	}
	_, response, err := ReadFrame(t.conn)
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (t *ipcTransport) Close() error {
	return t.conn.Close()
}

func (t *ipcTransport) kind() string {
	return "ipc"
}

// wsTransport sends the same JSON bodies as whole text messages. The opcode
// has no meaning on this transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) roundTrip(ctx context.Context, _ int32, payload []byte) ([]byte, error) {
	if err := t.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return nil, fmt.Errorf("failed sending discord ws message: %w", err)
	}
	_, response, err := t.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("discord ws receive failed: %w", err)
	}
	return response, nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}

func (t *wsTransport) kind() string {
	return "websocket"
}
