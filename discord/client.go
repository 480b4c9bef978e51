package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/marcus-crane/presence-bridge/engine"
)

const (
	ipcSlots         = 10
	firstWSPort      = 6463
	handshakeTimeout = 5 * time.Second
	requestTimeout   = 5 * time.Second
)

var DefaultBackoff = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

var (
	ErrBackoff      = errors.New("discord reconnect backoff active")
	ErrUnavailable  = errors.New("unable to connect to local discord rpc")
	ErrNotConnected = errors.New("discord transport not connected")
)

// RPCError is an error reported by the peer in a response to a command.
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("discord rpc error %d: %s", e.Code, e.Message)
}

// Client keeps at most one connection to a local Discord client. It is not safe
// for concurrent use.
//
// The exported fields default to the real endpoints and clock and only need
// setting in tests.
type Client struct {
	DialIPC       func(ctx context.Context, slot int) (io.ReadWriteCloser, error)
	WebSocketURLs func(clientID string) []string
	Backoff       []time.Duration
	Now           func() time.Time

	clientID    string
	transport   transport
	backoffIdx  int
	nextRetryAt time.Time
}

func NewClient(clientID string) *Client {
	return &Client{
		DialIPC:       dialIPC,
		WebSocketURLs: WebSocketURLs,
		Backoff:       DefaultBackoff,
		Now:           time.Now,
		clientID:      clientID,
	}
}

// WebSocketURLs returns the local RPC endpoints, one per port slot.
func WebSocketURLs(clientID string) []string {
	urls := make([]string, 0, ipcSlots)
	for port := firstWSPort; port < firstWSPort+ipcSlots; port++ {
		urls = append(urls, fmt.Sprintf("ws://127.0.0.1:%d/?v=1&client_id=%s", port, clientID))
	}
	return urls
}

func (c *Client) ClientID() string {
	return c.clientID
}

func (c *Client) Connected() bool {
	return c.transport != nil
}

// UpdateClientID switches to another application. A different id drops the
// current connection and resets backoff so the next call connects right away.
func (c *Client) UpdateClientID(clientID string) {
	if c.clientID == clientID {
		return
	}
	slog.Info("Discord application changed", slog.String("client_id", clientID))
	c.clientID = clientID
	c.dropTransport()
	c.backoffIdx = 0
	c.nextRetryAt = time.Time{}
}

func (c *Client) SetActivity(ctx context.Context, presence engine.Presence) error {
	activity := activityFrom(presence)
	return c.command(ctx, &activity)
}

func (c *Client) ClearActivity(ctx context.Context) error {
	return c.command(ctx, nil)
}

func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	c.transport = nil
	return err
}

type commandArgs struct {
	Pid      int       `json:"pid"`
	Activity *activity `json:"activity"`
}

type command struct {
	Cmd   string      `json:"cmd"`
	Args  commandArgs `json:"args"`
	Nonce string      `json:"nonce"`
}

func (c *Client) command(ctx context.Context, act *activity) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(command{
		Cmd:   "SET_ACTIVITY",
		Args:  commandArgs{Pid: os.Getpid(), Activity: act},
		Nonce: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}

	if err := c.send(ctx, payload); err != nil {
		c.dropTransport()
		c.scheduleBackoff()
		return err
	}
	return nil
}

func (c *Client) send(ctx context.Context, payload []byte) error {
	if c.transport == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	response, err := c.transport.roundTrip(ctx, OpFrame, payload)
	if err != nil {
		return err
	}
	return validateResponse(response)
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if c.transport != nil {
		return nil
	}
	if c.Now().Before(c.nextRetryAt) {
		return ErrBackoff
	}

	handshake, err := json.Marshal(map[string]any{"v": 1, "client_id": c.clientID})
	if err != nil {
		return fmt.Errorf("failed to encode handshake: %w", err)
	}

	if t := c.connectIPC(ctx, handshake); t != nil {
		c.connected(t)
		return nil
	}
	if t := c.connectWebSocket(ctx, handshake); t != nil {
		c.connected(t)
		return nil
	}

	c.scheduleBackoff()
	return ErrUnavailable
}

func (c *Client) connectIPC(ctx context.Context, handshake []byte) transport {
	for slot := 0; slot < ipcSlots; slot++ {
		t, err := c.handshakeIPC(ctx, slot, handshake)
		if err != nil {
			slog.Debug("Discord ipc slot unavailable", slog.Int("slot", slot), slog.String("error", err.Error()))
			continue
		}
		slog.Debug("Connected to discord ipc", slog.Int("slot", slot))
		return t
	}
	return nil
}

func (c *Client) handshakeIPC(ctx context.Context, slot int, handshake []byte) (transport, error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, err := c.DialIPC(ctx, slot)
	if err != nil {
		return nil, err
	}
	t := &ipcTransport{conn: conn}
	if _, err := t.roundTrip(ctx, OpHandshake, handshake); err != nil {
		t.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	return t, nil
}

func (c *Client) connectWebSocket(ctx context.Context, handshake []byte) transport {
	for _, url := range c.WebSocketURLs(c.clientID) {
		t, err := handshakeWebSocket(ctx, url, handshake)
		if err != nil {
			slog.Debug("Discord websocket unavailable", slog.String("url", url), slog.String("error", err.Error()))
			continue
		}
		slog.Debug("Connected to discord websocket", slog.String("url", url))
		return t
	}
	return nil
}

func handshakeWebSocket(ctx context.Context, url string, handshake []byte) (transport, error) {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	t := &wsTransport{conn: conn}
	if _, err := t.roundTrip(ctx, OpHandshake, handshake); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	return t, nil
}

func (c *Client) connected(t transport) {
	slog.Info("Connected to Discord", slog.String("transport", t.kind()))
	c.transport = t
	c.backoffIdx = 0
	c.nextRetryAt = time.Time{}
}

func (c *Client) dropTransport() {
	if c.transport == nil {
		return
	}
	if err := c.transport.Close(); err != nil {
		slog.Debug("Failed to close discord transport", slog.String("error", err.Error()))
	}
	c.transport = nil
}

// scheduleBackoff blocks reconnects for the current step and moves to the next
// one, stopping at the last.
func (c *Client) scheduleBackoff() time.Duration {
	if len(c.Backoff) == 0 {
		return 0
	}
	last := len(c.Backoff) - 1
	wait := c.Backoff[min(c.backoffIdx, last)]
	c.nextRetryAt = c.Now().Add(wait)
	c.backoffIdx = min(c.backoffIdx+1, last)
	return wait
}

// validateResponse only fails on an explicit error event. Anything that isn't
// JSON is accepted as-is.
func validateResponse(raw []byte) error {
	var response map[string]any
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil
	}
	evt, _ := response["evt"].(string)
	if !strings.EqualFold(evt, "ERROR") {
		return nil
	}

	rpcErr := &RPCError{Message: "unknown discord rpc error"}
	if data, ok := response["data"].(map[string]any); ok {
		if code, ok := data["code"].(float64); ok {
			rpcErr.Code = int64(code)
		}
		if msg, ok := data["message"].(string); ok {
			rpcErr.Message = msg
		}
	}
	return rpcErr
}
