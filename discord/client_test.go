package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-crane/presence-bridge/engine"
)

const readyEvent = `{"cmd":"DISPATCH","evt":"READY","data":{"v":1}}`

type receivedFrame struct {
	opcode  int32
	payload []byte
}

// ipcPeer pretends to be a Discord client on the other end of a net.Pipe.
// respond returns the payload to reply with, or nil to hang up instead.
type ipcPeer struct {
	respond  func(opcode int32, payload []byte) []byte
	received chan receivedFrame
	dials    int
}

func newIPCPeer(respond func(opcode int32, payload []byte) []byte) *ipcPeer {
	return &ipcPeer{respond: respond, received: make(chan receivedFrame, 32)}
}

func (p *ipcPeer) dial(_ context.Context, slot int) (io.ReadWriteCloser, error) {
	p.dials++
	if slot != 0 {
		return nil, errors.New("no socket")
	}
	client, server := net.Pipe()
	go p.serve(server)
	return client, nil
}

func (p *ipcPeer) serve(conn net.Conn) {
	defer conn.Close()
	for {
		opcode, payload, err := ReadFrame(conn)
		if err != nil {
			return
		}
		p.received <- receivedFrame{opcode: opcode, payload: payload}
		response := p.respond(opcode, payload)
		if response == nil {
			return
		}
		if err := WriteFrame(conn, OpFrame, response); err != nil {
			return
		}
	}
}

func (p *ipcPeer) next(t *testing.T) receivedFrame {
	t.Helper()
	select {
	case f := <-p.received:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("peer received nothing")
	}
	return receivedFrame{}
}

func replyWith(command string) func(int32, []byte) []byte {
	return func(opcode int32, _ []byte) []byte {
		if opcode == OpHandshake {
			return []byte(readyEvent)
		}
		return []byte(command)
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestClient(t *testing.T, dial func(context.Context, int) (io.ReadWriteCloser, error), wsURLs ...string) (*Client, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewClient("1234")
	c.DialIPC = dial
	c.WebSocketURLs = func(string) []string { return wsURLs }
	c.Now = clock.Now
	t.Cleanup(func() { c.Close() })
	return c, clock
}

func noIPC(context.Context, int) (io.ReadWriteCloser, error) {
	return nil, errors.New("no socket")
}

func samplePresence() engine.Presence {
	start := int64(1700000000)
	return engine.Presence{
		ActivityType:   2,
		Name:           "Listening",
		Details:        "Artist — Song",
		State:          "on Album",
		StartTimestamp: &start,
		IsPlaying:      true,
		LargeImage:     "app_icon",
		LargeText:      "presence-bridge",
		SmallImage:     "play",
		SmallText:      "Playing",
		Buttons:        []engine.Button{{Label: "Search Spotify", URL: "https://open.spotify.com/search/x"}},
	}
}

func decode(t *testing.T, payload []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	return out
}

func TestClient_SetActivityOverIPC(t *testing.T) {
	t.Parallel()
	peer := newIPCPeer(replyWith(`{"cmd":"SET_ACTIVITY","evt":null}`))
	c, _ := newTestClient(t, peer.dial)

	require.NoError(t, c.SetActivity(context.Background(), samplePresence()))
	assert.True(t, c.Connected())

	handshake := peer.next(t)
	assert.Equal(t, OpHandshake, handshake.opcode)
	assert.Equal(t, map[string]any{"v": float64(1), "client_id": "1234"}, decode(t, handshake.payload))

	frame := peer.next(t)
	assert.Equal(t, OpFrame, frame.opcode)
	cmd := decode(t, frame.payload)
	assert.Equal(t, "SET_ACTIVITY", cmd["cmd"])
	assert.NotEmpty(t, cmd["nonce"])

	args := cmd["args"].(map[string]any)
	assert.Equal(t, float64(os.Getpid()), args["pid"])
	activity := args["activity"].(map[string]any)
	assert.Equal(t, float64(2), activity["type"])
	assert.Equal(t, "Artist — Song", activity["details"])
	assert.Equal(t, "on Album", activity["state"])
	assert.Equal(t, map[string]any{"start": float64(1700000000)}, activity["timestamps"])
	assert.Equal(t, map[string]any{
		"large_image": "app_icon",
		"large_text":  "presence-bridge",
		"small_image": "play",
		"small_text":  "Playing",
	}, activity["assets"])
	assert.Equal(t, []any{map[string]any{"label": "Search Spotify", "url": "https://open.spotify.com/search/x"}}, activity["buttons"])
}

func TestClient_ReusesConnection(t *testing.T) {
	t.Parallel()
	peer := newIPCPeer(replyWith(`{"evt":null}`))
	c, _ := newTestClient(t, peer.dial)

	require.NoError(t, c.SetActivity(context.Background(), samplePresence()))
	require.NoError(t, c.SetActivity(context.Background(), samplePresence()))
	assert.Equal(t, 1, peer.dials)

	assert.Equal(t, OpHandshake, peer.next(t).opcode)
	assert.Equal(t, OpFrame, peer.next(t).opcode)
	assert.Equal(t, OpFrame, peer.next(t).opcode)
}

func TestClient_ClearActivitySendsNull(t *testing.T) {
	t.Parallel()
	peer := newIPCPeer(replyWith(`{"evt":null}`))
	c, _ := newTestClient(t, peer.dial)

	require.NoError(t, c.ClearActivity(context.Background()))
	peer.next(t)
	args := decode(t, peer.next(t).payload)["args"].(map[string]any)
	activity, ok := args["activity"]
	assert.True(t, ok)
	assert.Nil(t, activity)
}

func TestClient_TriesLaterSlots(t *testing.T) {
	t.Parallel()
	peer := newIPCPeer(replyWith(`{"evt":null}`))
	var tried []int
	dial := func(ctx context.Context, slot int) (io.ReadWriteCloser, error) {
		tried = append(tried, slot)
		if slot < 3 {
			return nil, errors.New("no socket")
		}
		return peer.dial(ctx, 0)
	}
	c, _ := newTestClient(t, dial)

	require.NoError(t, c.ClearActivity(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3}, tried)
}

func TestClient_RPCErrorDropsTransport(t *testing.T) {
	t.Parallel()
	peer := newIPCPeer(replyWith(`{"cmd":"SET_ACTIVITY","evt":"ERROR","data":{"code":4000,"message":"child \"activity\" fails"}}`))
	c, _ := newTestClient(t, peer.dial)

	err := c.SetActivity(context.Background(), samplePresence())
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int64(4000), rpcErr.Code)
	assert.Equal(t, `child "activity" fails`, rpcErr.Message)
	assert.Equal(t, `discord rpc error 4000: child "activity" fails`, err.Error())
	assert.False(t, c.Connected())

	assert.ErrorIs(t, c.SetActivity(context.Background(), samplePresence()), ErrBackoff)
	assert.Equal(t, 1, peer.dials)
}

func TestClient_NonJSONResponseIsBenign(t *testing.T) {
	t.Parallel()
	peer := newIPCPeer(replyWith("ok"))
	c, _ := newTestClient(t, peer.dial)

	require.NoError(t, c.SetActivity(context.Background(), samplePresence()))
	assert.True(t, c.Connected())
}

func TestClient_PeerHangupSchedulesBackoff(t *testing.T) {
	t.Parallel()
	peer := newIPCPeer(func(opcode int32, _ []byte) []byte {
		if opcode == OpHandshake {
			return []byte(readyEvent)
		}
		return nil
	})
	c, clock := newTestClient(t, peer.dial)

	require.Error(t, c.SetActivity(context.Background(), samplePresence()))
	assert.False(t, c.Connected())
	assert.Equal(t, clock.now.Add(2*time.Second), c.nextRetryAt)
}

func TestClient_FailedHandshakeTriesNextEndpoint(t *testing.T) {
	t.Parallel()
	silent := newIPCPeer(func(int32, []byte) []byte { return nil })
	c, _ := newTestClient(t, silent.dial)

	assert.ErrorIs(t, c.ClearActivity(context.Background()), ErrUnavailable)
	assert.False(t, c.Connected())
}

func TestClient_BackoffIsMonotonicAndResets(t *testing.T) {
	t.Parallel()
	peer := newIPCPeer(replyWith(`{"evt":null}`))
	reachable := false
	dials := 0
	dial := func(ctx context.Context, slot int) (io.ReadWriteCloser, error) {
		dials++
		if !reachable {
			return nil, errors.New("no socket")
		}
		return peer.dial(ctx, slot)
	}
	c, clock := newTestClient(t, dial)

	var waits []time.Duration
	for range 6 {
		require.ErrorIs(t, c.ClearActivity(context.Background()), ErrUnavailable)
		wait := c.nextRetryAt.Sub(clock.now)
		waits = append(waits, wait)

		// Nothing is attempted until the wait is over
		before := dials
		clock.Advance(wait - time.Millisecond)
		require.ErrorIs(t, c.ClearActivity(context.Background()), ErrBackoff)
		assert.Equal(t, before, dials)
		clock.Advance(time.Millisecond)
	}
	assert.Equal(t, []time.Duration{
		2 * time.Second, 5 * time.Second, 10 * time.Second,
		30 * time.Second, 30 * time.Second, 30 * time.Second,
	}, waits)
	for i := 1; i < len(waits); i++ {
		assert.GreaterOrEqual(t, waits[i], waits[i-1])
	}

	reachable = true
	require.NoError(t, c.ClearActivity(context.Background()))
	assert.Equal(t, 0, c.backoffIdx)
	assert.True(t, c.nextRetryAt.IsZero())

	assert.Equal(t, 2*time.Second, c.scheduleBackoff())
}

func TestClient_UpdateClientIDResets(t *testing.T) {
	t.Parallel()
	peer := newIPCPeer(replyWith(`{"evt":null}`))
	reachable := false
	dial := func(ctx context.Context, slot int) (io.ReadWriteCloser, error) {
		if !reachable {
			return nil, errors.New("no socket")
		}
		return peer.dial(ctx, slot)
	}
	c, _ := newTestClient(t, dial)

	require.ErrorIs(t, c.ClearActivity(context.Background()), ErrUnavailable)
	require.ErrorIs(t, c.ClearActivity(context.Background()), ErrBackoff)

	reachable = true
	c.UpdateClientID("5678")
	assert.Equal(t, "5678", c.ClientID())
	require.NoError(t, c.ClearActivity(context.Background()))
	assert.Equal(t, "5678", decode(t, peer.next(t).payload)["client_id"])

	// The same id keeps the connection
	c.UpdateClientID("5678")
	assert.True(t, c.Connected())

	c.UpdateClientID("9999")
	assert.False(t, c.Connected())
	assert.Equal(t, 0, c.backoffIdx)
}

func wsPeer(t *testing.T, received chan<- string, respond func(msg string) string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.URL.RawQuery
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for {
			_, msg, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			received <- string(msg)
			if err := conn.Write(r.Context(), websocket.MessageText, []byte(respond(string(msg)))); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/?v=1&client_id=1234"
}

func TestClient_FallsBackToWebSocket(t *testing.T) {
	t.Parallel()
	received := make(chan string, 8)
	url := wsPeer(t, received, func(msg string) string {
		if strings.Contains(msg, "SET_ACTIVITY") {
			return `{"evt":null}`
		}
		return readyEvent
	})
	c, _ := newTestClient(t, noIPC, "ws://127.0.0.1:1/?v=1&client_id=1234", url)

	require.NoError(t, c.SetActivity(context.Background(), samplePresence()))
	assert.True(t, c.Connected())
	assert.Equal(t, "websocket", c.transport.kind())

	assert.Equal(t, "v=1&client_id=1234", <-received)
	assert.Equal(t, map[string]any{"v": float64(1), "client_id": "1234"}, decode(t, []byte(<-received)))
	assert.Equal(t, "SET_ACTIVITY", decode(t, []byte(<-received))["cmd"])
}

func TestClient_WebSocketRPCError(t *testing.T) {
	t.Parallel()
	received := make(chan string, 8)
	url := wsPeer(t, received, func(msg string) string {
		if strings.Contains(msg, "SET_ACTIVITY") {
			return `{"evt":"error","data":{"code":4002}}`
		}
		return readyEvent
	})
	c, _ := newTestClient(t, noIPC, url)

	err := c.ClearActivity(context.Background())
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int64(4002), rpcErr.Code)
	assert.Equal(t, "unknown discord rpc error", rpcErr.Message)
	assert.False(t, c.Connected())
}

func TestValidateResponse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "ready", raw: readyEvent},
		{name: "null event", raw: `{"evt":null}`},
		{name: "not json", raw: "\x00garbage"},
		{name: "empty", raw: ""},
		{name: "upper error", raw: `{"evt":"ERROR"}`, wantErr: true},
		{name: "mixed case error", raw: `{"evt":"Error","data":{"code":1}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateResponse([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestActivityFrom_OmitsEmptyParts(t *testing.T) {
	t.Parallel()
	raw, err := json.Marshal(activityFrom(engine.Presence{
		ActivityType: 2,
		Name:         "Listening",
		Details:      "A — B",
		State:        "Paused",
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":2,"name":"Listening","details":"A — B","state":"Paused","timestamps":{}}`, string(raw))
}

func TestWebSocketURLs(t *testing.T) {
	t.Parallel()
	urls := WebSocketURLs("abc")
	require.Len(t, urls, 10)
	assert.Equal(t, "ws://127.0.0.1:6463/?v=1&client_id=abc", urls[0])
	assert.Equal(t, "ws://127.0.0.1:6472/?v=1&client_id=abc", urls[9])
}

func TestClient_SendWithoutTransport(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, noIPC)
	assert.ErrorIs(t, c.send(context.Background(), []byte("{}")), ErrNotConnected)
}
