package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rohankatakam/pipepilot/internal/confirm"
	"github.com/rohankatakam/pipepilot/internal/directive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestWSClient_TurnsAndConfirmations(t *testing.T) {
	received := make(chan Frame, 1)
	gotAuth := make(chan string, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"turn","turn":{"id":"t1","role":"assistant","content":"hi","actions":[{"type":"reprocess","data":{"sessionId":9007199254740993}}]}}`))

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if f, err := DecodeFrame(data); err == nil {
			received <- f
		}
		// hold the socket open until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewWSClient(DefaultConfig(wsURL(ts), "tok"))
	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	var turn directive.ChatTurn
	select {
	case turn = <-client.Turns():
	case <-time.After(5 * time.Second):
		t.Fatal("no turn received")
	}
	assert.Equal(t, "t1", turn.ID)
	assert.Equal(t, directive.RoleAssistant, turn.Role)
	require.Len(t, turn.LegacyActions, 1)
	assert.Equal(t, json.Number("9007199254740993"), turn.LegacyActions[0].Data["sessionId"])
	assert.Equal(t, "Bearer tok", <-gotAuth)

	err := client.Send(ctx, confirm.OutboundMessage{
		Message:      "Confirmed reprocessing",
		Confirmation: map[string]any{"action_type": "reprocess", "confirmed": true, "sessionId": turn.LegacyActions[0].Data["sessionId"]},
	})
	require.NoError(t, err)

	select {
	case f := <-received:
		assert.Equal(t, FrameConfirmation, f.Type)
		assert.Equal(t, "Confirmed reprocessing", f.Message)
		assert.Equal(t, true, f.Confirmation["confirmed"])
		assert.Equal(t, json.Number("9007199254740993"), f.Confirmation["sessionId"])
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive confirmation")
	}

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	_, open := <-client.Turns()
	assert.False(t, open)
}

func TestWSClient_Reconnects(t *testing.T) {
	var conns atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		msg := `{"type":"turn","turn":{"id":"t` + string(rune('0'+n)) + `","role":"assistant","content":"x"}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		if n == 1 {
			conn.Close()
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	}))
	defer ts.Close()

	cfg := DefaultConfig(wsURL(ts), "")
	cfg.ReconnectInterval = 10 * time.Millisecond
	client := NewWSClient(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx) }()

	var ids []string
	for len(ids) < 2 {
		select {
		case turn := <-client.Turns():
			ids = append(ids, turn.ID)
		case <-time.After(5 * time.Second):
			t.Fatalf("got %v before timeout", ids)
		}
	}
	assert.Equal(t, []string{"t1", "t2"}, ids)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestWSClient_SendWithoutConnection(t *testing.T) {
	client := NewWSClient(DefaultConfig("ws://127.0.0.1:1", ""))

	err := client.Send(context.Background(), confirm.OutboundMessage{Message: "x"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"type":"turn","turn":{"id":"a","role":"user","content":"hello"}}`))
	require.NoError(t, err)
	require.NotNil(t, f.Turn)
	assert.Equal(t, directive.RoleUser, f.Turn.Role)

	_, err = DecodeFrame([]byte(`{`))
	assert.Error(t, err)
}
