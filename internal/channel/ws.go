package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rohankatakam/pipepilot/internal/confirm"
	"github.com/rohankatakam/pipepilot/internal/directive"
	perrors "github.com/rohankatakam/pipepilot/internal/errors"
	"golang.org/x/time/rate"
)

// Frame types on the wire
const (
	FrameTurn         = "turn"
	FrameConfirmation = "confirmation"
	FrameMessage      = "message"
)

var (
	ErrNotConnected = errors.New("channel is not connected")
	ErrClosed       = errors.New("channel is closed")
)

// Frame is one JSON message on the socket
type Frame struct {
	Type         string              `json:"type"`
	Turn         *directive.ChatTurn `json:"turn,omitempty"`
	Message      string              `json:"message,omitempty"`
	Confirmation map[string]any      `json:"confirmation,omitempty"`
}

// Config for a WSClient
type Config struct {
	URL   string
	Token string
	// ReconnectInterval is the minimum spacing between dial attempts
	ReconnectInterval time.Duration
	WriteTimeout      time.Duration
	// TurnBuffer is the capacity of the Turns channel
	TurnBuffer int
}

func DefaultConfig(url, token string) Config {
	return Config{
		URL:               url,
		Token:             token,
		ReconnectInterval: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		TurnBuffer:        32,
	}
}

// WSClient is the bidirectional channel to the agent backend. Turns arrive
// on Turns in the order the backend sent them; confirmations go out through
// Send, one frame per call.
type WSClient struct {
	cfg     Config
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	logger  *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	turns     chan directive.ChatTurn
	done      chan struct{}
	closeOnce sync.Once
}

func NewWSClient(cfg Config) *WSClient {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 2 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.TurnBuffer <= 0 {
		cfg.TurnBuffer = 32
	}
	return &WSClient{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		limiter: rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1),
		logger:  slog.Default().With("component", "channel"),
		turns:   make(chan directive.ChatTurn, cfg.TurnBuffer),
		done:    make(chan struct{}),
	}
}

// Turns delivers inbound chat turns. It is closed when Run returns.
func (c *WSClient) Turns() <-chan directive.ChatTurn { return c.turns }

// Connected reports whether a socket is currently open
func (c *WSClient) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Dial opens the socket once, without retrying
func (c *WSClient) Dial(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", fmt.Sprintf("Bearer %s", c.cfg.Token))
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return perrors.NetworkErrorf(err, "failed to connect to %s", c.cfg.URL)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.logger.Info("channel connected", "url", c.cfg.URL)
	return nil
}

// Run reads frames until ctx is cancelled or Close is called, redialing
// when the socket drops. Dial attempts are paced by the reconnect limiter.
func (c *WSClient) Run(ctx context.Context) error {
	defer close(c.turns)

	// unblock a pending read when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		conn := c.current()
		if conn == nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return c.stopReason(ctx)
			}
			if err := c.Dial(ctx); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				c.logger.Warn("channel dial failed", "error", err)
				continue
			}
			conn = c.current()
		}

		err := c.readLoop(ctx, conn)
		c.drop(conn)

		select {
		case <-ctx.Done():
			return c.stopReason(ctx)
		case <-c.done:
			return nil
		default:
		}
		c.logger.Warn("channel dropped, reconnecting", "error", err)
	}
}

func (c *WSClient) stopReason(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	default:
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (c *WSClient) current() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *WSClient) drop(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	_ = conn.Close()
}

func (c *WSClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("skipping malformed frame", "error", err)
			continue
		}

		switch frame.Type {
		case FrameTurn:
			if frame.Turn == nil {
				c.logger.Warn("turn frame without a turn")
				continue
			}
			select {
			case c.turns <- *frame.Turn:
			case <-ctx.Done():
				return ctx.Err()
			case <-c.done:
				return ErrClosed
			}
		default:
			c.logger.Debug("skipping frame", "type", frame.Type)
		}
	}
}

// DecodeFrame parses one inbound frame. Numbers stay json.Number so
// correlators survive the round trip back to the backend.
func DecodeFrame(data []byte) (Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var f Frame
	if err := dec.Decode(&f); err != nil {
		return Frame{}, perrors.ParseError(err, "invalid frame")
	}
	return f, nil
}

// Send writes one frame: a confirmation, or a plain message when msg has no
// confirmation payload. It does not retry.
func (c *WSClient) Send(ctx context.Context, msg confirm.OutboundMessage) error {
	conn := c.current()
	if conn == nil {
		return perrors.ChannelError(ErrNotConnected, "not sent")
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	frame := Frame{Type: FrameConfirmation, Message: msg.Message, Confirmation: msg.Confirmation}
	if msg.Confirmation == nil {
		frame.Type = FrameMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return perrors.ChannelError(err, "not sent")
	}
	if err := conn.WriteJSON(frame); err != nil {
		return perrors.ChannelError(err, "not sent")
	}
	return nil
}

// Close shuts the socket and stops Run
func (c *WSClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	conn := c.current()
	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	return conn.Close()
}
