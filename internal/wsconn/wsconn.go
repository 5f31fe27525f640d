// Package wsconn provides a WebSocket client with dial retry and state
// tracking on top of github.com/coder/websocket.
package wsconn

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/dpfaria/triarb/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	DialAttempts   int   // attempts per Connect call
	ReadLimit      int64 // max inbound message size in bytes
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		DialAttempts:   3,
		ReadLimit:      1 << 20,
	}
}

// Client is a single WebSocket connection. It is safe for one reader and
// one writer; Close may be called from any goroutine.
type Client struct {
	config Config

	mu    sync.RWMutex
	conn  *websocket.Conn
	state State
}

// New creates a new WebSocket client.
func New(config Config) *Client {
	return &Client{
		config: config,
		state:  StateDisconnected,
	}
}

// Connect dials the endpoint, retrying with exponential backoff up to
// DialAttempts times.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	backoff := c.config.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < c.config.DialAttempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				c.setState(StateDisconnected)
				return ctx.Err()
			case <-t.C:
			}
			backoff *= 2
			if backoff > c.config.MaxBackoff {
				backoff = c.config.MaxBackoff
			}
		}

		conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if c.config.ReadLimit > 0 {
			conn.SetReadLimit(c.config.ReadLimit)
		}

		c.mu.Lock()
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()
		return nil
	}

	c.setState(StateDisconnected)
	return apperror.New(apperror.CodeStreamConnectionError,
		apperror.WithCause(lastErr),
		apperror.WithContext("dial "+c.config.URL))
}

// Read returns the next message payload. Control frames are handled by
// the underlying library.
func (c *Client) Read(ctx context.Context) ([]byte, error) {
	conn := c.current()
	if conn == nil {
		return nil, apperror.New(apperror.CodeStreamClosed,
			apperror.WithContext("read on closed connection"))
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		code := apperror.CodeStreamConnectionError
		if websocket.CloseStatus(err) != -1 {
			code = apperror.CodeStreamClosed
		}
		return nil, apperror.New(code, apperror.WithCause(err))
	}
	return data, nil
}

// Send writes a text message.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	conn := c.current()
	if conn == nil {
		return apperror.New(apperror.CodeStreamClosed,
			apperror.WithContext("send on closed connection"))
	}
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeStreamConnectionError,
			apperror.WithCause(err))
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Close closes the connection. Pending reads unblock with an error.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "client closing")
}

func (c *Client) current() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}
