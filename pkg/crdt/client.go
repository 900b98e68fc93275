package crdt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/platinummonkey/cristata/pkg/observability"
)

// Config configures the websocket client
type Config struct {
	URL   string
	Token string
	// Encoding is "cbor" (default) or "json".
	Encoding string
	// Timeout bounds one Apply call including reconnects.
	Timeout              time.Duration
	MaxReconnectAttempts int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
}

// DefaultConfig returns the default client configuration
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		Encoding:             "cbor",
		Timeout:              60 * time.Second,
		MaxReconnectAttempts: 5,
		InitialBackoff:       250 * time.Millisecond,
		MaxBackoff:           5 * time.Second,
	}
}

const methodApply = "apply"

type request struct {
	ID     string `json:"id" cbor:"id"`
	Method string `json:"method" cbor:"method"`
	Change
}

type response struct {
	ID    string `json:"id" cbor:"id"`
	OK    bool   `json:"ok" cbor:"ok"`
	Error string `json:"error,omitempty" cbor:"error,omitempty"`

	transportErr error
}

// Client mirrors changes over one shared websocket connection. The
// connection is dialed lazily and re-dialed after failures.
type Client struct {
	config Config
	codec  Codec
	dialer *gorilla.Dialer

	mu     sync.Mutex
	conn   *gorilla.Conn
	closed bool

	pendingMu sync.Mutex
	pending   map[string]chan response
}

// NewClient creates a client. No connection is made until the first Apply.
func NewClient(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("crdt: url is required")
	}
	codec, err := CodecFor(config.Encoding)
	if err != nil {
		return nil, err
	}
	defaults := DefaultConfig(config.URL)
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxReconnectAttempts <= 0 {
		config.MaxReconnectAttempts = defaults.MaxReconnectAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}

	return &Client{
		config: config,
		codec:  codec,
		dialer: &gorilla.Dialer{
			Proxy:             gorilla.DefaultDialer.Proxy,
			HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
			EnableCompression: true,
			Subprotocols:      []string{codec.Name()},
		},
		pending: make(map[string]chan response),
	}, nil
}

// Apply sends a change and waits for the server's acknowledgement
func (c *Client) Apply(ctx context.Context, change Change) Result {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	id := uuid.NewString()
	data, err := c.codec.Marshal(request{ID: id, Method: methodApply, Change: change})
	if err != nil {
		return TransportError(fmt.Errorf("failed to encode change: %w", err))
	}

	ch := make(chan response, 1)
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.send(ctx, id, ch, data); err != nil {
		return c.failure(ctx, err)
	}

	select {
	case <-ctx.Done():
		return c.failure(ctx, ctx.Err())
	case res := <-ch:
		if res.transportErr != nil {
			return TransportError(res.transportErr)
		}
		if !res.OK {
			return TransportError(fmt.Errorf("change rejected: %s", res.Error))
		}
		return OK()
	}
}

func (c *Client) failure(ctx context.Context, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return TimedOut(fmt.Errorf("no acknowledgement within %s: %w", c.config.Timeout, err))
	}
	return TransportError(err)
}

// send writes one frame, reconnecting with exponential backoff up to the
// configured number of attempts. The waiter is registered under the
// connection lock right before each write so a failure of an earlier
// connection is never delivered to it.
func (c *Client) send(ctx context.Context, id string, ch chan response, data []byte) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.config.InitialBackoff
	eb.MaxInterval = c.config.MaxBackoff
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.config.MaxReconnectAttempts)), ctx)

	return backoff.Retry(func() error {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.closed {
			return backoff.Permanent(ErrClosed)
		}
		if c.conn == nil {
			if err := c.dialLocked(ctx); err != nil {
				observability.FromContext(ctx).WithError(err).Warn("crdt dial failed")
				return err
			}
		}
		select {
		case <-ch:
		default:
		}
		c.pendingMu.Lock()
		c.pending[id] = ch
		c.pendingMu.Unlock()

		if deadline, ok := ctx.Deadline(); ok {
			_ = c.conn.SetWriteDeadline(deadline)
		}
		if err := c.conn.WriteMessage(c.codec.MessageType(), data); err != nil {
			c.dropLocked(c.conn, err)
			return err
		}
		return nil
	}, policy)
}

func (c *Client) dialLocked(ctx context.Context) error {
	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}
	conn, res, err := c.dialer.DialContext(ctx, c.config.URL, header)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.config.URL, err)
	}
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	c.conn = conn
	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *gorilla.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.dropLocked(conn, err)
			c.mu.Unlock()
			return
		}

		var res response
		if err := c.codec.Unmarshal(data, &res); err != nil {
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[res.ID]
		c.pendingMu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- res:
		default:
		}
	}
}

// dropLocked discards a broken connection and fails every request waiting
// on it. c.mu must be held.
func (c *Client) dropLocked(conn *gorilla.Conn, cause error) {
	if c.conn != conn {
		return
	}
	c.conn = nil
	conn.Close()

	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for _, ch := range c.pending {
		select {
		case ch <- response{transportErr: fmt.Errorf("connection lost: %w", cause)}:
		default:
		}
	}
}

// Close sends a close frame and stops the client
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}

	conn := c.conn
	c.conn = nil
	_ = conn.WriteControl(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}
