// Package wsfeed consumes order events from the host platform's WebSocket feed.
//
// The client reconnects on a fixed schedule (ahead of server-side idle
// disconnects), retries failed connections with exponential backoff and
// drops events whose id was already seen.
//
// Example usage:
//
//	client := wsfeed.NewClient("wss://shop.example.com/events", wsfeed.WithLogger(logger))
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	for ev := range client.Events() {
//	    coordinator.Dispatch(ctx, ev.OrderID)
//	}
package wsfeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/gorilla/websocket"

	"github.com/otiai10/orderhook/internal/source"
)

// Origin tags events produced by this client
const Origin = "websocket"

const (
	// defaultReconnectInterval is how often the connection is recycled
	defaultReconnectInterval = 9 * time.Minute

	// maxRetries is maximum number of connection retry attempts
	maxRetries = 10

	// initialRetryDelay is the starting delay for exponential backoff
	initialRetryDelay = 1 * time.Second

	// maxRetryDelay is the maximum delay between retries
	maxRetryDelay = 60 * time.Second
)

var errClosed = errors.New("client closed")

// Client is a WebSocket client for the host event feed
type Client struct {
	endpoint          string
	header            http.Header
	dialer            *websocket.Dialer
	reconnectInterval time.Duration
	retryDelay        time.Duration
	logger            glog.Logger
	types             []string

	stream *source.Stream

	mu        sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
}

var _ source.Source = (*Client)(nil)

type Option func(*Client)

func WithLogger(logger glog.Logger) Option {
	return func(c *Client) {
		c.logger = glog.Ensure(logger)
	}
}

// WithTypes only forwards events of the given types
func WithTypes(types ...string) Option {
	return func(c *Client) {
		c.types = types
	}
}

// WithHeader adds headers (e.g. Authorization) to the handshake
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		c.header = h
	}
}

func WithReconnectInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectInterval = d
		}
	}
}

func withRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// NewClient creates a new feed client
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:          endpoint,
		dialer:            websocket.DefaultDialer,
		reconnectInterval: defaultReconnectInterval,
		retryDelay:        initialRetryDelay,
		logger:            glog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stream = source.NewStream(Origin, c.logger, c.types, 100)
	return c
}

// Connect dials the feed and starts the read loop and reconnect scheduler
func (c *Client) Connect(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		c.logger.Error("Failed to establish initial connection", "endpoint", c.endpoint, "error", err)
		return err
	}

	go c.readLoop(ctx)
	go c.scheduleReconnect(ctx)

	return nil
}

// Events returns the channel for receiving events
func (c *Client) Events() <-chan source.Event {
	return c.stream.Events()
}

// Close closes the connection and stops all loops
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.stream.Stop()
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			err = c.conn.Close()
			c.conn = nil
		}
	})
	return err
}

func (c *Client) closed() bool {
	select {
	case <-c.stream.Done():
		return true
	default:
		return false
	}
}

// connect establishes the WebSocket connection with retry
func (c *Client) connect(ctx context.Context) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.closed() {
			return errClosed
		}

		conn, _, err := c.dialer.DialContext(ctx, c.endpoint, c.header)
		if err == nil {
			c.mu.Lock()
			if c.closed() {
				c.mu.Unlock()
				conn.Close()
				return errClosed
			}
			c.conn = conn
			c.mu.Unlock()
			c.logger.Info("Connected to event feed", "endpoint", c.endpoint)
			return nil
		}

		lastErr = err
		c.logger.Warn("Connection attempt failed", "attempt", attempt+1, "max", maxRetries, "error", err)

		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.stream.Done():
				return errClosed
			case <-time.After(delay):
				delay *= 2
				if delay > maxRetryDelay {
					delay = maxRetryDelay
				}
			}
		}
	}

	return fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, lastErr)
}

// readLoop reads messages until the context is cancelled or the client is closed
func (c *Client) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil || c.closed() {
			c.logger.Debug("Read loop stopped", "endpoint", c.endpoint)
			return
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			if err := c.connect(ctx); err != nil && !errors.Is(err, errClosed) {
				c.logger.Error("Reconnection failed", "error", err)
				c.sleep(ctx, time.Second)
			}
			continue
		}

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if c.closed() {
				continue
			}
			c.logger.Warn("Read error, reconnecting", "error", err)
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			conn.Close()
			continue
		}

		if messageType != websocket.TextMessage {
			continue
		}
		c.stream.Accept(data, "", nil, nil)
	}
}

// scheduleReconnect recycles the connection every reconnectInterval.
// Closing the socket makes the read loop reconnect.
func (c *Client) scheduleReconnect(ctx context.Context) {
	ticker := time.NewTicker(c.reconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.stream.Done():
			return
		case <-ticker.C:
			c.logger.Info("Scheduled reconnection", "interval", c.reconnectInterval)
			c.mu.Lock()
			if c.conn != nil {
				c.conn.Close()
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-c.stream.Done():
	case <-time.After(d):
	}
}
