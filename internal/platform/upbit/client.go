// Package upbit is a thin callback-driven transport for the Upbit websocket
// ticker stream. It owns the connection and keepalive only; reconnect and
// resubscription policy belong to the feed ingestor driving it.
package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/junhyuklee/mocktrade/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed between inbound frames before the read
	// deadline trips. Upbit answers client pings with both a pong and a
	// status frame, so a healthy connection never goes quiet this long.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than
	// pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// TickHandler is called for every decoded ticker frame.
type TickHandler func(domain.Tick)

// ErrorHandler is called when the read loop dies from a transport error.
type ErrorHandler func(error)

// Client is a websocket client for the Upbit public ticker feed.
type Client struct {
	url     string
	timeout time.Duration

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool
	lastRx time.Time

	onTick  TickHandler
	onError ErrorHandler

	// done is closed when the client is shut down for good.
	done chan struct{}
}

// NewClient creates a Client for the given websocket URL. handshakeTimeout
// bounds the dial; zero selects 15 seconds.
func NewClient(url string, handshakeTimeout time.Duration) *Client {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 15 * time.Second
	}
	return &Client{
		url:     url,
		timeout: handshakeTimeout,
		done:    make(chan struct{}),
	}
}

// OnTick registers the handler invoked for every ticker frame. Must be set
// before Dial. The handler runs on the read goroutine and must not block.
func (c *Client) OnTick(h TickHandler) {
	c.onTick = h
}

// OnError registers the handler invoked when the connection dies. Must be set
// before Dial.
func (c *Client) OnError(h ErrorHandler) {
	c.onError = h
}

// Dial opens (or reopens) the websocket connection and starts the read and
// ping loops. Any previous connection is torn down first.
func (c *Client) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("upbit/ws: %w", domain.ErrWSDisconnect)
	}

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("upbit/ws: connect: %w", err)
	}

	c.conn = conn
	c.lastRx = time.Now()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop(conn)
	go c.pingLoop(conn)

	return nil
}

// Subscribe sends the ticker subscription request for the given symbol codes.
func (c *Client) Subscribe(codes []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("upbit/ws: not connected")
	}

	req := subscription{
		ticketBlock{Ticket: uuid.New().String()},
		typeBlock{Type: "ticker", Codes: codes},
		formatBlock{Format: "SIMPLE"},
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("upbit/ws: marshal subscription: %w", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("upbit/ws: send subscription: %w", err)
	}
	return nil
}

// Healthy reports whether the connection is open and has delivered a frame
// within maxAge.
func (c *Client) Healthy(maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.conn == nil {
		return false
	}
	return time.Since(c.lastRx) <= maxAge
}

// Close shuts the client down permanently. Further Dial calls fail.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return c.conn.Close()
	}
	return nil
}

// readLoop reads frames from one connection until it dies. Transport errors
// are reported through the error handler unless the client has been closed or
// the connection was already replaced by a newer Dial.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.mu.RLock()
			closed := c.closed
			current := c.conn == conn
			c.mu.RUnlock()

			if !closed && current && c.onError != nil {
				c.onError(fmt.Errorf("upbit/ws: read: %w", err))
			}
			return
		}

		c.mu.Lock()
		c.lastRx = time.Now()
		c.mu.Unlock()

		c.handleFrame(message)
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame decodes one SIMPLE-format frame and dispatches ticker messages.
// Non-ticker and unparseable frames are dropped.
func (c *Client) handleFrame(raw []byte) {
	var frame tickerFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}
	if frame.Type != "ticker" || frame.Code == "" {
		return
	}

	if c.onTick == nil {
		return
	}

	ts := time.Now()
	if frame.Timestamp > 0 {
		ts = time.UnixMilli(frame.Timestamp)
	}
	c.onTick(domain.Tick{
		Symbol:     frame.Code,
		Price:      frame.TradePrice,
		ObservedAt: ts,
	})
}
