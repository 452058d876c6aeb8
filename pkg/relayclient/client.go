// Package relayclient implements the chat-side of the relay protocol:
// connection lifecycle with reconnect and heartbeat, translation request
// dispatch with callback correlation, message timeline sync, and the
// duplicate-send guard.
package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qrchat-dev/qrchat/backend/internal/relay"
	"github.com/qrchat-dev/qrchat/backend/pkg/logger"
)

// Status of the relay connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusFailed       Status = "failed"
)

const (
	heartbeatInterval    = 30 * time.Second
	baseReconnectDelay   = 1000 * time.Millisecond
	maxReconnectDelay    = 30000 * time.Millisecond
	maxReconnectAttempts = 5
	handshakeTimeout     = 30 * time.Second
)

var ErrNotConnected = errors.New("relay not connected")

// wsConn is the slice of *websocket.Conn the client needs; tests substitute
// an in-memory implementation.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// DialFunc opens a websocket connection to the relay endpoint.
type DialFunc func(ctx context.Context, url string) (wsConn, error)

func defaultDial(ctx context.Context, url string) (wsConn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type statusListener struct {
	id int
	fn func(Status)
}

// Client owns one relay connection per session. Establishing a connection
// for a different session tears the old one down first; at most one is live
// at a time.
type Client struct {
	url  string
	dial DialFunc

	// afterFunc schedules reconnect timers; injectable so tests can observe
	// the backoff without waiting it out.
	afterFunc func(d time.Duration, fn func()) *time.Timer

	// heartbeatEvery is the keep-alive send interval; injectable for tests.
	heartbeatEvery time.Duration

	// writeMu serializes data-frame writes. Gorilla allows at most one
	// concurrent writer per connection, and heartbeat and translate frames
	// are written from different goroutines.
	writeMu sync.Mutex

	mu             sync.Mutex
	conn           wsConn
	status         Status
	sessionID      string
	language       string
	attempts       int
	generation     int
	closeRequested bool
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
	listeners      []statusListener
	nextListenerID int
	frameHandler   func(relay.ServerFrame)
}

// NewClient builds a client for the relay endpoint, e.g.
// "ws://localhost:8080/ws/relay".
func NewClient(url string) *Client {
	return &Client{
		url:            url,
		dial:           defaultDial,
		afterFunc:      time.AfterFunc,
		heartbeatEvery: heartbeatInterval,
		status:         StatusDisconnected,
	}
}

// SetFrameHandler registers the consumer of inbound server frames (the
// translation dispatcher). Must be called before Connect.
func (c *Client) SetFrameHandler(fn func(relay.ServerFrame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameHandler = fn
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connected reports whether translate frames can be sent right now.
func (c *Client) Connected() bool {
	return c.Status() == StatusConnected
}

// OnStatusChange registers a listener, invokes it immediately with the
// current status, and returns an unregister function. Listeners fire
// synchronously in registration order on every transition.
func (c *Client) OnStatusChange(fn func(Status)) func() {
	c.mu.Lock()
	id := c.nextListenerID
	c.nextListenerID++
	c.listeners = append(c.listeners, statusListener{id: id, fn: fn})
	current := c.status
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// Connect attaches the client to a session. Connecting to the session it is
// already attached to is a no-op; connecting to a different session closes
// the old connection first. A fresh Connect resets the reconnect counter,
// including after a terminal failed state.
func (c *Client) Connect(sessionID, preferredLanguage string) {
	c.mu.Lock()

	if c.sessionID == sessionID && (c.status == StatusConnected || c.status == StatusConnecting) {
		c.mu.Unlock()
		return
	}

	if c.sessionID != "" && c.sessionID != sessionID {
		c.teardownLocked()
	}

	c.sessionID = sessionID
	c.language = preferredLanguage
	c.closeRequested = false
	c.attempts = 0
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.startConnectLocked()
	c.mu.Unlock()
}

// Close tears the connection down: heartbeat first, then any pending
// reconnect timer, then the socket. No reconnect follows.
func (c *Client) Close() {
	c.mu.Lock()
	c.closeRequested = true
	c.teardownLocked()
	c.sessionID = ""
	c.language = ""
	c.mu.Unlock()
}

// teardownLocked cancels timers, closes the socket and settles on
// disconnected. Bumping the generation makes in-flight dials and read loops
// of the old connection inert.
func (c *Client) teardownLocked() {
	c.generation++
	c.stopHeartbeatLocked()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.setStatusLocked(StatusDisconnected)
}

func (c *Client) startConnectLocked() {
	c.setStatusLocked(StatusConnecting)
	c.generation++
	gen := c.generation
	go c.dialAndRun(gen)
}

func (c *Client) dialAndRun(gen int) {
	conn, err := c.dial(context.Background(), c.url)

	c.mu.Lock()
	if gen != c.generation || c.closeRequested {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		logger.Warnf("[relay-client] dial failed session=%s: %v", c.sessionID, err)
		// 单次拨号失败停在 disconnected，failed 只用于重试耗尽的终态
		c.setStatusLocked(StatusDisconnected)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}

	c.conn = conn
	c.attempts = 0
	c.setStatusLocked(StatusConnected)

	handshake, _ := relay.EncodeClientFrame(relay.ConnectFrame{
		SessionID:    c.sessionID,
		UserLanguage: c.language,
	})
	if err := c.writeFrame(conn, handshake); err != nil {
		logger.Warnf("[relay-client] handshake write failed: %v", err)
	}

	stop := make(chan struct{})
	c.heartbeatStop = stop
	c.mu.Unlock()

	go c.heartbeatLoop(conn, stop)
	go c.readLoop(gen, conn)
}

// scheduleReconnectLocked applies the exponential backoff policy: the
// attempt counter is incremented first, the delay is min(1000*2^attempt,
// 30000) ms, and exceeding 5 attempts is terminal for this lifetime.
func (c *Client) scheduleReconnectLocked() {
	c.attempts++
	if c.attempts > maxReconnectAttempts {
		logger.Warnf("[relay-client] reconnect attempts exhausted session=%s", c.sessionID)
		c.setStatusLocked(StatusFailed)
		return
	}

	delay := backoffDelay(c.attempts)
	gen := c.generation
	logger.Infof("[relay-client] scheduling reconnect attempt=%d delay=%s session=%s", c.attempts, delay, c.sessionID)

	c.reconnectTimer = c.afterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.generation || c.closeRequested || c.sessionID == "" {
			return
		}
		c.reconnectTimer = nil
		c.startConnectLocked()
	})
}

func backoffDelay(attempt int) time.Duration {
	delay := baseReconnectDelay * time.Duration(1<<attempt)
	if delay > maxReconnectDelay || delay <= 0 {
		return maxReconnectDelay
	}
	return delay
}

func (c *Client) readLoop(gen int, conn wsConn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if gen != c.generation || c.closeRequested {
				// Close() already settled the state.
				c.mu.Unlock()
				return
			}
			logger.Warnf("[relay-client] connection lost session=%s: %v", c.sessionID, err)
			c.stopHeartbeatLocked()
			c.conn = nil
			c.setStatusLocked(StatusDisconnected)
			if c.sessionID != "" {
				c.scheduleReconnectLocked()
			}
			c.mu.Unlock()
			return
		}

		var frame relay.ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Warnf("[relay-client] malformed server frame: %v", err)
			continue
		}

		c.handleServerFrame(frame)
	}
}

func (c *Client) handleServerFrame(frame relay.ServerFrame) {
	switch frame.Action {
	case relay.ActionHeartbeat:
		// echo of our keep-alive, nothing to do
	case relay.ActionConnectResult, relay.ActionStatus:
		logger.Debugf("[relay-client] status frame session=%s status=%s", frame.SessionID, frame.Status)
	case relay.ActionTranslateResult:
		c.mu.Lock()
		handler := c.frameHandler
		c.mu.Unlock()
		if handler != nil {
			handler(frame)
		}
	default:
		logger.Warnf("[relay-client] unknown server action %q", frame.Action)
	}
}

// heartbeatLoop sends a heartbeat frame every 30 seconds. A failed send
// only stops the loop; the read loop owns the status transition.
func (c *Client) heartbeatLoop(conn wsConn, stop chan struct{}) {
	ticker := time.NewTicker(c.heartbeatEvery)
	defer ticker.Stop()

	frame, _ := relay.EncodeClientFrame(relay.HeartbeatFrame{})
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.writeFrame(conn, frame); err != nil {
				return
			}
		}
	}
}

func (c *Client) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}

// SendTranslate ships a translate-request frame over the live connection.
func (c *Client) SendTranslate(frame relay.TranslateFrame) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := relay.EncodeClientFrame(frame)
	if err != nil {
		return err
	}
	return c.writeFrame(conn, data)
}

// writeFrame 所有数据帧共用一个写锁，握手、心跳和翻译请求互不交叠
func (c *Client) writeFrame(conn wsConn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// setStatusLocked transitions the status and broadcasts to listeners. The
// broadcast happens outside the lock so listeners may call back into the
// client.
func (c *Client) setStatusLocked(status Status) {
	if c.status == status {
		return
	}
	c.status = status

	listeners := make([]statusListener, len(c.listeners))
	copy(listeners, c.listeners)

	c.mu.Unlock()
	for _, l := range listeners {
		l.fn(status)
	}
	c.mu.Lock()
}
