// Package transport owns the realtime WebSocket connection: connect with the
// session token, bounded flat-delay reconnection, outbound sends and ordered
// inbound dispatch onto an events.Dispatcher.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-sync/internal/config"
	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/internal/observability"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 3 * time.Second
)

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option customizes a Client.
type Option func(*Client)

func WithDialer(d Dialer) Option { return func(c *Client) { c.dialer = d } }

func WithScheduler(s Scheduler) Option { return func(c *Client) { c.scheduler = s } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// Client is the process-wide realtime connection shared by every view.
type Client struct {
	endpoint         string
	maxAttempts      int
	delay            time.Duration
	handshakeTimeout time.Duration

	tokens    TokenSource
	bus       events.Dispatcher
	dialer    Dialer
	scheduler Scheduler
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time

	mu         sync.Mutex
	state      State
	conn       Conn
	attempts   int
	timer      Timer
	generation uint64
	terminated bool

	writeMu sync.Mutex
}

// NewClient builds an idle client. Nothing is dialed until Connect.
func NewClient(cfg config.RealtimeConfig, tokens TokenSource, bus events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics, opts ...Option) *Client {
	c := &Client{
		endpoint:         cfg.Endpoint,
		maxAttempts:      cfg.MaxReconnectAttempts,
		delay:            cfg.ReconnectDelay(),
		handshakeTimeout: cfg.HandshakeTimeout(),
		tokens:           tokens,
		bus:              bus,
		scheduler:        clockScheduler{},
		logger:           observability.OrNop(logger).Named("transport"),
		metrics:          metrics,
		now:              time.Now,
	}
	if c.maxAttempts < 0 {
		c.maxAttempts = 0
	}
	if c.delay <= 0 {
		c.delay = DefaultReconnectDelay
	}
	if c.bus == nil {
		c.bus = events.NewInMemoryDispatcher(logger, metrics)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = NewWebsocketDialer(c.handshakeTimeout)
	}
	return c
}

// Connect dials the realtime endpoint. It is a no-op while connecting, open or
// closing, after Disconnect, and when no token or endpoint is available.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.terminated || c.state == StateConnecting || c.state == StateOpen || c.state == StateClosing {
		c.mu.Unlock()
		return
	}
	if c.endpoint == "" {
		c.mu.Unlock()
		c.logger.Debug("connect skipped: no endpoint configured")
		return
	}
	c.mu.Unlock()

	token, ok := "", false
	if c.tokens != nil {
		token, ok = c.tokens.Token(ctx)
	}
	if !ok {
		c.logger.Debug("connect skipped: no valid session")
		return
	}
	target, err := connectURL(c.endpoint, token)
	if err != nil {
		c.logger.Warn("connect skipped: bad endpoint", zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.terminated || c.state == StateConnecting || c.state == StateOpen || c.state == StateClosing {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.state = StateConnecting
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.logger.Info("connecting", zap.Int("attempt", c.Attempts()))
	dialCtx := ctx
	if c.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.handshakeTimeout)
		defer cancel()
	}
	conn, err := c.dialer.DialContext(dialCtx, target)

	c.mu.Lock()
	if gen != c.generation || c.terminated {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.state = StateClosed
		c.logger.Warn("connect failed", zap.Error(err))
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}
	c.state = StateOpen
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info("connected")
	go c.readLoop(conn, gen)
}

// Disconnect closes the connection, drops every subscriber and suppresses any
// further reconnection. The client cannot be reused afterwards.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	c.attempts = c.maxAttempts
	c.generation++
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	if conn != nil {
		c.state = StateClosing
	}
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.bus.Clear()

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.logger.Info("disconnected")
}

// Send encodes msg and writes it when the connection is open. When it is not,
// the message is dropped without error; callers check IsConnected first.
func (c *Client) Send(msg any) error {
	c.mu.Lock()
	conn, open := c.conn, c.state == StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		c.logger.Debug("send dropped: not connected")
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// On subscribes handler to name. Subscribing the same handler twice is a no-op.
func (c *Client) On(name events.EventType, handler events.Handler) {
	c.bus.Subscribe(name, handler)
}

// Off removes handler from name.
func (c *Client) Off(name events.EventType, handler events.Handler) {
	c.bus.Unsubscribe(name, handler)
}

// Events exposes the dispatcher inbound frames are published on.
func (c *Client) Events() events.Dispatcher {
	return c.bus
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	return c.State() == StateOpen
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts is the number of reconnects scheduled since the last successful open.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Client) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		c.dispatch(data)
	}
}

// dispatch publishes one frame. Frames are handled one at a time in arrival order.
func (c *Client) dispatch(data []byte) {
	c.metrics.Inc(observability.FramesReceived)
	evt, err := events.ParseFrame(data, c.now())
	if err != nil {
		c.metrics.Inc(observability.FramesDropped)
		c.logger.Debug("dropping malformed frame", zap.Error(err))
		return
	}

	ctx := context.Background()
	if evt.Type != events.EventMessage {
		if err := c.bus.Publish(ctx, evt); err != nil {
			c.logger.Warn("event handlers failed", zap.String("event_type", string(evt.Type)), zap.Error(err))
		}
	}
	catchAll := evt
	catchAll.Type = events.EventMessage
	catchAll.Payload = evt.Frame
	if err := c.bus.Publish(ctx, catchAll); err != nil {
		c.logger.Warn("message handlers failed", zap.Error(err))
	}
}

func (c *Client) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.terminated {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.state = StateClosed
	c.logger.Info("connection closed", zap.Error(cause))
	c.scheduleReconnectLocked()
}

func (c *Client) scheduleReconnectLocked() {
	if c.terminated || c.attempts >= c.maxAttempts {
		c.logger.Warn("reconnect attempts exhausted", zap.Int("attempts", c.attempts))
		return
	}
	c.attempts++
	c.metrics.Inc(observability.ReconnectAttempts)
	c.logger.Info("reconnect scheduled",
		zap.Int("attempt", c.attempts),
		zap.Duration("delay", c.delay))
	c.timer = c.scheduler.AfterFunc(c.delay, c.reconnect)
}

// reconnect runs on the scheduler. A newer connection or a Disconnect in the
// meantime wins over the pending attempt.
func (c *Client) reconnect() {
	c.mu.Lock()
	if c.terminated || c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()
	c.Connect(context.Background())
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func connectURL(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
