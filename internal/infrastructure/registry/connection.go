package registry

import (
	"sync"
	"time"

	"safespace/internal/core/domain"
	"safespace/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connection is one managed persistent channel. All state mutation happens
// in the read loop, the reconnect timer and explicit Close calls, serialized
// by mu.
type Connection struct {
	id     string
	url    string
	params ports.ConnectionParams

	mu                sync.Mutex
	ws                *websocket.Conn
	state             domain.ReadyState
	createdAt         time.Time
	lastActivity      time.Time
	isActive          bool
	reconnectAttempts int
	closed            bool
	reconnectTimer    *time.Timer

	writeMu sync.Mutex

	closeOnce sync.Once
	onRemoved func(*Connection)

	dialer  *websocket.Dialer
	logger  *zap.SugaredLogger
	metrics ports.MetricsRecorder
}

func newConnection(params ports.ConnectionParams, ws *websocket.Conn, dialer *websocket.Dialer, onRemoved func(*Connection), logger *zap.SugaredLogger, metrics ports.MetricsRecorder) *Connection {
	now := time.Now()
	c := &Connection{
		id:           params.ID,
		url:          params.URL,
		params:       params,
		ws:           ws,
		state:        domain.ReadyStateOpen,
		createdAt:    now,
		lastActivity: now,
		isActive:     true,
		onRemoved:    onRemoved,
		dialer:       dialer,
		logger:       logger,
		metrics:      metrics,
	}
	go c.readLoop(ws)
	return c
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == domain.ReadyStateOpen
}

func (c *Connection) Info() domain.ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ConnectionInfo{
		ID:                   c.id,
		URL:                  c.url,
		CreatedAt:            c.createdAt,
		LastActivity:         c.lastActivity,
		IsActive:             c.isActive,
		ReconnectAttempts:    c.reconnectAttempts,
		MaxReconnectAttempts: c.params.MaxReconnectAttempts,
		ReconnectInterval:    c.params.ReconnectInterval,
		ReadyState:           c.state,
	}
}

// Send transmits one message. Both inbound and outbound traffic refresh
// lastActivity so an active channel is never reaped by the idle sweep.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	if c.state != domain.ReadyStateOpen {
		c.mu.Unlock()
		return domain.ErrChannelNotOpen
	}
	ws := c.ws
	c.mu.Unlock()

	c.writeMu.Lock()
	err := ws.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}

	c.touch()
	return nil
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// idleSince reports how long the connection has been without traffic.
func (c *Connection) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastActivity)
}

func (c *Connection) createdAtTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createdAt
}

// Close tears the connection down explicitly. No reconnect is attempted
// afterwards and OnClose fires exactly once.
func (c *Connection) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = domain.ReadyStateClosing
	c.isActive = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		c.writeMu.Unlock()
		_ = ws.Close()
	}

	c.remove()
}

// remove finalizes the connection: drops it from the pool and fires the
// caller's OnClose exactly once.
func (c *Connection) remove() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.state = domain.ReadyStateClosed
		c.isActive = false
		c.mu.Unlock()

		if c.onRemoved != nil {
			c.onRemoved(c)
		}
		if c.metrics != nil {
			c.metrics.RecordConnectionClosed()
		}
		if c.params.OnClose != nil {
			c.params.OnClose(c.id)
		}
	})
}

func (c *Connection) readLoop(ws *websocket.Conn) {
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		c.touch()
		if c.params.OnMessage != nil {
			c.params.OnMessage(payload)
		}
	}
}

func (c *Connection) handleReadError(err error) {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.mu.Unlock()

	if alreadyClosed {
		// Explicit Close already ran; nothing to do.
		return
	}

	if c.params.OnError != nil {
		c.params.OnError(c.id, err)
	}

	// Normal closure never auto-reconnects.
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.logger.Infow("connection closed normally", "connection_id", c.id)
		c.remove()
		return
	}

	c.mu.Lock()
	if c.reconnectAttempts >= c.params.MaxReconnectAttempts {
		c.mu.Unlock()
		c.logger.Warnw("reconnect attempts exhausted, removing connection",
			"connection_id", c.id,
			"attempts", c.params.MaxReconnectAttempts,
		)
		c.remove()
		return
	}
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	c.state = domain.ReadyStateConnecting
	c.isActive = false
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.logger.Infow("connection lost, reconnect scheduled",
		"connection_id", c.id,
		"attempt", attempt,
		"interval", c.params.ReconnectInterval,
		"error", err,
	)
	if c.metrics != nil {
		c.metrics.RecordReconnectAttempt()
	}
	if c.params.OnReconnect != nil {
		c.params.OnReconnect(c.id, attempt)
	}
}

// scheduleReconnectLocked arms a single reconnect timer. Fixed interval,
// one attempt in flight at a time. Caller holds mu.
func (c *Connection) scheduleReconnectLocked() {
	c.reconnectTimer = time.AfterFunc(c.params.ReconnectInterval, c.reconnect)
}

func (c *Connection) reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ws, _, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if c.reconnectAttempts >= c.params.MaxReconnectAttempts {
			c.mu.Unlock()
			c.logger.Warnw("reconnect attempts exhausted, removing connection",
				"connection_id", c.id,
				"attempts", c.params.MaxReconnectAttempts,
			)
			c.remove()
			return
		}
		c.reconnectAttempts++
		attempt := c.reconnectAttempts
		c.scheduleReconnectLocked()
		c.mu.Unlock()

		c.logger.Infow("reconnect failed, retrying",
			"connection_id", c.id,
			"attempt", attempt,
			"error", err,
		)
		if c.metrics != nil {
			c.metrics.RecordReconnectAttempt()
		}
		if c.params.OnReconnect != nil {
			c.params.OnReconnect(c.id, attempt)
		}
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.state = domain.ReadyStateOpen
	c.isActive = true
	// Counter resets only after a successful reopen.
	c.reconnectAttempts = 0
	c.lastActivity = time.Now()
	c.mu.Unlock()

	c.logger.Infow("connection reestablished", "connection_id", c.id)
	go c.readLoop(ws)
}
