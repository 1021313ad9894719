// Package registry owns the bounded pool of named persistent channels used
// for room signaling: creation, reuse, timed reconnection, capacity
// eviction and idle cleanup.
package registry

import (
	"fmt"
	"sync"
	"time"

	"safespace/internal/core/domain"
	"safespace/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Config struct {
	MaxConnections       int
	MaxReconnectAttempts int
	ReconnectInterval    time.Duration
	IdleTimeout          time.Duration
	SweepInterval        time.Duration
	HandshakeTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConnections:       10,
		MaxReconnectAttempts: 5,
		ReconnectInterval:    3 * time.Second,
		IdleTimeout:          30 * time.Second,
		SweepInterval:        10 * time.Second,
		HandshakeTimeout:     10 * time.Second,
	}
}

type Registry struct {
	cfg    Config
	dialer *websocket.Dialer

	mu     sync.RWMutex
	conns  map[string]*Connection
	closed bool

	onCreated func(ports.Conn)

	stopSweep chan struct{}
	sweepDone chan struct{}

	logger  *zap.SugaredLogger
	metrics ports.MetricsRecorder
}

func New(cfg Config, logger *zap.Logger, metrics ports.MetricsRecorder) *Registry {
	r := &Registry{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		conns:     make(map[string]*Connection),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
		logger:    logger.Sugar(),
		metrics:   metrics,
	}
	go r.sweepLoop()
	return r
}

// SetOnConnectionCreated installs an instrumentation hook invoked for every
// freshly opened connection.
func (r *Registry) SetOnConnectionCreated(fn func(ports.Conn)) {
	r.mu.Lock()
	r.onCreated = fn
	r.mu.Unlock()
}

// CreateConnection opens a channel or reuses an existing open one with the
// same id. Dial failures are returned to the caller; there is no automatic
// retry for creation, only for unexpected closes afterwards.
func (r *Registry) CreateConnection(params ports.ConnectionParams) (ports.Conn, error) {
	if params.MaxReconnectAttempts <= 0 {
		params.MaxReconnectAttempts = r.cfg.MaxReconnectAttempts
	}
	if params.ReconnectInterval <= 0 {
		params.ReconnectInterval = r.cfg.ReconnectInterval
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, domain.ErrRegistryClosed
	}

	if existing, ok := r.conns[params.ID]; ok {
		if existing.IsOpen() {
			existing.touch()
			r.mu.Unlock()
			r.logger.Debugw("reusing open connection", "connection_id", params.ID)
			return existing, nil
		}
		// Stale entry (reconnecting or half closed): replace it.
		delete(r.conns, params.ID)
		r.mu.Unlock()
		existing.Close(websocket.CloseNormalClosure, "superseded")
		r.mu.Lock()
	}

	// Capacity eviction happens before the new channel opens: the oldest
	// connection by creation time goes first.
	if len(r.conns) >= r.cfg.MaxConnections {
		victim := r.oldestLocked()
		if victim != nil {
			delete(r.conns, victim.id)
			r.mu.Unlock()
			r.logger.Warnw("pool at capacity, evicting oldest connection",
				"evicted_id", victim.id,
				"max_connections", r.cfg.MaxConnections,
			)
			victim.Close(websocket.CloseNormalClosure, "evicted: pool at capacity")
			if r.metrics != nil {
				r.metrics.RecordEviction()
			}
			r.mu.Lock()
		}
	}
	onCreated := r.onCreated
	r.mu.Unlock()

	ws, _, err := r.dialer.Dial(params.URL, nil)
	if err != nil {
		r.logger.Errorw("failed to open connection",
			"connection_id", params.ID,
			"url", params.URL,
			"error", err,
		)
		return nil, fmt.Errorf("dial %s: %w", params.ID, err)
	}

	conn := newConnection(params, ws, r.dialer, r.removeConnection, r.logger, r.metrics)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close(websocket.CloseNormalClosure, "registry closed")
		return nil, domain.ErrRegistryClosed
	}
	r.conns[params.ID] = conn
	r.mu.Unlock()

	r.logger.Infow("connection opened", "connection_id", params.ID, "url", params.URL)
	if r.metrics != nil {
		r.metrics.RecordConnectionOpened()
	}
	if onCreated != nil {
		onCreated(conn)
	}
	return conn, nil
}

// GetConnection returns a tracked connection by id.
func (r *Registry) GetConnection(id string) (ports.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// CloseConnection tears down one connection explicitly.
func (r *Registry) CloseConnection(id string, code int, reason string) error {
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()

	if !ok {
		return domain.ErrConnectionNotFound
	}

	r.logger.Infow("closing connection", "connection_id", id, "code", code, "reason", reason)
	conn.Close(code, reason)
	return nil
}

// CloseAllConnections closes and clears every tracked connection.
func (r *Registry) CloseAllConnections(reason string) {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Close(websocket.CloseNormalClosure, reason)
	}
	r.logger.Infow("closed all connections", "count", len(conns), "reason", reason)
}

func (r *Registry) Stats() domain.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.RegistryStats{
		Total:          len(r.conns),
		MaxConnections: r.cfg.MaxConnections,
	}
	for _, c := range r.conns {
		info := c.Info()
		switch {
		case info.ReadyState == domain.ReadyStateOpen && info.IsActive:
			stats.Active++
		case info.ReadyState == domain.ReadyStateConnecting && info.ReconnectAttempts > 0:
			stats.Reconnecting++
			stats.Inactive++
		default:
			stats.Inactive++
		}
	}
	return stats
}

// Close stops the sweeper and tears down the pool. Meant for process
// shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stopSweep)
	<-r.sweepDone
	r.CloseAllConnections("shutdown")
}

func (r *Registry) removeConnection(c *Connection) {
	r.mu.Lock()
	if current, ok := r.conns[c.id]; ok && current == c {
		delete(r.conns, c.id)
	}
	r.mu.Unlock()
}

func (r *Registry) oldestLocked() *Connection {
	var oldest *Connection
	for _, c := range r.conns {
		if oldest == nil || c.createdAtTime().Before(oldest.createdAtTime()) {
			oldest = c
		}
	}
	return oldest
}

// sweepLoop periodically reaps connections with no traffic for longer than
// the idle timeout. Active calls keep signaling flowing, which refreshes
// lastActivity and protects their channel.
func (r *Registry) sweepLoop() {
	defer close(r.sweepDone)

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(time.Now())
		case <-r.stopSweep:
			return
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.RLock()
	stale := make([]*Connection, 0)
	for _, c := range r.conns {
		if c.IsOpen() && c.idleSince(now) > r.cfg.IdleTimeout {
			stale = append(stale, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range stale {
		r.logger.Infow("closing idle connection",
			"connection_id", c.id,
			"idle", c.idleSince(now),
		)
		c.Close(websocket.CloseNormalClosure, "timeout")
	}
}
