package registry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"safespace/internal/core/domain"
	"safespace/internal/core/ports"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{}

// newWSServer runs a websocket endpoint. The default handler just drains
// inbound messages until the client goes away.
func newWSServer(t *testing.T, handler func(ws *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if handler != nil {
			handler(ws)
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	r := New(cfg, zap.NewNop(), nil)
	t.Cleanup(r.Close)
	return r
}

func TestCreateConnection_ReusesOpenConnection(t *testing.T) {
	srv := newWSServer(t, nil)
	reg := newTestRegistry(t, DefaultConfig())

	first, err := reg.CreateConnection(ports.ConnectionParams{ID: "room-1", URL: wsURL(srv)})
	require.NoError(t, err)

	second, err := reg.CreateConnection(ports.ConnectionParams{ID: "room-1", URL: wsURL(srv)})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, reg.Stats().Total)
}

func TestCreateConnection_ReuseRefreshesActivity(t *testing.T) {
	srv := newWSServer(t, nil)
	reg := newTestRegistry(t, DefaultConfig())

	conn, err := reg.CreateConnection(ports.ConnectionParams{ID: "room-1", URL: wsURL(srv)})
	require.NoError(t, err)
	before := conn.Info().LastActivity

	time.Sleep(10 * time.Millisecond)
	_, err = reg.CreateConnection(ports.ConnectionParams{ID: "room-1", URL: wsURL(srv)})
	require.NoError(t, err)

	assert.True(t, conn.Info().LastActivity.After(before))
}

func TestCreateConnection_DialFailureReturnsError(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())

	_, err := reg.CreateConnection(ports.ConnectionParams{
		ID:  "unreachable",
		URL: "ws://127.0.0.1:1",
	})

	require.Error(t, err)
	assert.Equal(t, 0, reg.Stats().Total)
}

func TestCreateConnection_EvictsOldestAtCapacity(t *testing.T) {
	srv := newWSServer(t, nil)
	cfg := DefaultConfig()
	cfg.MaxConnections = 2
	reg := newTestRegistry(t, cfg)

	var aClosed atomic.Bool
	_, err := reg.CreateConnection(ports.ConnectionParams{
		ID:      "a",
		URL:     wsURL(srv),
		OnClose: func(string) { aClosed.Store(true) },
	})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = reg.CreateConnection(ports.ConnectionParams{ID: "b", URL: wsURL(srv)})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = reg.CreateConnection(ports.ConnectionParams{ID: "c", URL: wsURL(srv)})
	require.NoError(t, err)

	_, ok := reg.GetConnection("a")
	assert.False(t, ok, "oldest connection should be evicted")
	_, ok = reg.GetConnection("b")
	assert.True(t, ok)
	_, ok = reg.GetConnection("c")
	assert.True(t, ok)
	assert.True(t, aClosed.Load())
	assert.Equal(t, 2, reg.Stats().Total)
}

func TestConnection_DeliversInboundMessages(t *testing.T) {
	srv := newWSServer(t, func(ws *websocket.Conn) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte("hello"))
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	reg := newTestRegistry(t, DefaultConfig())

	received := make(chan []byte, 1)
	_, err := reg.CreateConnection(ports.ConnectionParams{
		ID:        "room-1",
		URL:       wsURL(srv),
		OnMessage: func(payload []byte) { received <- payload },
	})
	require.NoError(t, err)

	select {
	case payload := <-received:
		assert.Equal(t, "hello", string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}

func TestConnection_NormalCloseDoesNotReconnect(t *testing.T) {
	srv := newWSServer(t, func(ws *websocket.Conn) {
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), deadline)
		_ = ws.Close()
	})

	cfg := DefaultConfig()
	cfg.ReconnectInterval = 20 * time.Millisecond
	reg := newTestRegistry(t, cfg)

	closed := make(chan struct{})
	var reconnects atomic.Int32
	_, err := reg.CreateConnection(ports.ConnectionParams{
		ID:          "room-1",
		URL:         wsURL(srv),
		OnClose:     func(string) { close(closed) },
		OnReconnect: func(string, int) { reconnects.Add(1) },
	})
	require.NoError(t, err)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close")
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), reconnects.Load())
	_, ok := reg.GetConnection("room-1")
	assert.False(t, ok)
}

func TestConnection_ReconnectsAfterAbnormalClose(t *testing.T) {
	var drops atomic.Int32
	srv := newWSServer(t, func(ws *websocket.Conn) {
		// First session is dropped without a close frame, later ones stay up.
		if drops.Add(1) == 1 {
			_ = ws.UnderlyingConn().Close()
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	cfg := DefaultConfig()
	cfg.ReconnectInterval = 20 * time.Millisecond
	reg := newTestRegistry(t, cfg)

	var reconnects atomic.Int32
	conn, err := reg.CreateConnection(ports.ConnectionParams{
		ID:          "room-1",
		URL:         wsURL(srv),
		OnReconnect: func(string, int) { reconnects.Add(1) },
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return reconnects.Load() >= 1 && conn.IsOpen()
	}, 2*time.Second, 10*time.Millisecond, "connection should reestablish")

	// The attempt counter resets only on a successful reopen.
	assert.Equal(t, 0, conn.Info().ReconnectAttempts)
}

func TestConnection_ReconnectAttemptsBounded(t *testing.T) {
	srv := newWSServer(t, func(ws *websocket.Conn) {
		_ = ws.UnderlyingConn().Close()
	})

	cfg := DefaultConfig()
	cfg.MaxReconnectAttempts = 2
	cfg.ReconnectInterval = 10 * time.Millisecond
	reg := newTestRegistry(t, cfg)

	closed := make(chan struct{})
	var reconnects atomic.Int32
	_, err := reg.CreateConnection(ports.ConnectionParams{
		ID:          "room-1",
		URL:         wsURL(srv),
		OnClose:     func(string) { close(closed) },
		OnReconnect: func(string, int) { reconnects.Add(1) },
	})
	require.NoError(t, err)

	srv.Close()

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for removal after exhausted reconnects")
	}
	assert.LessOrEqual(t, reconnects.Load(), int32(2))
	_, ok := reg.GetConnection("room-1")
	assert.False(t, ok)
}

func TestSweep_ClosesIdleConnections(t *testing.T) {
	srv := newWSServer(t, nil)

	cfg := DefaultConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	cfg.SweepInterval = 20 * time.Millisecond
	reg := newTestRegistry(t, cfg)

	closed := make(chan struct{})
	_, err := reg.CreateConnection(ports.ConnectionParams{
		ID:      "idle",
		URL:     wsURL(srv),
		OnClose: func(string) { close(closed) },
	})
	require.NoError(t, err)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for idle sweep")
	}
	_, ok := reg.GetConnection("idle")
	assert.False(t, ok)
}

func TestSweep_SparesActiveConnections(t *testing.T) {
	srv := newWSServer(t, nil)

	cfg := DefaultConfig()
	cfg.IdleTimeout = 80 * time.Millisecond
	cfg.SweepInterval = 20 * time.Millisecond
	reg := newTestRegistry(t, cfg)

	conn, err := reg.CreateConnection(ports.ConnectionParams{ID: "busy", URL: wsURL(srv)})
	require.NoError(t, err)

	// Keep traffic flowing past several sweep rounds.
	for i := 0; i < 6; i++ {
		require.NoError(t, conn.Send([]byte("ping")))
		time.Sleep(30 * time.Millisecond)
	}

	assert.True(t, conn.IsOpen())
	_, ok := reg.GetConnection("busy")
	assert.True(t, ok)
}

func TestSend_FailsWhenNotOpen(t *testing.T) {
	srv := newWSServer(t, nil)
	reg := newTestRegistry(t, DefaultConfig())

	conn, err := reg.CreateConnection(ports.ConnectionParams{ID: "room-1", URL: wsURL(srv)})
	require.NoError(t, err)

	require.NoError(t, reg.CloseConnection("room-1", websocket.CloseNormalClosure, "test"))
	assert.ErrorIs(t, conn.Send([]byte("late")), domain.ErrChannelNotOpen)
}

func TestCloseConnection_UnknownID(t *testing.T) {
	reg := newTestRegistry(t, DefaultConfig())
	err := reg.CloseConnection("missing", websocket.CloseNormalClosure, "test")
	assert.ErrorIs(t, err, domain.ErrConnectionNotFound)
}

func TestCloseAllConnections(t *testing.T) {
	srv := newWSServer(t, nil)
	reg := newTestRegistry(t, DefaultConfig())

	for _, id := range []string{"a", "b", "c"} {
		_, err := reg.CreateConnection(ports.ConnectionParams{ID: id, URL: wsURL(srv)})
		require.NoError(t, err)
	}
	require.Equal(t, 3, reg.Stats().Total)

	reg.CloseAllConnections("teardown")

	require.Eventually(t, func() bool {
		return reg.Stats().Total == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStats(t *testing.T) {
	srv := newWSServer(t, nil)
	cfg := DefaultConfig()
	cfg.MaxConnections = 5
	reg := newTestRegistry(t, cfg)

	_, err := reg.CreateConnection(ports.ConnectionParams{ID: "a", URL: wsURL(srv)})
	require.NoError(t, err)
	_, err = reg.CreateConnection(ports.ConnectionParams{ID: "b", URL: wsURL(srv)})
	require.NoError(t, err)

	stats := reg.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 0, stats.Inactive)
	assert.Equal(t, 0, stats.Reconnecting)
	assert.Equal(t, 5, stats.MaxConnections)
}

func TestRegistry_CreateAfterClose(t *testing.T) {
	srv := newWSServer(t, nil)
	reg := New(DefaultConfig(), zap.NewNop(), nil)
	reg.Close()

	_, err := reg.CreateConnection(ports.ConnectionParams{ID: "late", URL: wsURL(srv)})
	assert.ErrorIs(t, err, domain.ErrRegistryClosed)
}

func TestSetOnConnectionCreated(t *testing.T) {
	srv := newWSServer(t, nil)
	reg := newTestRegistry(t, DefaultConfig())

	var created atomic.Int32
	reg.SetOnConnectionCreated(func(ports.Conn) { created.Add(1) })

	_, err := reg.CreateConnection(ports.ConnectionParams{ID: "a", URL: wsURL(srv)})
	require.NoError(t, err)
	// Reuse must not re-fire the hook.
	_, err = reg.CreateConnection(ports.ConnectionParams{ID: "a", URL: wsURL(srv)})
	require.NoError(t, err)

	assert.Equal(t, int32(1), created.Load())
}
