package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"safespace/internal/core/domain"
	"safespace/internal/core/ports"
	"safespace/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCallService struct {
	startErr  error
	acceptErr error
	state     domain.CallSnapshot
	muted     bool
	started   []domain.RoomID
	removed   []domain.UserID
	removeErr error
}

func (f *fakeCallService) StartCall(ctx context.Context, participants []domain.Participant, roomID domain.RoomID) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, roomID)
	return nil
}
func (f *fakeCallService) AcceptCall(ctx context.Context) error { return f.acceptErr }

func (f *fakeCallService) RejectCall() error { return nil }

func (f *fakeCallService) EndCall() error { return nil }
func (f *fakeCallService) ToggleMute() bool {
	f.muted = !f.muted
	return f.muted
}
func (f *fakeCallService) ToggleVideo() bool { return true }
func (f *fakeCallService) StartScreenShare(ctx context.Context) error {
	return nil
}
func (f *fakeCallService) StopScreenShare() error { return nil }
func (f *fakeCallService) RemovePeer(id domain.UserID) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, id)
	return nil
}
func (f *fakeCallService) State() domain.CallSnapshot { return f.state }

func (f *fakeCallService) LocalStream() ports.LocalStream { return nil }

type fakeDiagnostics struct{}

func (f *fakeDiagnostics) Report() domain.DiagnosticsReport {
	return domain.DiagnosticsReport{RoomID: "room-7", GeneratedAt: time.Now()}
}

type fakeStatsRegistry struct{}

func (f *fakeStatsRegistry) CreateConnection(params ports.ConnectionParams) (ports.Conn, error) {
	return nil, domain.ErrRegistryClosed
}
func (f *fakeStatsRegistry) CloseConnection(id string, code int, reason string) error { return nil }
func (f *fakeStatsRegistry) CloseAllConnections(reason string)                        {}
func (f *fakeStatsRegistry) Stats() domain.RegistryStats {
	return domain.RegistryStats{Total: 2, Active: 1, Inactive: 1, MaxConnections: 10}
}

func newTestRouter(calls ports.CallService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	NewCallHandler(calls, &fakeDiagnostics{}, &fakeStatsRegistry{}).SetupRoutes(router)
	return router
}

func TestStartCall_OK(t *testing.T) {
	calls := &fakeCallService{state: domain.CallSnapshot{State: domain.CallStateOutgoing}}
	router := newTestRouter(calls)

	body := `{"roomId":"room-7","participants":[{"id":"bob","name":"Bob"}]}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/call/start", strings.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []domain.RoomID{"room-7"}, calls.started)
}

func TestStartCall_BadRequest(t *testing.T) {
	router := newTestRouter(&fakeCallService{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/call/start", strings.NewReader(`{"participants":[]}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartCall_BusyMapsToConflict(t *testing.T) {
	router := newTestRouter(&fakeCallService{startErr: domain.ErrCallInProgress})

	body := `{"roomId":"room-7","participants":[{"id":"bob"}]}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/call/start", strings.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAcceptCall_MediaFailureMapsToUnavailable(t *testing.T) {
	router := newTestRouter(&fakeCallService{acceptErr: domain.ErrMediaUnavailable})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/call/accept", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRemovePeer_NotFound(t *testing.T) {
	router := newTestRouter(&fakeCallService{removeErr: domain.ErrPeerLinkNotFound})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/api/v1/call/peers/ghost", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetState(t *testing.T) {
	calls := &fakeCallService{state: domain.CallSnapshot{
		State:  domain.CallStateActive,
		RoomID: "room-7",
	}}
	router := newTestRouter(calls)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/call/state", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var snapshot domain.CallSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, domain.CallStateActive, snapshot.State)
	assert.Equal(t, domain.RoomID("room-7"), snapshot.RoomID)
}

func TestToggleMute(t *testing.T) {
	router := newTestRouter(&fakeCallService{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/call/mute", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"muted":true}`, w.Body.String())
}

func TestGetConnectionStats(t *testing.T) {
	router := newTestRouter(&fakeCallService{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/connections/stats", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stats domain.RegistryStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
}

func TestGetDiagnostics(t *testing.T) {
	router := newTestRouter(&fakeCallService{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/diagnostics", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var report domain.DiagnosticsReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, domain.RoomID("room-7"), report.RoomID)
}
