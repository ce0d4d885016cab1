package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialDevice(t *testing.T, srv *httptest.Server, deviceID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?deviceId=" + deviceID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readCommand(t *testing.T, ws *websocket.Conn) Command {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var cmd Command
	require.NoError(t, ws.ReadJSON(&cmd))
	return cmd
}

func TestHub_EnrollOverWebSocket(t *testing.T) {
	h := NewHub(Options{}, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	var mu sync.Mutex
	var statuses []LinkStatus
	h.SubscribeStatus(func(s LinkStatus) { mu.Lock(); statuses = append(statuses, s); mu.Unlock() })

	ws := dialDevice(t, srv, "esp-1")
	require.Eventually(t, func() bool { return h.Connected("esp-1") }, time.Second, 5*time.Millisecond)

	h.Progress.Set(5, Progress{Status: StatusProcessing, Name: "Alice", DeviceID: "esp-1"})
	call, err := h.Correlator.Dispatch("esp-1", 5, KindEnroll, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Command{Type: TypeEnroll, ID: 5}, readCommand(t, ws))

	for _, frame := range []string{
		`{"type":"enroll_status","payload":{"id":5,"status":"processing","step":1,"message":"place finger"}}`,
		`{"type":"enroll_status","payload":{"id":5,"status":"processing","step":2,"message":"again"}}`,
		`{"type":"enroll_status","payload":{"id":5,"status":"success"}}`,
	} {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
	}

	waitDone(t, call, 2*time.Second)
	resp, err := call.Result()
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Slot)

	p, _ := h.Progress.Get(5)
	assert.Equal(t, 2, p.Step)
	assert.Equal(t, "again", p.Message)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statuses)
	assert.True(t, statuses[0].Connected)
	assert.Equal(t, "esp-1", statuses[0].DeviceID)
	assert.Equal(t, 1, statuses[0].ClientCount)
}

func TestHub_DisconnectFailsPendingWork(t *testing.T) {
	h := NewHub(Options{}, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	disconnected := make(chan LinkStatus, 1)
	h.SubscribeStatus(func(s LinkStatus) {
		if !s.Connected {
			disconnected <- s
		}
	})

	ws := dialDevice(t, srv, "esp-1")
	require.Eventually(t, func() bool { return h.Connected("esp-1") }, time.Second, 5*time.Millisecond)

	call, err := h.Correlator.Dispatch("esp-1", 5, KindEnroll, time.Minute)
	require.NoError(t, err)
	readCommand(t, ws)

	ws.Close()

	waitDone(t, call, 2*time.Second)
	_, err = call.Result()
	assert.ErrorIs(t, err, ErrDisconnected)

	select {
	case st := <-disconnected:
		assert.False(t, st.IsConnected)
		assert.Equal(t, 0, st.ClientCount)
	case <-time.After(time.Second):
		t.Fatal("no disconnect notification")
	}

	// Commands to the vanished device fail fast.
	_, err = h.Correlator.Dispatch("esp-1", 6, KindDelete, time.Minute)
	assert.ErrorIs(t, err, ErrSendFailed)
}

func TestHub_ReconnectReplacesSocket(t *testing.T) {
	h := NewHub(Options{}, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	first := dialDevice(t, srv, "esp-1")
	require.Eventually(t, func() bool { return h.Connected("esp-1") }, time.Second, 5*time.Millisecond)
	c1, _ := h.Registry.Get("esp-1")

	dialDevice(t, srv, "esp-1")
	require.Eventually(t, func() bool {
		c2, ok := h.Registry.Get("esp-1")
		return ok && c2 != c1
	}, time.Second, 5*time.Millisecond)

	// The old socket was closed by the server.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.True(t, h.Connected("esp-1"))
	assert.Equal(t, 1, h.Registry.Count())
}

func TestHub_RunClosesEverythingOnShutdown(t *testing.T) {
	h := NewHub(Options{HeartbeatInterval: time.Hour}, nil)
	conn := &fakeConn{}
	h.Registry.Register("esp-1", conn)
	call, err := h.Correlator.Dispatch("esp-1", 1, KindEnroll, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.Run(ctx)

	assert.Equal(t, 0, h.Registry.Count())
	assert.Equal(t, 1, conn.closeCount())
	waitDone(t, call, time.Second)
	_, err = call.Result()
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.False(t, h.Status().IsConnected)
}

func TestDeviceIDFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?deviceId=gate-2", nil)
	assert.Equal(t, "gate-2", DeviceIDFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	id := DeviceIDFromRequest(r)
	assert.True(t, strings.HasPrefix(id, "esp-"))
	assert.Len(t, id, len("esp-")+8)
}

func TestHub_ReconnectFailsPendingWork(t *testing.T) {
	h := NewHub(Options{}, nil)
	old := &fakeConn{}
	h.Registry.Register("esp-1", old)

	call, err := h.Correlator.Dispatch("esp-1", 5, KindEnroll, time.Minute)
	require.NoError(t, err)

	// The device comes back on a new socket before the old one was noticed dead.
	h.Registry.Register("esp-1", &fakeConn{})
	assert.Equal(t, 1, old.closeCount())

	waitDone(t, call, time.Second)
	_, err = call.Result()
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.False(t, h.Correlator.IsPending(KindEnroll, 5))

	// A late success for the abandoned slot is discarded as unknown.
	assert.False(t, h.Correlator.Resolve(KindEnroll, StatusPayload{ID: 5, Status: StatusSuccess}))
	assert.True(t, h.Connected("esp-1"))

	// New work on the replacement socket is unaffected.
	next, err := h.Correlator.Dispatch("esp-1", 6, KindEnroll, time.Minute)
	require.NoError(t, err)
	assert.True(t, h.Correlator.Resolve(KindEnroll, StatusPayload{ID: 6, Status: StatusSuccess}))
	waitDone(t, next, time.Second)
}
