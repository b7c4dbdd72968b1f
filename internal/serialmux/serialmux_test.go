package serialmux

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startMonitor(t *testing.T, mux *SerialMux[*TestableSerialPort]) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-ch:
		require.True(t, ok, "channel closed")
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

func TestMonitorFansOutLines(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("gnss", port)

	_, a := mux.Subscribe()
	_, b := mux.Subscribe()
	startMonitor(t, mux)

	port.AddReadData("$GPGGA,1\r\n\r\n$GPGST,2\n")

	assert.Equal(t, "$GPGGA,1", receive(t, a))
	assert.Equal(t, "$GPGST,2", receive(t, a))
	assert.Equal(t, "$GPGGA,1", receive(t, b))
	assert.Equal(t, "$GPGST,2", receive(t, b))
}

func TestMonitorStopsOnCancel(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("imu", port)
	cancel, done := startMonitor(t, mux)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
	require.NoError(t, port.Close())
}

func TestMonitorReturnsReadError(t *testing.T) {
	port := NewTestableSerialPort()
	readErr := errors.New("device unplugged")
	port.ReadError = readErr
	mux := NewSerialMux("imu", port)

	err := mux.Monitor(context.Background())
	assert.ErrorIs(t, err, readErr)
}

func TestMonitorEndsAtEOF(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData("1,2,3\n")
	require.NoError(t, port.Close())

	mux := NewSerialMux("imu", port)
	_, ch := mux.Subscribe()
	require.NoError(t, mux.Monitor(context.Background()))
	assert.Equal(t, "1,2,3", receive(t, ch))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	mux := NewSerialMux("gnss", NewTestableSerialPort())
	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	// unknown ids are ignored
	mux.Unsubscribe("missing")
}

func TestCloseClosesSubscribersAndPort(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("gnss", port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, port.Closed)
}

func TestSendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("gnss", port)

	require.NoError(t, mux.SendCommand("PMTK220,1000"))
	require.NoError(t, mux.SendCommand("raw\n"))
	assert.Equal(t, "PMTK220,1000\r\nraw\n", port.Written())

	port.ShortWrite = true
	assert.ErrorIs(t, mux.SendCommand("x"), ErrWriteFailed)

	port.ShortWrite = false
	writeErr := errors.New("tx failed")
	port.WriteError = writeErr
	assert.ErrorIs(t, mux.SendCommand("x"), writeErr)
}

func TestInitializeStopsAtFirstFailure(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("gnss", port)

	require.NoError(t, mux.Initialize(GNSSInitCommands()...))
	assert.Equal(t, "$PUBX,40,GGA,0,1,0,0,0,0*5B\r\n$PUBX,40,GST,0,1,0,0,0,0*5A\r\n", port.Written())

	require.NoError(t, port.Close())
	err := mux.Initialize("a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a"`)
	assert.Contains(t, err.Error(), "gnss")
}

func debugRequest(method, target string, body *strings.Reader) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	// tsweb only serves debug pages to loopback callers.
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAdminSendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("gnss", port)
	h := newDebugMux(mux)

	rec := httptest.NewRecorder()
	form := url.Values{"command": {"PMTK220,1000"}}
	h.ServeHTTP(rec, debugRequest(http.MethodPost, "/debug/gnss-send-command", strings.NewReader(form.Encode())))
	if rec.Code == http.StatusForbidden {
		t.Skip("debug access denied in this environment")
	}
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "PMTK220,1000\r\n", port.Written())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, debugRequest(http.MethodPost, "/debug/gnss-send-command", strings.NewReader("command=")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, debugRequest(http.MethodGet, "/debug/gnss-send-command", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func newDebugMux(s SerialMuxInterface) *http.ServeMux {
	mux := http.NewServeMux()
	s.AttachAdminRoutes(mux)
	return mux
}

func TestAdminTailStreamsLines(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux("imu", port)
	srv := httptest.NewServer(newDebugMux(mux))
	defer srv.Close()
	startMonitor(t, mux)

	resp, err := http.Get(srv.URL + "/debug/imu-tail")
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		t.Skip("debug access denied in this environment")
	}
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	ping, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", ping)

	port.AddReadData("1700000000.0,0,0,-9.81,0,0,0,0,0,0\n")
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			assert.Equal(t, "data: 1700000000.0,0,0,-9.81,0,0,0,0,0,0\n", line)
			break
		}
	}
}
