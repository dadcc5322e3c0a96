package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu      sync.Mutex
	polling bool
	toggles int
}

func (c *fakeController) Status() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{"polling": c.polling}
}

func (c *fakeController) SetPolling(enabled bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toggles++
	changed := c.polling != enabled
	c.polling = enabled
	return changed
}

func newTestServer(t *testing.T, ctrl Controller) *httptest.Server {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	ts := httptest.NewServer(NewServer("", ctrl, logger).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &fakeController{})

	resp, body := do(t, ts, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t, &fakeController{polling: true})

	resp, body := do(t, ts, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"polling":true}`, body)
}

func TestPollingToggle(t *testing.T) {
	ctrl := &fakeController{}
	ts := newTestServer(t, ctrl)

	resp, body := do(t, ts, http.MethodPut, "/polling", `{"enabled":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"polling":true}`, body, "response MUST carry the new status")

	resp, body = do(t, ts, http.MethodPut, "/polling", `{"enabled":false}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"polling":false}`, body)
	assert.Equal(t, 2, ctrl.toggles)
}

func TestPollingRejectsBadBodies(t *testing.T) {
	ctrl := &fakeController{}
	ts := newTestServer(t, ctrl)

	for _, body := range []string{``, `{}`, `{"enabled":"yes"}`, `{"enabled":true,"extra":1}`} {
		resp, _ := do(t, ts, http.MethodPut, "/polling", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q MUST be rejected", body)
	}
	assert.Zero(t, ctrl.toggles, "rejected requests MUST NOT toggle polling")
}

func TestWrongMethod(t *testing.T) {
	ts := newTestServer(t, &fakeController{})

	resp, _ := do(t, ts, http.MethodGet, "/polling", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServeStopsOnCancel(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := NewServer("", &fakeController{}, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var status map[string]any
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&status) == nil
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "graceful shutdown MUST return nil")
	case <-time.After(6 * time.Second):
		t.Fatal("server did not stop")
	}
}
