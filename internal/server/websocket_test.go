package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/brokerage/internal/config"
	"github.com/conneroisu/brokerage/internal/logging"
)

func dialReload(t *testing.T, ctx context.Context, baseURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(baseURL, "http")+"/ws/reload", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestReloadHub_Broadcast(t *testing.T) {
	hub := NewReloadHub(logging.NewNop(), nil)
	ts := httptest.NewServer(http.StripPrefix("/ws/reload", hub))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := dialReload(t, ctx, ts.URL)
	second := dialReload(t, ctx, ts.URL)
	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(reloadMessage)

	for _, conn := range []*websocket.Conn{first, second} {
		typ, msg, err := conn.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageText, typ)
		assert.Equal(t, reloadMessage, string(msg))
	}

	first.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	hub.CloseAll()
	assert.Equal(t, 0, hub.Len())
	_, _, err := second.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestReloadHub_RejectsForeignOrigin(t *testing.T) {
	hub := NewReloadHub(logging.NewNop(), nil)
	ts := httptest.NewServer(hub)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_ReloadNotifiesClients(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Environment = config.EnvDevelopment
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialReload(t, ctx, ts.URL)
	require.Eventually(t, func() bool { return srv.hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	// An open socket does not count as a busy server.
	assert.Equal(t, 0, srv.activity.InFlight())

	require.NoError(t, srv.Reload(ctx))

	_, msg, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, reloadMessage, string(msg))
}

func TestServer_NoReloadRouteOutsideDevelopment(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv.Handler(), "/ws/reload")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDevelopmentPagesIncludeReloadScript(t *testing.T) {
	dev := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Environment = config.EnvDevelopment
	})
	assert.Contains(t, get(dev.Handler(), "/").Body.String(), "/static/reload.js")

	prod := newTestServer(t)
	assert.NotContains(t, get(prod.Handler(), "/").Body.String(), "/static/reload.js")
}
