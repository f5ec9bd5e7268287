package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"les02bridge/internal/can"
	"les02bridge/internal/config"
	"les02bridge/internal/event"
	"les02bridge/internal/hub"
	"les02bridge/internal/metrics"
)

type fixture struct {
	hub    *hub.Hub
	server *Server
	http   *httptest.Server
	url    string
}

func newFixture(t *testing.T, codec event.Codec, mutate func(*config.WSConfig)) *fixture {
	t.Helper()

	cfg := config.Default().WS
	if mutate != nil {
		mutate(&cfg)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := hub.New(codec, hub.WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(stopped)
	}()

	srv := New(cfg, h, reg, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		cancel()
		<-stopped
		ts.Close()
	})

	return &fixture{
		hub:    h,
		server: srv,
		http:   ts,
		url:    "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.Path,
	}
}

func (f *fixture) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(f.url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *fixture) waitSubscribers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.hub.Len() == n }, 5*time.Second, 5*time.Millisecond)
}

func envelope(ch can.Channel, raw uint32) event.Envelope {
	env, _ := event.Build(ch, can.Position{Raw: raw}, time.Unix(1700000000, 250_000_000))
	return env
}

func TestServer_BroadcastReachesClients(t *testing.T) {
	f := newFixture(t, event.JSON, nil)

	a := f.dial(t, nil)
	b := f.dial(t, nil)
	f.waitSubscribers(t, 2)

	f.hub.Broadcast(envelope(can.Master, 150))
	f.hub.Broadcast(envelope(can.Slave, 151))

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		mt, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		assert.JSONEq(t,
			`{"proto":1,"type":"position_sample","ts":1700000000.25,"source":"les02","payload":{"channel":"master","position_raw":150}}`,
			string(data))

		_, data, err = conn.ReadMessage()
		require.NoError(t, err)
		var env map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &env))
		payload := env["payload"].(map[string]interface{})
		assert.Equal(t, "slave", payload["channel"])
		assert.Equal(t, 151.0, payload["position_raw"])
	}
}

func TestServer_CBORCodec(t *testing.T) {
	f := newFixture(t, event.CBOR, nil)

	conn := f.dial(t, nil)
	f.waitSubscribers(t, 1)

	f.hub.Broadcast(envelope(can.Master, 1))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)

	want, err := event.CBOR.Encode(envelope(can.Master, 1))
	require.NoError(t, err)
	assert.Equal(t, want, data)
}

func TestServer_ClientDisconnectUnregisters(t *testing.T) {
	f := newFixture(t, event.JSON, nil)

	a := f.dial(t, nil)
	f.dial(t, nil)
	f.waitSubscribers(t, 2)

	require.NoError(t, a.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	a.Close()

	f.waitSubscribers(t, 1)
}

func TestServer_InboundMessagesIgnored(t *testing.T) {
	f := newFixture(t, event.JSON, nil)

	conn := f.dial(t, nil)
	f.waitSubscribers(t, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ride_start"}`)))
	f.hub.Broadcast(envelope(can.Master, 9))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"position_raw":9`)
	assert.Equal(t, 1, f.hub.Len())
}

func TestServer_HubStopClosesConnections(t *testing.T) {
	cfg := config.Default().WS
	h := hub.New(event.JSON)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(stopped)
	}()

	ts := httptest.NewServer(New(cfg, h, nil, zap.NewNop()).Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.Len() == 1 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	<-stopped

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestServer_OriginCheck(t *testing.T) {
	f := newFixture(t, event.JSON, nil)

	for _, origin := range []string{
		"http://localhost:3000",
		"http://localhost",
		"https://127.0.0.1:8443",
		"http://[::1]:8080",
	} {
		f.dial(t, http.Header{"Origin": []string{origin}})
	}

	for _, origin := range []string{
		"http://evil.example",
		"http://localhost.evil.example",
		"http://127.0.0.1.nip.io.attacker.com",
		"http://localhost@evil.example",
		"file://localhost",
		"null",
	} {
		_, resp, err := websocket.DefaultDialer.Dial(f.url, http.Header{"Origin": []string{origin}})
		require.Error(t, err, "origin %q", origin)
		require.NotNil(t, resp, "origin %q", origin)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, "origin %q", origin)
		resp.Body.Close()
	}

	g := newFixture(t, event.JSON, func(c *config.WSConfig) {
		c.AllowedOrigins = []string{"http://dashboard.local"}
	})
	g.dial(t, http.Header{"Origin": []string{"http://dashboard.local"}})
	_, resp, err := websocket.DefaultDialer.Dial(g.url, http.Header{"Origin": []string{"http://localhost"}})
	require.Error(t, err)
	resp.Body.Close()
}

func TestServer_MetricsAndHealth(t *testing.T) {
	f := newFixture(t, event.JSON, nil)
	f.dial(t, nil)
	f.waitSubscribers(t, 1)

	resp, err := http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "les02_subscribers 1")

	resp, err = http.Get(f.http.URL + "/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_StartAndShutdown(t *testing.T) {
	cfg := config.Default().WS
	cfg.Listen = "127.0.0.1:0"
	srv := New(cfg, hub.New(event.JSON), nil, zap.NewNop())

	assert.Empty(t, srv.Addr())
	require.NoError(t, srv.Start())
	assert.NotEmpty(t, srv.Addr())

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
