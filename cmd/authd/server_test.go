package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := defaultConfig()
	cfg.AccessSecret = testAccessSecret
	cfg.RefreshSecret = testRefreshSecret
	cfg.RateLimitPerSecond = 1000
	cfg.RateLimitBurst = 1000
	return cfg
}

func newTestApp(t *testing.T, cfg Config) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.close(context.Background()) })
	return a
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAppServesHealthAndMetrics(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	h := a.server.Handler

	rec := get(h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = post(t, h, "/api/v1/users/register",
		`{"username":"carol","email":"carol@example.com","password":"pw-123456","fullName":"Carol"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = post(t, h, "/api/v1/users/login", `{"username":"carol","password":"pw-123456"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = get(h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "authcore_login_success_total 1")
	assert.Contains(t, string(body), "authcore_register_success_total 1")
}

func TestAppWithSQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "authd.db")
	a := newTestApp(t, cfg)
	assert.Nil(t, a.backend.redis, "sql stores run without the redis throttle")

	rec := post(t, a.server.Handler, "/api/v1/users/register",
		`{"username":"dave","email":"dave@example.com","password":"pw-123456","fullName":"Dave"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAppRejectsUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = "redis"
	cfg.RedisAddr = "127.0.0.1:1"
	_, err := newApp(context.Background(), cfg, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

type collector struct {
	mu     sync.Mutex
	bodies map[string][]byte
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.bodies[r.URL.Path] = append(c.bodies[r.URL.Path], body...)
	c.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (c *collector) received(path string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bodies[path]
}

func TestAppPushesMetricsToCollector(t *testing.T) {
	col := &collector{bodies: map[string][]byte{}}
	srv := httptest.NewServer(col)
	t.Cleanup(srv.Close)

	cfg := testConfig(t)
	cfg.OTelEndpoint = srv.URL + "/"
	a := newTestApp(t, cfg)

	rec := post(t, a.server.Handler, "/api/v1/users/register",
		`{"username":"erin","email":"erin@example.com","password":"pw-123456","fullName":"Erin"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.close(ctx))

	metrics := col.received("/v1/metrics")
	require.NotEmpty(t, metrics, "shutdown must flush metrics to the collector")
	assert.Contains(t, string(metrics), "authcore_register_success_total")
}

func TestSetupTelemetryWithoutEndpointIsNoop(t *testing.T) {
	tel, err := setupTelemetry(context.Background(), "", serviceName)
	require.NoError(t, err)
	assert.NotNil(t, tel.tracer)
	assert.NotNil(t, tel.meter)
	assert.NoError(t, tel.shutdown(context.Background()))
}

func TestSignalURL(t *testing.T) {
	assert.Equal(t, "http://collector:4318/v1/metrics", signalURL("http://collector:4318/", "/v1/metrics"))
	assert.Equal(t, "http://collector:4318/v1/traces", signalURL("http://collector:4318", "/v1/traces"))
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}
