package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/redisstore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndHistogram(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:         7,
				authcore.MetricRefreshReuseDetected: 1,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricRefreshLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"authcore_login_success_total 7",
		"authcore_refresh_reuse_detected_total 1",
		"authcore_logout_total 0",
		`authcore_refresh_latency_seconds_bucket{le="0.005"} 1`,
		`authcore_refresh_latency_seconds_bucket{le="+Inf"} 36`,
		"authcore_refresh_latency_seconds_count 36",
		"authcore_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "authcore_login_latency_seconds") {
		t.Fatalf("histograms absent from the snapshot must not render:\n%s", out)
	}
}

func TestRenderFromEngine(t *testing.T) {
	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("prom-access-secret-prom-access-secret")
	cfg.JWT.RefreshSecret = []byte("prom-refresh-secret-prom-refresh-secret")
	cfg.Metrics.Enabled = true

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	engine, err := authcore.New().WithConfig(cfg).WithStore(redisstore.New(rdb, "prom")).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer func() { _ = engine.Close(context.Background()) }()

	if _, err := engine.Validate(context.Background(), "garbage"); err == nil {
		t.Fatal("expected validation failure")
	}
	if out := New(engine).Render(); !strings.Contains(out, "authcore_validate_failure_total 1") {
		t.Fatalf("expected validate failure counter, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:   1000,
				authcore.MetricLoginFailure:   40,
				authcore.MetricRefreshSuccess: 800,
				authcore.MetricRefreshFailure: 10,
				authcore.MetricLogout:         20,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricLoginLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
