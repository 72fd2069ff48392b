package authcore

import (
	internalmetrics "github.com/MrEthical07/authcore/internal/metrics"
)

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess            = internalmetrics.MetricLoginSuccess
	MetricLoginFailure            = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited        = internalmetrics.MetricLoginRateLimited
	MetricRefreshSuccess          = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure          = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected    = internalmetrics.MetricRefreshReuseDetected
	MetricTokenPersistenceFailure = internalmetrics.MetricTokenPersistenceFailure
	MetricLogout                  = internalmetrics.MetricLogout
	MetricRegisterSuccess         = internalmetrics.MetricRegisterSuccess
	MetricRegisterDuplicate       = internalmetrics.MetricRegisterDuplicate
	MetricPasswordUpgraded        = internalmetrics.MetricPasswordUpgraded
	MetricValidateSuccess         = internalmetrics.MetricValidateSuccess
	MetricValidateFailure         = internalmetrics.MetricValidateFailure
	// MetricLoginLatency and MetricRefreshLatency are histograms.
	MetricLoginLatency   = internalmetrics.MetricLoginLatency
	MetricRefreshLatency = internalmetrics.MetricRefreshLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance configured by cfg. When Enabled is
// false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
