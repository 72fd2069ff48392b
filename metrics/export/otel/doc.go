// Package otel exposes [authcore.Engine] metrics as OpenTelemetry observable
// instruments.
//
// Each counter becomes an Int64ObservableCounter and each latency histogram
// becomes one Int64ObservableGauge per cumulative bucket plus a count gauge.
// A single callback reads the engine snapshot per collection. Callers own the
// MeterProvider.
package otel
