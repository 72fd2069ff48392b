// Package prometheus renders [authcore.Engine] metrics in the Prometheus text
// exposition format.
//
// Counters are named authcore_*_total. Login and refresh latency histograms
// appear only when latency histograms are enabled on the engine. Nothing is
// registered globally; callers mount [Exporter.Handler] themselves.
package prometheus
