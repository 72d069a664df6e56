// Package metrics defines the sinks that record dispatch activity. Sinks like
// PromSink and InfluxSink live in infra/metrics and register themselves in
// the sink registry; NewMetricsSink combines several configured sinks into a
// MultiSink. Records are produced from the event bus by the collector in
// infra/metrics.
package metrics
