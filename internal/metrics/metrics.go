// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/dsmark/internal/ruleset"
)

// Pipeline stages used as the stage label.
const (
	StageReceived  = "received"
	StageDecoded   = "decoded"
	StageSkipped   = "skipped"
	StageRewritten = "rewritten"
	StageEmitted   = "emitted"
	StageEmitError = "emit_error"
)

var (
	// PipelinePacketsTotal counts packets by pipeline stage
	PipelinePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsmark_packets_total",
			Help: "Total number of packets seen by pipeline stage",
		},
		[]string{"stage"},
	)

	// VerdictsTotal counts final verdicts handed to the sink
	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsmark_verdicts_total",
			Help: "Total number of packet verdicts",
		},
		[]string{"verdict"},
	)

	// PipelineLatencySeconds measures per-packet processing latency
	PipelineLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dsmark_pipeline_latency_seconds",
			Help:    "Latency of pipeline processing stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
		[]string{"stage"},
	)

	// CaptureDropsTotal counts packets the capturer reported as lost
	CaptureDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dsmark_capture_drops_total",
			Help: "Total number of packets dropped before reaching the pipeline",
		},
	)
)

var ruleDesc = prometheus.NewDesc(
	"dsmark_rule_packets_total",
	"Per-rule packet counters",
	[]string{"table", "rule", "result"},
	nil,
)

// RuleCollector exports the counters a rule table keeps itself. Values are
// read at scrape time, so the hot path touches only its own atomics.
type RuleCollector struct {
	table *ruleset.Table
}

// NewRuleCollector creates a collector for table.
func NewRuleCollector(table *ruleset.Table) *RuleCollector {
	return &RuleCollector{table: table}
}

// Describe implements prometheus.Collector.
func (c *RuleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- ruleDesc
}

// Collect implements prometheus.Collector.
func (c *RuleCollector) Collect(ch chan<- prometheus.Metric) {
	name := c.table.Name()
	for _, s := range c.table.Stats() {
		ch <- prometheus.MustNewConstMetric(ruleDesc, prometheus.CounterValue, float64(s.Evaluated), name, s.Name, "evaluated")
		ch <- prometheus.MustNewConstMetric(ruleDesc, prometheus.CounterValue, float64(s.Matched), name, s.Name, "matched")
		ch <- prometheus.MustNewConstMetric(ruleDesc, prometheus.CounterValue, float64(s.Rewritten), name, s.Name, "rewritten")
		ch <- prometheus.MustNewConstMetric(ruleDesc, prometheus.CounterValue, float64(s.Dropped), name, s.Name, "dropped")
	}
}

// RegisterRules registers a collector for table with the default registry.
// The returned function unregisters it.
func RegisterRules(table *ruleset.Table) (func(), error) {
	c := NewRuleCollector(table)
	if err := prometheus.Register(c); err != nil {
		return nil, err
	}
	return func() { prometheus.Unregister(c) }, nil
}
