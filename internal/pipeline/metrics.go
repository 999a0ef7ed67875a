// Package pipeline implements pipeline metrics.
package pipeline

import (
	"sync/atomic"
)

// Metrics contains per-pipeline counters shared by all workers.
type Metrics struct {
	Received   atomic.Uint64
	Decoded    atomic.Uint64
	Skipped    atomic.Uint64
	Rewritten  atomic.Uint64
	Dropped    atomic.Uint64
	Emitted    atomic.Uint64
	EmitErrors atomic.Uint64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	m.Received.Store(0)
	m.Decoded.Store(0)
	m.Skipped.Store(0)
	m.Rewritten.Store(0)
	m.Dropped.Store(0)
	m.Emitted.Store(0)
	m.EmitErrors.Store(0)
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Received:   m.Received.Load(),
		Decoded:    m.Decoded.Load(),
		Skipped:    m.Skipped.Load(),
		Rewritten:  m.Rewritten.Load(),
		Dropped:    m.Dropped.Load(),
		Emitted:    m.Emitted.Load(),
		EmitErrors: m.EmitErrors.Load(),
	}
}

// Stats represents pipeline statistics.
type Stats struct {
	Received   uint64
	Decoded    uint64
	Skipped    uint64
	Rewritten  uint64
	Dropped    uint64
	Emitted    uint64
	EmitErrors uint64
}
