package pipeline

import (
	"sync/atomic"
)

// Metrics contains per-session counters. The Prometheus collectors in
// internal/metrics aggregate the same events across sessions.
type Metrics struct {
	Chunks       atomic.Uint64
	Bytes        atomic.Uint64
	Packets      atomic.Uint64
	PayloadBytes atomic.Uint64
	Pauses       atomic.Uint64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Chunks:       m.Chunks.Load(),
		Bytes:        m.Bytes.Load(),
		Packets:      m.Packets.Load(),
		PayloadBytes: m.PayloadBytes.Load(),
		Pauses:       m.Pauses.Load(),
	}
}

// Stats represents session statistics.
type Stats struct {
	Chunks       uint64
	Bytes        uint64
	Packets      uint64
	PayloadBytes uint64
	Pauses       uint64
}
