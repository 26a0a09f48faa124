// Package metrics holds the pcapstream Prometheus collectors and the
// endpoint that serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksTotal counts byte chunks delivered by sources
	ChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapstream_chunks_total",
			Help: "Total number of byte chunks read from sources",
		},
	)

	// BytesTotal counts raw capture bytes fed to decoders
	BytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapstream_bytes_total",
			Help: "Total number of capture file bytes fed to decoders",
		},
	)

	// PacketsTotal counts decoded packets
	PacketsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapstream_packets_total",
			Help: "Total number of packets decoded",
		},
	)

	// PayloadBytesTotal counts captured payload bytes handed to consumers
	PayloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapstream_payload_bytes_total",
			Help: "Total number of captured payload bytes emitted",
		},
	)

	// DecodeErrorsTotal counts terminal session errors by kind
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapstream_decode_errors_total",
			Help: "Total number of sessions ended by an error",
		},
		[]string{"kind"}, // unknown_magic | unsupported_version | packet_too_large | source
	)

	// TruncatedSessionsTotal counts streams that ended inside a record
	TruncatedSessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapstream_truncated_sessions_total",
			Help: "Total number of sessions whose trailing partial record was dropped",
		},
	)

	// SourcePausesTotal counts flow-control pauses
	SourcePausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapstream_source_pauses_total",
			Help: "Total number of times a source was paused by its consumer",
		},
	)

	// SourcesPaused tracks sources currently paused
	SourcesPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcapstream_sources_paused",
			Help: "Number of sources currently paused by backpressure",
		},
	)

	// QueueDepth tracks buffered events awaiting a consumer
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcapstream_queue_depth",
			Help: "Number of decoded events buffered for consumers",
		},
	)
)
