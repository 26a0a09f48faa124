package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"firestige.xyz/pcapstream/internal/core"
	"firestige.xyz/pcapstream/internal/core/decoder"
	"firestige.xyz/pcapstream/internal/metrics"
	"firestige.xyz/pcapstream/internal/source"
	"firestige.xyz/pcapstream/internal/source/file"
)

// Reader is the pull counterpart of Parser: the source is only read when the
// caller asks for a record the buffered bytes cannot complete. Ordering, error
// and end semantics match Parser: a terminal error is returned once, after
// which every call returns io.EOF. Reader is not safe for concurrent use.
type Reader struct {
	src    source.Source
	dec    *decoder.Decoder
	logger *slog.Logger

	done    bool
	metrics Metrics
}

// NewReader creates a pull reader over src.
func NewReader(src source.Source, opts ...Option) *Reader {
	o := newOptions(opts)
	return &Reader{
		src:    src,
		dec:    decoder.New(o.decoder),
		logger: o.logger,
	}
}

// OpenReader opens the capture file at path for pulling.
func OpenReader(path string, opts ...Option) (*Reader, error) {
	o := newOptions(opts)
	src, err := file.Open(path, source.WithChunkSize(o.chunkSize))
	if err != nil {
		return nil, err
	}
	r := NewReader(src, opts...)
	r.logger = r.logger.With("file", src.Name())
	return r, nil
}

// GlobalHeader decodes up to and returns the global header.
func (r *Reader) GlobalHeader(ctx context.Context) (core.GlobalHeader, error) {
	for {
		if gh, ok := r.dec.GlobalHeader(); ok {
			return gh, nil
		}
		if _, err := r.next(ctx); err != nil {
			return core.GlobalHeader{}, err
		}
	}
}

// Next returns the next complete packet.
func (r *Reader) Next(ctx context.Context) (core.Packet, error) {
	for {
		rec, err := r.next(ctx)
		if err != nil {
			return core.Packet{}, err
		}
		if rec.Kind == decoder.RecordPacket {
			return rec.Packet, nil
		}
	}
}

// NextRecord returns the next decoded record of any kind, for callers that
// want headers as separate steps.
func (r *Reader) NextRecord(ctx context.Context) (decoder.Record, error) {
	return r.next(ctx)
}

func (r *Reader) next(ctx context.Context) (decoder.Record, error) {
	if r.done {
		return decoder.Record{}, io.EOF
	}
	for {
		res := r.dec.Step()
		switch res.Kind {
		case decoder.Produced:
			if res.Record.Kind == decoder.RecordPacket {
				r.metrics.Packets.Add(1)
				r.metrics.PayloadBytes.Add(uint64(len(res.Record.Packet.Data)))
				metrics.PacketsTotal.Inc()
				metrics.PayloadBytesTotal.Add(float64(len(res.Record.Packet.Data)))
			}
			return res.Record, nil
		case decoder.Fatal:
			return decoder.Record{}, r.fail(res.Err)
		}

		chunk, err := r.src.ReadChunk(ctx)
		if err != nil {
			switch {
			case source.IsEnd(err):
				if errors.Is(err, io.EOF) && r.dec.Truncated() {
					metrics.TruncatedSessionsTotal.Inc()
					r.logger.Debug("dropping truncated trailing record",
						"state", r.dec.State().String(),
						"buffered", r.dec.Buffered(),
					)
				}
				r.end()
				return decoder.Record{}, io.EOF
			case ctx.Err() != nil:
				r.end()
				return decoder.Record{}, err
			default:
				return decoder.Record{}, r.fail(err)
			}
		}
		r.metrics.Chunks.Add(1)
		r.metrics.Bytes.Add(uint64(len(chunk)))
		metrics.ChunksTotal.Inc()
		metrics.BytesTotal.Add(float64(len(chunk)))
		r.dec.Feed(chunk)
	}
}

func (r *Reader) fail(err error) error {
	metrics.ObserveError(err)
	r.logger.Debug("session failed", "error", err)
	r.end()
	return err
}

func (r *Reader) end() {
	r.done = true
	r.dec.Close()
	if err := r.src.Close(); err != nil {
		r.logger.Debug("source close failed", "error", err)
	}
}

// Stats returns session statistics.
func (r *Reader) Stats() Stats {
	return r.metrics.Snapshot()
}

// Close releases the source. Later calls return io.EOF.
func (r *Reader) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	r.dec.Close()
	return r.src.Close()
}
