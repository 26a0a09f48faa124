// Package pipeline drives the capture decoder over a byte source and delivers
// decoded records to consumers, either pushed as events (Parser, Queue) or
// pulled one packet at a time (Reader).
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"firestige.xyz/pcapstream/internal/core"
	"firestige.xyz/pcapstream/internal/core/decoder"
	"firestige.xyz/pcapstream/internal/metrics"
	"firestige.xyz/pcapstream/internal/source"
	"firestige.xyz/pcapstream/internal/source/file"
)

// errStopped aborts a drain when the session is closed from a listener.
var errStopped = errors.New("pcapstream: session stopping")

// Parser pushes decoded records to registered listeners.
//
// Listeners run synchronously on the driver goroutine, in registration order,
// and must be registered before Start. For every packet the order is
// packet header, packet data, packet. A fatal error is followed by end;
// end is delivered exactly once and nothing is delivered after it.
type Parser struct {
	src    source.Source
	dec    *decoder.Decoder
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc

	onGlobalHeader []func(core.GlobalHeader)
	onPacketHeader []func(core.PacketHeader)
	onPacketData   []func([]byte)
	onPacket       []func(core.Packet)
	onError        []func(error)
	onEnd          []func()

	global  atomic.Pointer[core.GlobalHeader]
	closing atomic.Bool
	done    chan struct{}
	err     error

	metrics Metrics
}

// New creates a parser over src. Decoding does not begin until Start or Run.
func New(src source.Source, opts ...Option) *Parser {
	o := newOptions(opts)
	return &Parser{
		src:    src,
		dec:    decoder.New(o.decoder),
		logger: o.logger,
		done:   make(chan struct{}),
	}
}

// NewFromFile opens the capture file at path and creates a parser over it.
func NewFromFile(path string, opts ...Option) (*Parser, error) {
	o := newOptions(opts)
	src, err := file.Open(path, source.WithChunkSize(o.chunkSize))
	if err != nil {
		return nil, err
	}
	p := New(src, opts...)
	p.logger = p.logger.With("file", src.Name())
	return p, nil
}

func (p *Parser) register(fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return core.ErrAlreadyStarted
	}
	fn()
	return nil
}

// OnGlobalHeader registers a listener for the global header.
func (p *Parser) OnGlobalHeader(fn func(core.GlobalHeader)) error {
	return p.register(func() { p.onGlobalHeader = append(p.onGlobalHeader, fn) })
}

// OnPacketHeader registers a listener for packet headers.
func (p *Parser) OnPacketHeader(fn func(core.PacketHeader)) error {
	return p.register(func() { p.onPacketHeader = append(p.onPacketHeader, fn) })
}

// OnPacketData registers a listener for packet bodies.
func (p *Parser) OnPacketData(fn func([]byte)) error {
	return p.register(func() { p.onPacketData = append(p.onPacketData, fn) })
}

// OnPacket registers a listener for header and body pairs.
func (p *Parser) OnPacket(fn func(core.Packet)) error {
	return p.register(func() { p.onPacket = append(p.onPacket, fn) })
}

// OnError registers a listener for the terminal error.
func (p *Parser) OnError(fn func(error)) error {
	return p.register(func() { p.onError = append(p.onError, fn) })
}

// OnEnd registers a listener for the end of the session.
func (p *Parser) OnEnd(fn func()) error {
	return p.register(func() { p.onEnd = append(p.onEnd, fn) })
}

func (p *Parser) begin(ctx context.Context) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing.Load() {
		return nil, core.ErrSessionClosed
	}
	if p.started {
		return nil, core.ErrAlreadyStarted
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	return ctx, nil
}

// Start begins decoding on a new goroutine.
func (p *Parser) Start(ctx context.Context) error {
	ctx, err := p.begin(ctx)
	if err != nil {
		return err
	}
	go func() {
		p.finish(p.loop(ctx))
	}()
	return nil
}

// Run decodes the whole stream on the calling goroutine and returns the
// terminal error, nil for a clean or truncated end.
func (p *Parser) Run(ctx context.Context) error {
	ctx, err := p.begin(ctx)
	if err != nil {
		return err
	}
	p.finish(p.loop(ctx))
	return p.err
}

// Wait blocks until the session has ended and returns its terminal error.
func (p *Parser) Wait() error {
	<-p.done
	return p.err
}

// Done is closed once end has been delivered.
func (p *Parser) Done() <-chan struct{} {
	return p.done
}

// Pause stops the source from producing further chunks. Records already
// decodable from buffered bytes are still delivered.
func (p *Parser) Pause() error {
	if p.src.Paused() {
		return nil
	}
	if err := p.src.Pause(); err != nil {
		return err
	}
	p.metrics.Pauses.Add(1)
	metrics.SourcePausesTotal.Inc()
	metrics.SourcesPaused.Inc()
	p.logger.Debug("source paused")
	return nil
}

// Resume lets a paused source produce chunks again.
func (p *Parser) Resume() error {
	if !p.src.Paused() {
		return nil
	}
	if err := p.src.Resume(); err != nil {
		return err
	}
	metrics.SourcesPaused.Dec()
	p.logger.Debug("source resumed")
	return nil
}

// Close tears the session down. Listeners receive end but no error, and
// nothing after the record currently being delivered. Close is idempotent.
func (p *Parser) Close() error {
	p.closing.Store(true)
	p.mu.Lock()
	if !p.started {
		p.started = true
		p.mu.Unlock()
		err := p.src.Close()
		p.finish(nil)
		return err
	}
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return p.src.Close()
}

// GlobalHeader returns the global header once it has been decoded.
func (p *Parser) GlobalHeader() (core.GlobalHeader, bool) {
	if gh := p.global.Load(); gh != nil {
		return *gh, true
	}
	return core.GlobalHeader{}, false
}

// Buffered returns the number of bytes received but not yet decoded. Only
// meaningful from a listener or after the session ended.
func (p *Parser) Buffered() int {
	return p.dec.Buffered()
}

// Stats returns session statistics.
func (p *Parser) Stats() Stats {
	return p.metrics.Snapshot()
}

// loop feeds chunks to the decoder until the stream ends. It returns the
// terminal error, or nil for a clean end, truncation or teardown.
func (p *Parser) loop(ctx context.Context) error {
	for {
		chunk, err := p.src.ReadChunk(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				p.endOfStream()
				return nil
			case p.closing.Load() || ctx.Err() != nil || errors.Is(err, core.ErrSessionClosed):
				p.logger.Debug("session torn down", "buffered", p.dec.Buffered())
				return nil
			default:
				// Upstream failures are passed through unchanged.
				return err
			}
		}
		if len(chunk) == 0 {
			continue
		}

		p.metrics.Chunks.Add(1)
		p.metrics.Bytes.Add(uint64(len(chunk)))
		metrics.ChunksTotal.Inc()
		metrics.BytesTotal.Add(float64(len(chunk)))

		p.dec.Feed(chunk)
		if err := p.dec.Drain(p.emit); err != nil {
			if errors.Is(err, errStopped) {
				return nil
			}
			return err
		}
	}
}

func (p *Parser) endOfStream() {
	if !p.dec.Truncated() {
		return
	}
	metrics.TruncatedSessionsTotal.Inc()
	p.logger.Debug("dropping truncated trailing record",
		"state", p.dec.State().String(),
		"buffered", p.dec.Buffered(),
	)
}

// emit delivers one record to listeners.
func (p *Parser) emit(rec decoder.Record) error {
	switch rec.Kind {
	case decoder.RecordGlobalHeader:
		gh := rec.GlobalHeader
		p.global.Store(&gh)
		p.logger.Debug("global header decoded",
			"endianness", p.dec.Endianness().String(),
			"version_major", gh.MajorVersion,
			"version_minor", gh.MinorVersion,
			"snaplen", gh.SnapshotLength,
			"link_type", gh.LinkType().String(),
		)
		for _, fn := range p.onGlobalHeader {
			fn(gh)
		}
	case decoder.RecordPacketHeader:
		for _, fn := range p.onPacketHeader {
			fn(rec.PacketHeader)
		}
	case decoder.RecordPacket:
		p.metrics.Packets.Add(1)
		p.metrics.PayloadBytes.Add(uint64(len(rec.Packet.Data)))
		metrics.PacketsTotal.Inc()
		metrics.PayloadBytesTotal.Add(float64(len(rec.Packet.Data)))
		for _, fn := range p.onPacketData {
			fn(rec.Packet.Data)
		}
		for _, fn := range p.onPacket {
			fn(rec.Packet)
		}
	}
	if p.closing.Load() {
		return errStopped
	}
	return nil
}

// finish releases the session and delivers error and end.
func (p *Parser) finish(err error) {
	if cerr := p.src.Close(); cerr != nil {
		p.logger.Debug("source close failed", "error", cerr)
	}
	if p.src.Paused() {
		metrics.SourcesPaused.Dec()
	}
	p.dec.Close()

	if err != nil {
		p.err = err
		metrics.ObserveError(err)
		p.logger.Debug("session failed", "error", err)
		for _, fn := range p.onError {
			fn(err)
		}
	}
	for _, fn := range p.onEnd {
		fn()
	}
	close(p.done)
}
