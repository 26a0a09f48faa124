package pipeline

import (
	"context"
	"io"
	"sync"

	"firestige.xyz/pcapstream/internal/core"
	"firestige.xyz/pcapstream/internal/source"
)

// scriptedSource replays fixed chunks, then returns err (io.EOF by default).
type scriptedSource struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error
	reads  int
	closed bool

	gate *source.ReaderSource // reuses the real pause gate
}

func newScriptedSource(chunks [][]byte, err error) *scriptedSource {
	if err == nil {
		err = io.EOF
	}
	return &scriptedSource{
		chunks: chunks,
		err:    err,
		gate:   source.NewReaderSource(eofReader{}),
	}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

func (s *scriptedSource) ReadChunk(ctx context.Context) ([]byte, error) {
	// The gate's own reader is empty, so ReadChunk only blocks while paused
	// and reports io.EOF once released.
	if _, err := s.gate.ReadChunk(ctx); err != io.EOF {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, core.ErrSessionClosed
	}
	s.reads++
	if len(s.chunks) == 0 {
		return nil, s.err
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *scriptedSource) Pause() error  { return s.gate.Pause() }
func (s *scriptedSource) Resume() error { return s.gate.Resume() }
func (s *scriptedSource) Paused() bool  { return s.gate.Paused() }

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.gate.Close()
}

func (s *scriptedSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *scriptedSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// recorder subscribes to every parser event and keeps them in order.
type recorder struct {
	events []Event
}

func record(p *Parser) *recorder {
	r := &recorder{}
	_ = p.OnGlobalHeader(func(h core.GlobalHeader) { r.add(Event{Kind: EventGlobalHeader, GlobalHeader: h}) })
	_ = p.OnPacketHeader(func(h core.PacketHeader) { r.add(Event{Kind: EventPacketHeader, PacketHeader: h}) })
	_ = p.OnPacketData(func(b []byte) { r.add(Event{Kind: EventPacketData, Data: b}) })
	_ = p.OnPacket(func(pkt core.Packet) { r.add(Event{Kind: EventPacket, Packet: pkt}) })
	_ = p.OnError(func(err error) { r.add(Event{Kind: EventError, Err: err}) })
	_ = p.OnEnd(func() { r.add(Event{Kind: EventEnd}) })
	return r
}

func (r *recorder) add(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) packets() []core.Packet {
	var out []core.Packet
	for _, ev := range r.events {
		if ev.Kind == EventPacket {
			out = append(out, ev.Packet)
		}
	}
	return out
}
