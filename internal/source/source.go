// Package source provides byte producers for the capture decoder.
package source

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"firestige.xyz/pcapstream/internal/core"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 64 * 1024

// Source produces the raw bytes of one capture stream in chunks.
//
// ReadChunk returns io.EOF once the stream is exhausted. While the source is
// paused ReadChunk blocks until Resume, Close or context cancellation. The
// returned slice is only valid until the next call.
type Source interface {
	ReadChunk(ctx context.Context) ([]byte, error)
	Pause() error
	Resume() error
	Paused() bool
	Close() error
}

// Option configures a ReaderSource.
type Option func(*ReaderSource)

// WithChunkSize sets the maximum number of bytes returned per ReadChunk.
func WithChunkSize(n int) Option {
	return func(s *ReaderSource) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithName labels the source in logs and sink metadata.
func WithName(name string) Option {
	return func(s *ReaderSource) {
		s.name = name
	}
}

// ReaderSource adapts an io.Reader to Source. If the reader is also an
// io.Closer it is closed with the source.
type ReaderSource struct {
	r         io.Reader
	name      string
	chunkSize int
	buf       []byte
	pending   error // error delivered by Read alongside data

	mu      sync.Mutex
	paused  bool
	resumed chan struct{} // closed on Resume

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error

	bytesRead atomic.Uint64
}

// NewReaderSource wraps r.
func NewReaderSource(r io.Reader, opts ...Option) *ReaderSource {
	s := &ReaderSource{
		r:         r,
		name:      "reader",
		chunkSize: DefaultChunkSize,
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source label.
func (s *ReaderSource) Name() string { return s.name }

// BytesRead returns the number of bytes handed out so far.
func (s *ReaderSource) BytesRead() uint64 { return s.bytesRead.Load() }

// ReadChunk implements Source.
func (s *ReaderSource) ReadChunk(ctx context.Context) ([]byte, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if s.pending != nil {
		err := s.pending
		s.pending = nil
		return nil, err
	}
	if s.buf == nil {
		s.buf = make([]byte, s.chunkSize)
	}

	n, err := s.r.Read(s.buf)
	if s.isClosed() {
		return nil, core.ErrSessionClosed
	}
	if n > 0 {
		s.bytesRead.Add(uint64(n))
		if err != nil {
			s.pending = err
		}
		return s.buf[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return s.buf[:0], nil
}

// wait blocks while the source is paused.
func (s *ReaderSource) wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		paused, resumed := s.paused, s.resumed
		s.mu.Unlock()

		if s.isClosed() {
			return core.ErrSessionClosed
		}
		if !paused {
			return nil
		}
		select {
		case <-resumed:
		case <-s.closed:
			return core.ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pause stops further chunks from being produced until Resume.
func (s *ReaderSource) Pause() error {
	if s.isClosed() {
		return core.ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		s.paused = true
		s.resumed = make(chan struct{})
	}
	return nil
}

// Resume releases a paused source.
func (s *ReaderSource) Resume() error {
	if s.isClosed() {
		return core.ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.paused = false
		close(s.resumed)
	}
	return nil
}

// Paused reports whether the source is paused.
func (s *ReaderSource) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Close cancels the source. Blocked and later ReadChunk calls return
// core.ErrSessionClosed. Close is idempotent.
func (s *ReaderSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if c, ok := s.r.(io.Closer); ok {
			s.closeErr = c.Close()
		}
	})
	return s.closeErr
}

func (s *ReaderSource) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// IsEnd reports whether err marks the end of the stream or a cancelled
// session rather than a failure of the underlying reader.
func IsEnd(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, core.ErrSessionClosed)
}
