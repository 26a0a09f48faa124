package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"

	"firestige.xyz/pcapstream/internal/core"
	"firestige.xyz/pcapstream/internal/metrics"
)

// EventKind identifies a Parser event.
type EventKind uint8

const (
	EventGlobalHeader EventKind = iota + 1
	EventPacketHeader
	EventPacketData
	EventPacket
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventGlobalHeader:
		return "globalHeader"
	case EventPacketHeader:
		return "packetHeader"
	case EventPacketData:
		return "packetData"
	case EventPacket:
		return "packet"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Event is one Parser notification. Only the field matching Kind is set.
type Event struct {
	Kind         EventKind
	GlobalHeader core.GlobalHeader
	PacketHeader core.PacketHeader
	Data         []byte
	Packet       core.Packet
	Err          error
}

// QueueConfig bounds the events buffered between parser and consumer.
type QueueConfig struct {
	Capacity      int
	HighWatermark float64 // pause the source at Capacity*HighWatermark events
	LowWatermark  float64 // resume at Capacity*LowWatermark events
}

// DefaultQueueConfig returns the default backpressure settings.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Capacity:      1024,
		HighWatermark: 0.8,
		LowWatermark:  0.3,
	}
}

// Validate checks the watermarks.
func (c QueueConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: queue capacity must be positive, got %d", core.ErrConfigInvalid, c.Capacity)
	}
	if c.HighWatermark <= 0 || c.HighWatermark > 1 {
		return fmt.Errorf("%w: high watermark must be in (0, 1], got %v", core.ErrConfigInvalid, c.HighWatermark)
	}
	if c.LowWatermark < 0 || c.LowWatermark >= c.HighWatermark {
		return fmt.Errorf("%w: low watermark must be in [0, high), got %v", core.ErrConfigInvalid, c.LowWatermark)
	}
	return nil
}

// Queue buffers Parser events for a consumer on another goroutine. When the
// backlog reaches the high watermark the parser's source is paused, and Recv
// resumes it once the backlog has drained to the low watermark.
type Queue struct {
	p    *Parser
	ch   chan Event
	high int
	low  int

	mu     sync.Mutex
	paused bool

	quit     chan struct{}
	quitOnce sync.Once
	ended    bool // consumer side only
}

// NewQueue subscribes a queue to all events of p. p must not be started yet.
func NewQueue(p *Parser, cfg QueueConfig) (*Queue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	high := int(float64(cfg.Capacity) * cfg.HighWatermark)
	if high < 1 {
		high = 1
	}
	q := &Queue{
		p:    p,
		ch:   make(chan Event, cfg.Capacity),
		high: high,
		low:  int(float64(cfg.Capacity) * cfg.LowWatermark),
		quit: make(chan struct{}),
	}

	subs := []func() error{
		func() error {
			return p.OnGlobalHeader(func(h core.GlobalHeader) { q.push(Event{Kind: EventGlobalHeader, GlobalHeader: h}) })
		},
		func() error {
			return p.OnPacketHeader(func(h core.PacketHeader) { q.push(Event{Kind: EventPacketHeader, PacketHeader: h}) })
		},
		func() error {
			return p.OnPacketData(func(b []byte) { q.push(Event{Kind: EventPacketData, Data: b}) })
		},
		func() error {
			return p.OnPacket(func(pkt core.Packet) { q.push(Event{Kind: EventPacket, Packet: pkt}) })
		},
		func() error {
			return p.OnError(func(err error) { q.push(Event{Kind: EventError, Err: err}) })
		},
		func() error {
			return p.OnEnd(func() { q.push(Event{Kind: EventEnd}) })
		},
	}
	for _, sub := range subs {
		if err := sub(); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// push runs on the parser's driver goroutine.
func (q *Queue) push(ev Event) {
	if q.closed() {
		return
	}
	select {
	case q.ch <- ev:
	case <-q.quit:
		return
	}
	metrics.QueueDepth.Inc()
	if q.closed() {
		q.drain()
		return
	}

	if ev.Kind == EventEnd {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.paused && len(q.ch) >= q.high {
		if err := q.p.Pause(); err == nil {
			q.paused = true
		}
	}
}

// Recv returns the next event in emission order. After EventEnd has been
// returned, or once the queue is closed, every call returns io.EOF.
func (q *Queue) Recv(ctx context.Context) (Event, error) {
	if q.ended || q.closed() {
		return Event{}, io.EOF
	}
	var ev Event
	select {
	case ev = <-q.ch:
	case <-q.quit:
		return Event{}, io.EOF
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
	metrics.QueueDepth.Dec()

	q.mu.Lock()
	if q.paused && len(q.ch) <= q.low {
		if err := q.p.Resume(); err == nil {
			q.paused = false
		}
	}
	q.mu.Unlock()

	if ev.Kind == EventEnd {
		q.ended = true
	}
	return ev, nil
}

// Paused reports whether the queue currently holds the source paused.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close abandons the queue and tears down the parser. Pending events are
// dropped and Recv returns io.EOF from then on.
func (q *Queue) Close() error {
	q.quitOnce.Do(func() { close(q.quit) })
	err := q.p.Close()
	q.drain()
	return err
}

func (q *Queue) closed() bool {
	select {
	case <-q.quit:
		return true
	default:
		return false
	}
}

// drain discards buffered events so the depth gauge does not keep them.
func (q *Queue) drain() {
	for {
		select {
		case <-q.ch:
			metrics.QueueDepth.Dec()
		default:
			return
		}
	}
}
