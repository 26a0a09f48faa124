// Package decoder implements the incremental libpcap 2.4 decoder: a byte
// accumulator and a three-stage state machine that turns arbitrarily
// fragmented input into global header, packet header and packet records.
//
// The decoder performs no I/O and never blocks. Callers Feed chunks and Drain
// the records that became decodable.
package decoder

import (
	"firestige.xyz/pcapstream/internal/core"
)

// State is the parse stage of a session.
type State uint8

const (
	AwaitGlobalHeader State = iota
	AwaitPacketHeader
	AwaitPacketBody
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitGlobalHeader:
		return "await_global_header"
	case AwaitPacketHeader:
		return "await_packet_header"
	case AwaitPacketBody:
		return "await_packet_body"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ResultKind discriminates the outcome of a single Step.
type ResultKind uint8

const (
	NeedMoreInput ResultKind = iota
	Produced
	Fatal
)

// RecordKind identifies which value a Record carries.
type RecordKind uint8

const (
	RecordGlobalHeader RecordKind = iota + 1
	RecordPacketHeader
	RecordPacket
)

// Record is one fully decoded structural unit of the file.
type Record struct {
	Kind         RecordKind
	GlobalHeader core.GlobalHeader
	PacketHeader core.PacketHeader
	Packet       core.Packet
}

// Result is returned by Step.
type Result struct {
	Kind   ResultKind
	Record Record // Valid when Kind == Produced
	Err    error  // Valid when Kind == Fatal
}

// Options tune validation. The zero value decodes like libpcap readers that
// accept anything with a known magic number and a plausible version.
type Options struct {
	// StrictVersion accepts only format version exactly 2.4.
	StrictVersion bool
	// MaxCapturedLength rejects packet headers declaring a larger body. 0 disables.
	MaxCapturedLength uint32
}

// Decoder is the per-stream session state. It is not safe for concurrent use.
type Decoder struct {
	opts   Options
	buf    *Accumulator
	state  State
	endian core.Endianness
	global core.GlobalHeader
	seen   bool              // global header decoded
	header core.PacketHeader // current header while awaiting its body
	err    error
}

// New creates a decoder in the AwaitGlobalHeader state.
func New(opts Options) *Decoder {
	return &Decoder{
		opts:  opts,
		buf:   NewAccumulator(),
		state: AwaitGlobalHeader,
	}
}

// Feed appends a chunk of input. Input is ignored once the session failed.
func (d *Decoder) Feed(chunk []byte) {
	if d.state == Failed {
		return
	}
	d.buf.Append(chunk)
}

// Step attempts exactly one decode for the current state.
func (d *Decoder) Step() Result {
	switch d.state {
	case AwaitGlobalHeader:
		return d.stepGlobalHeader()
	case AwaitPacketHeader:
		return d.stepPacketHeader()
	case AwaitPacketBody:
		return d.stepPacketBody()
	default:
		return Result{Kind: Fatal, Err: d.err}
	}
}

// Drain steps the state machine while it makes progress, handing every
// produced record to fn in file order. It returns nil when more input is
// needed, the fatal error if the stream is malformed, or the first error
// returned by fn.
func (d *Decoder) Drain(fn func(Record) error) error {
	for {
		res := d.Step()
		switch res.Kind {
		case NeedMoreInput:
			return nil
		case Fatal:
			return res.Err
		}
		if err := fn(res.Record); err != nil {
			return err
		}
	}
}

func (d *Decoder) stepGlobalHeader() Result {
	b, ok := d.buf.TryTake(core.GlobalHeaderLen)
	if !ok {
		return Result{Kind: NeedMoreInput}
	}
	endian, err := detectEndianness(b)
	if err != nil {
		return d.fail(err)
	}
	d.endian = endian
	gh := parseGlobalHeader(b, endian.ByteOrder())
	if err := checkVersion(gh, d.opts.StrictVersion); err != nil {
		return d.fail(err)
	}
	d.global = gh
	d.seen = true
	d.state = AwaitPacketHeader
	return Result{Kind: Produced, Record: Record{Kind: RecordGlobalHeader, GlobalHeader: gh}}
}

func (d *Decoder) stepPacketHeader() Result {
	b, ok := d.buf.TryTake(core.PacketHeaderLen)
	if !ok {
		return Result{Kind: NeedMoreInput}
	}
	ph := parsePacketHeader(b, d.endian.ByteOrder())
	if limit := d.opts.MaxCapturedLength; limit > 0 && ph.CapturedLength > limit {
		return d.fail(core.PacketTooLargeError(ph.CapturedLength, limit))
	}
	d.header = ph
	d.state = AwaitPacketBody
	return Result{Kind: Produced, Record: Record{Kind: RecordPacketHeader, PacketHeader: ph}}
}

func (d *Decoder) stepPacketBody() Result {
	n := uint64(d.header.CapturedLength)
	if n > uint64(d.buf.Available()) {
		return Result{Kind: NeedMoreInput}
	}
	body, ok := d.buf.TryTake(int(n))
	if !ok {
		return Result{Kind: NeedMoreInput}
	}
	d.state = AwaitPacketHeader
	pkt := core.Packet{Header: d.header, Data: body}
	return Result{Kind: Produced, Record: Record{Kind: RecordPacket, Packet: pkt}}
}

// fail moves the session to its terminal state and releases buffered input.
func (d *Decoder) fail(err error) Result {
	d.err = err
	d.state = Failed
	d.buf.Reset()
	return Result{Kind: Fatal, Err: err}
}

// State returns the current parse stage.
func (d *Decoder) State() State { return d.state }

// Err returns the terminal error, if any.
func (d *Decoder) Err() error { return d.err }

// Endianness returns the detected byte order, EndianUnknown before the
// global header is decoded.
func (d *Decoder) Endianness() core.Endianness { return d.endian }

// GlobalHeader returns the decoded global header and whether it is available.
func (d *Decoder) GlobalHeader() (core.GlobalHeader, bool) {
	return d.global, d.seen
}

// Buffered returns the number of held but unconsumed bytes.
func (d *Decoder) Buffered() int { return d.buf.Available() }

// Pending reports the current stage together with the number of buffered
// bytes not yet consumed by a record.
func (d *Decoder) Pending() (State, int) { return d.state, d.buf.Available() }

// Truncated reports whether a partial record is buffered, i.e. ending the
// stream now would silently drop trailing bytes.
func (d *Decoder) Truncated() bool {
	if d.state == Failed {
		return false
	}
	return d.buf.Available() > 0 || d.state == AwaitPacketBody
}

// Close releases buffered input. The session cannot be reused.
func (d *Decoder) Close() {
	d.buf.Reset()
}
