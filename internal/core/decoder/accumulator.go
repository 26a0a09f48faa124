package decoder

// Accumulator holds bytes that arrived from the source but have not been
// consumed yet. Storage is a deque of chunks and a read cursor into the head
// chunk, so only the unconsumed backlog is retained. Stored chunks are never
// written after Append, which keeps slices returned by TryTake stable.
type Accumulator struct {
	chunks    [][]byte
	head      int // index of the first live chunk
	off       int // read cursor inside chunks[head]
	available int
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append copies chunk to the tail. The caller may reuse chunk afterwards.
func (a *Accumulator) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	a.chunks = append(a.chunks, c)
	a.available += len(c)
}

// Available reports how many bytes are currently held.
func (a *Accumulator) Available() int {
	return a.available
}

// TryTake returns the first n bytes and advances the read cursor, or
// (nil, false) without side effects if fewer than n bytes are held.
func (a *Accumulator) TryTake(n int) ([]byte, bool) {
	if n < 0 || n > a.available {
		return nil, false
	}
	if n == 0 {
		return []byte{}, true
	}

	first := a.chunks[a.head][a.off:]
	if n <= len(first) {
		// Zero-copy view; the chunk is read-only from here on.
		out := first[:n:n]
		a.advance(n)
		return out, true
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		cur := a.chunks[a.head][a.off:]
		need := n - len(out)
		if need > len(cur) {
			need = len(cur)
		}
		out = append(out, cur[:need]...)
		a.advance(need)
	}
	return out, true
}

// advance moves the read cursor n bytes forward inside the head chunk and
// releases the chunk once it is fully consumed.
func (a *Accumulator) advance(n int) {
	a.off += n
	a.available -= n
	if a.off < len(a.chunks[a.head]) {
		return
	}
	a.chunks[a.head] = nil
	a.head++
	a.off = 0
	a.compact()
}

// compact drops released slots from the front of the deque once they make up
// at least half of it, so the slot slice does not grow with file history.
func (a *Accumulator) compact() {
	if a.head == len(a.chunks) {
		a.chunks = a.chunks[:0]
		a.head = 0
		return
	}
	if a.head < 16 || a.head*2 < len(a.chunks) {
		return
	}
	n := copy(a.chunks, a.chunks[a.head:])
	for i := n; i < len(a.chunks); i++ {
		a.chunks[i] = nil
	}
	a.chunks = a.chunks[:n]
	a.head = 0
}

// Reset drops all held bytes.
func (a *Accumulator) Reset() {
	for i := range a.chunks {
		a.chunks[i] = nil
	}
	a.chunks = a.chunks[:0]
	a.head = 0
	a.off = 0
	a.available = 0
}
