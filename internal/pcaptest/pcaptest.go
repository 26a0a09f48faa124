// Package pcaptest builds libpcap capture files for tests.
package pcaptest

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapstream/internal/core"
)

// Packet is one record to write. OrigLen 0 means len(Data).
type Packet struct {
	Seconds uint32
	Micros  uint32
	OrigLen uint32
	Data    []byte
}

func (p Packet) origLen() uint32 {
	if p.OrigLen == 0 {
		return uint32(len(p.Data))
	}
	return p.OrigLen
}

// WriteLE writes a little-endian capture with gopacket's pcapgo writer, the
// layout produced by tcpdump on x86 hosts.
func WriteLE(t testing.TB, snaplen uint32, link layers.LinkType, pkts []Packet) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(snaplen, link))
	for _, p := range pkts {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(int64(p.Seconds), int64(p.Micros)*int64(time.Microsecond)),
			CaptureLength: len(p.Data),
			Length:        int(p.origLen()),
		}
		require.NoError(t, w.WritePacket(ci, p.Data))
	}
	return buf.Bytes()
}

// Build assembles a capture field by field with the given byte order. Unlike
// WriteLE it can produce invalid headers (bad magic, odd versions, captured
// length larger than original length).
func Build(bo binary.ByteOrder, gh core.GlobalHeader, pkts []Packet) []byte {
	out := make([]byte, core.GlobalHeaderLen)
	bo.PutUint32(out[0:4], gh.MagicNumber)
	bo.PutUint16(out[4:6], gh.MajorVersion)
	bo.PutUint16(out[6:8], gh.MinorVersion)
	bo.PutUint32(out[8:12], uint32(gh.GMTOffset))
	bo.PutUint32(out[12:16], gh.TimestampAccuracy)
	bo.PutUint32(out[16:20], gh.SnapshotLength)
	bo.PutUint32(out[20:24], gh.LinkLayerType)
	for _, p := range pkts {
		out = AppendPacket(out, bo, core.PacketHeader{
			TimestampSeconds:      p.Seconds,
			TimestampMicroseconds: p.Micros,
			CapturedLength:        uint32(len(p.Data)),
			OriginalLength:        p.origLen(),
		}, p.Data)
	}
	return out
}

// AppendPacket appends a raw packet record. The header is written verbatim,
// so CapturedLength need not match len(data).
func AppendPacket(out []byte, bo binary.ByteOrder, h core.PacketHeader, data []byte) []byte {
	var hdr [core.PacketHeaderLen]byte
	bo.PutUint32(hdr[0:4], h.TimestampSeconds)
	bo.PutUint32(hdr[4:8], h.TimestampMicroseconds)
	bo.PutUint32(hdr[8:12], h.CapturedLength)
	bo.PutUint32(hdr[12:16], h.OriginalLength)
	out = append(out, hdr[:]...)
	return append(out, data...)
}

// Header returns a valid 2.4 global header for the given snaplen and link type.
func Header(snaplen uint32, link layers.LinkType) core.GlobalHeader {
	return core.GlobalHeader{
		MagicNumber:    0xa1b2c3d4,
		MajorVersion:   core.VersionMajor,
		MinorVersion:   core.VersionMinor,
		SnapshotLength: snaplen,
		LinkLayerType:  uint32(link),
	}
}

// Payload returns n deterministic bytes derived from seed.
func Payload(seed int64, n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

// SMTPSession returns 60 Ethernet packets shaped like a short SMTP exchange.
// The first packet is 76 bytes captured at 1254722767.492060.
func SMTPSession() []Packet {
	rnd := rand.New(rand.NewSource(1254722767))
	pkts := make([]Packet, 60)
	sec, usec := uint32(1254722767), uint32(492060)
	for i := range pkts {
		n := 60 + rnd.Intn(1400)
		if i == 0 {
			n = 76
		}
		pkts[i] = Packet{Seconds: sec, Micros: usec, Data: Payload(int64(i), n)}
		usec += uint32(rnd.Intn(250000))
		if usec >= 1000000 {
			sec++
			usec -= 1000000
		}
	}
	return pkts
}

// Split cuts b at the given chunk sizes; the remainder forms the last chunk.
func Split(b []byte, sizes ...int) [][]byte {
	var out [][]byte
	for _, n := range sizes {
		if n > len(b) {
			n = len(b)
		}
		out = append(out, b[:n])
		b = b[n:]
	}
	if len(b) > 0 {
		out = append(out, b)
	}
	return out
}

// RandomSplit cuts b into chunks of random size between 1 and max bytes.
func RandomSplit(b []byte, seed int64, max int) [][]byte {
	rnd := rand.New(rand.NewSource(seed))
	var out [][]byte
	for len(b) > 0 {
		n := 1 + rnd.Intn(max)
		if n > len(b) {
			n = len(b)
		}
		out = append(out, b[:n])
		b = b[n:]
	}
	return out
}
