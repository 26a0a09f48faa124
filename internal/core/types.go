// Package core defines core types shared by the decoder, sources and sinks.
package core

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"
)

// Endianness is the byte order of a capture file, detected from its magic number.
type Endianness uint8

const (
	EndianUnknown Endianness = iota
	BigEndian
	LittleEndian
)

// ByteOrder returns the binary.ByteOrder used to decode fields, or nil if unknown.
func (e Endianness) ByteOrder() binary.ByteOrder {
	switch e {
	case BigEndian:
		return binary.BigEndian
	case LittleEndian:
		return binary.LittleEndian
	default:
		return nil
	}
}

func (e Endianness) String() string {
	switch e {
	case BigEndian:
		return "BE"
	case LittleEndian:
		return "LE"
	default:
		return "unknown"
	}
}

// Layout sizes of the libpcap 2.4 file format.
const (
	GlobalHeaderLen = 24
	PacketHeaderLen = 16

	VersionMajor = 2
	VersionMinor = 4
)

// Magic number byte patterns in stream order.
var (
	MagicBigEndian    = [4]byte{0xa1, 0xb2, 0xc3, 0xd4}
	MagicLittleEndian = [4]byte{0xd4, 0xc3, 0xb2, 0xa1}
)

// GlobalHeader describes the whole capture. Emitted once, before any packet.
type GlobalHeader struct {
	MagicNumber       uint32 // As decoded with the detected byte order
	MajorVersion      uint16
	MinorVersion      uint16
	GMTOffset         int32
	TimestampAccuracy uint32
	SnapshotLength    uint32 // Advisory, never enforced per packet
	LinkLayerType     uint32
}

// LinkType returns the link-layer framing of every packet payload.
func (h GlobalHeader) LinkType() layers.LinkType {
	return layers.LinkType(h.LinkLayerType)
}
