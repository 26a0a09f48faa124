// Package core defines core data structures.
package core

import "time"

// PacketHeader is the 16-byte record preceding each packet body.
// CapturedLength <= OriginalLength is conventional but not validated.
type PacketHeader struct {
	TimestampSeconds      uint32
	TimestampMicroseconds uint32
	CapturedLength        uint32 // Payload bytes present in the file
	OriginalLength        uint32 // Bytes on the wire before truncation
}

// Timestamp returns the capture time in UTC.
func (h PacketHeader) Timestamp() time.Time {
	return time.Unix(int64(h.TimestampSeconds), int64(h.TimestampMicroseconds)*int64(time.Microsecond)).UTC()
}

// Truncated reports whether the capturing tool cut the packet short.
func (h PacketHeader) Truncated() bool {
	return h.CapturedLength < h.OriginalLength
}

// Packet pairs a header with exactly CapturedLength bytes of payload.
// Data may alias decoder storage; it is never mutated after emission.
type Packet struct {
	Header PacketHeader
	Data   []byte
}
