package decoder

import (
	"encoding/binary"

	"firestige.xyz/pcapstream/internal/core"
)

// detectEndianness inspects the raw magic bytes in stream order. The pattern
// is matched before any field is decoded, so the result says how the writer
// laid out the rest of the file, independent of the host byte order.
func detectEndianness(b []byte) (core.Endianness, error) {
	var magic [4]byte
	copy(magic[:], b[:4])
	switch magic {
	case core.MagicBigEndian:
		return core.BigEndian, nil
	case core.MagicLittleEndian:
		return core.LittleEndian, nil
	default:
		return core.EndianUnknown, core.UnknownMagicError(magic[:])
	}
}

func parseGlobalHeader(b []byte, bo binary.ByteOrder) core.GlobalHeader {
	return core.GlobalHeader{
		MagicNumber:       bo.Uint32(b[0:4]),
		MajorVersion:      bo.Uint16(b[4:6]),
		MinorVersion:      bo.Uint16(b[6:8]),
		GMTOffset:         int32(bo.Uint32(b[8:12])),
		TimestampAccuracy: bo.Uint32(b[12:16]),
		SnapshotLength:    bo.Uint32(b[16:20]),
		LinkLayerType:     bo.Uint32(b[20:24]),
	}
}

func parsePacketHeader(b []byte, bo binary.ByteOrder) core.PacketHeader {
	return core.PacketHeader{
		TimestampSeconds:      bo.Uint32(b[0:4]),
		TimestampMicroseconds: bo.Uint32(b[4:8]),
		CapturedLength:        bo.Uint32(b[8:12]),
		OriginalLength:        bo.Uint32(b[12:16]),
	}
}

// checkVersion rejects unsupported format versions.
//
// The lenient rule only rejects a header when both the major and the minor
// number differ from 2.4, so 2.9 or 9.4 are accepted. strict requires
// exactly 2.4.
func checkVersion(h core.GlobalHeader, strict bool) error {
	majorOK := h.MajorVersion == core.VersionMajor
	minorOK := h.MinorVersion == core.VersionMinor
	if strict && (!majorOK || !minorOK) {
		return core.UnsupportedVersionError(h.MajorVersion, h.MinorVersion)
	}
	if !majorOK && !minorOK {
		return core.UnsupportedVersionError(h.MajorVersion, h.MinorVersion)
	}
	return nil
}
