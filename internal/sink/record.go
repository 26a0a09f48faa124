package sink

import (
	"encoding/base64"
	"fmt"
	"time"

	"firestige.xyz/pcapstream/internal/core"
)

// HeaderRecord is the serialized form of a global header.
type HeaderRecord struct {
	Type         string `json:"type" yaml:"type"`
	Magic        string `json:"magic" yaml:"magic"`
	VersionMajor uint16 `json:"version_major" yaml:"version_major"`
	VersionMinor uint16 `json:"version_minor" yaml:"version_minor"`
	GMTOffset    int32  `json:"gmt_offset" yaml:"gmt_offset"`
	Accuracy     uint32 `json:"accuracy" yaml:"accuracy"`
	SnapLen      uint32 `json:"snaplen" yaml:"snaplen"`
	LinkType     uint32 `json:"linktype" yaml:"linktype"`
	LinkTypeName string `json:"linktype_name" yaml:"linktype_name"`
}

// NewHeaderRecord converts gh.
func NewHeaderRecord(gh core.GlobalHeader) HeaderRecord {
	return HeaderRecord{
		Type:         "header",
		Magic:        fmt.Sprintf("0x%08x", gh.MagicNumber),
		VersionMajor: gh.MajorVersion,
		VersionMinor: gh.MinorVersion,
		GMTOffset:    gh.GMTOffset,
		Accuracy:     gh.TimestampAccuracy,
		SnapLen:      gh.SnapshotLength,
		LinkType:     gh.LinkLayerType,
		LinkTypeName: gh.LinkType().String(),
	}
}

// PacketRecord is the serialized form of a packet. Payload is base64.
type PacketRecord struct {
	Type           string    `json:"type" yaml:"type"`
	Index          int       `json:"index" yaml:"index"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	TsSec          uint32    `json:"ts_sec" yaml:"ts_sec"`
	TsUsec         uint32    `json:"ts_usec" yaml:"ts_usec"`
	CapturedLength uint32    `json:"captured_length" yaml:"captured_length"`
	OriginalLength uint32    `json:"original_length" yaml:"original_length"`
	Truncated      bool      `json:"truncated" yaml:"truncated"`
	Payload        string    `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// NewPacketRecord converts pkt, including its bytes when withPayload is set.
func NewPacketRecord(index int, pkt core.Packet, withPayload bool) PacketRecord {
	h := pkt.Header
	rec := PacketRecord{
		Type:           "packet",
		Index:          index,
		Timestamp:      h.Timestamp(),
		TsSec:          h.TimestampSeconds,
		TsUsec:         h.TimestampMicroseconds,
		CapturedLength: h.CapturedLength,
		OriginalLength: h.OriginalLength,
		Truncated:      h.Truncated(),
	}
	if withPayload {
		rec.Payload = base64.StdEncoding.EncodeToString(pkt.Data)
	}
	return rec
}
