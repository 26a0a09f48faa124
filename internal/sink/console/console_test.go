package console

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pcapstream/internal/core"
	"firestige.xyz/pcapstream/internal/pcaptest"
	"firestige.xyz/pcapstream/internal/sink"
)

func samplePacket() core.Packet {
	return core.Packet{
		Header: core.PacketHeader{
			TimestampSeconds:      1254722767,
			TimestampMicroseconds: 492060,
			CapturedLength:        4,
			OriginalLength:        76,
		},
		Data: []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func run(t *testing.T, cfg map[string]any) string {
	t.Helper()
	var buf bytes.Buffer
	s := New(&buf)
	ctx := context.Background()
	require.NoError(t, s.Init(cfg))
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.WriteHeader(ctx, pcaptest.Header(65535, layers.LinkTypeEthernet)))
	require.NoError(t, s.WritePacket(ctx, 1, samplePacket()))
	require.NoError(t, s.Stop(ctx))
	return buf.String()
}

func TestConsole_Text(t *testing.T) {
	out := run(t, nil)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "pcap 2.4 magic=0xa1b2c3d4 snaplen=65535 linktype=Ethernet(1) gmt_offset=0", lines[0])
	assert.Equal(t, "#1 2009-10-05T06:06:07.49206Z captured=4 original=76 truncated", lines[1])
}

func TestConsole_TextPayload(t *testing.T) {
	out := run(t, map[string]any{"payload": true})
	assert.Contains(t, out, "de ad be ef")
}

func TestConsole_JSON(t *testing.T) {
	out := run(t, map[string]any{"format": "json", "payload": "true"})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var hdr sink.HeaderRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &hdr))
	assert.Equal(t, "header", hdr.Type)
	assert.Equal(t, "Ethernet", hdr.LinkTypeName)
	assert.Equal(t, uint32(65535), hdr.SnapLen)

	var pkt sink.PacketRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &pkt))
	assert.Equal(t, 1, pkt.Index)
	assert.True(t, pkt.Truncated)
	assert.Equal(t, uint32(492060), pkt.TsUsec)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0xde, 0xad, 0xbe, 0xef}), pkt.Payload)
}

func TestConsole_YAML(t *testing.T) {
	out := run(t, map[string]any{"format": "yaml"})

	dec := yaml.NewDecoder(strings.NewReader(out))
	var hdr map[string]any
	require.NoError(t, dec.Decode(&hdr))
	assert.Equal(t, "header", hdr["type"])
	assert.Equal(t, "Ethernet", hdr["linktype_name"])

	var pkt map[string]any
	require.NoError(t, dec.Decode(&pkt))
	assert.Equal(t, "packet", pkt["type"])
	assert.Equal(t, 76, pkt["original_length"])
	assert.NotContains(t, pkt, "payload")
}

func TestConsole_InitErrors(t *testing.T) {
	s := New(&bytes.Buffer{})
	assert.ErrorIs(t, s.Init(map[string]any{"format": "xml"}), core.ErrConfigInvalid)
	assert.ErrorIs(t, s.Init(map[string]any{"colour": true}), core.ErrConfigInvalid)
}
