package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapstream/internal/config"
	"firestige.xyz/pcapstream/internal/core"
	"firestige.xyz/pcapstream/internal/pcaptest"
	"firestige.xyz/pcapstream/internal/pipeline"
	"firestige.xyz/pcapstream/internal/sink/console"
)

func writeCapture(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func smtpFile(t *testing.T) string {
	return writeCapture(t, pcaptest.WriteLE(t, 65535, layers.LinkTypeEthernet, pcaptest.SMTPSession()))
}

func testDumpOptions(pull bool, limit int) dumpOptions {
	return dumpOptions{
		pipeline: []pipeline.Option{pipeline.WithChunkSize(512)},
		queue:    pipeline.QueueConfig{Capacity: 16, HighWatermark: 0.75, LowWatermark: 0.25},
		pull:     pull,
		limit:    limit,
	}
}

func dumpJSON(t *testing.T, path string, o dumpOptions) (string, int, error) {
	t.Helper()
	var buf bytes.Buffer
	s := console.New(&buf)
	require.NoError(t, s.Init(map[string]any{"format": "json", "payload": true}))
	n, err := runDump(context.Background(), s, path, o)
	return buf.String(), n, err
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunDump_PushAndPullAgree(t *testing.T) {
	path := smtpFile(t)

	push, n, err := dumpJSON(t, path, testDumpOptions(false, 0))
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	pull, n, err := dumpJSON(t, path, testDumpOptions(true, 0))
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	assert.Equal(t, push, pull)
	lines := strings.Split(strings.TrimSpace(push), "\n")
	require.Len(t, lines, 61)
	assert.Contains(t, lines[0], `"type":"header"`)
	assert.Contains(t, lines[1], `"ts_sec":1254722767`)
	assert.Contains(t, lines[1], `"captured_length":76`)
}

func TestRunDump_PushExceedsQueueCapacity(t *testing.T) {
	path := smtpFile(t)
	o := testDumpOptions(false, 0)
	o.queue = pipeline.QueueConfig{Capacity: 4, HighWatermark: 0.5, LowWatermark: 0.25}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	var buf bytes.Buffer
	s := console.New(&buf)
	require.NoError(t, s.Init(map[string]any{"format": "json"}))
	go func() {
		n, err := runDump(context.Background(), s, path, o)
		done <- result{n, err}
	}()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, 60, r.n)
	case <-time.After(5 * time.Second):
		t.Fatal("push dump stalled with a small queue")
	}
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 61)
}

func TestRunDump_Limit(t *testing.T) {
	path := smtpFile(t)
	for _, pull := range []bool{false, true} {
		out, n, err := dumpJSON(t, path, testDumpOptions(pull, 5))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 6)
	}
}

func TestRunDump_UnknownMagic(t *testing.T) {
	path := writeCapture(t, []byte(strings.Repeat("this is not a capture ", 4)))
	for _, pull := range []bool{false, true} {
		out, n, err := dumpJSON(t, path, testDumpOptions(pull, 0))
		assert.ErrorIs(t, err, core.ErrUnknownMagic)
		assert.Zero(t, n)
		assert.Empty(t, out)
	}
}

func TestRunDump_TruncatedFile(t *testing.T) {
	data := pcaptest.WriteLE(t, 65535, layers.LinkTypeEthernet, []pcaptest.Packet{
		{Seconds: 1, Data: pcaptest.Payload(1, 60)},
		{Seconds: 2, Data: pcaptest.Payload(2, 76)},
	})
	path := writeCapture(t, data[:len(data)-36])
	for _, pull := range []bool{false, true} {
		_, n, err := dumpJSON(t, path, testDumpOptions(pull, 0))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
}

func TestRunDump_EmptyFile(t *testing.T) {
	path := writeCapture(t, nil)
	for _, pull := range []bool{false, true} {
		out, n, err := dumpJSON(t, path, testDumpOptions(pull, 0))
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, out)
	}
}

func TestRunStats(t *testing.T) {
	pkts := []pcaptest.Packet{
		{Seconds: 100, Micros: 10, Data: pcaptest.Payload(1, 60)},
		{Seconds: 101, Micros: 0, OrigLen: 1500, Data: pcaptest.Payload(2, 96)},
		{Seconds: 103, Micros: 500000, Data: pcaptest.Payload(3, 40)},
	}
	path := writeCapture(t, pcaptest.WriteLE(t, 96, layers.LinkTypeEthernet, pkts))

	sum, err := runStats(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "capture.pcap", sum.File)
	assert.Equal(t, "2.4", sum.Version)
	assert.Equal(t, "Ethernet", sum.LinkType)
	assert.Equal(t, uint32(96), sum.SnapLen)
	assert.Equal(t, 3, sum.Packets)
	assert.Equal(t, uint64(196), sum.CapturedBytes)
	assert.Equal(t, uint64(1600), sum.OriginalBytes)
	assert.Equal(t, 1, sum.Truncated)
	assert.Equal(t, time.Unix(100, 10000).UTC(), sum.First)
	assert.Equal(t, time.Unix(103, 500000000).UTC(), sum.Last)

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, sum, "text"))
	assert.Contains(t, buf.String(), "Packets:         3")
	assert.Contains(t, buf.String(), "Duration:        3.49999s")
	assert.Error(t, printSummary(&buf, sum, "csv"))
}

func TestRunStats_StrictVersion(t *testing.T) {
	gh := pcaptest.Header(65535, layers.LinkTypeEthernet)
	gh.MinorVersion = 6
	path := writeCapture(t, pcaptest.Build(core.LittleEndian.ByteOrder(), gh, nil))

	_, err := runStats(context.Background(), path)
	require.NoError(t, err)

	_, err = runStats(context.Background(), path, pipeline.WithStrictVersion(true))
	assert.ErrorIs(t, err, core.ErrUnsupportedVersion)
	assert.EqualError(t, err, "unsupported version 2.6. only libpcap file format 2.4 is supported")
}

func TestSinkOptions(t *testing.T) {
	cfg := &config.GlobalConfig{Sink: config.SinkConfig{
		Name:    "kafka",
		Options: map[string]any{"topic": "packets", "headers": map[string]any{"env": "lab"}},
	}}

	opts := sinkOptions(cfg, "kafka", "/data/smtp.pcap", "", false, false)
	assert.Equal(t, "packets", opts["topic"])
	assert.Equal(t, map[string]any{"env": "lab", "file": "smtp.pcap"}, opts["headers"])
	assert.NotContains(t, opts, "payload")
	assert.NotContains(t, cfg.Sink.Options["headers"], "file", "config must not be mutated")

	opts = sinkOptions(cfg, "console", "/data/smtp.pcap", "yaml", true, true)
	assert.Equal(t, map[string]any{"format": "yaml", "payload": true}, opts)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("", "debug")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = loadConfig("", "chatty")
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yml"), "")
	assert.Error(t, err)
}

func TestRootCommand_Stats(t *testing.T) {
	out, err := executeCommand(t, "stats", "--format", "json", smtpFile(t))
	require.NoError(t, err)

	var sum Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 60, sum.Packets)
	assert.Equal(t, "Ethernet", sum.LinkType)
	assert.Equal(t, time.Unix(1254722767, 492060000).UTC(), sum.First)
}

func TestRootCommand_Dump(t *testing.T) {
	out, err := executeCommand(t, "dump", "--format", "text", "--limit", "2", "--log-level", "warn", smtpFile(t))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "pcap 2.4 "))
	assert.Equal(t, "#1 2009-10-05T06:06:07.49206Z captured=76 original=76", lines[1])
}

func TestRootCommand_Errors(t *testing.T) {
	_, err := executeCommand(t, "stats", "--format", "text", filepath.Join(t.TempDir(), "missing.pcap"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = executeCommand(t, "dump", "--format", "text", "--limit", "0", "--sink", "syslog", smtpFile(t))
	assert.ErrorContains(t, err, "unknown sink")
	dumpSink = ""
}
