// Package console implements a sink that prints records to a writer.
package console

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"firestige.xyz/pcapstream/internal/core"
	"firestige.xyz/pcapstream/internal/sink"
)

// Name is the registry name of the console sink.
const Name = "console"

// Config represents console sink configuration.
type Config struct {
	Format  string `mapstructure:"format"`  // text | json | yaml, default text
	Payload bool   `mapstructure:"payload"` // include packet bytes
}

// Sink writes one record per header and packet.
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	config Config

	json *json.Encoder
	yaml *yaml.Encoder
}

// New creates a console sink writing to w.
func New(w io.Writer) *Sink {
	return &Sink{w: w, config: Config{Format: "text"}}
}

// NewSink creates a console sink writing to stdout.
func NewSink() sink.Sink {
	return New(os.Stdout)
}

// SetOutput redirects output. It must be called before Start.
func (s *Sink) SetOutput(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

// Name returns the sink name.
func (s *Sink) Name() string { return Name }

// Init parses configuration.
func (s *Sink) Init(cfg map[string]any) error {
	c := Config{Format: "text"}
	if err := sink.DecodeOptions(cfg, &c); err != nil {
		return err
	}
	switch c.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("%w: invalid console format: %s (must be text/json/yaml)", core.ErrConfigInvalid, c.Format)
	}
	s.config = c
	return nil
}

// Start prepares the encoders.
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.config.Format {
	case "json":
		s.json = json.NewEncoder(s.w)
	case "yaml":
		s.yaml = yaml.NewEncoder(s.w)
		s.yaml.SetIndent(2)
	}
	return nil
}

// WriteHeader prints the global header.
func (s *Sink) WriteHeader(ctx context.Context, gh core.GlobalHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := sink.NewHeaderRecord(gh)
	switch s.config.Format {
	case "json":
		return s.json.Encode(rec)
	case "yaml":
		return s.yaml.Encode(rec)
	}
	_, err := fmt.Fprintf(s.w, "pcap %d.%d magic=%s snaplen=%d linktype=%s(%d) gmt_offset=%d\n",
		rec.VersionMajor, rec.VersionMinor, rec.Magic, rec.SnapLen, rec.LinkTypeName, rec.LinkType, rec.GMTOffset)
	return err
}

// WritePacket prints one packet.
func (s *Sink) WritePacket(ctx context.Context, index int, pkt core.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.config.Format {
	case "json":
		return s.json.Encode(sink.NewPacketRecord(index, pkt, s.config.Payload))
	case "yaml":
		return s.yaml.Encode(sink.NewPacketRecord(index, pkt, s.config.Payload))
	}

	h := pkt.Header
	line := fmt.Sprintf("#%d %s captured=%d original=%d",
		index, h.Timestamp().Format(time.RFC3339Nano), h.CapturedLength, h.OriginalLength)
	if h.Truncated() {
		line += " truncated"
	}
	if _, err := fmt.Fprintln(s.w, line); err != nil {
		return err
	}
	if s.config.Payload && len(pkt.Data) > 0 {
		_, err := io.WriteString(s.w, hex.Dump(pkt.Data))
		return err
	}
	return nil
}

// Stop flushes buffered output.
func (s *Sink) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.yaml != nil {
		err := s.yaml.Close()
		s.yaml = nil
		return err
	}
	return nil
}
