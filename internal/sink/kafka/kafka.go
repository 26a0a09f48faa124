// Package kafka implements a sink that publishes packets to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/pcapstream/internal/core"
	"firestige.xyz/pcapstream/internal/sink"
)

// Name is the registry name of the kafka sink.
const Name = "kafka"

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
)

// Config represents Kafka sink configuration.
type Config struct {
	Brokers      []string          `mapstructure:"brokers"`       // required
	Topic        string            `mapstructure:"topic"`         // required
	BatchSize    int               `mapstructure:"batch_size"`    // optional, default 100
	BatchTimeout time.Duration     `mapstructure:"batch_timeout"` // optional, default 100ms
	Compression  string            `mapstructure:"compression"`   // optional: none|gzip|snappy|lz4, default snappy
	MaxAttempts  int               `mapstructure:"max_attempts"`  // optional, default 3
	Payload      bool              `mapstructure:"payload"`       // include packet bytes, default true
	Headers      map[string]string `mapstructure:"headers"`       // extra message headers, e.g. file
}

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink publishes one message per packet, keyed by packet index.
type Sink struct {
	writer   messageWriter
	config   Config
	linkType string

	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// NewSink creates an uninitialized Kafka sink.
func NewSink() sink.Sink {
	return &Sink{}
}

// Name returns the sink name.
func (s *Sink) Name() string { return Name }

// Init parses configuration and creates the writer.
func (s *Sink) Init(cfg map[string]any) error {
	c, err := parseConfig(cfg)
	if err != nil {
		return err
	}
	codec, err := compressionCodec(c.Compression)
	if err != nil {
		return err
	}
	s.config = c
	s.writer = kafka.NewWriter(kafka.WriterConfig{
		Brokers:          c.Brokers,
		Topic:            c.Topic,
		Balancer:         &kafka.Hash{},
		BatchSize:        c.BatchSize,
		BatchTimeout:     c.BatchTimeout,
		MaxAttempts:      c.MaxAttempts,
		CompressionCodec: codec,
	})
	return nil
}

func parseConfig(cfg map[string]any) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("%w: kafka sink requires configuration", core.ErrConfigInvalid)
	}
	c := Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
		Payload:      true,
	}
	if err := sink.DecodeOptions(cfg, &c); err != nil {
		return Config{}, err
	}
	if len(c.Brokers) == 0 {
		return Config{}, fmt.Errorf("%w: brokers is required", core.ErrConfigInvalid)
	}
	if c.Topic == "" {
		return Config{}, fmt.Errorf("%w: topic is required", core.ErrConfigInvalid)
	}
	return c, nil
}

func compressionCodec(name string) (kafka.CompressionCodec, error) {
	switch name {
	case "none", "":
		return nil, nil
	case "gzip":
		return compress.Gzip.Codec(), nil
	case "snappy":
		return compress.Snappy.Codec(), nil
	case "lz4":
		return compress.Lz4.Codec(), nil
	default:
		return nil, fmt.Errorf("%w: invalid compression type: %s", core.ErrConfigInvalid, name)
	}
}

// Start logs the effective configuration.
func (s *Sink) Start(ctx context.Context) error {
	if s.writer == nil {
		return fmt.Errorf("kafka sink not initialized")
	}
	slog.Info("kafka sink started",
		"brokers", s.config.Brokers,
		"topic", s.config.Topic,
		"batch_size", s.config.BatchSize,
		"batch_timeout", s.config.BatchTimeout,
		"compression", s.config.Compression,
	)
	return nil
}

// WriteHeader records the link type carried on every message.
func (s *Sink) WriteHeader(ctx context.Context, gh core.GlobalHeader) error {
	s.linkType = gh.LinkType().String()
	return nil
}

// WritePacket sends a packet to Kafka.
func (s *Sink) WritePacket(ctx context.Context, index int, pkt core.Packet) error {
	msg, err := s.message(index, pkt)
	if err != nil {
		s.errorCount.Add(1)
		return fmt.Errorf("serialize packet failed: %w", err)
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.errorCount.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}
	s.reportedCount.Add(1)
	return nil
}

func (s *Sink) message(index int, pkt core.Packet) (kafka.Message, error) {
	value, err := json.Marshal(sink.NewPacketRecord(index, pkt, s.config.Payload))
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(index)),
		Value: value,
		Time:  pkt.Header.Timestamp(),
	}
	if s.linkType != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "linktype", Value: []byte(s.linkType)})
	}
	for k, v := range s.config.Headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return msg, nil
}

// Stop flushes pending messages and closes the writer.
func (s *Sink) Stop(ctx context.Context) error {
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			slog.Error("error closing kafka writer", "error", err)
			return err
		}
	}
	slog.Info("kafka sink stopped",
		"total_reported", s.reportedCount.Load(),
		"total_errors", s.errorCount.Load(),
	)
	return nil
}
