package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapstream/internal/config"
	"firestige.xyz/pcapstream/internal/pipeline"
	"firestige.xyz/pcapstream/internal/sink"
	_ "firestige.xyz/pcapstream/internal/sink/builtin"
	"firestige.xyz/pcapstream/internal/sink/console"
)

var dumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Decode a capture file and write its records to a sink",
	Long: `Decode a libpcap capture file and write the global header and every
packet to the configured sink.

By default the file is decoded by a push parser feeding a bounded queue
that pauses the reader when the sink falls behind. --pull decodes on
demand instead, reading the file only as packets are requested.

Examples:
  pcapstream dump capture.pcap
  pcapstream dump --format json --payload capture.pcap
  pcapstream dump --sink kafka -c pcapstream.yml capture.pcap`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDumpCommand(cmd, args[0])
	},
}

var (
	dumpFormat        string
	dumpSink          string
	dumpStrictVersion bool
	dumpPull          bool
	dumpLimit         int
	dumpPayload       bool
)

func init() {
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "", "console format: text, json or yaml")
	dumpCmd.Flags().StringVar(&dumpSink, "sink", "", "sink name (console, kafka); overrides sink.name")
	dumpCmd.Flags().BoolVar(&dumpStrictVersion, "strict-version", false, "accept only format version 2.4 exactly")
	dumpCmd.Flags().BoolVar(&dumpPull, "pull", false, "decode on demand instead of pushing through the queue")
	dumpCmd.Flags().IntVarP(&dumpLimit, "limit", "n", 0, "stop after this many packets (0 = all)")
	dumpCmd.Flags().BoolVar(&dumpPayload, "payload", false, "include packet bytes in the output")
}

// dumpOptions is the resolved configuration of one dump run.
type dumpOptions struct {
	pipeline []pipeline.Option
	queue    pipeline.QueueConfig
	pull     bool
	limit    int
}

func runDumpCommand(cmd *cobra.Command, path string) error {
	cfg := *globalCfg
	if cmd.Flags().Changed("strict-version") {
		cfg.Decoder.StrictVersion = dumpStrictVersion
	}

	name := cfg.Sink.Name
	if dumpSink != "" {
		name = dumpSink
	}
	s, err := sink.New(name)
	if err != nil {
		return err
	}
	if c, ok := s.(*console.Sink); ok {
		c.SetOutput(cmd.OutOrStdout())
	}
	opts := sinkOptions(&cfg, name, path, dumpFormat, cmd.Flags().Changed("payload"), dumpPayload)
	if err := s.Init(opts); err != nil {
		return fmt.Errorf("failed to init %s sink: %w", name, err)
	}

	n, err := runDump(cmd.Context(), s, path, dumpOptions{
		pipeline: pipelineOptions(&cfg),
		queue:    queueConfig(&cfg),
		pull:     dumpPull,
		limit:    dumpLimit,
	})
	slog.Debug("dump finished", "file", path, "packets", n, "sink", name)
	return err
}

// sinkOptions builds the option map for the named sink from configuration
// and command line overrides.
func sinkOptions(cfg *config.GlobalConfig, name, path, format string, payloadSet, payload bool) map[string]any {
	opts := map[string]any{}
	if cfg.Sink.Name == name {
		maps.Copy(opts, cfg.Sink.Options)
	}
	if payloadSet {
		opts["payload"] = payload
	}
	switch name {
	case console.Name:
		if format != "" {
			opts["format"] = format
		}
	case "kafka":
		headers := map[string]any{}
		if h, ok := opts["headers"].(map[string]any); ok {
			maps.Copy(headers, h)
		}
		if _, ok := headers["file"]; !ok {
			headers["file"] = filepath.Base(path)
		}
		opts["headers"] = headers
	}
	return opts
}

// runDump decodes path into s and returns the number of packets written.
func runDump(ctx context.Context, s sink.Sink, path string, o dumpOptions) (n int, err error) {
	if err := s.Start(ctx); err != nil {
		return 0, err
	}
	defer func() {
		if serr := s.Stop(context.Background()); serr != nil && err == nil {
			err = serr
		}
	}()

	if o.pull {
		return pullDump(ctx, s, path, o)
	}
	return pushDump(ctx, s, path, o)
}

func pushDump(ctx context.Context, s sink.Sink, path string, o dumpOptions) (int, error) {
	p, err := pipeline.NewFromFile(path, o.pipeline...)
	if err != nil {
		return 0, err
	}
	q, err := pipeline.NewQueue(p, o.queue)
	if err != nil {
		_ = p.Close()
		return 0, err
	}
	defer func() {
		_ = q.Close()
		_ = p.Wait()
	}()
	if err := p.Start(ctx); err != nil {
		return 0, err
	}

	n := 0
	for o.limit == 0 || n < o.limit {
		ev, err := q.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}
		switch ev.Kind {
		case pipeline.EventGlobalHeader:
			err = s.WriteHeader(ctx, ev.GlobalHeader)
		case pipeline.EventPacket:
			n++
			err = s.WritePacket(ctx, n, ev.Packet)
		case pipeline.EventError:
			return n, ev.Err
		}
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func pullDump(ctx context.Context, s sink.Sink, path string, o dumpOptions) (int, error) {
	r, err := pipeline.OpenReader(path, o.pipeline...)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	gh, err := r.GlobalHeader(ctx)
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if err := s.WriteHeader(ctx, gh); err != nil {
		return 0, err
	}

	n := 0
	for o.limit == 0 || n < o.limit {
		pkt, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}
		n++
		if err := s.WritePacket(ctx, n, pkt); err != nil {
			return n, err
		}
	}
	return n, nil
}
