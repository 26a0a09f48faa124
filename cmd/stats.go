package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pcapstream/internal/core"
	"firestige.xyz/pcapstream/internal/pipeline"
)

var statsCmd = &cobra.Command{
	Use:   "stats FILE",
	Short: "Summarize a capture file",
	Long: `Decode a capture file and print totals: packets, captured and original
bytes, packets cut short by the snapshot length, link type and the time
span covered.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sum, err := runStats(cmd.Context(), args[0], pipelineOptions(globalCfg)...)
		if err != nil {
			return err
		}
		return printSummary(cmd.OutOrStdout(), sum, statsFormat)
	},
}

var statsFormat string

func init() {
	statsCmd.Flags().StringVarP(&statsFormat, "format", "f", "text", "output format: text, json or yaml")
}

// Summary holds the totals of one capture file.
type Summary struct {
	File          string    `json:"file" yaml:"file"`
	Version       string    `json:"version" yaml:"version"`
	LinkType      string    `json:"linktype" yaml:"linktype"`
	SnapLen       uint32    `json:"snaplen" yaml:"snaplen"`
	Packets       int       `json:"packets" yaml:"packets"`
	CapturedBytes uint64    `json:"captured_bytes" yaml:"captured_bytes"`
	OriginalBytes uint64    `json:"original_bytes" yaml:"original_bytes"`
	Truncated     int       `json:"truncated" yaml:"truncated"`
	First         time.Time `json:"first,omitempty" yaml:"first,omitempty"`
	Last          time.Time `json:"last,omitempty" yaml:"last,omitempty"`
}

// runStats pushes the whole file through a parser and accumulates totals.
func runStats(ctx context.Context, path string, opts ...pipeline.Option) (Summary, error) {
	sum := Summary{File: filepath.Base(path)}
	p, err := pipeline.NewFromFile(path, opts...)
	if err != nil {
		return sum, err
	}

	if err := p.OnGlobalHeader(func(gh core.GlobalHeader) {
		sum.Version = fmt.Sprintf("%d.%d", gh.MajorVersion, gh.MinorVersion)
		sum.LinkType = gh.LinkType().String()
		sum.SnapLen = gh.SnapshotLength
	}); err != nil {
		_ = p.Close()
		return sum, err
	}
	if err := p.OnPacket(func(pkt core.Packet) {
		h := pkt.Header
		ts := h.Timestamp()
		if sum.Packets == 0 || ts.Before(sum.First) {
			sum.First = ts
		}
		if ts.After(sum.Last) {
			sum.Last = ts
		}
		sum.Packets++
		sum.CapturedBytes += uint64(h.CapturedLength)
		sum.OriginalBytes += uint64(h.OriginalLength)
		if h.Truncated() {
			sum.Truncated++
		}
	}); err != nil {
		_ = p.Close()
		return sum, err
	}

	return sum, p.Run(ctx)
}

func printSummary(w io.Writer, sum Summary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(sum)
	case "text", "":
	default:
		return fmt.Errorf("unsupported format: %s (must be text, json or yaml)", format)
	}

	fmt.Fprintf(w, "File:            %s\n", sum.File)
	fmt.Fprintf(w, "Format version:  %s\n", sum.Version)
	fmt.Fprintf(w, "Link type:       %s\n", sum.LinkType)
	fmt.Fprintf(w, "Snapshot length: %d\n", sum.SnapLen)
	fmt.Fprintf(w, "Packets:         %d\n", sum.Packets)
	fmt.Fprintf(w, "Captured bytes:  %d\n", sum.CapturedBytes)
	fmt.Fprintf(w, "Original bytes:  %d\n", sum.OriginalBytes)
	fmt.Fprintf(w, "Truncated:       %d\n", sum.Truncated)
	if sum.Packets > 0 {
		fmt.Fprintf(w, "First packet:    %s\n", sum.First.Format(time.RFC3339Nano))
		fmt.Fprintf(w, "Last packet:     %s\n", sum.Last.Format(time.RFC3339Nano))
		fmt.Fprintf(w, "Duration:        %s\n", sum.Last.Sub(sum.First))
	}
	return nil
}
