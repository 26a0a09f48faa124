// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapstream/internal/config"
	"firestige.xyz/pcapstream/internal/log"
	"firestige.xyz/pcapstream/internal/metrics"
	"firestige.xyz/pcapstream/internal/pipeline"
)

var (
	// Global flags
	configFile string
	logLevel   string

	globalCfg     *config.GlobalConfig
	metricsServer *metrics.Server
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pcapstream",
	Short: "pcapstream - incremental libpcap capture file decoder",
	Long: `pcapstream decodes classic libpcap (2.4) capture files incrementally.
Input is consumed in chunks of any size; headers and packets are emitted
as soon as they are complete, with backpressure towards the file reader.

Decoded records are written to a sink: the console (text, json, yaml)
or a Kafka topic.`,
	Version:            "0.1.0",
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the root command until it finishes or the process is
// interrupted. It is called by main.main().
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (built-in defaults and PCAPSTREAM_* env vars when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log level (debug/info/warn/error)")

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(statsCmd)
}

// loadConfig reads path, or the defaults when path is empty, and applies
// the log level override.
func loadConfig(path, level string) (*config.GlobalConfig, error) {
	var (
		cfg *config.GlobalConfig
		err error
	)
	if path == "" {
		cfg, err = config.Default()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Log.Level = level
		if err := cfg.ValidateAndApplyDefaults(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile, logLevel)
	if err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(cmd.Context()); err != nil {
			return err
		}
		metricsServer = srv
	}
	globalCfg = cfg
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	var errs []error
	if metricsServer != nil {
		errs = append(errs, metricsServer.Stop(context.Background()))
		metricsServer = nil
	}
	errs = append(errs, log.Close())
	return errors.Join(errs...)
}

// pipelineOptions maps the decoder section of cfg to session options.
func pipelineOptions(cfg *config.GlobalConfig) []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithStrictVersion(cfg.Decoder.StrictVersion),
		pipeline.WithMaxCapturedLength(cfg.Decoder.MaxCapturedLength),
		pipeline.WithChunkSize(cfg.Decoder.ChunkSize),
		pipeline.WithLogger(slog.Default()),
	}
}

// queueConfig maps the backpressure section of cfg.
func queueConfig(cfg *config.GlobalConfig) pipeline.QueueConfig {
	return pipeline.QueueConfig{
		Capacity:      cfg.Backpressure.Capacity,
		HighWatermark: cfg.Backpressure.HighWatermark,
		LowWatermark:  cfg.Backpressure.LowWatermark,
	}
}
