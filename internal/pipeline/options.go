package pipeline

import (
	"log/slog"

	"firestige.xyz/pcapstream/internal/core/decoder"
	"firestige.xyz/pcapstream/internal/source"
)

type options struct {
	decoder   decoder.Options
	chunkSize int
	logger    *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		chunkSize: source.DefaultChunkSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Parser or Reader.
type Option func(*options)

// WithDecoderOptions sets the decoder validation options.
func WithDecoderOptions(d decoder.Options) Option {
	return func(o *options) {
		o.decoder = d
	}
}

// WithStrictVersion accepts only format version exactly 2.4.
func WithStrictVersion(strict bool) Option {
	return func(o *options) {
		o.decoder.StrictVersion = strict
	}
}

// WithMaxCapturedLength rejects packets declaring a larger body. 0 disables.
func WithMaxCapturedLength(n uint32) Option {
	return func(o *options) {
		o.decoder.MaxCapturedLength = n
	}
}

// WithChunkSize sets the read size for sources opened from a path.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
