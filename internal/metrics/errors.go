package metrics

import (
	"errors"

	"firestige.xyz/pcapstream/internal/core"
)

// ErrorKind maps a terminal session error to its decode_errors_total label.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, core.ErrUnknownMagic):
		return "unknown_magic"
	case errors.Is(err, core.ErrUnsupportedVersion):
		return "unsupported_version"
	case errors.Is(err, core.ErrPacketTooLarge):
		return "packet_too_large"
	default:
		return "source"
	}
}

// ObserveError records a terminal session error.
func ObserveError(err error) {
	DecodeErrorsTotal.WithLabelValues(ErrorKind(err)).Inc()
}
