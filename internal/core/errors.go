// Package core defines sentinel errors.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Format errors are wrapped in *FormatError so callers can
// match the category with errors.Is and still print the detailed message.
var (
	// Capture file format errors
	ErrUnknownMagic       = errors.New("pcapstream: unknown magic number")
	ErrUnsupportedVersion = errors.New("pcapstream: unsupported version")
	ErrPacketTooLarge     = errors.New("pcapstream: captured length exceeds limit")

	// Session errors
	ErrSessionClosed  = errors.New("pcapstream: session closed")
	ErrAlreadyStarted = errors.New("pcapstream: parser already started")

	// Configuration errors
	ErrConfigInvalid = errors.New("pcapstream: invalid configuration")
)

// FormatError reports a fatal problem with the capture file layout.
type FormatError struct {
	Err error
	Msg string
}

func (e *FormatError) Error() string { return e.Msg }

func (e *FormatError) Unwrap() error { return e.Err }

// UnknownMagicError builds the error for an unrecognized 4-byte file prefix.
func UnknownMagicError(magic []byte) error {
	return &FormatError{
		Err: ErrUnknownMagic,
		Msg: fmt.Sprintf("unknown magic number: 0x%x", magic),
	}
}

// UnsupportedVersionError builds the error for a rejected format version.
func UnsupportedVersionError(major, minor uint16) error {
	return &FormatError{
		Err: ErrUnsupportedVersion,
		Msg: fmt.Sprintf("unsupported version %d.%d. only libpcap file format 2.4 is supported", major, minor),
	}
}

func PacketTooLargeError(captured, limit uint32) error {
	return &FormatError{
		Err: ErrPacketTooLarge,
		Msg: fmt.Sprintf("captured length %d exceeds limit %d", captured, limit),
	}
}
