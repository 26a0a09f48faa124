// Package file opens capture files from the filesystem as decoder sources.
package file

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"firestige.xyz/pcapstream/internal/source"
)

// Open opens the capture file at path. The file is closed with the source.
func Open(path string, opts ...source.Option) (*source.ReaderSource, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat pcap file %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("pcap file %s is a directory", path)
	}

	slog.Debug("pcap file opened", "path", path, "size", info.Size())

	opts = append([]source.Option{source.WithName(filepath.Base(path))}, opts...)
	return source.NewReaderSource(f, opts...), nil
}
