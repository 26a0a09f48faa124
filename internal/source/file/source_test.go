package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapstream/internal/source"
)

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.pcap")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	s, err := Open(path, source.WithChunkSize(4))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "capture.pcap", s.Name())

	var got []byte
	for {
		chunk, err := s.ReadChunk(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.LessOrEqual(t, len(chunk), 4)
		got = append(got, chunk...)
	}
	assert.Equal(t, "0123456789", string(got))
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "missing.pcap"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "failed to open pcap file")

	_, err = Open(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}
