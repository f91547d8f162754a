package logtable

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTripEachCodec(t *testing.T) {
	for _, codec := range []Compression{CompressionZstd, CompressionSnappy, CompressionNone} {
		var buf bytes.Buffer
		fw := newFrameWriter(&buf, codec, 8) // the single Write exceeds the tiny block size and is flushed as one frame
		payload := []byte("the quick brown fox jumps over the lazy dog, repeated: the quick brown fox")
		_, err := fw.Write(payload)
		require.NoError(t, err)
		require.NoError(t, fw.Flush())

		fr := newFrameReader(&buf, 4096)
		got, err := io.ReadAll(fr)
		require.NoError(t, err)
		require.Equal(t, payload, got)
	}
}

func TestFrameReaderSpansMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	fw := newFrameWriter(&buf, CompressionNone, 4)
	require.NoError(t, writeAll(fw, []byte("aaaa")))
	require.NoError(t, fw.Flush())
	require.NoError(t, writeAll(fw, []byte("bbbb")))
	require.NoError(t, fw.Flush())

	fr := newFrameReader(&buf, 4096)
	got, err := io.ReadAll(fr)
	require.NoError(t, err)
	require.Equal(t, []byte("aaaabbbb"), got)
}

func writeAll(w io.Writer, p []byte) error {
	_, err := w.Write(p)
	return err
}
