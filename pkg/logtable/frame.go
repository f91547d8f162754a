package logtable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression selects the codec used to compress each stream's frames.
// Zstd is the default (matching the teacher's own use of
// github.com/klauspost/compress for the VARCHAR stream); Snappy is
// offered as a faster, lower-ratio alternative (grounded on bsm-sntable's
// Compression enum and per-block codec tag byte); None disables
// compression entirely.
type Compression byte

const (
	CompressionZstd Compression = iota
	CompressionSnappy
	CompressionNone
)

func (c Compression) isValid() bool {
	return c >= CompressionZstd && c <= CompressionNone
}

func compressFrame(raw []byte, codec Compression) ([]byte, error) {
	switch codec {
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case CompressionSnappy:
		return snappy.Encode(nil, raw), nil
	case CompressionNone:
		return raw, nil
	default:
		return nil, fmt.Errorf("logtable: unknown compression codec %d", codec)
	}
}

func decompressFrame(compressed []byte, codec Compression, rawLen int) ([]byte, error) {
	switch codec {
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(compressed, make([]byte, 0, rawLen))
	case CompressionSnappy:
		return snappy.Decode(make([]byte, 0, rawLen), compressed)
	case CompressionNone:
		return compressed, nil
	default:
		return nil, fmt.Errorf("logtable: unknown compression codec %d", codec)
	}
}

// countingWriter tracks how many bytes have physically been written to
// the underlying writer, used to compute the plain-file byte offset a new
// Mark should record.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// frameWriter buffers raw bytes and, once the buffer reaches
// maxBlockSize (or Flush is called), compresses it as one self-describing
// frame and appends the frame to the underlying plain file. The .bin file
// content is the concatenation of these frames, per spec §3/§6.
type frameWriter struct {
	out      *countingWriter
	codec    Compression
	buf      bytes.Buffer
	maxBlock int
}

func newFrameWriter(w io.Writer, codec Compression, maxBlockSize int) *frameWriter {
	if maxBlockSize <= 0 {
		maxBlockSize = 1 << 20
	}
	return &frameWriter{out: &countingWriter{w: w}, codec: codec, maxBlock: maxBlockSize}
}

func (fw *frameWriter) Write(p []byte) (int, error) {
	n, _ := fw.buf.Write(p)
	if fw.buf.Len() >= fw.maxBlock {
		if err := fw.Flush(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Flush emits the current buffered bytes as one compressed frame,
// closing out the current block boundary. Called at the end of every
// write(block) call for each stream first written in that block (spec
// §4.3 step 5), and on Writer.Finish.
func (fw *frameWriter) Flush() error {
	if fw.buf.Len() == 0 {
		return nil
	}
	raw := fw.buf.Bytes()
	compressed, err := compressFrame(raw, fw.codec)
	if err != nil {
		return err
	}

	header := make([]byte, 1+2*binary.MaxVarintLen64)
	header[0] = byte(fw.codec)
	n := 1
	n += binary.PutUvarint(header[n:], uint64(len(compressed)))
	n += binary.PutUvarint(header[n:], uint64(len(raw)))

	if _, err := fw.out.Write(header[:n]); err != nil {
		return err
	}
	if _, err := fw.out.Write(compressed); err != nil {
		return err
	}
	fw.buf.Reset()
	return nil
}

// BytesWritten returns the number of physical bytes appended to the plain
// file so far (already-flushed frames only).
func (fw *frameWriter) BytesWritten() int64 { return fw.out.n }

// frameReader presents the concatenation of frames in a stream's .bin
// file, starting at the current read position, as one continuous
// decompressed byte stream — mirroring CompressedReadBuffer's behavior of
// transparently spanning the underlying compressed frame boundaries.
type frameReader struct {
	r       *bufio.Reader
	pending []byte
}

func newFrameReader(r io.Reader, bufSize int) *frameReader {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &frameReader{r: bufio.NewReaderSize(r, bufSize)}
}

func (fr *frameReader) fill() error {
	for len(fr.pending) == 0 {
		if err := fr.nextFrame(); err != nil {
			return err
		}
	}
	return nil
}

func (fr *frameReader) nextFrame() error {
	codecByte, err := fr.r.ReadByte()
	if err != nil {
		return err // io.EOF propagates as "no more frames"
	}
	codec := Compression(codecByte)

	compLen, err := binary.ReadUvarint(fr.r)
	if err != nil {
		return fmt.Errorf("logtable: reading frame header: %w", err)
	}
	rawLen, err := binary.ReadUvarint(fr.r)
	if err != nil {
		return fmt.Errorf("logtable: reading frame header: %w", err)
	}

	compressed := make([]byte, compLen)
	if _, err := io.ReadFull(fr.r, compressed); err != nil {
		return fmt.Errorf("logtable: reading frame body: %w", err)
	}

	raw, err := decompressFrame(compressed, codec, int(rawLen))
	if err != nil {
		return fmt.Errorf("logtable: decompressing frame: %w", err)
	}
	fr.pending = raw
	return nil
}

func (fr *frameReader) Read(p []byte) (int, error) {
	if err := fr.fill(); err != nil {
		return 0, err
	}
	n := copy(p, fr.pending)
	fr.pending = fr.pending[n:]
	return n, nil
}

func (fr *frameReader) ReadByte() (byte, error) {
	if err := fr.fill(); err != nil {
		return 0, err
	}
	b := fr.pending[0]
	fr.pending = fr.pending[1:]
	return b, nil
}
