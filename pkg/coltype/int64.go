package coltype

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Int64Column holds a batch of signed 64-bit values.
type Int64Column struct {
	Values []int64
}

func (c *Int64Column) NumRows() int { return len(c.Values) }

// Int64 is the Type for a plain scalar Int64Column: exactly one stream,
// named after the column itself.
type Int64 struct{}

func (Int64) Name() string { return "Int64" }

func (Int64) EnumerateStreams(columnName string, cb func(string)) {
	cb(columnName)
}

// zigZagEncode maps a signed value to an unsigned one so small-magnitude
// negative and positive values both encode as small varints. Each row is
// encoded independently (not relative to the previous row): a reader may
// start decoding at any mark boundary and span any number of committed
// blocks in one DeserializeBulk call, so the encoding must not carry
// state across rows (spec P4).
func zigZagEncode(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

func zigZagDecode(z uint64) int64 {
	return int64(z>>1) ^ -int64(z&1)
}

func (Int64) SerializeBulk(columnName string, col Column, resolver StreamWriterResolver) error {
	w, err := resolver(columnName)
	if err != nil {
		return err
	}
	if w == nil {
		return nil
	}

	ic, ok := col.(*Int64Column)
	if !ok {
		return fmt.Errorf("coltype: Int64.SerializeBulk: column %q has wrong concrete type %T", columnName, col)
	}

	tmp := make([]byte, binary.MaxVarintLen64)
	for _, v := range ic.Values {
		n := binary.PutUvarint(tmp, zigZagEncode(v))
		if _, err := w.Write(tmp[:n]); err != nil {
			return fmt.Errorf("coltype: writing int64 stream %q: %w", columnName, err)
		}
	}
	return nil
}

func (Int64) DeserializeBulk(columnName string, maxRows int, resolver StreamReaderResolver) (Column, int, error) {
	r, err := resolver(columnName)
	if err != nil {
		return nil, 0, err
	}
	if r == nil {
		return &Int64Column{}, 0, nil
	}

	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufByteReader{r}
	}

	values := make([]int64, 0, maxRows)
	for i := 0; i < maxRows; i++ {
		zz, err := binary.ReadUvarint(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("coltype: reading int64 stream %q: %w", columnName, err)
		}
		values = append(values, zigZagDecode(zz))
	}
	return &Int64Column{Values: values}, len(values), nil
}

// bufByteReader adapts an io.Reader without ReadByte into one, one byte at
// a time. Stream readers handed out by the engine always implement
// io.ByteReader (they are bufio-backed); this is a defensive fallback.
type bufByteReader struct {
	io.Reader
}

func (b bufByteReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(b.Reader, buf[:])
	return buf[0], err
}
