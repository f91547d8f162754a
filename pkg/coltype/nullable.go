package coltype

import (
	"fmt"
	"io"
)

// NullableColumn pairs a null-bitmap with an inner column that carries a
// placeholder value (zero value of its type) for every null row.
type NullableColumn struct {
	NullMap []bool
	Inner   Column
}

func (c *NullableColumn) NumRows() int { return len(c.NullMap) }

// Nullable wraps another Type with a null-bitmap substream, written before
// the wrapped type's own streams.
type Nullable struct {
	Elem Type
}

func (n Nullable) Name() string { return "Nullable(" + n.Elem.Name() + ")" }

// Unwrap exposes the wrapped type so the reader can find the
// row-count-carrying stream of the underlying type (spec §4.4 step 4).
func (n Nullable) Unwrap() Type { return n.Elem }

func (n Nullable) nullMapStreamName(columnName string) string {
	return columnName + ".null"
}

func (n Nullable) EnumerateStreams(columnName string, cb func(string)) {
	cb(n.nullMapStreamName(columnName))
	n.Elem.EnumerateStreams(columnName, cb)
}

func (n Nullable) SerializeBulk(columnName string, col Column, resolver StreamWriterResolver) error {
	nc, ok := col.(*NullableColumn)
	if !ok {
		return fmt.Errorf("coltype: Nullable.SerializeBulk: column %q has wrong concrete type %T", columnName, col)
	}

	streamName := n.nullMapStreamName(columnName)
	w, err := resolver(streamName)
	if err != nil {
		return err
	}
	if w != nil {
		buf := make([]byte, len(nc.NullMap))
		for i, isNull := range nc.NullMap {
			if isNull {
				buf[i] = 1
			}
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("coltype: writing null map %q: %w", streamName, err)
		}
	}

	return n.Elem.SerializeBulk(columnName, nc.Inner, resolver)
}

func (n Nullable) DeserializeBulk(columnName string, maxRows int, resolver StreamReaderResolver) (Column, int, error) {
	streamName := n.nullMapStreamName(columnName)
	r, err := resolver(streamName)
	if err != nil {
		return nil, 0, err
	}
	if r == nil {
		return nil, 0, fmt.Errorf("coltype: Nullable.DeserializeBulk: null map stream %q must not be skipped", streamName)
	}

	buf := make([]byte, maxRows)
	read, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, 0, fmt.Errorf("coltype: reading null map %q: %w", streamName, err)
	}
	buf = buf[:read]

	nullMap := make([]bool, read)
	for i, b := range buf {
		nullMap[i] = b != 0
	}

	inner, innerRows, err := n.Elem.DeserializeBulk(columnName, read, resolver)
	if err != nil {
		return nil, 0, err
	}
	if innerRows != read {
		return nil, 0, fmt.Errorf("coltype: Nullable.DeserializeBulk: inner type read %d rows, null map has %d", innerRows, read)
	}

	return &NullableColumn{NullMap: nullMap, Inner: inner}, read, nil
}
