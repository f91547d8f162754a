package coltype

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ArrayColumn holds a batch of variable-length arrays over some element
// type. Offsets[i] is the cumulative number of elements up to and
// including row i (ClickHouse-style cumulative array offsets), so
// Offsets[len-1] is the total element count.
type ArrayColumn struct {
	Offsets []uint64
	Elem    Column
}

func (c *ArrayColumn) NumRows() int { return len(c.Offsets) }

func (c *ArrayColumn) rowRange(i int) (start, end uint64) {
	if i == 0 {
		return 0, c.Offsets[0]
	}
	return c.Offsets[i-1], c.Offsets[i]
}

// Array is the Type for ArrayColumn. Two array columns that belong to the
// same nested table share one NestedName, which is the array-sizes
// substream name written and read only once per block regardless of how
// many columns reference it (spec P6).
type Array struct {
	Elem       Type
	NestedName string // shared sizes-stream name; defaults to columnName+".size" if empty
}

func (a Array) Name() string { return "Array(" + a.Elem.Name() + ")" }

func (a Array) sizesStreamName(columnName string) string {
	if a.NestedName != "" {
		return a.NestedName
	}
	return columnName + ".size"
}

// SizesStreamName exposes the array-sizes substream name so a caller
// outside this package (the table engine) can key its own shared-offsets
// cache the same way DeserializeBulkWithOffsets does internally.
func (a Array) SizesStreamName(columnName string) string {
	return a.sizesStreamName(columnName)
}

func (a Array) EnumerateStreams(columnName string, cb func(string)) {
	cb(a.sizesStreamName(columnName))
	a.Elem.EnumerateStreams(columnName, cb)
}

func (a Array) SerializeBulk(columnName string, col Column, resolver StreamWriterResolver) error {
	ac, ok := col.(*ArrayColumn)
	if !ok {
		return fmt.Errorf("coltype: Array.SerializeBulk: column %q has wrong concrete type %T", columnName, col)
	}

	sizesName := a.sizesStreamName(columnName)
	w, err := resolver(sizesName)
	if err != nil {
		return err
	}
	if w != nil {
		tmp := make([]byte, binary.MaxVarintLen64)
		for i := range ac.Offsets {
			start, end := ac.rowRange(i)
			n := binary.PutUvarint(tmp, end-start)
			if _, err := w.Write(tmp[:n]); err != nil {
				return fmt.Errorf("coltype: writing array sizes %q: %w", sizesName, err)
			}
		}
	}

	return a.Elem.SerializeBulk(columnName, ac.Elem, resolver)
}

// DeserializeBulk implements Type by always reading a fresh sizes stream.
// Callers that need to share a nested table's offsets across sibling
// columns within one block should call DeserializeBulkWithOffsets instead
// (see pkg/logtable/reader.go).
func (a Array) DeserializeBulk(columnName string, maxRows int, resolver StreamReaderResolver) (Column, int, error) {
	var offsets []uint64
	return a.DeserializeBulkWithOffsets(columnName, maxRows, &offsets, resolver)
}

// DeserializeBulkWithOffsets reads up to maxRows rows. If *offsets is nil,
// it reads and decodes the array-sizes substream itself and stores the
// result in *offsets for a caller to reuse across sibling columns sharing
// the same nested table. If *offsets is already populated (by a sibling
// column read earlier in the same block), it is reused verbatim and the
// sizes substream is not read again.
func (a Array) DeserializeBulkWithOffsets(columnName string, maxRows int, offsets *[]uint64, resolver StreamReaderResolver) (Column, int, error) {
	sizesName := a.sizesStreamName(columnName)

	if *offsets == nil {
		r, err := resolver(sizesName)
		if err != nil {
			return nil, 0, err
		}
		if r == nil {
			return nil, 0, fmt.Errorf("coltype: Array.DeserializeBulk: array-sizes stream %q not supplied and not shared", sizesName)
		}

		br, ok := r.(io.ByteReader)
		if !ok {
			br = bufByteReader{r}
		}

		decoded := make([]uint64, 0, maxRows)
		var cum uint64
		for i := 0; i < maxRows; i++ {
			n, err := binary.ReadUvarint(br)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, 0, fmt.Errorf("coltype: reading array sizes %q: %w", sizesName, err)
			}
			cum += n
			decoded = append(decoded, cum)
		}
		*offsets = decoded
	}

	rows := *offsets
	var totalElems uint64
	if len(rows) > 0 {
		totalElems = rows[len(rows)-1]
	}

	elemCol, _, err := a.Elem.DeserializeBulk(columnName, int(totalElems), resolver)
	if err != nil {
		return nil, 0, err
	}

	return &ArrayColumn{Offsets: rows, Elem: elemCol}, len(rows), nil
}
