package coltype

import (
	"encoding/binary"
	"fmt"
	"io"
)

// VarcharColumn holds a batch of strings as a packed byte buffer plus
// per-row start offsets into it, mirroring how the engine packs nested
// variable-length data.
type VarcharColumn struct {
	Offsets []uint64 // Offsets[i] is the start of row i within Data
	Data    []byte
}

func (c *VarcharColumn) NumRows() int { return len(c.Offsets) }

func (c *VarcharColumn) rowLen(i int) uint64 {
	if i == len(c.Offsets)-1 {
		return uint64(len(c.Data)) - c.Offsets[i]
	}
	return c.Offsets[i+1] - c.Offsets[i]
}

// Strings materializes the column as a []string, for tests and callers
// that don't want to deal with the packed representation.
func (c *VarcharColumn) Strings() []string {
	out := make([]string, len(c.Offsets))
	for i := range c.Offsets {
		start := c.Offsets[i]
		out[i] = string(c.Data[start : start+c.rowLen(i)])
	}
	return out
}

// VarcharColumnFromStrings packs a []string into a VarcharColumn.
func VarcharColumnFromStrings(values []string) *VarcharColumn {
	offsets := make([]uint64, len(values))
	var data []byte
	var cur uint64
	for i, s := range values {
		offsets[i] = cur
		data = append(data, s...)
		cur += uint64(len(s))
	}
	return &VarcharColumn{Offsets: offsets, Data: data}
}

// Varchar is the Type for VarcharColumn: a lengths substream (one varint
// per row) and a data substream (the concatenated raw bytes), mirroring
// Array's sizes/elements split so a read can start at any mark boundary
// and span any number of committed blocks — each row's length is
// self-contained in the lengths stream, independent of any other row
// (spec P4).
type Varchar struct{}

func (Varchar) Name() string { return "Varchar" }

func (v Varchar) lengthsStreamName(columnName string) string {
	return columnName + ".len"
}

func (v Varchar) EnumerateStreams(columnName string, cb func(string)) {
	cb(v.lengthsStreamName(columnName))
	cb(columnName)
}

func (v Varchar) SerializeBulk(columnName string, col Column, resolver StreamWriterResolver) error {
	vc, ok := col.(*VarcharColumn)
	if !ok {
		return fmt.Errorf("coltype: Varchar.SerializeBulk: column %q has wrong concrete type %T", columnName, col)
	}

	lensName := v.lengthsStreamName(columnName)
	lw, err := resolver(lensName)
	if err != nil {
		return err
	}
	if lw != nil {
		tmp := make([]byte, binary.MaxVarintLen64)
		for i := range vc.Offsets {
			n := binary.PutUvarint(tmp, vc.rowLen(i))
			if _, err := lw.Write(tmp[:n]); err != nil {
				return fmt.Errorf("coltype: writing varchar lengths %q: %w", lensName, err)
			}
		}
	}

	dw, err := resolver(columnName)
	if err != nil {
		return err
	}
	if dw != nil {
		if _, err := dw.Write(vc.Data); err != nil {
			return fmt.Errorf("coltype: writing varchar data %q: %w", columnName, err)
		}
	}
	return nil
}

func (v Varchar) DeserializeBulk(columnName string, maxRows int, resolver StreamReaderResolver) (Column, int, error) {
	lensName := v.lengthsStreamName(columnName)
	lr, err := resolver(lensName)
	if err != nil {
		return nil, 0, err
	}
	if lr == nil {
		return nil, 0, fmt.Errorf("coltype: Varchar.DeserializeBulk: lengths stream %q must not be skipped", lensName)
	}

	br, ok := lr.(io.ByteReader)
	if !ok {
		br = bufByteReader{lr}
	}

	lens := make([]uint64, 0, maxRows)
	for i := 0; i < maxRows; i++ {
		l, err := binary.ReadUvarint(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("coltype: reading varchar lengths %q: %w", lensName, err)
		}
		lens = append(lens, l)
	}

	offsets := make([]uint64, len(lens))
	var total uint64
	for i, l := range lens {
		offsets[i] = total
		total += l
	}

	dr, err := resolver(columnName)
	if err != nil {
		return nil, 0, err
	}
	if dr == nil {
		return nil, 0, fmt.Errorf("coltype: Varchar.DeserializeBulk: data stream %q must not be skipped", columnName)
	}

	data := make([]byte, total)
	if total > 0 {
		if _, err := io.ReadFull(dr, data); err != nil {
			return nil, 0, fmt.Errorf("coltype: reading varchar data %q: %w", columnName, err)
		}
	}

	return &VarcharColumn{Offsets: offsets, Data: data}, len(lens), nil
}
