package logtable

import "encoding/binary"

// markSize is the on-disk size of one Mark: two little-endian uint64s.
const markSize = 16

// Mark indexes one stream's data file at the boundary of a committed
// block: Rows is the cumulative row count of the stream through this
// block, Offset is the byte offset in the stream's .bin file at which the
// block's compressed frame begins.
type Mark struct {
	Rows   uint64
	Offset uint64
}

func (m Mark) put(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], m.Rows)
	binary.LittleEndian.PutUint64(buf[8:16], m.Offset)
}

func getMark(buf []byte) Mark {
	return Mark{
		Rows:   binary.LittleEndian.Uint64(buf[0:8]),
		Offset: binary.LittleEndian.Uint64(buf[8:16]),
	}
}
