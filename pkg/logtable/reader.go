package logtable

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/tomydb/logtable/pkg/coltype"
)

// readerStreamHandle bundles one stream's buffered plain-file reader and
// decompressor into a single owned record; closing the reader closes all
// of them (spec §9 "Lifetime of reader file handles").
type readerStreamHandle struct {
	file *os.File
	fr   *frameReader
}

// StreamReader is one independent block producer returned by Table.Read.
// It holds the table's shared lock for its entire lifetime and must be
// closed (directly, or implicitly on reaching end-of-stream) to release
// it (spec §4.4, §5).
type StreamReader struct {
	table       *Table
	columnNames []string

	markNumber    int
	rowsLimit     uint64
	rowsRead      uint64
	blockSize     int
	maxReadBuffer int

	streams map[string]*readerStreamHandle

	closed    bool
	exhausted bool
}

func newStreamReader(t *Table, columnNames []string, markBegin int, rowsLimit uint64, blockSize, maxReadBuffer int) *StreamReader {
	return &StreamReader{
		table:         t,
		columnNames:   columnNames,
		markNumber:    markBegin,
		rowsLimit:     rowsLimit,
		blockSize:     blockSize,
		maxReadBuffer: maxReadBuffer,
		streams:       make(map[string]*readerStreamHandle),
	}
}

// Close releases every open stream handle and the table's shared lock.
// Safe to call more than once.
func (sr *StreamReader) Close() error {
	if sr.closed {
		return nil
	}
	sr.closed = true

	var firstErr error
	for _, h := range sr.streams {
		if err := h.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	sr.table.mu.RUnlock()
	return firstErr
}

// resolver opens (lazily, cached for the reader's lifetime) the plain
// file backing streamName, seeking to this reader's starting mark on
// first open, then returns its frameReader (spec §4.4 step 3, §9).
func (sr *StreamReader) resolver(streamName string) (io.Reader, error) {
	if h, ok := sr.streams[streamName]; ok {
		return h.fr, nil
	}

	rec, ok := sr.table.streamsByName[streamName]
	if !ok {
		return nil, errors.Wrapf(ErrLogicalError, "stream %q not registered", streamName)
	}

	f, err := os.Open(rec.DataPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening stream file %q", rec.DataPath)
	}

	var offset int64
	if sr.markNumber > 0 {
		offset = int64(rec.Marks[sr.markNumber].Offset)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "seeking stream file %q to offset %d", rec.DataPath, offset)
		}
	}

	bufSize := sr.maxReadBuffer
	if fi, statErr := f.Stat(); statErr == nil && int64(bufSize) > fi.Size() {
		bufSize = int(fi.Size())
	}

	h := &readerStreamHandle{file: f, fr: newFrameReader(f, bufSize)}
	sr.streams[streamName] = h
	return h.fr, nil
}

// NextBlock reads up to blockSize rows for every requested column,
// sharing nested-array-sizes offsets across sibling columns within this
// single call, and returns io.EOF once the reader's row budget is
// exhausted or the table directory turns out to be empty (spec §4.4,
// scenario 1).
func (sr *StreamReader) NextBlock() (*Block, error) {
	if sr.exhausted {
		return nil, io.EOF
	}
	if sr.rowsRead >= sr.rowsLimit {
		sr.exhausted = true
		_ = sr.Close()
		return nil, io.EOF
	}

	entries, err := os.ReadDir(sr.table.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading table directory %q", sr.table.dir)
	}
	if len(entries) == 0 {
		sr.exhausted = true
		_ = sr.Close()
		return nil, io.EOF
	}

	maxRows := sr.blockSize
	if remaining := sr.rowsLimit - sr.rowsRead; uint64(maxRows) > remaining {
		maxRows = int(remaining)
	}

	sharedOffsets := make(map[string]*[]uint64)
	columns := make(map[string]coltype.Column, len(sr.columnNames))
	rows := -1

	for _, name := range sr.columnNames {
		colDef, ok := sr.table.schema.byName(name)
		if !ok {
			return nil, errors.Wrapf(ErrNoSuchColumn, "column %q", name)
		}

		var col coltype.Column
		var n int
		var derr error

		if arr, ok := colDef.Type.(coltype.Array); ok {
			nestedName := arr.SizesStreamName(name)
			ptr, ok := sharedOffsets[nestedName]
			if !ok {
				var o []uint64
				ptr = &o
				sharedOffsets[nestedName] = ptr
			}
			col, n, derr = arr.DeserializeBulkWithOffsets(name, maxRows, ptr, sr.resolver)
		} else {
			col, n, derr = colDef.Type.DeserializeBulk(name, maxRows, sr.resolver)
		}
		if derr != nil {
			return nil, wrapColumnErr(derr, name, sr.table.dir)
		}

		columns[name] = col
		rows = n
	}

	if rows <= 0 {
		sr.exhausted = true
		_ = sr.Close()
		return nil, io.EOF
	}

	sr.rowsRead += uint64(rows)
	if sr.rowsRead >= sr.rowsLimit {
		sr.exhausted = true
		_ = sr.Close()
	}

	return &Block{NumRows: rows, Columns: columns}, nil
}
