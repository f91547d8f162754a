package logtable

import (
	"bufio"
	"io"
	"os"
	"runtime"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"

	"github.com/tomydb/logtable/pkg/coltype"
)

// streamSession is a writer's lazily-opened handle onto one stream's
// plain file: the underlying *os.File plus the frameWriter compressing
// and buffering writes to it.
type streamSession struct {
	file *os.File
	fw   *frameWriter
	// plainOffsetAtOpen is the file's byte size observed at the moment
	// this session was opened, captured once (spec §3 Mark.offset,
	// §5's O_APPEND discussion resolved in SPEC_FULL.md §9).
	plainOffsetAtOpen int64
}

// indexedMark pairs a Mark with the column_index of the stream it
// belongs to, before the marks are sorted into column_index order and
// appended to __marks.mrk.
type indexedMark struct {
	ColumnIndex int
	Mark        Mark
}

// Writer is an append session: the exclusive-lock-holding handle
// returned by Table.Write. At most one Writer exists per table at a time
// (spec §4.3, §5).
type Writer struct {
	table *Table

	marksFile   *os.File
	marksBuf    *bufio.Writer
	sessions    map[string]*streamSession
	sessionKeys []string // insertion order, for deterministic Finish iteration

	done bool
}

func newWriter(t *Table) (*Writer, error) {
	f, err := os.OpenFile(t.marksPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		t.mu.Unlock()
		return nil, errors.Wrapf(err, "opening marks file %q", t.marksPath)
	}

	w := &Writer{
		table:     t,
		marksFile: f,
		marksBuf:  bufio.NewWriter(f),
		sessions:  make(map[string]*streamSession),
	}
	runtime.SetFinalizer(w, finalizeWriter)
	return w, nil
}

// finalizeWriter is the destructor-equivalent safety net: if a Writer is
// garbage-collected without Finish having been called, make a best-effort
// attempt to flush and release the table's exclusive lock, logging any
// failure rather than raising it (spec §7's "destructors catch and log,
// never re-raise" rule, grounded on the teacher's discard-on-close
// pattern in pkg/tomy_file).
func finalizeWriter(w *Writer) {
	if w.done {
		return
	}
	if err := w.Finish(); err != nil {
		log.Error.Printf("logtable: writer finalizer: %v", err)
	}
}

func (w *Writer) openStream(rec *streamRecord) (*streamSession, error) {
	if sess, ok := w.sessions[rec.Name]; ok {
		return sess, nil
	}

	f, err := os.OpenFile(rec.DataPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening stream file %q", rec.DataPath)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stating stream file %q", rec.DataPath)
	}

	sess := &streamSession{
		file:              f,
		fw:                newFrameWriter(f, w.table.opts.Compression, w.table.opts.MaxCompressBlockSize),
		plainOffsetAtOpen: fi.Size(),
	}
	w.sessions[rec.Name] = sess
	w.sessionKeys = append(w.sessionKeys, rec.Name)
	return sess, nil
}

func lastRows(rec *streamRecord) uint64 {
	if len(rec.Marks) == 0 {
		return 0
	}
	return rec.Marks[len(rec.Marks)-1].Rows
}

// Write appends one block, taking each schema column in turn through three
// steps mirroring the original's writeData: (1) for each of its streams
// not yet written in this block, open its
// session and record a Mark at its pre-block offset; (2) serialize every
// column, with the resolver returning nil for streams already written by
// an earlier column in this same block (shared array sizes, spec P6);
// (3) for every not-yet-written stream, flush its frame and mark it
// written. Finally the marks are appended to __marks.mrk (spec §4.3).
func (w *Writer) Write(b *Block) error {
	if w.done {
		return errors.Wrap(ErrLogicalError, "write called after Finish")
	}
	if err := validateBlock(w.table.schema, b); err != nil {
		return err
	}

	writtenStreams := make(map[string]bool)
	var marks []indexedMark

	for _, col := range w.table.schema {
		colVal := b.Columns[col.Name]

		var enumErr error
		col.Type.EnumerateStreams(col.Name, func(streamName string) {
			if enumErr != nil || writtenStreams[streamName] {
				return
			}
			rec := w.table.streamsByName[streamName]
			sess, err := w.openStream(rec)
			if err != nil {
				enumErr = err
				return
			}
			rows := lastRows(rec) + uint64(colVal.NumRows())
			offset := uint64(sess.plainOffsetAtOpen) + uint64(sess.fw.BytesWritten())
			marks = append(marks, indexedMark{ColumnIndex: rec.ColumnIndex, Mark: Mark{Rows: rows, Offset: offset}})
		})
		if enumErr != nil {
			return wrapColumnErr(enumErr, col.Name, w.table.dir)
		}

		resolver := coltype.StreamWriterResolver(func(streamName string) (io.Writer, error) {
			if writtenStreams[streamName] {
				return nil, nil
			}
			rec := w.table.streamsByName[streamName]
			sess, err := w.openStream(rec)
			if err != nil {
				return nil, err
			}
			return sess.fw, nil
		})
		if err := col.Type.SerializeBulk(col.Name, colVal, resolver); err != nil {
			return wrapColumnErr(err, col.Name, w.table.dir)
		}

		col.Type.EnumerateStreams(col.Name, func(streamName string) {
			if writtenStreams[streamName] {
				return
			}
			writtenStreams[streamName] = true
			sess := w.sessions[streamName]
			if err := sess.fw.Flush(); err != nil && enumErr == nil {
				enumErr = err
			}
		})
		if enumErr != nil {
			return wrapColumnErr(enumErr, col.Name, w.table.dir)
		}
	}

	return w.writeMarks(marks)
}

func (w *Writer) writeMarks(marks []indexedMark) error {
	if len(marks) != len(w.table.streamsByIndex) {
		return errors.Wrapf(ErrLogicalError, "block produced %d marks, table has %d streams", len(marks), len(w.table.streamsByIndex))
	}

	sort.Slice(marks, func(i, j int) bool { return marks[i].ColumnIndex < marks[j].ColumnIndex })

	buf := make([]byte, markSize)
	for _, im := range marks {
		im.Mark.put(buf)
		if _, err := w.marksBuf.Write(buf); err != nil {
			return errors.Wrap(err, "writing marks file")
		}
		rec := w.table.streamsByIndex[im.ColumnIndex]
		rec.Marks = append(rec.Marks, im.Mark)
	}
	return nil
}

// Finish flushes and closes every open stream and the marks file, updates
// the size journal, and releases the table's exclusive lock. Idempotent:
// subsequent calls return nil immediately (spec §4.3, §7).
func (w *Writer) Finish() error {
	if w.done {
		return nil
	}
	w.done = true
	runtime.SetFinalizer(w, nil)

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(w.marksBuf.Flush())
	record(w.marksFile.Close())

	touched := make([]string, 0, len(w.sessionKeys)+1)
	for _, name := range w.sessionKeys {
		sess := w.sessions[name]
		record(sess.fw.Flush())
		record(sess.file.Close())
		touched = append(touched, w.table.streamsByName[name].DataPath)
	}
	touched = append(touched, w.table.marksPath)

	record(w.table.journal.update(touched))

	w.table.mu.Unlock()

	if firstErr != nil {
		return errors.Wrap(firstErr, "finishing write session")
	}
	return nil
}

// Close is an alias for Finish, for callers that prefer the io.Closer
// convention.
func (w *Writer) Close() error { return w.Finish() }
