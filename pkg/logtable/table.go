package logtable

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/tomydb/logtable/pkg/coltype"
)

const marksFileName = "__marks.mrk"
const journalFileName = "sizes.json"

// Options configures a Table's write-path behavior. Zero value selects
// the defaults via Options.norm.
type Options struct {
	// MaxCompressBlockSize bounds how many raw bytes accumulate per
	// stream before a frame is compressed and flushed. Default 1<<20.
	MaxCompressBlockSize int
	// Compression selects the codec applied to every stream's frames.
	// Default CompressionZstd.
	Compression Compression
}

func (o *Options) norm() *Options {
	out := Options{MaxCompressBlockSize: 1 << 20, Compression: CompressionZstd}
	if o != nil {
		if o.MaxCompressBlockSize > 0 {
			out.MaxCompressBlockSize = o.MaxCompressBlockSize
		}
		if o.Compression.isValid() {
			out.Compression = o.Compression
		}
	}
	return &out
}

// Table is a table descriptor: the in-process handle coordinating a
// table directory's streams, marks and size journal across concurrent
// readers and writers (spec §4.1, §5). The zero value is not usable;
// construct with New.
type Table struct {
	mu sync.RWMutex

	root string
	name string
	dir  string

	schema Schema
	opts   *Options

	streamsByName  map[string]*streamRecord
	streamsByIndex []*streamRecord

	marksPath   string
	marksLoaded bool

	journal *journal
}

// New constructs a table descriptor rooted at filepath.Join(root,
// escapeForFileName(name)), creating the directory and registering every
// stream the schema's types enumerate. It does not load marks or touch
// any data file; that happens lazily on the first read or write (spec
// §4.1, §4.2).
func New(root, name string, schema Schema, opts *Options) (*Table, error) {
	if len(schema) == 0 {
		return nil, ErrEmptyColumns
	}

	dir := filepath.Join(root, escapeForFileName(name))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating table directory %q", dir)
	}

	byName, byIndex, err := buildStreams(schema, dir)
	if err != nil {
		return nil, err
	}

	jrn, err := newJournal(filepath.Join(dir, journalFileName))
	if err != nil {
		return nil, err
	}

	t := &Table{
		root:           root,
		name:           name,
		dir:            dir,
		schema:         schema,
		opts:           opts.norm(),
		streamsByName:  byName,
		streamsByIndex: byIndex,
		marksPath:      filepath.Join(dir, marksFileName),
		journal:        jrn,
	}
	return t, nil
}

// ensureMarksLoaded loads __marks.mrk exactly once per descriptor, under
// the exclusive lock, before the first read or write (spec §4.2, §5).
func (t *Table) ensureMarksLoaded() error {
	t.mu.RLock()
	loaded := t.marksLoaded
	t.mu.RUnlock()
	if loaded {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.marksLoaded {
		return nil
	}
	if err := t.loadMarksLocked(); err != nil {
		return err
	}
	t.marksLoaded = true
	return nil
}

// loadMarksLocked assumes t.mu is held for writing.
func (t *Table) loadMarksLocked() error {
	data, err := os.ReadFile(t.marksPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "reading marks file %q", t.marksPath)
	}

	fileCount := len(t.streamsByIndex)
	if len(data)%(fileCount*markSize) != 0 {
		return errors.Wrapf(ErrMarksInconsistent, "marks file %q has size %d, file_count=%d", t.marksPath, len(data), fileCount)
	}

	numBlocks := len(data) / (fileCount * markSize)
	for block := 0; block < numBlocks; block++ {
		for col := 0; col < fileCount; col++ {
			off := (block*fileCount + col) * markSize
			m := getMark(data[off : off+markSize])
			t.streamsByIndex[col].Marks = append(t.streamsByIndex[col].Marks, m)
		}
	}
	return nil
}

// Write acquires the exclusive lock for the lifetime of the returned
// writer session; callers must call Finish to release it (spec §4.3,
// §5).
func (t *Table) Write() (*Writer, error) {
	if err := t.ensureMarksLoaded(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	return newWriter(t)
}

// Read validates columnNames against the schema, then partitions the
// row-count-carrying stream's marks into at most numStreams contiguous
// ranges, returning one independent StreamReader per range (spec §4.4).
func (t *Table) Read(columnNames []string, numStreams, blockSize, maxReadBuffer int) ([]*StreamReader, error) {
	for _, cn := range columnNames {
		if _, ok := t.schema.byName(cn); !ok {
			return nil, errors.Wrapf(ErrNoSuchColumn, "column %q", cn)
		}
	}

	if err := t.ensureMarksLoaded(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	first := t.schema[0]
	rowCountStreamName := firstStreamName(coltype.Unwrap(first.Type), first.Name)
	rec, ok := t.streamsByName[rowCountStreamName]
	if !ok {
		t.mu.RUnlock()
		return nil, errors.Wrap(ErrLogicalError, "cannot find row-count-carrying stream")
	}

	marks := rec.Marks
	k := numStreams
	if k > len(marks) {
		k = len(marks)
	}

	type partition struct {
		markBegin int
		rowsLimit uint64
	}
	partitions := make([]partition, 0, k)
	for s := 0; s < k; s++ {
		markBegin := s * len(marks) / k
		markEnd := (s + 1) * len(marks) / k
		var rowsBegin, rowsEnd uint64
		if markBegin > 0 {
			rowsBegin = marks[markBegin-1].Rows
		}
		if markEnd > 0 {
			rowsEnd = marks[markEnd-1].Rows
		}
		partitions = append(partitions, partition{markBegin, rowsEnd - rowsBegin})
	}
	t.mu.RUnlock()

	readers := make([]*StreamReader, 0, len(partitions))
	for _, p := range partitions {
		t.mu.RLock() // held for the lifetime of this reader; released on Close
		readers = append(readers, newStreamReader(t, columnNames, p.markBegin, p.rowsLimit, blockSize, maxReadBuffer))
	}
	return readers, nil
}

// CheckData acquires the shared lock and asks the size journal to verify
// every recorded file's current byte size against its journaled size
// (spec §4.5).
func (t *Table) CheckData() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.journal.check(t.dir)
}

// Rename renames the table directory under the exclusive lock and
// rebinds every in-memory path. Not crash-atomic (spec §4.6).
func (t *Table) Rename(newRoot, newName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	newDir := filepath.Join(newRoot, escapeForFileName(newName))
	if err := os.MkdirAll(newRoot, 0755); err != nil {
		return errors.Wrapf(err, "creating new root %q", newRoot)
	}
	if err := os.Rename(t.dir, newDir); err != nil {
		return errors.Wrapf(err, "renaming %q to %q", t.dir, newDir)
	}

	for _, rec := range t.streamsByIndex {
		base := filepath.Base(rec.DataPath)
		rec.DataPath = filepath.Join(newDir, base)
	}
	t.root = newRoot
	t.name = newName
	t.dir = newDir
	t.marksPath = filepath.Join(newDir, marksFileName)
	t.journal.path = filepath.Join(newDir, journalFileName)
	return nil
}

// Dir returns the table's current directory on disk.
func (t *Table) Dir() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dir
}
