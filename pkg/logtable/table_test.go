package logtable

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tomydb/logtable/pkg/coltype"
)

func intSchema() Schema {
	return Schema{{Name: "a", Type: coltype.Int64{}}}
}

func readAllInts(t *testing.T, tbl *Table, numStreams, blockSize int) [][]int64 {
	t.Helper()
	readers, err := tbl.Read([]string{"a"}, numStreams, blockSize, 4096)
	require.NoError(t, err)

	out := make([][]int64, 0, len(readers))
	for _, r := range readers {
		var got []int64
		for {
			block, err := r.NextBlock()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			got = append(got, block.Columns["a"].(*coltype.Int64Column).Values...)
		}
		out = append(out, got)
	}
	return out
}

func TestFreshTableNoWrites(t *testing.T) {
	dir := t.TempDir()
	tbl, err := New(dir, "t", intSchema(), nil)
	require.NoError(t, err)

	readers, err := tbl.Read([]string{"a"}, 4, 100, 4096)
	require.NoError(t, err)
	for _, r := range readers {
		_, err := r.NextBlock()
		require.ErrorIs(t, err, io.EOF)
	}
}

func TestSingleAppendFullScan(t *testing.T) {
	dir := t.TempDir()
	tbl, err := New(dir, "t", intSchema(), nil)
	require.NoError(t, err)

	w, err := tbl.Write()
	require.NoError(t, err)
	require.NoError(t, w.Write(&Block{NumRows: 3, Columns: map[string]coltype.Column{
		"a": &coltype.Int64Column{Values: []int64{1, 2, 3}},
	}}))
	require.NoError(t, w.Finish())

	out := readAllInts(t, tbl, 1, 100)
	require.Len(t, out, 1)
	require.Equal(t, []int64{1, 2, 3}, out[0])
}

func TestTwoAppendsTwoWaySplit(t *testing.T) {
	dir := t.TempDir()
	tbl, err := New(dir, "t", intSchema(), nil)
	require.NoError(t, err)

	w, err := tbl.Write()
	require.NoError(t, err)
	require.NoError(t, w.Write(&Block{NumRows: 2, Columns: map[string]coltype.Column{
		"a": &coltype.Int64Column{Values: []int64{1, 2}},
	}}))
	require.NoError(t, w.Write(&Block{NumRows: 3, Columns: map[string]coltype.Column{
		"a": &coltype.Int64Column{Values: []int64{3, 4, 5}},
	}}))
	require.NoError(t, w.Finish())

	fi, err := os.Stat(filepath.Join(tbl.Dir(), marksFileName))
	require.NoError(t, err)
	require.EqualValues(t, 32, fi.Size())

	out := readAllInts(t, tbl, 2, 100)
	require.Len(t, out, 2)
	require.Equal(t, []int64{1, 2}, out[0])
	require.Equal(t, []int64{3, 4, 5}, out[1])
}

func TestNestedArraySharing(t *testing.T) {
	dir := t.TempDir()
	arrType := coltype.Array{Elem: coltype.Int64{}, NestedName: "nested"}
	schema := Schema{
		{Name: "x", Type: arrType},
		{Name: "y", Type: arrType},
	}
	tbl, err := New(dir, "t", schema, nil)
	require.NoError(t, err)

	w, err := tbl.Write()
	require.NoError(t, err)
	require.NoError(t, w.Write(&Block{NumRows: 2, Columns: map[string]coltype.Column{
		"x": &coltype.ArrayColumn{Offsets: []uint64{1, 3}, Elem: &coltype.Int64Column{Values: []int64{1, 2, 3}}},
		"y": &coltype.ArrayColumn{Offsets: []uint64{1, 3}, Elem: &coltype.Int64Column{Values: []int64{4, 5, 6}}},
	}}))
	require.NoError(t, w.Finish())

	entries, err := os.ReadDir(tbl.Dir())
	require.NoError(t, err)
	var binFiles int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".bin" {
			binFiles++
		}
	}
	require.Equal(t, 3, binFiles) // nested, x, y

	fi, err := os.Stat(filepath.Join(tbl.Dir(), marksFileName))
	require.NoError(t, err)
	require.EqualValues(t, 3*markSize, fi.Size()) // one block, 3 streams

	readers, err := tbl.Read([]string{"x", "y"}, 1, 100, 4096)
	require.NoError(t, err)
	require.Len(t, readers, 1)
	block, err := readers[0].NextBlock()
	require.NoError(t, err)
	require.Equal(t, 2, block.NumRows)

	xc := block.Columns["x"].(*coltype.ArrayColumn)
	yc := block.Columns["y"].(*coltype.ArrayColumn)
	require.Equal(t, []int64{1, 2, 3}, xc.Elem.(*coltype.Int64Column).Values)
	require.Equal(t, []int64{4, 5, 6}, yc.Elem.(*coltype.Int64Column).Values)

	_, err = readers[0].NextBlock()
	require.ErrorIs(t, err, io.EOF)
}

func TestCorruptionDetection(t *testing.T) {
	dir := t.TempDir()
	tbl, err := New(dir, "t", intSchema(), nil)
	require.NoError(t, err)

	w, err := tbl.Write()
	require.NoError(t, err)
	require.NoError(t, w.Write(&Block{NumRows: 2, Columns: map[string]coltype.Column{
		"a": &coltype.Int64Column{Values: []int64{1, 2}},
	}}))
	require.NoError(t, w.Write(&Block{NumRows: 3, Columns: map[string]coltype.Column{
		"a": &coltype.Int64Column{Values: []int64{3, 4, 5}},
	}}))
	require.NoError(t, w.Finish())

	marksPath := filepath.Join(tbl.Dir(), marksFileName)
	require.NoError(t, os.Truncate(marksPath, 15))

	tbl2, err := New(dir, "t", intSchema(), nil)
	require.NoError(t, err)
	_, err = tbl2.Read([]string{"a"}, 1, 100, 4096)
	require.ErrorIs(t, err, ErrMarksInconsistent)
}

func TestRename(t *testing.T) {
	root := t.TempDir()
	tbl, err := New(root, "t", intSchema(), nil)
	require.NoError(t, err)

	w, err := tbl.Write()
	require.NoError(t, err)
	require.NoError(t, w.Write(&Block{NumRows: 2, Columns: map[string]coltype.Column{
		"a": &coltype.Int64Column{Values: []int64{1, 2}},
	}}))
	require.NoError(t, w.Write(&Block{NumRows: 3, Columns: map[string]coltype.Column{
		"a": &coltype.Int64Column{Values: []int64{3, 4, 5}},
	}}))
	require.NoError(t, w.Finish())

	newRoot := t.TempDir()
	require.NoError(t, tbl.Rename(newRoot, "t2"))
	require.Equal(t, filepath.Join(newRoot, "t2"), tbl.Dir())

	entries, err := os.ReadDir(filepath.Join(newRoot, "t2"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	out := readAllInts(t, tbl, 1, 100)
	require.Len(t, out, 1)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, out[0])
}

// TestReadSpansMultipleWriteBlocks exercises spec P4 directly: two
// separate committed write blocks, read back with num_streams=1 and a
// block_size large enough that a single NextBlock call must decode rows
// from both committed blocks in one go. Each row's encoding must not
// depend on another row from a different write-block having just been
// decoded in the same call.
func TestReadSpansMultipleWriteBlocks(t *testing.T) {
	dir := t.TempDir()
	tbl, err := New(dir, "t", intSchema(), nil)
	require.NoError(t, err)

	w, err := tbl.Write()
	require.NoError(t, err)
	require.NoError(t, w.Write(&Block{NumRows: 2, Columns: map[string]coltype.Column{
		"a": &coltype.Int64Column{Values: []int64{1, 2}},
	}}))
	require.NoError(t, w.Write(&Block{NumRows: 3, Columns: map[string]coltype.Column{
		"a": &coltype.Int64Column{Values: []int64{3, 4, 5}},
	}}))
	require.NoError(t, w.Finish())

	out := readAllInts(t, tbl, 1, 100)
	require.Len(t, out, 1)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, out[0])
}

func varcharSchema() Schema {
	return Schema{{Name: "s", Type: coltype.Varchar{}}}
}

func readAllStrings(t *testing.T, tbl *Table, numStreams, blockSize int) [][]string {
	t.Helper()
	readers, err := tbl.Read([]string{"s"}, numStreams, blockSize, 4096)
	require.NoError(t, err)

	out := make([][]string, 0, len(readers))
	for _, r := range readers {
		var got []string
		for {
			block, err := r.NextBlock()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			got = append(got, block.Columns["s"].(*coltype.VarcharColumn).Strings()...)
		}
		out = append(out, got)
	}
	return out
}

func TestVarcharWriteAndFullScan(t *testing.T) {
	dir := t.TempDir()
	tbl, err := New(dir, "t", varcharSchema(), nil)
	require.NoError(t, err)

	w, err := tbl.Write()
	require.NoError(t, err)
	require.NoError(t, w.Write(&Block{NumRows: 3, Columns: map[string]coltype.Column{
		"s": coltype.VarcharColumnFromStrings([]string{"alpha", "", "beta"}),
	}}))
	require.NoError(t, w.Finish())

	out := readAllStrings(t, tbl, 1, 100)
	require.Len(t, out, 1)
	require.Equal(t, []string{"alpha", "", "beta"}, out[0])
}

// TestVarcharReadSpansMultipleWriteBlocks is the varchar analogue of
// TestReadSpansMultipleWriteBlocks: a single-stream full scan must
// decode strings from two separate committed blocks in the same
// NextBlock call without the first block's raw bytes being misread as
// the second block's length header (spec P4).
func TestVarcharReadSpansMultipleWriteBlocks(t *testing.T) {
	dir := t.TempDir()
	tbl, err := New(dir, "t", varcharSchema(), nil)
	require.NoError(t, err)

	w, err := tbl.Write()
	require.NoError(t, err)
	require.NoError(t, w.Write(&Block{NumRows: 2, Columns: map[string]coltype.Column{
		"s": coltype.VarcharColumnFromStrings([]string{"foo", "barbaz"}),
	}}))
	require.NoError(t, w.Write(&Block{NumRows: 3, Columns: map[string]coltype.Column{
		"s": coltype.VarcharColumnFromStrings([]string{"x", "yy", "zzz"}),
	}}))
	require.NoError(t, w.Finish())

	out := readAllStrings(t, tbl, 1, 100)
	require.Len(t, out, 1)
	require.Equal(t, []string{"foo", "barbaz", "x", "yy", "zzz"}, out[0])
}

// TestVarcharTwoWaySplit mirrors TestTwoAppendsTwoWaySplit for Varchar,
// confirming the lengths/data stream split round-trips per-reader too.
func TestVarcharTwoWaySplit(t *testing.T) {
	dir := t.TempDir()
	tbl, err := New(dir, "t", varcharSchema(), nil)
	require.NoError(t, err)

	w, err := tbl.Write()
	require.NoError(t, err)
	require.NoError(t, w.Write(&Block{NumRows: 2, Columns: map[string]coltype.Column{
		"s": coltype.VarcharColumnFromStrings([]string{"foo", "bar"}),
	}}))
	require.NoError(t, w.Write(&Block{NumRows: 3, Columns: map[string]coltype.Column{
		"s": coltype.VarcharColumnFromStrings([]string{"a", "bb", "ccc"}),
	}}))
	require.NoError(t, w.Finish())

	out := readAllStrings(t, tbl, 2, 100)
	require.Len(t, out, 2)
	require.Equal(t, []string{"foo", "bar"}, out[0])
	require.Equal(t, []string{"a", "bb", "ccc"}, out[1])
}

func TestCheckData(t *testing.T) {
	dir := t.TempDir()
	tbl, err := New(dir, "t", intSchema(), nil)
	require.NoError(t, err)

	w, err := tbl.Write()
	require.NoError(t, err)
	require.NoError(t, w.Write(&Block{NumRows: 3, Columns: map[string]coltype.Column{
		"a": &coltype.Int64Column{Values: []int64{1, 2, 3}},
	}}))
	require.NoError(t, w.Finish())

	require.True(t, tbl.CheckData())

	require.NoError(t, os.WriteFile(filepath.Join(tbl.Dir(), marksFileName), []byte("garbage"), 0644))
	require.False(t, tbl.CheckData())
}

func TestDuplicateColumn(t *testing.T) {
	dir := t.TempDir()
	schema := Schema{{Name: "a", Type: coltype.Int64{}}, {Name: "a", Type: coltype.Int64{}}}
	_, err := New(dir, "t", schema, nil)
	require.ErrorIs(t, err, ErrDuplicateColumn)
}

func TestEmptyColumns(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir, "t", Schema{}, nil)
	require.ErrorIs(t, err, ErrEmptyColumns)
}

func TestNoSuchColumn(t *testing.T) {
	dir := t.TempDir()
	tbl, err := New(dir, "t", intSchema(), nil)
	require.NoError(t, err)
	_, err = tbl.Read([]string{"nope"}, 1, 100, 4096)
	require.ErrorIs(t, err, ErrNoSuchColumn)
}
