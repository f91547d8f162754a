package logtable

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/tomydb/logtable/pkg/coltype"
)

// ColumnDef names one schema column and its type.
type ColumnDef struct {
	Name string
	Type coltype.Type
}

// Schema is an ordered list of columns. Writer.Write serializes a block's
// columns in this order, and stream column_index values follow it; a
// Block itself holds its columns in a map keyed by name.
type Schema []ColumnDef

func (s Schema) byName(name string) (ColumnDef, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// streamRecord is the per-stream bookkeeping described in spec §3: data
// file path, a dense column_index assigned in first-seen order, and the
// in-memory marks vector loaded lazily from __marks.mrk.
type streamRecord struct {
	Name        string
	ColumnIndex int
	DataPath    string
	Marks       []Mark
}

// buildStreams walks schema in order and, for each column, asks its type
// to enumerate its substreams; each unseen stream name gets a record with
// the next dense column_index (spec §4.1).
func buildStreams(schema Schema, dir string) (map[string]*streamRecord, []*streamRecord, error) {
	seenColumns := make(map[string]bool, len(schema))
	byName := make(map[string]*streamRecord)
	var byIndex []*streamRecord

	for _, col := range schema {
		if seenColumns[col.Name] {
			return nil, nil, errors.Wrapf(ErrDuplicateColumn, "column %q", col.Name)
		}
		seenColumns[col.Name] = true

		col.Type.EnumerateStreams(col.Name, func(streamName string) {
			if _, ok := byName[streamName]; ok {
				return
			}
			rec := &streamRecord{
				Name:        streamName,
				ColumnIndex: len(byIndex),
				DataPath:    filepath.Join(dir, streamName+".bin"),
			}
			byName[streamName] = rec
			byIndex = append(byIndex, rec)
		})
	}

	return byName, byIndex, nil
}

// firstStreamName returns the first substream a type enumerates for a
// column — the row-count-carrying stream (spec §4.4 step 4, Glossary).
func firstStreamName(t coltype.Type, columnName string) string {
	var first string
	t.EnumerateStreams(columnName, func(streamName string) {
		if first == "" {
			first = streamName
		}
	})
	return first
}
