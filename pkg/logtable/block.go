package logtable

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tomydb/logtable/pkg/coltype"
)

// Block is a batch of rows, one coltype.Column per schema column, passed
// to Writer.Write and returned from StreamReader.NextBlock.
type Block struct {
	NumRows int
	Columns map[string]coltype.Column
}

// validateBlock checks a block against schema per spec §4.3 step 1: the
// block's column set must equal the schema's column set exactly, and
// every column's row count must agree with NumRows.
func validateBlock(schema Schema, b *Block) error {
	if len(b.Columns) != len(schema) {
		return fmt.Errorf("logtable: block has %d columns, schema has %d", len(b.Columns), len(schema))
	}
	for _, col := range schema {
		val, ok := b.Columns[col.Name]
		if !ok {
			return errors.Wrapf(ErrNoSuchColumn, "block is missing column %q", col.Name)
		}
		if val.NumRows() != b.NumRows {
			return fmt.Errorf("logtable: column %q has %d rows, block declares %d", col.Name, val.NumRows(), b.NumRows)
		}
	}
	return nil
}
