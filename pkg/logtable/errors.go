package logtable

import "github.com/pkg/errors"

// Stable error identifiers, per spec: EmptyColumns, NoSuchColumn,
// DuplicateColumn, MarksInconsistent, LogicalError.
var (
	ErrEmptyColumns      = errors.New("logtable: empty list of columns")
	ErrNoSuchColumn      = errors.New("logtable: no such column")
	ErrDuplicateColumn   = errors.New("logtable: duplicate column")
	ErrMarksInconsistent = errors.New("logtable: size of marks file is inconsistent")
	ErrLogicalError      = errors.New("logtable: logical error")
)

// wrapColumnErr annotates an I/O error with the column name and table
// directory, matching the original's `e.addMessage("while reading column "
// + name + " at " + path)` on the read path (spec §4.4, §7).
func wrapColumnErr(err error, column, dir string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "column %q in table directory %q", column, dir)
}
