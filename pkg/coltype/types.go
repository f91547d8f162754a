// Package coltype implements the type-system contract the log table engine
// consumes: stream enumeration and binary bulk (de)serialization for a small
// set of concrete column types (Int64, Varchar, Array, Nullable).
//
// In the production system this contract is owned by the outer type system;
// here it is reproduced just far enough to exercise the engine end to end.
package coltype

import "io"

// Column is an in-memory batch of values for one column.
type Column interface {
	NumRows() int
}

// StreamWriterResolver returns the writer a stream's bytes should be
// written to, or nil if the stream was already written earlier in the
// current block (a shared substream, e.g. nested array sizes).
type StreamWriterResolver func(streamName string) (io.Writer, error)

// StreamReaderResolver returns the reader a stream's bytes should be read
// from, or nil if the substream's data was already supplied by a sibling
// column in the current block.
type StreamReaderResolver func(streamName string) (io.Reader, error)

// Type is the capability set the log table engine needs from a column's
// data type: enumerate the on-disk streams it occupies, and bulk
// (de)serialize a column's values across those streams.
type Type interface {
	// Name identifies the type for error messages and schema checks.
	Name() string

	// EnumerateStreams invokes cb once per distinct on-disk stream this
	// column occupies, in a stable order. The first invocation names the
	// row-count-carrying stream for this type.
	EnumerateStreams(columnName string, cb func(streamName string))

	// SerializeBulk writes col's values to the streams resolver hands
	// back. col must be this type's concrete column type; any other value,
	// nil included, is rejected with an error.
	SerializeBulk(columnName string, col Column, resolver StreamWriterResolver) error

	// DeserializeBulk reads up to maxRows rows from the streams resolver
	// hands back, returning the populated column and the number of rows
	// actually read (fewer than maxRows at end of stream).
	DeserializeBulk(columnName string, maxRows int, resolver StreamReaderResolver) (Column, int, error)
}

// Unwrappable is implemented by wrapper types (Nullable) that need to be
// peeled back to find the row-count-carrying stream of the underlying type.
type Unwrappable interface {
	Unwrap() Type
}

// Unwrap peels away Nullable wrapping (and similar) to reach the base type.
func Unwrap(t Type) Type {
	for {
		u, ok := t.(Unwrappable)
		if !ok {
			return t
		}
		t = u.Unwrap()
	}
}
