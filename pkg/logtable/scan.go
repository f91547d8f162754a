package logtable

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"
)

// ScanAll is a convenience layered on top of Table.Read: it opens
// numStreams independent readers and drains each concurrently, calling fn
// once per block produced by any of them. fn may be called from multiple
// goroutines concurrently and must be safe for that. ScanAll does not
// change the one-reader-per-goroutine contract Table.Read already
// provides (spec §4.4, §5); it simply automates fanning the returned
// readers out across goroutines, grounded on the pack's use of
// golang.org/x/sync/errgroup for bounded concurrent fan-out.
func ScanAll(ctx context.Context, t *Table, columnNames []string, numStreams, blockSize, maxReadBuffer int, fn func(*Block) error) error {
	readers, err := t.Read(columnNames, numStreams, blockSize, maxReadBuffer)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range readers {
		r := r
		g.Go(func() error {
			defer r.Close()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				block, err := r.NextBlock()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if err := fn(block); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}
