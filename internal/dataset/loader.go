package dataset

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// LoaderOptions configure a Loader.
type LoaderOptions struct {
	BatchSize int
	Shuffle   bool
	Seed      int64
	Workers   int // Concurrent image decodes per batch; < 1 means 1
	Prefetch  int // Batches decoded ahead of the consumer
	DropLast  bool
}

// BatchResult is one item from Loader.Batches.
type BatchResult struct {
	Batch *Batch
	Err   error
}

// Loader iterates a Dataset in batches.
type Loader struct {
	ds    *Dataset
	opts  LoaderOptions
	epoch int64
}

// NewLoader creates a Loader over ds.
func NewLoader(ds *Dataset, opts LoaderOptions) (*Loader, error) {
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("dataset: batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Prefetch < 0 {
		opts.Prefetch = 0
	}
	return &Loader{ds: ds, opts: opts}, nil
}

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() *Dataset { return l.ds }

// NumBatches returns how many batches one epoch yields.
func (l *Loader) NumBatches() int {
	n := l.ds.Len() / l.opts.BatchSize
	if !l.opts.DropLast && l.ds.Len()%l.opts.BatchSize != 0 {
		n++
	}
	return n
}

// order returns the record order of the next epoch. Shuffled orders are
// derived from Seed and the epoch counter, so runs are reproducible.
func (l *Loader) order() []int {
	idx := make([]int, l.ds.Len())
	for i := range idx {
		idx[i] = i
	}
	if l.opts.Shuffle {
		//nolint:gosec // deterministic shuffling, not security sensitive
		rng := rand.New(rand.NewSource(l.opts.Seed + l.epoch))
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	l.epoch++
	return idx
}

// Batch decodes the records at indices concurrently and collates them.
func (l *Loader) Batch(ctx context.Context, indices []int) (*Batch, error) {
	examples := make([]Example, len(indices))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for i, idx := range indices {
		i, idx := i, idx
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ex, err := l.ds.Example(idx)
			if err != nil {
				return err
			}
			examples[i] = ex
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return l.ds.Collate(examples)
}

// Batches starts one epoch and streams its batches in order. Up to
// Prefetch batches are decoded ahead of the consumer. The channel is
// closed after the last batch, after the first error, or when ctx is done.
// A consumer that stops reading early must cancel ctx to release the
// producing goroutine.
func (l *Loader) Batches(ctx context.Context) <-chan BatchResult {
	order := l.order()
	out := make(chan BatchResult, l.opts.Prefetch)
	go func() {
		defer close(out)
		for start := 0; start < len(order); start += l.opts.BatchSize {
			end := min(start+l.opts.BatchSize, len(order))
			if l.opts.DropLast && end-start < l.opts.BatchSize {
				return
			}
			b, err := l.Batch(ctx, order[start:end])
			select {
			case out <- BatchResult{Batch: b, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}
