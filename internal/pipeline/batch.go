package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Progress is an aggregate progress event for bulk resolution.
type Progress struct {
	Stage   string
	Current int
	Total   int
	Detail  string
}

// BatchResult is the outcome of one reference inside a batch.
type BatchResult struct {
	Media ResolvedMedia
	Err   error
}

// ResolveBatch resolves refs in parallel, bounded by the smaller of
// concurrency and the coordinator's pool size. onProgress (optional)
// fires once per completed reference. Individual failures never abort
// the batch; each reference gets its own result.
//
// Duplicate references collapse onto shared work: concurrent
// duplicates attach to the same in-flight task, and later ones are
// answered from the cache index.
func (f *Facade) ResolveBatch(ctx context.Context, refs []Ref, concurrency int, onProgress func(Progress)) map[Ref]BatchResult {
	if concurrency <= 0 || concurrency > f.coord.PoolSize() {
		concurrency = f.coord.PoolSize()
	}

	type indexed struct {
		ref Ref
		res BatchResult
	}
	outcomes := make([]indexed, len(refs))

	var mu sync.Mutex
	done := 0
	total := len(refs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			media, err := f.Resolve(gctx, ref)
			outcomes[i] = indexed{ref: ref, res: BatchResult{Media: media, Err: err}}

			if onProgress != nil {
				mu.Lock()
				done++
				current := done
				mu.Unlock()
				onProgress(Progress{Stage: "resolve", Current: current, Total: total, Detail: ref.Key()})
			}
			return nil
		})
	}

	// Workers never return errors; Wait only observes ctx cancellation.
	_ = g.Wait()

	results := make(map[Ref]BatchResult, len(refs))
	for _, o := range outcomes {
		results[o.ref] = o.res
	}
	return results
}
