package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// BatchError aggregates per-image failures from ProcessBatch, keyed by the
// input index. A failed image never corrupts another image's output slot.
type BatchError struct {
	Errors map[int]error
}

func (e *BatchError) Error() string {
	indexes := make([]int, 0, len(e.Errors))
	for i := range e.Errors {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var b strings.Builder
	fmt.Fprintf(&b, "batch processing failed for %d image(s):", len(indexes))
	for _, i := range indexes {
		fmt.Fprintf(&b, " [%d] %v;", i, e.Errors[i])
	}
	return strings.TrimSuffix(b.String(), ";")
}

// ProcessBatch applies ProcessImage independently to each image with a
// bounded worker pool. Results preserve input order regardless of completion
// order. maxParallelism <= 0 means the number of CPUs. Canceling ctx stops
// scheduling new work and unwinds in-flight work cooperatively; affected
// indexes are reported in the returned BatchError.
func (p *Pipeline) ProcessBatch(ctx context.Context, images [][]byte, transforms []Transform, maxParallelism int) ([][]byte, error) {
	if maxParallelism <= 0 {
		maxParallelism = runtime.NumCPU()
	}

	results := make([][]byte, len(images))
	errs := make(map[int]error)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxParallelism)
	)

	fail := func(i int, err error) {
		mu.Lock()
		errs[i] = err
		mu.Unlock()
	}

	for i := range images {
		// Stop scheduling once canceled; remaining slots report the cause.
		if err := ctx.Err(); err != nil {
			fail(i, err)
			continue
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				fail(i, ctx.Err())
				return
			}

			out, err := p.ProcessImage(ctx, images[i], transforms)
			if err != nil {
				fail(i, err)
				return
			}
			results[i] = out
		}(i)
	}

	wg.Wait()

	if len(errs) > 0 {
		return results, &BatchError{Errors: errs}
	}
	return results, nil
}
