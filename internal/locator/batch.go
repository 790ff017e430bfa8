package locator

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/headloc/internal/document"
	"github.com/jackzampolin/headloc/internal/svcctx"
)

// BatchItem is the outcome of one request of a batch.
type BatchItem struct {
	Index  int
	Result *Result
	Err    error
}

// LocateBatch locates independent documents in parallel, at most workers at
// a time. Per-document failures are reported on their items. The returned
// error is non-nil only when ctx ends before every request ran, or when a
// request has an invalid shape and failFast is set.
func (l *Locator) LocateBatch(ctx context.Context, reqs []Request, workers int, failFast bool) ([]BatchItem, error) {
	if workers < 1 {
		workers = 1
	}
	items := make([]BatchItem, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, req := range reqs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := l.Locate(gctx, req)
			items[i] = BatchItem{Index: i, Result: res, Err: err}
			if err != nil && failFast && errors.Is(err, document.ErrInputShape) {
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	if logger := svcctx.LoggerFrom(ctx); logger != nil {
		failed := 0
		for _, it := range items {
			if it.Err != nil {
				failed++
			}
		}
		logger.Info("batch finished", "documents", len(reqs), "failed", failed, "workers", workers)
	}

	for i := range items {
		items[i].Index = i
		if items[i].Result == nil && items[i].Err == nil {
			items[i].Err = context.Canceled
			if err != nil {
				items[i].Err = err
			}
		}
	}
	return items, err
}
