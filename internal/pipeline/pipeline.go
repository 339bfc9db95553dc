// Package pipeline links reactive queues into processing chains. Every
// link shares one error queue so a chain reports failures in a single
// place regardless of which stage produced them.
package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
	"github.com/CoderByBlood/whisper-cms-sub000/internal/queue"
)

// Chain threads the current queue and the shared error queue through a
// sequence of links, so call sites name the error queue once.
type Chain[T any] struct {
	Out  *queue.Queue[T]
	Errs *queue.Queue[error]
}

// From starts a chain at q, routing stage errors to errs.
func From[T any](q *queue.Queue[T], errs *queue.Queue[error]) Chain[T] {
	return Chain[T]{Out: q, Errs: errs}
}

// LinkSync consumes the chain's queue with fn on the dispatcher
// goroutine. Ok results land on out, errors on the chain's error queue.
// Order is preserved.
//
// Link functions are package level because Go methods cannot introduce
// the output type parameter.
func LinkSync[A, B any](c Chain[A], out *queue.Queue[B], fn func(A) (B, error)) Chain[B] {
	err := c.Out.ForEachOwned(func(item A) {
		res, err := fn(item)
		if err != nil {
			routeErr(c.Errs, err)
			return
		}
		if err := out.Enqueue(res); err != nil {
			routeErr(c.Errs, err)
		}
	})
	if err != nil {
		routeErr(c.Errs, err)
	}
	return Chain[B]{Out: out, Errs: c.Errs}
}

// LinkAsync dispatches each item as an independent goroutine. Output
// order is not preserved.
func LinkAsync[A, B any](c Chain[A], out *queue.Queue[B], fn func(context.Context, A) (B, error)) Chain[B] {
	return linkAsync(c, out, nil, fn)
}

// LinkAsyncBounded is LinkAsync with at most max concurrent tasks. The
// permit is acquired inside the spawned goroutine so its lifetime
// matches the task's.
func LinkAsyncBounded[A, B any](c Chain[A], out *queue.Queue[B], max int64, fn func(context.Context, A) (B, error)) Chain[B] {
	return linkAsync(c, out, semaphore.NewWeighted(max), fn)
}

func linkAsync[A, B any](c Chain[A], out *queue.Queue[B], sem *semaphore.Weighted, fn func(context.Context, A) (B, error)) Chain[B] {
	err := c.Out.ForEachOwned(func(item A) {
		go func() {
			ctx := context.Background()
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					routeErr(c.Errs, err)
					return
				}
				defer sem.Release(1)
			}
			res, err := fn(ctx, item)
			if err != nil {
				routeErr(c.Errs, err)
				return
			}
			if err := out.Enqueue(res); err != nil {
				routeErr(c.Errs, err)
			}
		}()
	})
	if err != nil {
		routeErr(c.Errs, err)
	}
	return Chain[B]{Out: out, Errs: c.Errs}
}

func routeErr(errs *queue.Queue[error], err error) {
	if errs == nil {
		logger.Error("pipeline stage failed without error queue", "error", err)
		return
	}
	if qerr := errs.Enqueue(err); qerr != nil {
		logger.Error("pipeline error queue rejected error", "error", err, "enqueue_error", qerr)
	}
}
