package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/cristata/pkg/observability"
)

// SafeGo runs fn in a goroutine with panic recovery and a timeout. The task
// keeps the values of parentCtx but not its cancellation, so work started
// by a request outlives the response. Errors are logged, never returned.
//
//	async.SafeGo(r.Context(), 5*time.Second, "invalidate team slug", func(ctx context.Context) error {
//	    return cache.Invalidate(ctx, slug)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		logger := observability.FromContext(ctx).WithField("task", taskName)
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).Warn("background task failed")
		}
	}()
}

// Batch runs fn over items with at most workers in flight and a timeout per
// item. A panic in one item is reported as that item's error. All errors
// are returned in item order.
//
//	errs := async.Batch(ctx, tenants, 4, "build tenant", 30*time.Second, func(ctx context.Context, t Tenant) error {
//	    return registry.Load(ctx, t)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}
	results := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = err
				return nil
			}
			results[i] = runOne(ctx, timeout, taskName, item, fn)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func runOne[T any](ctx context.Context, timeout time.Duration, taskName string, item T, fn func(context.Context, T) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w", taskName, observability.MustRecover(r))
		}
	}()
	return fn(ctx, item)
}

// Once runs fn at most once per key at a time. Calls for a key already in
// flight are dropped. It serializes rebuilds triggered by several sources.
type Once struct {
	mu      sync.Mutex
	running map[string]bool
}

// Try runs fn unless a call for key is running and reports whether it ran
func (o *Once) Try(key string, fn func()) bool {
	o.mu.Lock()
	if o.running == nil {
		o.running = map[string]bool{}
	}
	if o.running[key] {
		o.mu.Unlock()
		return false
	}
	o.running[key] = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.running, key)
		o.mu.Unlock()
	}()
	fn()
	return true
}
