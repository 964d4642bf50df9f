package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrGroupShutdown indicates the group was shut down before the call started.
var ErrGroupShutdown = errors.New("group shut down")

// WorkFunc is the signature for async work.
type WorkFunc[T any] func(ctx context.Context) (T, error)

// Group manages a set of concurrent calls.
type Group struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	sem      chan struct{}
	shutdown atomic.Bool
	errs     []error
}

// NewGroup creates a Group with the given concurrency limit.
// If maxConcurrent <= 0, concurrency is unlimited.
func NewGroup(maxConcurrent int) *Group {
	g := &Group{}
	if maxConcurrent > 0 {
		g.sem = make(chan struct{}, maxConcurrent)
	}
	return g
}

// Wait blocks until all calls in the group complete.
// Returns the errors recorded since the previous Wait joined via
// errors.Join, and clears them.
func (g *Group) Wait() error {
	g.wg.Wait()

	g.mu.Lock()
	errs := g.errs
	g.errs = nil
	g.mu.Unlock()

	return errors.Join(errs...)
}

// Shutdown prevents calls that have not started yet from executing.
func (g *Group) Shutdown() {
	g.shutdown.Store(true)
}

// recordErr appends err to the group's error slice under the mutex.
func (g *Group) recordErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs = append(g.errs, err)
}

// Result represents an in-flight or completed call.
type Result[T any] struct {
	done   chan struct{}
	val    T
	err    error
	cancel context.CancelFunc
}

// Done returns a channel that is closed when the call completes.
func (r *Result[T]) Done() <-chan struct{} { return r.done }

// Err blocks until the call completes and returns its error.
func (r *Result[T]) Err() error {
	<-r.done
	return r.err
}

// Value blocks until the call completes and returns its outcome.
func (r *Result[T]) Value() (T, error) {
	<-r.done
	return r.val, r.err
}

// Cancel cancels the call's context.
func (r *Result[T]) Cancel() {
	r.cancel()
}

// Start launches fn in a new goroutine managed by g and returns a Result
// for tracking it. A nil g runs the call unbounded and untracked.
func Start[T any](ctx context.Context, g *Group, fn WorkFunc[T]) *Result[T] {
	if g == nil {
		g = NewGroup(0)
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Result[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	g.wg.Add(1)
	go func() {
		defer func() {
			cancel()
			close(r.done)
			g.wg.Done()
		}()

		if g.sem != nil {
			select {
			case g.sem <- struct{}{}:
				defer func() {
					<-g.sem
				}()
			case <-ctx.Done():
				r.err = ctx.Err()
				g.recordErr(r.err)
				return
			}
		}

		if g.shutdown.Load() {
			r.err = ErrGroupShutdown
			g.recordErr(r.err)
			return
		}

		r.val, r.err = fn(ctx)
		if r.err != nil {
			g.recordErr(r.err)
		}
	}()

	return r
}
