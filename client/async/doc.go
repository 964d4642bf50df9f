// Package async runs calls in their own goroutines and hands back a
// [Result] that can be waited on, polled or cancelled.
//
// A [Group] ties results together: it optionally bounds how many calls
// are in flight at once and collects every error for [Group.Wait].
//
//	g := async.NewGroup(4)
//	r := async.Start(ctx, g, func(ctx context.Context) (int, error) {
//		return doWork(ctx)
//	})
//	v, err := r.Value()
//	err = g.Wait()
package async
