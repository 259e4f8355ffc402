package auth

import "context"

// Future holds the result of an operation started with Async.
type Future[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// Async runs fn on its own goroutine so an event-driven caller is not
// blocked by backend I/O. The operation sees ctx; abandoning Await does not
// stop it, the result is simply dropped.
func Async[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.result, f.err = fn(ctx)
	}()
	return f
}

// Await blocks until the operation completes or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// OnComplete calls handler with the result from a separate goroutine.
func (f *Future[T]) OnComplete(handler func(T, error)) {
	go func() {
		<-f.done
		handler(f.result, f.err)
	}()
}

// AuthenticateAsync is Async over provider.Authenticate.
func AuthenticateAsync(ctx context.Context, provider Provider, credentials Credentials) *Future[User] {
	return Async(ctx, func(ctx context.Context) (User, error) {
		return provider.Authenticate(ctx, credentials)
	})
}
