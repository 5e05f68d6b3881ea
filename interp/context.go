package interp

import "context"

type threadKey struct{}

// WithThread returns a context carrying t. Host functions invoked by t
// receive such a context and may re-enter the interpreter through it.
func WithThread(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, threadKey{}, t)
}

// ThreadFromContext returns the thread that issued the current host call.
func ThreadFromContext(ctx context.Context) (*Thread, bool) {
	t, ok := ctx.Value(threadKey{}).(*Thread)
	return t, ok
}
