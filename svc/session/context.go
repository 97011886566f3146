package session

import "context"

type anonymousKey struct{}

// anonymous marks a request that must go out without the bearer token and
// whose auth failures are handled by the caller, not the interceptor.
func anonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, anonymousKey{}, true)
}

func isAnonymous(ctx context.Context) bool {
	v, _ := ctx.Value(anonymousKey{}).(bool)
	return v
}
