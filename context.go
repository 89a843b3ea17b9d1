package marketplace

import (
	"context"
)

type contextKey struct{}

var accountContextKey = contextKey{}

// WithAccount attaches the authenticated account to the context.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// AccountFrom returns the authenticated account, if any.
func AccountFrom(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(accountContextKey).(string)
	return account, ok
}
