/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const (
	ctxKeyPriority ctxKey = iota
	ctxKeyMaxAttempts
)

func getIntFromContext(ctx context.Context, key ctxKey) int {
	if n, ok := ctx.Value(key).(int); ok {
		return n
	}
	return 0
}

// NewContextWithPriority returns a derived context that carries the scheduling priority of the request.
// Requests with a higher priority are sent first. Priority is 0 when it's not set.
func NewContextWithPriority(ctx context.Context, priority int) context.Context {
	return context.WithValue(ctx, ctxKeyPriority, priority)
}

// GetPriorityFromContext extracts the scheduling priority from the context.
func GetPriorityFromContext(ctx context.Context) int {
	return getIntFromContext(ctx, ctxKeyPriority)
}

// NewContextWithMaxAttempts returns a derived context that carries the maximum number of attempts
// for sending the request. Zero means the scheduler default.
func NewContextWithMaxAttempts(ctx context.Context, maxAttempts int) context.Context {
	return context.WithValue(ctx, ctxKeyMaxAttempts, maxAttempts)
}

// GetMaxAttemptsFromContext extracts the maximum number of attempts from the context.
func GetMaxAttemptsFromContext(ctx context.Context) int {
	return getIntFromContext(ctx, ctxKeyMaxAttempts)
}
