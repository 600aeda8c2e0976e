// Package ratelimit gates requests per principal (or network origin for
// unauthenticated callers) with a fixed-window counter. A denial is a hard
// admission decision: the caller gets rejected immediately, never queued.
package ratelimit

import "context"

// Limiter admits or denies one request for the given key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
