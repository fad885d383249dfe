// Package context holds small helpers around the standard context package.
package context

import (
	"context"
	"errors"
	"time"
)

// WithTimeoutOrCancel bounds parent by timeout. A non-positive timeout only
// adds a cancel func.
func WithTimeoutOrCancel(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// IsCanceled reports whether ctx is done.
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsTimeout reports whether err comes from a context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
