package snsctx

import (
	"context"
	"time"
)

type ctxIndex int

const (
	ctxIndexVerbose ctxIndex = iota
	ctxIndexClock
)

func IsVerbose(ctx context.Context) bool {
	val := ctx.Value(ctxIndexVerbose)
	if val == nil {
		return false
	}
	return val.(bool)
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

// Clock returns the current time. Tests replace it to simulate time passing.
type Clock func() time.Time

// WithClock attaches a time source used by drivers and workers for deadlines.
func WithClock(ctx context.Context, clock Clock) context.Context {
	return context.WithValue(ctx, ctxIndexClock, clock)
}

// Now returns the time according to the clock attached to ctx, or time.Now.
func Now(ctx context.Context) time.Time {
	val := ctx.Value(ctxIndexClock)
	if val == nil {
		return time.Now()
	}
	return val.(Clock)()
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
