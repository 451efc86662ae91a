package reconcile

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a minimum interval between remote calls shared by all
// workers. A nil Throttle never waits.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle returns nil when interval is not positive.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		return nil
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call may start or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}
