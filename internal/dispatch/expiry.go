package dispatch

import (
	"context"
	"fmt"
	"time"
)

// ExpireStale moves every active alert past its expiry time to expired.
func (o *Orchestrator) ExpireStale(ctx context.Context) (int, error) {
	n, err := o.store.ExpireStale(ctx, o.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: expire stale alerts: %w", ErrPersistence, err)
	}
	if n > 0 {
		o.metrics.AlertsExpired.Add(float64(n))
		o.logger.Info("expired stale alerts", "count", n)
	}
	return n, nil
}

// RunExpirySweeper calls ExpireStale every interval until ctx is cancelled.
func (o *Orchestrator) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := o.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := o.ExpireStale(ctx); err != nil && ctx.Err() == nil {
				o.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}
