package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

var (
	consumeBackoff    = time.Second
	maxConsumeBackoff = 30 * time.Second
)

// Consume keeps queue subscribed until ctx is canceled. When Subscribe
// returns early, for example after a broker disconnect, it is run again
// with exponential backoff.
func Consume(ctx context.Context, sub Subscriber, queue string, router *Router, logger *zap.Logger) {
	backoff := consumeBackoff
	for {
		started := time.Now()
		err := sub.Subscribe(ctx, queue, router)
		if ctx.Err() != nil {
			return
		}

		// A subscription that ran for a while earns a fresh backoff.
		if time.Since(started) > maxConsumeBackoff {
			backoff = consumeBackoff
		}
		logger.Error("Event consumer stopped, resubscribing",
			zap.String("queue", queue),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, maxConsumeBackoff)
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}
