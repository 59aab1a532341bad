package business

import (
	"context"
	"time"

	slogctx "github.com/veqryn/slog-context"
)

// expiredSessionPurger is implemented by session backends that do not evict
// expired sessions on their own.
type expiredSessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// purgeExpiredSessions deletes expired sessions every interval until ctx is
// done. A non-positive interval disables the loop.
func purgeExpiredSessions(ctx context.Context, purger expiredSessionPurger, interval time.Duration) {
	if interval <= 0 {
		return
	}

	c := time.Tick(interval)
	for {
		deleted, err := purger.DeleteExpired(ctx)
		if err != nil {
			slogctx.Error(ctx, "Error during session housekeeping", "error", err)
		} else if deleted > 0 {
			slogctx.Debug(ctx, "Deleted expired sessions", "count", deleted)
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return
		}
	}
}
