package middleware

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bidhouse/server/bidhouse/auction"
	"github.com/gofiber/fiber/v2"
)

const sweepTimeout = 30 * time.Second

type Sweeper interface {
	SweepExpiredAuctions(ctx context.Context) (auction.SweepReport, error)
}

// OpportunisticSweep settles expired auctions in the background as requests
// arrive, at most once per throttle. The request never waits for it.
func OpportunisticSweep(sweeper Sweeper, throttle time.Duration) fiber.Handler {
	var (
		last    atomic.Int64
		running atomic.Bool
	)
	return func(c *fiber.Ctx) error {
		now := time.Now().UnixNano()
		prev := last.Load()
		if now-prev >= int64(throttle) && last.CompareAndSwap(prev, now) && running.CompareAndSwap(false, true) {
			go func() {
				defer running.Store(false)
				ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
				defer cancel()

				if _, err := sweeper.SweepExpiredAuctions(ctx); err != nil {
					slog.Warn("Opportunistic sweep failed",
						slog.String("type", "sys"),
						slog.String("error", err.Error()))
				}
			}()
		}
		return c.Next()
	}
}
