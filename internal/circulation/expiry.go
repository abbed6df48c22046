// internal/circulation/expiry.go
package circulation

import (
	"context"
	"log/slog"
	"time"
)

// RunExpiryChecker expires overdue reservations every interval until ctx is
// cancelled. Run it in its own goroutine.
func RunExpiryChecker(ctx context.Context, svc Service, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("reservation expiry checker stopped")
			return
		case now := <-ticker.C:
			expired, err := svc.ExpireReservations(ctx, now)
			if err != nil {
				logger.ErrorContext(ctx, "reservation expiry pass failed", "error", err)
				continue
			}
			if len(expired) > 0 {
				logger.InfoContext(ctx, "reservation expiry pass", "expired", len(expired))
			}
		}
	}
}
