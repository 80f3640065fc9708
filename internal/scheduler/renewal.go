// Package scheduler runs the daily subscription renewal trigger.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/service"
)

// RenewalScheduler invokes subscription renewal once a day. A failed run
// is logged inside the manager and retried on the next tick; missing a
// renewal costs notifications until the next success, which is the
// accepted operational gap.
type RenewalScheduler struct {
	manager         *service.SubscriptionManager
	notificationURL string
	interval        time.Duration
	logger          *zap.Logger
}

func NewRenewalScheduler(manager *service.SubscriptionManager, notificationURL string, logger *zap.Logger) *RenewalScheduler {
	return &RenewalScheduler{
		manager:         manager,
		notificationURL: notificationURL,
		interval:        24 * time.Hour,
		logger:          logger,
	}
}

// Start blocks until ctx is done. Run it in its own goroutine.
func (s *RenewalScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// run once on startup so a fresh deployment does not wait a day
	// for its first subscription
	s.logger.Info("Running initial subscription renewal check...")
	s.manager.RunScheduledRenewal(ctx, s.notificationURL)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Renewal scheduler stopped")
			return
		case <-ticker.C:
			s.logger.Info("Running scheduled subscription renewal...")
			s.manager.RunScheduledRenewal(ctx, s.notificationURL)
		}
	}
}
