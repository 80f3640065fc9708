package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

// Renewal actions reported by EnsureSubscription.
const (
	RenewalCreated = "created"
	RenewalRenewed = "renewed"
	RenewalNoop    = "noop"
)

// SubscriptionGateway is the subscription management slice of the
// provider client.
type SubscriptionGateway interface {
	MessagesResource() string
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	CreateSubscription(ctx context.Context, notificationURL, clientState string, lifetime time.Duration) (*model.Subscription, error)
	RenewSubscription(ctx context.Context, subscriptionID string, lifetime time.Duration) (*model.Subscription, error)
	DeleteSubscription(ctx context.Context, subscriptionID string) error
}

// SubscriptionManager keeps exactly one change-notification subscription
// alive for the configured mailbox. The provider is the only durable
// home of subscription state; everything here is list-then-act.
type SubscriptionManager struct {
	gateway       SubscriptionGateway
	clientState   string
	lifetime      time.Duration
	renewalWindow time.Duration
	logger        *zap.Logger
}

func NewSubscriptionManager(
	gateway SubscriptionGateway,
	clientState string,
	lifetime time.Duration,
	renewalWindow time.Duration,
	logger *zap.Logger,
) *SubscriptionManager {
	return &SubscriptionManager{
		gateway:       gateway,
		clientState:   clientState,
		lifetime:      lifetime,
		renewalWindow: renewalWindow,
		logger:        logger,
	}
}

// List returns all subscriptions held at the provider.
func (m *SubscriptionManager) List(ctx context.Context) ([]model.Subscription, error) {
	return m.gateway.ListSubscriptions(ctx)
}

// Create registers a new subscription pointing at notificationURL.
func (m *SubscriptionManager) Create(ctx context.Context, notificationURL string) (*model.Subscription, error) {
	return m.gateway.CreateSubscription(ctx, notificationURL, m.clientState, m.lifetime)
}

// Delete removes a subscription by id.
func (m *SubscriptionManager) Delete(ctx context.Context, subscriptionID string) error {
	return m.gateway.DeleteSubscription(ctx, subscriptionID)
}

// EnsureSubscription makes sure an active subscription exists for the
// mailbox resource: creates one when none is there, renews one that is
// inside the renewal window (falling back to delete-and-create when the
// renewal is refused, e.g. the subscription already expired at the
// provider), and leaves a healthy one alone.
func (m *SubscriptionManager) EnsureSubscription(ctx context.Context, notificationURL string) (string, error) {
	subs, err := m.gateway.ListSubscriptions(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list subscriptions: %w", err)
	}

	var existing *model.Subscription
	for i := range subs {
		if subs[i].Resource == m.gateway.MessagesResource() {
			existing = &subs[i]
			break
		}
	}

	if existing == nil {
		sub, err := m.gateway.CreateSubscription(ctx, notificationURL, m.clientState, m.lifetime)
		if err != nil {
			return "", fmt.Errorf("failed to create subscription: %w", err)
		}
		m.logger.Info("Subscription created",
			zap.String("subscription_id", sub.ID),
			zap.String("expires", sub.ExpirationDateTime),
		)
		return RenewalCreated, nil
	}

	expiration, err := parseExpiration(existing.ExpirationDateTime)
	if err != nil {
		// unreadable expiration: treat as expiring now so it gets
		// renewed rather than silently lapsing
		m.logger.Warn("Could not parse subscription expiration",
			zap.String("subscription_id", existing.ID),
			zap.String("expiration", existing.ExpirationDateTime),
		)
		expiration = time.Now()
	}

	if time.Until(expiration) > m.renewalWindow {
		m.logger.Debug("Subscription healthy, no renewal needed",
			zap.String("subscription_id", existing.ID),
			zap.String("expires", existing.ExpirationDateTime),
		)
		return RenewalNoop, nil
	}

	renewed, err := m.gateway.RenewSubscription(ctx, existing.ID, m.lifetime)
	if err != nil {
		m.logger.Warn("Renewal failed, recreating subscription",
			zap.String("subscription_id", existing.ID),
			zap.Error(err),
		)
		// best-effort cleanup; the provider drops expired
		// subscriptions on its own
		if delErr := m.gateway.DeleteSubscription(ctx, existing.ID); delErr != nil {
			m.logger.Debug("Could not delete stale subscription",
				zap.String("subscription_id", existing.ID),
				zap.Error(delErr),
			)
		}
		sub, createErr := m.gateway.CreateSubscription(ctx, notificationURL, m.clientState, m.lifetime)
		if createErr != nil {
			return "", fmt.Errorf("failed to recreate subscription: %w", createErr)
		}
		m.logger.Info("Subscription recreated",
			zap.String("subscription_id", sub.ID),
			zap.String("expires", sub.ExpirationDateTime),
		)
		return RenewalCreated, nil
	}

	m.logger.Info("Subscription renewed",
		zap.String("subscription_id", renewed.ID),
		zap.String("expires", renewed.ExpirationDateTime),
	)
	return RenewalRenewed, nil
}

// RunScheduledRenewal is the daily trigger body. Failures are logged and
// counted, never escalated: the next scheduled run retries.
func (m *SubscriptionManager) RunScheduledRenewal(ctx context.Context, notificationURL string) {
	action, err := m.EnsureSubscription(ctx, notificationURL)
	if err != nil {
		m.logger.Error("Scheduled subscription renewal failed", zap.Error(err))
		metrics.IncrementSubscriptionRenewal("failed")
		return
	}
	metrics.IncrementSubscriptionRenewal(action)
}

func parseExpiration(s string) (time.Time, error) {
	// the provider emits 7 fractional digits; RFC3339Nano accepts that
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
