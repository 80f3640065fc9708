package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mailtriage/internal/model"
)

// expirationFormat is the timestamp layout the provider expects.
const expirationFormat = "2006-01-02T15:04:05.0000000Z"

// MessagesResource returns the watched resource path for the configured
// mailbox: new messages in the inbox.
func (c *Client) MessagesResource() string {
	return fmt.Sprintf("users/%s/mailFolders/inbox/messages", c.mailbox)
}

// ListSubscriptions returns all change-notification subscriptions held by
// this app registration.
func (c *Client) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	endpoint := c.baseURL + "/subscriptions"

	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil, "list_subscriptions")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &UpstreamError{Endpoint: "list_subscriptions", Status: status, Body: truncate(body, 500)}
	}

	var out struct {
		Value []model.Subscription `json:"value"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("failed to decode subscriptions: %w", err)
	}
	return out.Value, nil
}

// CreateSubscription registers a webhook for new messages in the mailbox
// inbox. changeType is fixed to created; expiration is set lifetime from
// now (the provider caps message subscriptions at roughly three days).
func (c *Client) CreateSubscription(ctx context.Context, notificationURL, clientState string, lifetime time.Duration) (*model.Subscription, error) {
	endpoint := c.baseURL + "/subscriptions"

	payload, err := json.Marshal(map[string]string{
		"changeType":         "created",
		"notificationUrl":    notificationURL,
		"resource":           c.MessagesResource(),
		"expirationDateTime": time.Now().UTC().Add(lifetime).Format(expirationFormat),
		"clientState":        clientState,
	})
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(ctx, http.MethodPost, endpoint, payload, "create_subscription")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &UpstreamError{Endpoint: "create_subscription", Status: status, Body: truncate(body, 500)}
	}

	var sub model.Subscription
	if err := json.Unmarshal([]byte(body), &sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscription: %w", err)
	}
	return &sub, nil
}

// RenewSubscription pushes a subscription's expiration out by lifetime.
func (c *Client) RenewSubscription(ctx context.Context, subscriptionID string, lifetime time.Duration) (*model.Subscription, error) {
	endpoint := c.baseURL + "/subscriptions/" + subscriptionID

	payload, err := json.Marshal(map[string]string{
		"expirationDateTime": time.Now().UTC().Add(lifetime).Format(expirationFormat),
	})
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(ctx, http.MethodPatch, endpoint, payload, "renew_subscription")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, &NotFoundError{MessageID: subscriptionID}
	}
	if status < 200 || status >= 300 {
		return nil, &UpstreamError{Endpoint: "renew_subscription", Status: status, Body: truncate(body, 500)}
	}

	var sub model.Subscription
	if err := json.Unmarshal([]byte(body), &sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscription: %w", err)
	}
	return &sub, nil
}

// DeleteSubscription removes a subscription.
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	endpoint := c.baseURL + "/subscriptions/" + subscriptionID

	status, body, err := c.do(ctx, http.MethodDelete, endpoint, nil, "delete_subscription")
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return &NotFoundError{MessageID: subscriptionID}
	}
	if status < 200 || status >= 300 {
		return &UpstreamError{Endpoint: "delete_subscription", Status: status, Body: truncate(body, 500)}
	}
	return nil
}
