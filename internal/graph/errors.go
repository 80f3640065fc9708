package graph

import "fmt"

// AuthError means the identity provider rejected the client credentials.
// Nothing downstream of token acquisition can proceed.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credential exchange failed: %d - %s", e.Status, e.Body)
}

// NotFoundError means the provider no longer has the message.
type NotFoundError struct {
	MessageID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("message not found: %s", e.MessageID)
}

// PermissionError means the app registration lacks a write scope
// (typically Mail.ReadWrite). Kept distinct from UpstreamError so callers
// can log the missing-scope diagnostic instead of a generic failure.
type PermissionError struct {
	Status int
	Body   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("missing permission: %d - %s", e.Status, e.Body)
}

// UpstreamError is any other non-2xx from the provider.
type UpstreamError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("graph %s returned %d: %s", e.Endpoint, e.Status, e.Body)
}
