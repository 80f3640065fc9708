package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token(context.Context) (string, error) {
	return s.token, s.err
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "support@regent.ac.za", staticTokens{token: "tkn"}, zap.NewNop())
	return c, srv
}

func TestGetMessageConvertsHTMLBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/users/support@regent.ac.za/messages/m1", r.URL.Path)
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{
			"id":             "m1",
			"conversationId": "c1",
			"subject":        "Exam query",
			"body": map[string]string{
				"contentType": "html",
				"content":     "<html><body><p>Hello <b>there</b></p></body></html>",
			},
			"from": map[string]any{
				"emailAddress": map[string]string{
					"name":    "A Student",
					"address": "student@example.com",
				},
			},
			"receivedDateTime": "2025-03-01T10:00:00Z",
		})
	})

	msg, err := c.GetMessage(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "c1", msg.ConversationID)
	assert.Equal(t, "student@example.com", msg.FromAddress)
	assert.NotContains(t, msg.BodyText, "<")
	assert.Contains(t, msg.BodyText, "Hello")
}

func TestGetMessagePlainBodyKeptVerbatim(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "m2",
			"body": map[string]string{
				"contentType": "text",
				"content":     "plain text with <angle brackets>",
			},
		})
	})

	msg, err := c.GetMessage(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, "plain text with <angle brackets>", msg.BodyText)
}

func TestGetMessageNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetMessage(context.Background(), "gone")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "gone", nf.MessageID)
}

func TestGetMessageTokenFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the provider without a token")
	}))
	t.Cleanup(srv.Close)

	authErr := &AuthError{Status: 401, Body: "invalid_client"}
	c := NewClient(srv.URL, "support@regent.ac.za", staticTokens{err: authErr}, zap.NewNop())

	_, err := c.GetMessage(context.Background(), "m1")
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 401, ae.Status)
}

func TestApplyCategoryOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		outcome TagOutcome
		wantErr bool
	}{
		{"applied", http.StatusOK, TagApplied, false},
		{"forbidden", http.StatusForbidden, TagNoPermission, true},
		{"unauthorized", http.StatusUnauthorized, TagNoPermission, true},
		{"server error", http.StatusBadGateway, TagFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBody map[string][]string
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPatch, r.Method)
				json.NewDecoder(r.Body).Decode(&gotBody)
				w.WriteHeader(tt.status)
			})

			outcome, err := c.ApplyCategory(context.Background(), "m1", "Finance Payment")
			assert.Equal(t, tt.outcome, outcome)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, []string{"Finance Payment"}, gotBody["categories"])
		})
	}
}

func TestApplyCategoryForbiddenIsPermissionError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	outcome, err := c.ApplyCategory(context.Background(), "m1", "Registration")
	assert.Equal(t, TagNoPermission, outcome)
	var pe *PermissionError
	assert.True(t, errors.As(err, &pe))
}

func TestCreateSubscriptionPayload(t *testing.T) {
	var got map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/subscriptions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"id":                 "sub-1",
			"resource":           got["resource"],
			"expirationDateTime": got["expirationDateTime"],
		})
	})

	sub, err := c.CreateSubscription(context.Background(), "https://app.example.com/webhook", "secret", 4230*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID)

	assert.Equal(t, "created", got["changeType"])
	assert.Equal(t, "https://app.example.com/webhook", got["notificationUrl"])
	assert.Equal(t, "users/support@regent.ac.za/mailFolders/inbox/messages", got["resource"])
	assert.Equal(t, "secret", got["clientState"])

	// the provider is picky about the expiration layout
	exp, err := time.Parse(expirationFormat, got["expirationDateTime"])
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(4230*time.Minute), exp, time.Minute)
}

func TestRenewSubscriptionNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions/sub-gone", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.RenewSubscription(context.Background(), "sub-gone", time.Hour)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestDeleteSubscription(t *testing.T) {
	var deleted string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		deleted = strings.TrimPrefix(r.URL.Path, "/subscriptions/")
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteSubscription(context.Background(), "sub-2"))
	assert.Equal(t, "sub-2", deleted)
}

func TestListSubscriptions(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]string{
				{"id": "sub-1", "resource": "users/support@regent.ac.za/mailFolders/inbox/messages"},
				{"id": "sub-2", "resource": "users/other@regent.ac.za/mailFolders/inbox/messages"},
			},
		})
	})

	subs, err := c.ListSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "sub-1", subs[0].ID)
}
