// Package graph is the client for the mail provider's REST API: message
// fetch, category tagging and change-notification subscription
// management, authenticated via client-credential bearer tokens.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// TagOutcome is the tri-state result of a best-effort tagging call.
type TagOutcome int

const (
	TagApplied TagOutcome = iota
	TagNoPermission
	TagFailed
)

// Client talks to the mail provider for one configured mailbox.
type Client struct {
	baseURL    string
	mailbox    string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, mailbox string, tokens TokenProvider, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		mailbox: mailbox,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

type graphMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Subject        string `json:"subject"`
	BodyPreview    string `json:"bodyPreview"`
	Body           struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ReceivedDateTime string   `json:"receivedDateTime"`
	Categories       []string `json:"categories"`
}

// GetMessage fetches a message by id. The provider returns the body as
// HTML for most mail; conversion to plain text happens here so callers
// never see markup.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	endpoint := fmt.Sprintf("%s/users/%s/messages/%s", c.baseURL, c.mailbox, messageID)

	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil, "get_message")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, &NotFoundError{MessageID: messageID}
	}
	if status < 200 || status >= 300 {
		return nil, &UpstreamError{Endpoint: "get_message", Status: status, Body: truncate(body, 500)}
	}

	var gm graphMessage
	if err := json.Unmarshal([]byte(body), &gm); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	bodyText := gm.Body.Content
	if strings.EqualFold(gm.Body.ContentType, "html") {
		text, err := html2text.FromString(gm.Body.Content, html2text.Options{TextOnly: true})
		if err != nil {
			c.logger.Warn("HTML to text conversion failed, keeping raw body",
				zap.String("message_id", messageID),
				zap.Error(err),
			)
		} else {
			bodyText = text
		}
	}

	return &model.Message{
		ID:             gm.ID,
		ConversationID: gm.ConversationID,
		Subject:        gm.Subject,
		BodyPreview:    gm.BodyPreview,
		BodyText:       bodyText,
		FromAddress:    gm.From.EmailAddress.Address,
		FromName:       gm.From.EmailAddress.Name,
		ReceivedAt:     gm.ReceivedDateTime,
		Categories:     gm.Categories,
	}, nil
}

// ApplyCategory tags a message in the mailbox. Best-effort: the outcome
// tells the caller whether the tag landed, was refused for a missing
// write scope, or failed some other way; err carries the detail for logs.
func (c *Client) ApplyCategory(ctx context.Context, messageID, category string) (TagOutcome, error) {
	endpoint := fmt.Sprintf("%s/users/%s/messages/%s", c.baseURL, c.mailbox, messageID)

	payload, err := json.Marshal(map[string][]string{"categories": {category}})
	if err != nil {
		return TagFailed, err
	}

	status, body, err := c.do(ctx, http.MethodPatch, endpoint, payload, "apply_category")
	if err != nil {
		return TagFailed, err
	}

	switch {
	case status >= 200 && status < 300:
		return TagApplied, nil
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return TagNoPermission, &PermissionError{Status: status, Body: truncate(body, 500)}
	default:
		return TagFailed, &UpstreamError{Endpoint: "apply_category", Status: status, Body: truncate(body, 500)}
	}
}

// do runs one authenticated request and returns status plus raw body.
// Token acquisition failures surface as AuthError from the TokenProvider.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, name string) (int, string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, "", err
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordGraphCallLatency(name, "error", time.Since(start))
		return 0, "", fmt.Errorf("graph %s request failed: %w", name, err)
	}
	defer resp.Body.Close()

	metrics.RecordGraphCallLatency(name, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("graph %s read failed: %w", name, err)
	}
	return resp.StatusCode, string(body), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
