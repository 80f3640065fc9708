// Package service holds the webhook processing pipeline and subscription
// management on top of the gateway, classifier and store.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"mailtriage/internal/classifier"
	"mailtriage/internal/graph"
	"mailtriage/internal/model"
	"mailtriage/internal/redact"
	"mailtriage/internal/repository"
	"mailtriage/internal/taxonomy"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/metrics"
)

const (
	maxSnippetChars = 500
	maxStoredBody   = 10000
)

// MailGateway is the slice of the provider client the pipeline needs.
type MailGateway interface {
	GetMessage(ctx context.Context, messageID string) (*model.Message, error)
	ApplyCategory(ctx context.Context, messageID, category string) (graph.TagOutcome, error)
}

// EmailClassifier produces a verdict for one email.
type EmailClassifier interface {
	Classify(ctx context.Context, subject, body string) (classifier.Verdict, error)
}

// EmailStore is the write/dedup surface of the record store.
type EmailStore interface {
	EmailExists(ctx context.Context, messageID string) (bool, error)
	InsertEmail(ctx context.Context, e *model.ProcessedEmail) (int64, error)
}

// UsageStore records LLM token usage.
type UsageStore interface {
	InsertUsage(ctx context.Context, u *model.TokenUsage) error
}

// Pipeline drives one notification entry through dedup, fetch, masking,
// classification, tagging and persistence. Every failure is contained at
// the entry boundary; the webhook response never depends on it.
type Pipeline struct {
	gateway     MailGateway
	classifier  EmailClassifier
	emails      EmailStore
	usage       UsageStore
	masker      *redact.Masker
	clientState string
	llmModel    string
	logger      *zap.Logger
}

func NewPipeline(
	gateway MailGateway,
	cls EmailClassifier,
	emails EmailStore,
	usage UsageStore,
	masker *redact.Masker,
	clientState string,
	llmModel string,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		gateway:     gateway,
		classifier:  cls,
		emails:      emails,
		usage:       usage,
		masker:      masker,
		clientState: clientState,
		llmModel:    llmModel,
		logger:      logger,
	}
}

// HandleNotifications processes every entry in a webhook batch. Entries
// are isolated from each other: one bad entry never aborts its siblings,
// and nothing here returns an error to the HTTP layer.
func (p *Pipeline) HandleNotifications(ctx context.Context, batch model.NotificationBatch) {
	p.logger.Info("Webhook batch received", zap.Int("entries", len(batch.Value)))

	for i := range batch.Value {
		p.processEntry(ctx, &batch.Value[i])
	}
}

func (p *Pipeline) processEntry(ctx context.Context, n *model.ChangeNotification) {
	// constant-time compare keeps the shared secret unguessable via
	// timing; mismatches are dropped silently so a spoofing party
	// learns nothing from the response
	if subtle.ConstantTimeCompare([]byte(n.ClientState), []byte(p.clientState)) != 1 {
		p.logger.Warn("Notification with invalid client state discarded",
			zap.String("subscription_id", n.SubscriptionID),
		)
		metrics.IncrementWebhookNotification("invalid_state")
		return
	}

	if n.ChangeType != "created" {
		p.logger.Debug("Skipping non-created notification",
			zap.String("change_type", n.ChangeType),
		)
		metrics.IncrementWebhookNotification("skipped")
		return
	}

	messageID := extractMessageID(n)
	if messageID == "" {
		p.logger.Warn("Could not extract message id from notification",
			zap.String("resource", n.Resource),
		)
		metrics.IncrementWebhookNotification("skipped")
		return
	}

	log := logger.WithMessage(p.logger, messageID)

	// dedup pre-check: an optimization to avoid redundant upstream
	// calls on redelivery, not the consistency guard. The unique
	// constraint at insert time is.
	exists, err := p.emails.EmailExists(ctx, messageID)
	if err != nil {
		log.Error("Dedup check failed, proceeding to insert path", zap.Error(err))
	} else if exists {
		log.Info("Email already processed, skipping")
		metrics.IncrementWebhookNotification("duplicate")
		return
	}

	msg, err := p.gateway.GetMessage(ctx, messageID)
	if err != nil {
		var authErr *graph.AuthError
		var notFound *graph.NotFoundError
		switch {
		case errors.As(err, &authErr):
			log.Error("Credential exchange failed, entry skipped", zap.Error(err))
		case errors.As(err, &notFound):
			log.Warn("Message no longer exists at provider, entry skipped")
		default:
			log.Error("Failed to fetch message, entry skipped", zap.Error(err))
		}
		metrics.IncrementWebhookNotification("failed")
		return
	}

	masked := p.masker.Mask(msg.Subject, msg.BodyText)
	if masked.EntitiesFound > 0 {
		log.Info("PII masked before classification",
			zap.Int("entities", masked.EntitiesFound),
		)
	}

	verdict, err := p.classifier.Classify(ctx, masked.Subject, masked.Body)
	if err != nil {
		log.Error("Classifier unavailable, storing fallback verdict", zap.Error(err))
		verdict = classifier.FallbackVerdict(fmt.Sprintf("classification failed: %v", err))
	}

	log.Info("Email classified",
		zap.String("classification", verdict.Label),
		zap.Float64("confidence", verdict.Confidence),
	)

	p.applyTag(ctx, log, messageID, verdict.Label)

	emailID, err := p.emails.InsertEmail(ctx, &model.ProcessedEmail{
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
		Subject:        orPlaceholder(msg.Subject),
		Snippet:        truncate(msg.BodyPreview, maxSnippetChars),
		BodyText:       truncate(masked.Body, maxStoredBody),
		FromAddress:    msg.FromAddress,
		FromName:       msg.FromName,
		Classification: verdict.Label,
		Confidence:     verdict.Confidence,
		Reason:         verdict.Reason,
		ReceivedAt:     msg.ReceivedAt,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// lost the race against a concurrent delivery of the
			// same message; the other row is the record
			log.Info("Concurrent delivery already recorded this email")
			metrics.IncrementWebhookNotification("duplicate")
			return
		}
		// entry is lost for this delivery; provider redelivery plus
		// the dedup check will pick it up again
		log.Error("Failed to persist email", zap.Error(err))
		metrics.IncrementWebhookNotification("failed")
		return
	}

	if verdict.Usage.TotalTokens > 0 {
		if err := p.usage.InsertUsage(ctx, &model.TokenUsage{
			EmailID:      emailID,
			Model:        p.llmModel,
			Operation:    "classification",
			InputTokens:  verdict.Usage.InputTokens,
			OutputTokens: verdict.Usage.OutputTokens,
			TotalTokens:  verdict.Usage.TotalTokens,
		}); err != nil {
			log.Error("Failed to record token usage", zap.Error(err))
		}
	}

	metrics.IncrementWebhookNotification("processed")
	metrics.IncrementEmailProcessed(verdict.Label)
	log.Info("Email processed successfully",
		zap.String("classification", verdict.Label),
	)
}

// applyTag tags the message in the mailbox, best-effort. A failure here
// never blocks persistence.
func (p *Pipeline) applyTag(ctx context.Context, log *zap.Logger, messageID, label string) {
	category := taxonomy.DisplayName(label)

	outcome, err := p.gateway.ApplyCategory(ctx, messageID, category)
	switch outcome {
	case graph.TagApplied:
		log.Info("Category applied", zap.String("category", category))
	case graph.TagNoPermission:
		log.Warn("Could not tag message, write scope missing (check Mail.ReadWrite)",
			zap.String("category", category),
			zap.Error(err),
		)
	default:
		log.Warn("Failed to apply category",
			zap.String("category", category),
			zap.Error(err),
		)
	}
}

// extractMessageID prefers the inline resource data and falls back to
// parsing the resource path, which has the form
// users/{mailbox}/mailFolders/inbox/messages/{message-id}.
func extractMessageID(n *model.ChangeNotification) string {
	if n.ResourceData != nil && n.ResourceData.ID != "" {
		return n.ResourceData.ID
	}

	parts := strings.Split(n.Resource, "/")
	for i, part := range parts {
		if strings.EqualFold(part, "messages") && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func orPlaceholder(subject string) string {
	if subject == "" {
		return "(No subject)"
	}
	return subject
}

// truncate cuts s to at most n bytes, backing off to a rune start so a
// multi-byte character is never split; Postgres rejects text columns
// containing invalid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
