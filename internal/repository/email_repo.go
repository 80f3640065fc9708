package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

// ErrDuplicateEmail is returned when an insert hits the unique constraint
// on message_id. The constraint, not the pre-insert existence check, is
// the authoritative guard against concurrent redelivery.
var ErrDuplicateEmail = errors.New("email already processed")

const uniqueViolation = "23505"

type EmailRepository struct {
	db *pgxpool.Pool
}

func NewEmailRepository(db *pgxpool.Pool) *EmailRepository {
	return &EmailRepository{db: db}
}

// EmailExists reports whether a message id has already been recorded.
func (r *EmailRepository) EmailExists(ctx context.Context, messageID string) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("exists", "emails", time.Since(start)) }()

	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM emails WHERE message_id = $1)`,
		messageID,
	).Scan(&exists)
	return exists, err
}

// InsertEmail stores one processed email and returns its internal id.
// A duplicate message_id comes back as ErrDuplicateEmail.
func (r *EmailRepository) InsertEmail(ctx context.Context, e *model.ProcessedEmail) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "emails", time.Since(start)) }()

	query := `
        INSERT INTO emails (
            message_id, conversation_id, subject, snippet, body_text,
            from_address, from_name, classification, confidence, reason,
            draft_reply, received_at, processed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query,
		e.MessageID,
		e.ConversationID,
		e.Subject,
		e.Snippet,
		e.BodyText,
		e.FromAddress,
		e.FromName,
		e.Classification,
		e.Confidence,
		e.Reason,
		e.DraftReply,
		e.ReceivedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrDuplicateEmail
		}
		return 0, err
	}
	return id, nil
}

// ListRecent returns the most recently processed emails, newest first.
func (r *EmailRepository) ListRecent(ctx context.Context, limit int) ([]model.ProcessedEmail, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("list_recent", "emails", time.Since(start)) }()

	query := `
        SELECT id, message_id, conversation_id, subject, snippet,
               from_address, from_name, classification, confidence, reason,
               received_at, processed_at, created_at
        FROM emails
        ORDER BY processed_at DESC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []model.ProcessedEmail{}
	for rows.Next() {
		var e model.ProcessedEmail
		err := rows.Scan(
			&e.ID,
			&e.MessageID,
			&e.ConversationID,
			&e.Subject,
			&e.Snippet,
			&e.FromAddress,
			&e.FromName,
			&e.Classification,
			&e.Confidence,
			&e.Reason,
			&e.ReceivedAt,
			&e.ProcessedAt,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// ClassificationStats returns row counts grouped by classification,
// including the fallback label.
func (r *EmailRepository) ClassificationStats(ctx context.Context) ([]model.ClassificationStat, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("stats", "emails", time.Since(start)) }()

	rows, err := r.db.Query(ctx, `
        SELECT classification, COUNT(*) AS count
        FROM emails
        GROUP BY classification
        ORDER BY count DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []model.ClassificationStat{}
	for rows.Next() {
		var s model.ClassificationStat
		if err := rows.Scan(&s.Classification, &s.Count); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// ConversationStats summarizes threads with more than zero messages.
func (r *EmailRepository) ConversationStats(ctx context.Context) ([]model.ConversationStat, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("conversation_stats", "emails", time.Since(start)) }()

	rows, err := r.db.Query(ctx, `
        SELECT conversation_id,
               COUNT(*) AS message_count,
               ARRAY_AGG(DISTINCT classification) AS classifications
        FROM emails
        WHERE conversation_id IS NOT NULL AND conversation_id != ''
        GROUP BY conversation_id
        ORDER BY message_count DESC
        LIMIT 100
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []model.ConversationStat{}
	for rows.Next() {
		var s model.ConversationStat
		if err := rows.Scan(&s.ConversationID, &s.MessageCount, &s.Classifications); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// EmailsByConversation returns every email in one thread, oldest first.
func (r *EmailRepository) EmailsByConversation(ctx context.Context, conversationID string) ([]model.ProcessedEmail, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("by_conversation", "emails", time.Since(start)) }()

	query := `
        SELECT id, message_id, conversation_id, subject, snippet,
               from_address, from_name, classification, confidence, reason,
               received_at, processed_at, created_at
        FROM emails
        WHERE conversation_id = $1
        ORDER BY received_at ASC
    `
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []model.ProcessedEmail{}
	for rows.Next() {
		var e model.ProcessedEmail
		err := rows.Scan(
			&e.ID,
			&e.MessageID,
			&e.ConversationID,
			&e.Subject,
			&e.Snippet,
			&e.FromAddress,
			&e.FromName,
			&e.Classification,
			&e.Confidence,
			&e.Reason,
			&e.ReceivedAt,
			&e.ProcessedAt,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}
