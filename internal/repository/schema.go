package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements are idempotent: IF NOT EXISTS throughout, so InitSchema
// can be re-run safely.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS emails (
        id              BIGSERIAL PRIMARY KEY,
        message_id      TEXT UNIQUE NOT NULL,
        conversation_id TEXT,
        subject         TEXT,
        snippet         TEXT,
        body_text       TEXT,
        from_address    TEXT,
        from_name       TEXT,
        classification  TEXT,
        confidence      DOUBLE PRECISION,
        reason          TEXT,
        draft_reply     TEXT,
        received_at     TEXT,
        processed_at    TIMESTAMPTZ DEFAULT NOW(),
        created_at      TIMESTAMPTZ DEFAULT NOW()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_emails_classification ON emails(classification)`,
	`CREATE INDEX IF NOT EXISTS idx_emails_conversation_id ON emails(conversation_id)`,
	`CREATE TABLE IF NOT EXISTS llm_usage (
        id            BIGSERIAL PRIMARY KEY,
        email_id      BIGINT NOT NULL REFERENCES emails(id),
        model         TEXT,
        operation     TEXT,
        input_tokens  INT DEFAULT 0,
        output_tokens INT DEFAULT 0,
        total_tokens  INT DEFAULT 0,
        created_at    TIMESTAMPTZ DEFAULT NOW()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_llm_usage_email_id ON llm_usage(email_id)`,
}

// InitSchema creates tables and indexes if they are absent.
func InitSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
