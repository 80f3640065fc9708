package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

type UsageRepository struct {
	db *pgxpool.Pool
}

func NewUsageRepository(db *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{db: db}
}

// InsertUsage records the token cost of one LLM operation on an email.
func (r *UsageRepository) InsertUsage(ctx context.Context, u *model.TokenUsage) error {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("insert", "llm_usage", time.Since(start)) }()

	_, err := r.db.Exec(ctx, `
        INSERT INTO llm_usage (email_id, model, operation, input_tokens, output_tokens, total_tokens)
        VALUES ($1, $2, $3, $4, $5, $6)
    `,
		u.EmailID,
		u.Model,
		u.Operation,
		u.InputTokens,
		u.OutputTokens,
		u.TotalTokens,
	)
	return err
}

// UsageStats aggregates token usage per model and operation.
func (r *UsageRepository) UsageStats(ctx context.Context) ([]model.UsageStat, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQueryDuration("stats", "llm_usage", time.Since(start)) }()

	rows, err := r.db.Query(ctx, `
        SELECT model, operation,
               COUNT(*) AS calls,
               COALESCE(SUM(input_tokens), 0) AS input_tokens,
               COALESCE(SUM(output_tokens), 0) AS output_tokens,
               COALESCE(SUM(total_tokens), 0) AS total_tokens
        FROM llm_usage
        GROUP BY model, operation
        ORDER BY total_tokens DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []model.UsageStat{}
	for rows.Next() {
		var s model.UsageStat
		if err := rows.Scan(&s.Model, &s.Operation, &s.Calls, &s.InputTokens, &s.OutputTokens, &s.TotalTokens); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
