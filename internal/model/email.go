package model

import "time"

// ProcessedEmail is the durable record of one classified message. Exactly
// one row exists per provider message id; the unique constraint on
// MessageID is what makes redelivered notifications harmless.
type ProcessedEmail struct {
	ID             int64     `json:"id"`
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Subject        string    `json:"subject"`
	Snippet        string    `json:"snippet"`
	BodyText       string    `json:"body_text,omitempty"`
	FromAddress    string    `json:"from_address"`
	FromName       string    `json:"from_name"`
	Classification string    `json:"classification"`
	Confidence     float64   `json:"confidence"`
	Reason         string    `json:"reason"`
	DraftReply     string    `json:"draft_reply,omitempty"`
	ReceivedAt     string    `json:"received_at"`
	ProcessedAt    time.Time `json:"processed_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// TokenUsage records the LLM token cost of one operation on an email.
type TokenUsage struct {
	ID           int64     `json:"id"`
	EmailID      int64     `json:"email_id"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClassificationStat is one row of the counts-by-classification query.
type ClassificationStat struct {
	Classification string `json:"classification"`
	Count          int    `json:"count"`
}

// ConversationStat summarizes one conversation thread.
type ConversationStat struct {
	ConversationID  string   `json:"conversation_id"`
	MessageCount    int      `json:"message_count"`
	Classifications []string `json:"classifications"`
}

// UsageStat aggregates token usage per model and operation.
type UsageStat struct {
	Model        string `json:"model"`
	Operation    string `json:"operation"`
	Calls        int    `json:"calls"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
}
