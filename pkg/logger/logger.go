package logger

import (
	"go.uber.org/zap"
)

var Log *zap.Logger

func NewLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithMessage returns a logger carrying the provider message id, so every
// line of the per-entry pipeline can be correlated in the output.
func WithMessage(logger *zap.Logger, messageID string) *zap.Logger {
	if messageID == "" {
		return logger
	}
	return logger.With(zap.String("message_id", messageID))
}
