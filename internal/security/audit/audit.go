package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/identityhub/internal/security/middleware"
)

// Logger emits structured audit events for identity operations.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (al *Logger) LogEvent(ctx context.Context, action, username, userID, status, details string) {
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("username", username),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", middleware.RequestIDFromContext(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogSignup(ctx context.Context, username, userID, status string) {
	al.LogEvent(ctx, "signup", username, userID, status, "")
}

func (al *Logger) LogSignin(ctx context.Context, username, userID, status string) {
	al.LogEvent(ctx, "signin", username, userID, status, "")
}

func (al *Logger) LogPasswordChange(ctx context.Context, username, userID, status string) {
	al.LogEvent(ctx, "password_change", username, userID, status, "")
}

func (al *Logger) LogDenied(ctx context.Context, username, reason string) {
	al.LogEvent(ctx, "access_denied", username, "", "denied", reason)
}
