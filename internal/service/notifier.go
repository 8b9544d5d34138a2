package service

import (
	"context"
	"fmt"
	"log/slog"
)

type VerificationMessage struct {
	UserID   uint
	Email    string
	Username string
	UID      string
	Token    string
}

type ResetMessage struct {
	UserID   uint
	Email    string
	Username string
	UID      string
	Token    string
}

// Notifier is the email transport boundary. Delivery is best effort; the
// effect runner retries transient failures.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, msg VerificationMessage) error
	SendResetEmail(ctx context.Context, msg ResetMessage) error
}

// LogNotifier logs the links instead of sending mail. Default outside
// production.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerificationEmail(ctx context.Context, msg VerificationMessage) error {
	n.logger.InfoContext(ctx, "verification email",
		"user_id", msg.UserID,
		"email", msg.Email,
		"link", fmt.Sprintf("/api/v1/auth/verify/%s/%s", msg.UID, msg.Token),
	)
	return nil
}

func (n *LogNotifier) SendResetEmail(ctx context.Context, msg ResetMessage) error {
	n.logger.InfoContext(ctx, "password reset email",
		"user_id", msg.UserID,
		"email", msg.Email,
		"link", fmt.Sprintf("/api/v1/auth/password/reset/%s/%s", msg.UID, msg.Token),
	)
	return nil
}
