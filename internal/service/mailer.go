package service

import (
	"context"

	"farm-market/internal/util"

	"go.uber.org/zap"
)

// Mailer delivers transactional email.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
	SendOrderNotification(ctx context.Context, to, subject, body string) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer() *LogMailer {
	return &LogMailer{logger: util.GetLogger()}
}

func (m *LogMailer) SendVerification(_ context.Context, to, name, token string) error {
	m.logger.Info("Verification email",
		zap.String("to", to),
		zap.String("name", name),
		zap.String("token", token))
	return nil
}

func (m *LogMailer) SendPasswordReset(_ context.Context, to, name, token string) error {
	m.logger.Info("Password reset email",
		zap.String("to", to),
		zap.String("name", name),
		zap.String("token", token))
	return nil
}

func (m *LogMailer) SendOrderNotification(_ context.Context, to, subject, body string) error {
	m.logger.Info("Order notification email",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
