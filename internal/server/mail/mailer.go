// Package mail defines the outbound-mail collaborator used by the login
// flow. Delivery itself (SMTP, provider API) lives outside this service;
// the auth core only needs the two notifications below.
package mail

import (
	"context"

	"github.com/keyfold/keyfold/internal/logging"
)

// Mailer sends the auth-flow notifications.
type Mailer interface {
	// SendMFACode delivers the one-time numeric login code.
	SendMFACode(ctx context.Context, email, code string) error

	// SendNewDeviceAlert notifies the user of a login from an unseen
	// (ip, user-agent) pair.
	SendNewDeviceAlert(ctx context.Context, email, ip, userAgent string) error
}

// LogMailer writes notifications to the log instead of delivering mail.
// Used in development and as the default wiring until a real transport is
// plugged in.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(logger logging.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendMFACode(ctx context.Context, email, code string) error {
	m.logger.Info(ctx, "mfa code issued", "email", email, "code", code)
	return nil
}

func (m *LogMailer) SendNewDeviceAlert(ctx context.Context, email, ip, userAgent string) error {
	m.logger.Info(ctx, "new device alert", "email", email, "ip", ip, "userAgent", userAgent)
	return nil
}
