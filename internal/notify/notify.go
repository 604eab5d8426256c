// Package notify delivers confirmation codes to users.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/mail.v2"
)

// Notifier delivers a confirmation code out of band. Implementations must
// return an error when delivery did not happen; callers surface it instead
// of retrying.
type Notifier interface {
	SendConfirmationCode(ctx context.Context, email, username, code string) error
}

const subject = "YaMDb confirmation code"

// sender is the part of *mail.Dialer the notifier needs.
type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPNotifier sends plain-text mail through an SMTP relay.
type SMTPNotifier struct {
	from   string
	sender sender
	logger *slog.Logger
}

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// NewSMTPNotifier dials cfg.Host for every message.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}
	return newSMTPNotifier(cfg.From, d, logger)
}

func newSMTPNotifier(from string, s sender, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{from: from, sender: s, logger: logger}
}

func (n *SMTPNotifier) SendConfirmationCode(ctx context.Context, email, username, code string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	if err := n.sender.DialAndSend(n.buildMessage(email, username, code)); err != nil {
		return fmt.Errorf("notify: sending confirmation code: %w", err)
	}

	n.logger.Info("confirmation code sent", slog.String("username", username))
	return nil
}

func (n *SMTPNotifier) buildMessage(email, username, code string) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", messageBody(username, code))
	return m
}

func messageBody(username, code string) string {
	return fmt.Sprintf("Hello, %s!\n\nYour confirmation code: %s\n\n"+
		"Exchange it for an access token at POST /api/v1/auth/token/.\n", username, code)
}

// LogNotifier writes the code to the log instead of sending mail. It stands
// in for SMTP in development, where no relay is configured.
type LogNotifier struct {
	from   string
	logger *slog.Logger
}

func NewLogNotifier(from string, logger *slog.Logger) *LogNotifier {
	return &LogNotifier{from: from, logger: logger}
}

func (n *LogNotifier) SendConfirmationCode(ctx context.Context, email, username, code string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	n.logger.Info("confirmation code (mail disabled)",
		slog.String("from", n.from),
		slog.String("to", email),
		slog.String("username", username),
		slog.String("code", code),
	)
	return nil
}
