// Package alert handles sending notifications.
package alert

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/your-org/momet-screener/internal/config"
)

// Notifier is the interface for sending alert messages.
type Notifier interface {
	Send(subject, body string) error
}

// NoOpNotifier is a notifier that does nothing. It is used when email
// delivery is not configured.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing and returns nil.
func (n *NoOpNotifier) Send(subject, body string) error {
	return nil
}

// SMTPNotifier delivers messages over plain SMTP with optional AUTH.
type SMTPNotifier struct {
	cfg config.EmailConfig
}

// NewSMTPNotifier builds a notifier from the email configuration. It errors
// when the host or recipient list is missing.
func NewSMTPNotifier(cfg config.EmailConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host not configured")
	}
	if len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("no email recipients configured")
	}
	return &SMTPNotifier{cfg: cfg}, nil
}

// Send delivers one message to all configured recipients.
func (n *SMTPNotifier) Send(subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(n.cfg.Recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, n.cfg.From, n.cfg.Recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
