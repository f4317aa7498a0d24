package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/datarmony/zukosync/pkg/config"
	"github.com/datarmony/zukosync/pkg/errors"
)

// SMTPNotifier sends run summaries as plain-text email over SMTP with
// STARTTLS and plain auth.
type SMTPNotifier struct {
	config *config.NotifyConfig
	logger *zap.Logger

	// send is swappable for tests.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier creates a notifier from config.
func NewSMTPNotifier(cfg *config.NotifyConfig, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		config: cfg,
		logger: logger.With(zap.String("component", "smtp_notifier")),
		send:   smtp.SendMail,
	}
}

// Notify delivers the summary to every configured recipient.
func (n *SMTPNotifier) Notify(summary *RunSummary) error {
	addr := fmt.Sprintf("%s:%d", n.config.SMTPHost, n.config.SMTPPort)
	auth := smtp.PlainAuth("", n.config.Sender, n.config.Password, n.config.SMTPHost)

	msg := buildMessage(n.config.Sender, n.config.Recipients, summary.Subject(), summary.Body())
	if err := n.send(addr, auth, n.config.Sender, n.config.Recipients, msg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeNotify, "failed to send summary email").
			WithDetail("recipients", len(n.config.Recipients))
	}

	n.logger.Info("sent run summary email",
		zap.Int("recipients", len(n.config.Recipients)),
		zap.Bool("failed_run", summary.Failed()))
	return nil
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
