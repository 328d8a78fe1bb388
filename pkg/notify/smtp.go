package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/principals"
)

// SMTPNotifier sends plain-text notices over SMTP with STARTTLS where the
// server offers it.
type SMTPNotifier struct {
	cfg config.SMTPConfig
}

// NewSMTPNotifier creates an SMTP-backed notifier.
func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

// SuspensionNotice informs a principal their account has been suspended.
func (n *SMTPNotifier) SuspensionNotice(ctx context.Context, p *principals.Principal, reason string) error {
	if reason == "" {
		reason = "no reason given"
	}
	body := fmt.Sprintf(
		"Hello %s,\r\n\r\nYour account has been suspended.\r\nReason: %s\r\n\r\nContact your administrator for details.\r\n",
		displayName(p), reason)
	return n.send(ctx, p.Email, "Your account has been suspended", body)
}

// ResumptionNotice informs a principal their account has been restored.
func (n *SMTPNotifier) ResumptionNotice(ctx context.Context, p *principals.Principal) error {
	body := fmt.Sprintf(
		"Hello %s,\r\n\r\nYour account has been restored. You can log in again.\r\n",
		displayName(p))
	return n.send(ctx, p.Email, "Your account has been restored", body)
}

func displayName(p *principals.Principal) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(body)

	done := make(chan error, 1)
	go func() {
		var auth smtp.Auth
		if n.cfg.Username != "" {
			auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		}
		done <- smtp.SendMail(addr, auth, n.cfg.From, []string{to}, []byte(msg.String()))
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("notification cancelled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send notification to %s: %w", to, err)
		}
		return nil
	}
}
