package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"
)

// Notifier tells operators about a failed scheduled export.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// LogNotifier writes notifications to a logger. It is the fallback when no
// mail relay is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, subject, body string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(subject, "body", body)
	return nil
}

// SMTPNotifier mails notifications through a relay.
type SMTPNotifier struct {
	Addr     string // host:port
	From     string
	To       []string
	Username string
	Password string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

// NewSMTPNotifier returns a notifier sending from from to every address in
// to. Username enables PLAIN authentication.
func NewSMTPNotifier(addr, from string, to []string, username, password string) *SMTPNotifier {
	return &SMTPNotifier{
		Addr:     addr,
		From:     from,
		To:       to,
		Username: username,
		Password: password,
		send:     smtp.SendMail,
		now:      time.Now,
	}
}

func (n *SMTPNotifier) Notify(ctx context.Context, subject, body string) error {
	if len(n.To) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if n.Username != "" {
		host, _, _ := strings.Cut(n.Addr, ":")
		auth = smtp.PlainAuth("", n.Username, n.Password, host)
	}
	if err := n.send(n.Addr, auth, n.From, n.To, n.message(subject, body)); err != nil {
		return fmt.Errorf("sending mail via %s: %w", n.Addr, err)
	}
	return nil
}

func (n *SMTPNotifier) message(subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
