// Package notify sends operator notifications by email.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/example/ispwatch/internal/ports/secondary"
)

// Config holds SMTP settings.
type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	// UseTLS selects STARTTLS on a plain connection; false means implicit TLS.
	UseTLS bool
	From   string
	To     string
}

// Enabled reports whether enough is configured to send mail.
func (c Config) Enabled() bool {
	return c.Server != "" && c.To != "" && c.sender() != ""
}

func (c Config) sender() string {
	if c.Username != "" {
		return c.Username
	}
	return c.From
}

// SMTPNotifier implements secondary.Notifier over SMTP.
type SMTPNotifier struct {
	cfg Config
	now func() time.Time
}

// NewSMTPNotifier creates a notifier for cfg.
func NewSMTPNotifier(cfg Config) *SMTPNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPNotifier{cfg: cfg, now: time.Now}
}

// Send delivers msg to the configured recipient.
func (n *SMTPNotifier) Send(ctx context.Context, msg secondary.Notification) error {
	if !n.cfg.Enabled() {
		return fmt.Errorf("email notifications not configured")
	}

	addr := net.JoinHostPort(n.cfg.Server, strconv.Itoa(n.cfg.Port))
	tlsConfig := &tls.Config{ServerName: n.cfg.Server, MinVersion: tls.VersionTLS12}
	dialer := &net.Dialer{Timeout: 30 * time.Second}

	var (
		conn net.Conn
		err  error
	)
	if n.cfg.UseTLS {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.cfg.Server)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer client.Close()

	if n.cfg.UseTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls failed: %w", err)
		}
	}
	if n.cfg.Username != "" && n.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Server)); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	from := n.cfg.sender()
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(n.cfg.To); err != nil {
		return fmt.Errorf("smtp RCPT TO failed: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(BuildMessage(from, n.cfg.To, msg, n.now())); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return client.Quit()
}

// BuildMessage renders a plain-text RFC 5322 message with CRLF line endings.
func BuildMessage(from, to string, msg secondary.Notification, at time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", at.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	for _, line := range strings.Split(body, "\n") {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return b.Bytes()
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// Ensure SMTPNotifier implements the interface
var _ secondary.Notifier = (*SMTPNotifier)(nil)
