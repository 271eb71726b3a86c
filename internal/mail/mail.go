// Package mail defines the mailer used by the notification dispatcher and
// provides an SMTP-backed implementation.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"golang.org/x/time/rate"
)

// Mailer sends a single email. A send failure is reported as an error and
// must never panic into the caller.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SendFunc adapts a plain function to the Mailer interface.
type SendFunc func(ctx context.Context, to, subject, htmlBody string) error

func (f SendFunc) Send(ctx context.Context, to, subject, htmlBody string) error {
	return f(ctx, to, subject, htmlBody)
}

// SMTPMailer sends mail through an SMTP relay with plain auth.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPMailer returns an SMTPMailer for the given relay.
// Auth is omitted if username is empty.
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	m := &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
	}
	if username != "" {
		m.auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(b.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// RateLimited wraps a Mailer with an outbound send cap of perSec sends per
// second. Send blocks until the limiter allows it or ctx is done.
func RateLimited(m Mailer, perSec float64) Mailer {
	if perSec <= 0 {
		return m
	}
	lim := rate.NewLimiter(rate.Limit(perSec), 1)
	return SendFunc(func(ctx context.Context, to, subject, htmlBody string) error {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		return m.Send(ctx, to, subject, htmlBody)
	})
}
