package notifications

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"agenda/pkg/logger"
)

type Mail struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// SMTPMailer relays through an unauthenticated SMTP server such as a local
// MTA or a development catcher.
type SMTPMailer struct {
	addr string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(addr, from string) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, mail Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(mail.To, "\r\n") || strings.ContainsAny(mail.Subject, "\r\n") {
		return fmt.Errorf("mail header contains a line break")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", mail.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mail.Subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(mail.Body, "\n", "\r\n"))

	if err := m.send(m.addr, nil, m.from, []string{mail.To}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send mail via %s: %w", m.addr, err)
	}
	return nil
}

// Host returns the relay host, used in startup logs.
func (m *SMTPMailer) Host() string {
	host, _, err := net.SplitHostPort(m.addr)
	if err != nil {
		return m.addr
	}
	return host
}

// LogMailer writes mails to the log instead of sending them.
type LogMailer struct {
	log *logger.Logger
}

func NewLogMailer(log *logger.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, mail Mail) error {
	m.log.Info("mail not sent, no SMTP relay configured",
		"to", mail.To,
		"subject", mail.Subject,
		"body_bytes", len(mail.Body),
	)
	return nil
}
