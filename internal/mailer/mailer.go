// Package mailer delivers shadow-IT notifications over SMTP. Delivery is
// best-effort: the caller tracks at-most-once state before calling Send, so
// a failure here is logged and never retried.
package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/oversight-hq/oversight/internal/logx"
)

// Message is one outbound notification email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Mailer sends notification emails.
type Mailer interface {
	Send(m Message) error
}

// SMTP sends mail through a gomail dialer.
type SMTP struct {
	from   string
	dialer *gomail.Dialer
}

// NewSMTP builds an SMTP mailer.
func NewSMTP(host string, port int, user, password, from string) *SMTP {
	return &SMTP{
		from:   from,
		dialer: gomail.NewDialer(host, port, user, password),
	}
}

// Send delivers one message.
func (s *SMTP) Send(m Message) error {
	if m.To == "" {
		return fmt.Errorf("message has no recipient")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/html", m.HTMLBody)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", m.To, err)
	}
	return nil
}

// Discard logs and drops messages. Used when SMTP is not configured and in
// tests.
type Discard struct{}

func (Discard) Send(m Message) error {
	logx.Infof("mailer: discarding %q to %s (SMTP not configured)", m.Subject, m.To)
	return nil
}
