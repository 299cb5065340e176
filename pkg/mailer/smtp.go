package mailer

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/gomail.v2"
)

// SMTPMailer delivers through an SMTP relay with gomail.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   Sender
	domain string
	now    func() time.Time
}

type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
	From     Sender
	// Domain is used for generated Message-IDs.
	Domain string
}

func NewSMTPMailer(opts SMTPOptions) *SMTPMailer {
	dialer := gomail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password)
	if opts.SSL {
		dialer.SSL = true
	}
	return &SMTPMailer{
		dialer: dialer,
		from:   opts.From,
		domain: opts.Domain,
		now:    time.Now,
	}
}

func (m *SMTPMailer) message(e Email) *gomail.Message {
	msg := gomail.NewMessage()

	msg.SetHeader("Message-ID", generateMessageID(m.domain))
	msg.SetHeader("Date", m.now().Format(time.RFC1123Z))
	msg.SetAddressHeader("From", m.from.Email, m.from.Name)
	if e.ToName != "" {
		msg.SetAddressHeader("To", e.To, e.ToName)
	} else {
		msg.SetHeader("To", e.To)
	}
	msg.SetHeader("Subject", e.Subject)
	for k, v := range e.Headers {
		msg.SetHeader(k, v)
	}

	if e.Text != "" {
		msg.SetBody("text/plain", e.Text)
		if e.HTML != "" {
			msg.AddAlternative("text/html", e.HTML)
		}
	} else {
		msg.SetBody("text/html", e.HTML)
	}

	for _, a := range e.Attachments {
		data := a.Data
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{
				"Content-Type": {a.ContentType},
			}))
		}
		msg.Attach(a.Name, settings...)
	}

	return msg
}

// Send dials the relay and delivers e. gomail has no context support, so the
// dial runs in a goroutine and ctx only bounds how long the caller waits.
func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	msg := m.message(e)

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", e.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", e.To, ctx.Err())
	}
}
