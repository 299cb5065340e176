package mailer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Mailer sends a single e-mail. Each call is one delivery attempt; callers own retries.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type Email struct {
	To          string
	ToName      string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
	Headers     map[string]string
}

type EmailOption func(*Email)

func NewEmail(to string, opts ...EmailOption) Email {
	e := Email{To: to}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func WithRecipientName(name string) EmailOption {
	return func(e *Email) {
		e.ToName = name
	}
}

func WithSubject(sub string) EmailOption {
	return func(e *Email) {
		e.Subject = sub
	}
}

func WithText(text string) EmailOption {
	return func(e *Email) {
		e.Text = text
	}
}

func WithHTML(html string) EmailOption {
	return func(e *Email) {
		e.HTML = html
	}
}

func WithAttachment(name, contentType string, data []byte) EmailOption {
	return func(e *Email) {
		e.Attachments = append(e.Attachments, Attachment{Name: name, ContentType: contentType, Data: data})
	}
}

func Header(key, value string) EmailOption {
	return func(e *Email) {
		if e.Headers == nil {
			e.Headers = make(map[string]string)
		}
		e.Headers[key] = value
	}
}

// Sender is the From identity shared by all providers.
type Sender struct {
	Email string
	Name  string
}

func (s Sender) Address() string {
	if s.Name == "" {
		return s.Email
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

func generateMessageID(domain string) string {
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}
