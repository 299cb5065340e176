package mailer

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer delivers through the SendGrid v3 API.
type SendGridMailer struct {
	client sendgridClient
	from   Sender
}

func NewSendGridMailer(apiKey string, from Sender) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   from,
	}
}

func (s *SendGridMailer) message(e Email) *mail.SGMailV3 {
	from := mail.NewEmail(s.from.Name, s.from.Email)
	to := mail.NewEmail(e.ToName, e.To)

	message := mail.NewSingleEmail(from, e.Subject, to, e.Text, e.HTML)
	for k, v := range e.Headers {
		message.SetHeader(k, v)
	}
	for _, a := range e.Attachments {
		attachment := mail.NewAttachment()
		attachment.SetFilename(a.Name)
		attachment.SetContent(base64.StdEncoding.EncodeToString(a.Data))
		if a.ContentType != "" {
			attachment.SetType(a.ContentType)
		}
		attachment.SetDisposition("attachment")
		message.AddAttachment(attachment)
	}
	return message
}

func (s *SendGridMailer) Send(ctx context.Context, e Email) error {
	response, err := s.client.SendWithContext(ctx, s.message(e))
	if err != nil {
		return fmt.Errorf("sendgrid send to %s: %w", e.To, err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send to %s: status %d: %s", e.To, response.StatusCode, response.Body)
	}
	return nil
}
