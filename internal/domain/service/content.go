package service

import (
	"bytes"
	"fmt"
	html "html/template"
	"strings"
	text "text/template"
	"time"

	"github.com/hopehouse/reminders/internal/domain/entity"
	"github.com/hopehouse/reminders/internal/domain/utils/calendar"
	"github.com/hopehouse/reminders/pkg/mailer"
	"github.com/hopehouse/reminders/pkg/qrcode"
)

const whenLayout = "Monday, January 2 at 3:04 PM MST"

var textTemplate = text.Must(text.New("reminder.txt").Parse(`Hello{{if .Name}} {{.Name}}{{end}},

This is a reminder that {{.Title}} {{.Lead}}.

When: {{.When}}
{{- if .Venue}}
{{if .IsVirtual}}Join online{{else}}Where{{end}}: {{.Venue}}
{{- end}}
{{- if .Description}}

{{.Description}}
{{- end}}

We look forward to seeing you.
{{.SiteName}}
{{- if .SiteURL}}
{{.SiteURL}}
{{- end}}
`))

var htmlTemplate = html.Must(html.New("reminder.html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333333;">
<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>This is a reminder that <strong>{{.Title}}</strong> {{.Lead}}.</p>
<table cellpadding="4">
<tr><td><strong>When</strong></td><td>{{.When}}</td></tr>
{{- if .Venue}}
{{- if .IsVirtual}}
<tr><td><strong>Join online</strong></td><td><a href="{{.Venue}}">{{.Venue}}</a></td></tr>
{{- else}}
<tr><td><strong>Where</strong></td><td>{{.Venue}}</td></tr>
{{- end}}
{{- end}}
</table>
{{- if .Description}}
<p>{{.Description}}</p>
{{- end}}
<p>We look forward to seeing you.<br>
{{- if .SiteURL}}
<a href="{{.SiteURL}}">{{.SiteName}}</a>
{{- else}}
{{.SiteName}}
{{- end}}
</p>
</body>
</html>
`))

type contentData struct {
	Name        string
	Title       string
	Lead        string
	When        string
	Venue       string
	IsVirtual   bool
	Description string
	SiteName    string
	SiteURL     string
}

// ContentBuilder renders the e-mail for a reminder.
type ContentBuilder struct {
	siteName string
	siteURL  string
	location *time.Location
	qr       *qrcode.Config
}

func NewContentBuilder(siteName, siteURL string, location *time.Location) *ContentBuilder {
	if location == nil {
		location = time.UTC
	}
	return &ContentBuilder{
		siteName: siteName,
		siteURL:  siteURL,
		location: location,
	}
}

// WithQRCode attaches a QR code linking to the event page. Needs a site URL.
func (b *ContentBuilder) WithQRCode(cfg qrcode.Config) *ContentBuilder {
	b.qr = &cfg
	return b
}

// EventURL returns the public page of the event, empty without a site URL.
func (b *ContentBuilder) EventURL(event entity.Event) string {
	if b.siteURL == "" {
		return ""
	}
	return strings.TrimRight(b.siteURL, "/") + "/events/" + event.ID
}

// Subject returns the reminder subject line for an offset.
func Subject(offset entity.ReminderOffset, title string) string {
	switch offset {
	case entity.ReminderOffsetDay:
		return fmt.Sprintf("Reminder: %s is tomorrow", title)
	case entity.ReminderOffsetHour:
		return fmt.Sprintf("Reminder: %s starts in 1 hour", title)
	}
	return fmt.Sprintf("Reminder: %s", title)
}

func lead(offset entity.ReminderOffset) string {
	switch offset {
	case entity.ReminderOffsetDay:
		return "is tomorrow"
	case entity.ReminderOffsetHour:
		return "starts in 1 hour"
	}
	return "is coming up"
}

// Build renders the e-mail for reminder r about event starting at start.
func (b *ContentBuilder) Build(r entity.Reminder, event entity.Event, start time.Time, to, toName string, now time.Time) (mailer.Email, error) {
	data := contentData{
		Name:        toName,
		Title:       event.Title,
		Lead:        lead(r.OffsetLabel),
		When:        start.In(b.location).Format(whenLayout),
		Venue:       event.Venue(),
		IsVirtual:   event.IsVirtual,
		Description: event.Description,
		SiteName:    b.siteName,
		SiteURL:     b.siteURL,
	}

	var textBuf bytes.Buffer
	if err := textTemplate.Execute(&textBuf, data); err != nil {
		return mailer.Email{}, fmt.Errorf("failed to render text template: %w", err)
	}

	var htmlBuf bytes.Buffer
	if err := htmlTemplate.Execute(&htmlBuf, data); err != nil {
		return mailer.Email{}, fmt.Errorf("failed to render HTML template: %w", err)
	}

	eventURL := b.EventURL(event)
	invite, err := calendar.ExportEventToICS(calendar.EventInvite{
		Event: event,
		Start: start,
		URL:   eventURL,
	}, now)
	if err != nil {
		return mailer.Email{}, err
	}

	opts := []mailer.EmailOption{
		mailer.WithRecipientName(toName),
		mailer.WithSubject(Subject(r.OffsetLabel, event.Title)),
		mailer.WithText(textBuf.String()),
		mailer.WithHTML(htmlBuf.String()),
		mailer.WithAttachment(calendar.FileName(event), "text/calendar; charset=utf-8; method=PUBLISH", invite),
		mailer.Header("X-Reminder-ID", r.ID),
	}
	if b.qr != nil && eventURL != "" {
		code, errQR := b.qr.Generate(eventURL)
		if errQR != nil {
			return mailer.Email{}, fmt.Errorf("failed to render event QR code: %w", errQR)
		}
		opts = append(opts, mailer.WithAttachment(fmt.Sprintf("event-%s-qr.png", event.ID), "image/png", code))
	}

	return mailer.NewEmail(to, opts...), nil
}
