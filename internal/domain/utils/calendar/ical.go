package calendar

import (
	"bytes"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/hopehouse/reminders/internal/domain/entity"
)

// DefaultDuration is used as the event length since events carry no end time.
const DefaultDuration = 90 * time.Minute

// EventInvite describes one event to export.
type EventInvite struct {
	Event     entity.Event
	Start     time.Time
	Organizer string
	URL       string
}

// ExportEventToICS renders a single-event iCalendar file with an alarm for
// each reminder offset, so the attendee's calendar app repeats the reminder.
func ExportEventToICS(invite EventInvite, now time.Time) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//Hope House//Event Reminders//EN")
	cal.SetVersion("2.0")
	cal.SetCalscale("GREGORIAN")

	e := cal.AddEvent(fmt.Sprintf("%s@hopehouse-reminders", invite.Event.ID))
	e.SetDtStampTime(now)
	e.SetCreatedTime(invite.Event.CreatedAt)
	e.SetModifiedAt(invite.Event.UpdatedAt)
	e.SetStartAt(invite.Start)
	e.SetEndAt(invite.Start.Add(DefaultDuration))

	e.SetSummary(invite.Event.Title)
	if invite.Event.Description != "" {
		e.SetDescription(invite.Event.Description)
	}
	if venue := invite.Event.Venue(); venue != "" {
		e.SetLocation(venue)
	}
	if invite.URL != "" {
		e.SetURL(invite.URL)
	}
	if invite.Organizer != "" {
		e.SetOrganizer(invite.Organizer)
	}

	e.SetStatus(ics.ObjectStatusConfirmed)
	e.SetTimeTransparency(ics.TransparencyOpaque)
	e.SetClass(ics.ClassificationPublic)
	e.SetSequence(0)

	for _, offset := range entity.ReminderOffsets {
		alarm := e.AddAlarm()
		alarm.SetAction(ics.ActionDisplay)
		alarm.AddProperty("TRIGGER;VALUE=DURATION", triggerFor(offset))
		alarm.SetDescription(fmt.Sprintf("Reminder: %s", invite.Event.Title))
	}

	var buf bytes.Buffer
	if err := cal.SerializeTo(&buf); err != nil {
		return nil, fmt.Errorf("error serializing calendar: %w", err)
	}

	return buf.Bytes(), nil
}

func triggerFor(offset entity.ReminderOffset) string {
	d := offset.Duration()
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("-P%dD", int(d/(24*time.Hour)))
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("-PT%dH", int(d/time.Hour))
	}
	return fmt.Sprintf("-PT%dM", int(d/time.Minute))
}

// FileName returns the attachment name for an event invite.
func FileName(event entity.Event) string {
	return fmt.Sprintf("event-%s.ics", event.ID)
}
