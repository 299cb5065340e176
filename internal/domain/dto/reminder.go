package dto

import (
	"time"

	"github.com/hopehouse/reminders/internal/domain/entity"
)

// DispatchSummary counts the outcomes of one ProcessReminders run.
type DispatchSummary struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Total returns how many due reminders the run looked at.
func (s DispatchSummary) Total() int {
	return s.Sent + s.Failed + s.Skipped
}

// CleanupSummary counts rows removed by one retention run.
type CleanupSummary struct {
	DeletedTestimonials int64 `json:"deletedTestimonials"`
	DeletedPrayers      int64 `json:"deletedPrayers"`
}

// Reminder is the API view of a reminder record.
type Reminder struct {
	ID             string     `json:"id"`
	EventID        string     `json:"eventId"`
	RegistrationID *string    `json:"registrationId"`
	OffsetLabel    string     `json:"offsetLabel"`
	ScheduledFor   time.Time  `json:"scheduledFor"`
	Status         string     `json:"status"`
	AttemptCount   int        `json:"attemptCount"`
	LastAttemptAt  *time.Time `json:"lastAttemptAt"`
}

func NewReminderFromEntity(r entity.Reminder) Reminder {
	return Reminder{
		ID:             r.ID,
		EventID:        r.EventID,
		RegistrationID: r.RegistrationID,
		OffsetLabel:    string(r.OffsetLabel),
		ScheduledFor:   r.ScheduledFor,
		Status:         string(r.Status),
		AttemptCount:   r.AttemptCount,
		LastAttemptAt:  r.LastAttemptAt,
	}
}

func NewRemindersFromEntities(reminders []entity.Reminder) []Reminder {
	out := make([]Reminder, 0, len(reminders))
	for _, r := range reminders {
		out = append(out, NewReminderFromEntity(r))
	}
	return out
}

// ReminderStats is the number of reminders per status.
type ReminderStats map[entity.ReminderStatus]int64
