package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReminderStatus string

const (
	ReminderStatusPending   ReminderStatus = "pending"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusFailed    ReminderStatus = "failed"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// ReminderStatuses lists every status in display order.
var ReminderStatuses = []ReminderStatus{
	ReminderStatusPending,
	ReminderStatusSent,
	ReminderStatusFailed,
	ReminderStatusCancelled,
}

func (s ReminderStatus) Valid() bool {
	switch s {
	case ReminderStatusPending, ReminderStatusSent, ReminderStatusFailed, ReminderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo allows only pending -> sent|failed|cancelled.
func (s ReminderStatus) CanTransitionTo(next ReminderStatus) bool {
	switch s {
	case ReminderStatusPending:
		switch next {
		case ReminderStatusSent, ReminderStatusFailed, ReminderStatusCancelled:
			return true
		case ReminderStatusPending:
			return false
		}
	case ReminderStatusSent, ReminderStatusFailed, ReminderStatusCancelled:
		return false
	}
	return false
}

type ReminderOffset string

const (
	ReminderOffsetDay  ReminderOffset = "24-hour"
	ReminderOffsetHour ReminderOffset = "1-hour"
)

// ReminderOffsets is the fixed reminder policy, earliest reminder first.
var ReminderOffsets = []ReminderOffset{ReminderOffsetDay, ReminderOffsetHour}

// Duration returns the lead time before the event start.
func (o ReminderOffset) Duration() time.Duration {
	switch o {
	case ReminderOffsetDay:
		return 24 * time.Hour
	case ReminderOffsetHour:
		return time.Hour
	}
	panic(fmt.Sprintf("unknown reminder offset %q", string(o)))
}

// FireTime is the instant a reminder with this offset becomes due.
func (o ReminderOffset) FireTime(start time.Time) time.Time {
	return start.Add(-o.Duration())
}

// Reminder is a single scheduled e-mail about an event.
//
// A nil RegistrationID marks a broadcast reminder. ClaimToken and ClaimedUntil
// hold the lease of the dispatcher invocation currently sending it.
type Reminder struct {
	ID             string         `gorm:"primaryKey;type:uuid"`
	EventID        string         `gorm:"not null;type:uuid;index;uniqueIndex:idx_event_reminders_pending,where:status = 'pending'"`
	RegistrationID *string        `gorm:"type:uuid;index;uniqueIndex:idx_event_reminders_pending,where:status = 'pending'"`
	OffsetLabel    ReminderOffset `gorm:"not null;size:16;uniqueIndex:idx_event_reminders_pending,where:status = 'pending'"`
	ScheduledFor   time.Time      `gorm:"not null;index:idx_event_reminders_due,priority:2"`
	Status         ReminderStatus `gorm:"not null;size:16;default:pending;index:idx_event_reminders_due,priority:1"`
	AttemptCount   int            `gorm:"not null;default:0"`
	LastAttemptAt  *time.Time
	LastError      *string `gorm:"type:text"`
	ClaimToken     *string `gorm:"size:36"`
	ClaimedUntil   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Reminder) TableName() string {
	return "event_reminders"
}

func (r *Reminder) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = ReminderStatusPending
	}
	return nil
}

// IsBroadcast reports whether the reminder is addressed to the broadcast mailbox.
func (r *Reminder) IsBroadcast() bool {
	return r.RegistrationID == nil
}

// IsDue reports whether a pending reminder should be sent at now.
func (r *Reminder) IsDue(now time.Time) bool {
	return r.Status == ReminderStatusPending && !r.ScheduledFor.After(now)
}

var ErrInvalidTransition = errors.New("invalid reminder transition")

// ReminderTransition is the outcome applied to a claimed reminder.
type ReminderTransition struct {
	Status ReminderStatus
	// FailedAttempt increments attempt_count. A failed attempt below the
	// retry ceiling keeps the reminder pending.
	FailedAttempt bool
	LastAttemptAt time.Time
	LastError     *string
}

// Validate checks the transition out of pending.
func (t ReminderTransition) Validate() error {
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, string(t.Status))
	}
	switch {
	case t.Status == ReminderStatusPending && t.FailedAttempt:
		return nil
	case t.Status == ReminderStatusFailed && !t.FailedAttempt:
		return fmt.Errorf("%w: failed without a failed attempt", ErrInvalidTransition)
	case t.Status == ReminderStatusSent && t.FailedAttempt:
		return fmt.Errorf("%w: sent with a failed attempt", ErrInvalidTransition)
	case !ReminderStatusPending.CanTransitionTo(t.Status):
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ReminderStatusPending, t.Status)
	}
	return nil
}
