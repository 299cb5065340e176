package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// clockLayouts are the time-of-day formats the admin dashboard stores.
var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
}

// Event is owned by the web application; this service only reads it.
type Event struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Title       string    `gorm:"not null"`
	Description string    `gorm:"type:text"`
	Date        time.Time `gorm:"not null"`
	Time        string    `gorm:"size:16"`
	IsVirtual   bool      `gorm:"not null;default:false"`
	OnlineLink  string
	Location    string
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// StartInstant combines the calendar date with the clock string in loc.
//
// An empty Time means Date already carries the start instant.
func (e *Event) StartInstant(loc *time.Location) (time.Time, error) {
	if e.Date.IsZero() {
		return time.Time{}, fmt.Errorf("event %s has no date", e.ID)
	}
	if loc == nil {
		loc = time.UTC
	}

	clock := strings.TrimSpace(e.Time)
	if clock == "" {
		return e.Date, nil
	}

	normalized := strings.ToUpper(clock)
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, normalized)
		if err != nil {
			continue
		}
		year, month, day := e.Date.Date()
		return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	}

	return time.Time{}, fmt.Errorf("event %s has unparsable time %q", e.ID, e.Time)
}

// HasStarted reports whether the event start is at or before now.
func (e *Event) HasStarted(now time.Time, loc *time.Location) bool {
	start, err := e.StartInstant(loc)
	if err != nil {
		return false
	}
	return !start.After(now)
}

// Venue returns where attendees should go: the online link for virtual events.
func (e *Event) Venue() string {
	if e.IsVirtual {
		if e.OnlineLink != "" {
			return e.OnlineLink
		}
		return "Online"
	}
	return e.Location
}
