package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Registration is a person signed up for an event.
type Registration struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	EventID   string `gorm:"not null;type:uuid;index"`
	Name      string `gorm:"not null" validate:"max=200"`
	Email     string `gorm:"not null" validate:"required,email"`
	Phone     string `validate:"omitempty,max=32"`
	CreatedAt time.Time
}

func (Registration) TableName() string {
	return "event_registrations"
}

func (r *Registration) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
