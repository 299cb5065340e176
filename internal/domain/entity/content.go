package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Testimonial struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	Name      string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`
}

func (t *Testimonial) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

type PrayerRequest struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	Name      string
	Request   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`

	Logs []PrayerLog `gorm:"foreignKey:PrayerRequestID"`
}

func (p *PrayerRequest) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PrayerLog records that someone prayed for a request.
type PrayerLog struct {
	ID              string `gorm:"primaryKey;type:uuid"`
	PrayerRequestID string `gorm:"not null;type:uuid;index"`
	CreatedAt       time.Time
}

func (l *PrayerLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
