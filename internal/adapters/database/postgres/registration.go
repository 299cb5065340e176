package postgres

import (
	"context"

	"github.com/hopehouse/reminders/internal/domain/entity"
	"gorm.io/gorm"
)

type RegistrationStorage struct {
	db *gorm.DB
}

func NewRegistrationStorage(db *gorm.DB) *RegistrationStorage {
	return &RegistrationStorage{
		db: db,
	}
}

// Get is a function that gets a registration from the database by id.
func (s *RegistrationStorage) Get(ctx context.Context, id string) (*entity.Registration, error) {
	var registration entity.Registration
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&registration).Error
	return &registration, err
}

// GetByEventID returns every registration of an event, oldest first.
func (s *RegistrationStorage) GetByEventID(ctx context.Context, eventID string) ([]entity.Registration, error) {
	var registrations []entity.Registration
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&registrations).Error
	return registrations, err
}
