package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/hopehouse/reminders/internal/domain/common/errorz"
	"github.com/hopehouse/reminders/internal/domain/dto"
	"github.com/hopehouse/reminders/internal/domain/entity"
	"github.com/hopehouse/reminders/internal/domain/utils/validator"
	"github.com/hopehouse/reminders/pkg/logger/types"
)

type reminderStorage interface {
	Create(ctx context.Context, reminder *entity.Reminder) error
	FindPending(ctx context.Context, eventID string, registrationID *string, offset entity.ReminderOffset) (*entity.Reminder, error)
	CancelPending(ctx context.Context, eventID string, registrationID *string, now time.Time) (int64, error)
	Stats(ctx context.Context) (map[entity.ReminderStatus]int64, error)
}

type eventStorage interface {
	Get(ctx context.Context, id string) (*entity.Event, error)
}

type registrationStorage interface {
	Get(ctx context.Context, id string) (*entity.Registration, error)
	GetByEventID(ctx context.Context, eventID string) ([]entity.Registration, error)
}

type ReminderService struct {
	reminderStorage     reminderStorage
	eventStorage        eventStorage
	registrationStorage registrationStorage

	location *time.Location
	now      func() time.Time
	logger   *types.Logger
}

func NewReminderService(
	logger *types.Logger,
	location *time.Location,
	reminderStorage reminderStorage,
	eventStorage eventStorage,
	registrationStorage registrationStorage,
) *ReminderService {
	if location == nil {
		location = time.UTC
	}
	return &ReminderService{
		reminderStorage:     reminderStorage,
		eventStorage:        eventStorage,
		registrationStorage: registrationStorage,
		location:            location,
		now:                 time.Now,
		logger:              logger,
	}
}

// CreateRemindersForRegistration schedules the reminders of one registrant.
//
// Offsets whose fire time is not strictly in the future are skipped. Calling it
// again returns the already pending records instead of creating duplicates.
func (s *ReminderService) CreateRemindersForRegistration(ctx context.Context, eventID, registrationID string) ([]entity.Reminder, error) {
	if err := validator.ID("eventId", eventID); err != nil {
		return nil, err
	}
	if err := validator.ID("registrationId", registrationID); err != nil {
		return nil, err
	}

	event, start, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	registration, err := s.registrationStorage.Get(ctx, registrationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &errorz.ValidationError{Field: "registrationId", Reason: "registration not found", Err: errorz.ErrNotFound}
		}
		return nil, errorz.NewStorageError("get registration", err)
	}
	if registration.EventID != event.ID {
		return nil, errorz.NewValidationError("registrationId", "registration does not belong to the event")
	}
	if err = validator.Registration(*registration); err != nil {
		return nil, err
	}

	return s.schedule(ctx, event.ID, &registration.ID, start)
}

// CreateRemindersForEvent schedules broadcast reminders, delivered to the
// configured broadcast mailbox instead of a registrant.
func (s *ReminderService) CreateRemindersForEvent(ctx context.Context, eventID string) ([]entity.Reminder, error) {
	if err := validator.ID("eventId", eventID); err != nil {
		return nil, err
	}

	event, start, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	return s.schedule(ctx, event.ID, nil, start)
}

// ScheduleEvent schedules reminders for every registration of an event.
// Registrations without a usable e-mail address are logged and skipped.
func (s *ReminderService) ScheduleEvent(ctx context.Context, eventID string) ([]entity.Reminder, error) {
	if err := validator.ID("eventId", eventID); err != nil {
		return nil, err
	}

	event, start, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	registrations, err := s.registrationStorage.GetByEventID(ctx, event.ID)
	if err != nil {
		return nil, errorz.NewStorageError("get registrations", err)
	}

	var reminders []entity.Reminder
	for i := range registrations {
		registration := registrations[i]
		if err = validator.Registration(registration); err != nil {
			s.logger.Warnf("skipping registration (registration_id=%s, event_id=%s): %v", registration.ID, event.ID, err)
			continue
		}

		created, errSchedule := s.schedule(ctx, event.ID, &registration.ID, start)
		if errSchedule != nil {
			return nil, errSchedule
		}
		reminders = append(reminders, created...)
	}

	s.logger.Infof("Scheduled %d reminders for %d registrations (event_id=%s)", len(reminders), len(registrations), event.ID)
	return reminders, nil
}

// CancelForRegistration cancels the pending reminders of one registrant.
func (s *ReminderService) CancelForRegistration(ctx context.Context, eventID, registrationID string) (int64, error) {
	if err := validator.ID("eventId", eventID); err != nil {
		return 0, err
	}
	if err := validator.ID("registrationId", registrationID); err != nil {
		return 0, err
	}

	n, err := s.reminderStorage.CancelPending(ctx, eventID, &registrationID, s.now())
	if err != nil {
		return 0, errorz.NewStorageError("cancel reminders", err)
	}
	s.logger.Infof("Cancelled %d reminders (event_id=%s, registration_id=%s)", n, eventID, registrationID)
	return n, nil
}

// CancelForEvent cancels every pending reminder of an event.
func (s *ReminderService) CancelForEvent(ctx context.Context, eventID string) (int64, error) {
	if err := validator.ID("eventId", eventID); err != nil {
		return 0, err
	}

	n, err := s.reminderStorage.CancelPending(ctx, eventID, nil, s.now())
	if err != nil {
		return 0, errorz.NewStorageError("cancel reminders", err)
	}
	s.logger.Infof("Cancelled %d reminders (event_id=%s)", n, eventID)
	return n, nil
}

func (s *ReminderService) Stats(ctx context.Context) (dto.ReminderStats, error) {
	stats, err := s.reminderStorage.Stats(ctx)
	if err != nil {
		return nil, errorz.NewStorageError("reminder stats", err)
	}
	return stats, nil
}

func (s *ReminderService) loadEvent(ctx context.Context, eventID string) (*entity.Event, time.Time, error) {
	event, err := s.eventStorage.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, time.Time{}, &errorz.ValidationError{Field: "eventId", Reason: "event not found", Err: errorz.ErrNotFound}
		}
		return nil, time.Time{}, errorz.NewStorageError("get event", err)
	}

	start, err := event.StartInstant(s.location)
	if err != nil {
		return nil, time.Time{}, &errorz.ValidationError{Field: "event", Reason: err.Error(), Err: err}
	}
	return event, start, nil
}

func (s *ReminderService) schedule(ctx context.Context, eventID string, registrationID *string, start time.Time) ([]entity.Reminder, error) {
	now := s.now().UTC()

	reminders := make([]entity.Reminder, 0, len(entity.ReminderOffsets))
	for _, offset := range entity.ReminderOffsets {
		fireAt := offset.FireTime(start).UTC()
		if !fireAt.After(now) {
			s.logger.Debugf("Skipping elapsed %s reminder (event_id=%s, fire_at=%s)", offset, eventID, fireAt.Format(time.RFC3339))
			continue
		}

		reminder, err := s.ensurePending(ctx, eventID, registrationID, offset, fireAt)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, *reminder)
	}
	return reminders, nil
}

// ensurePending returns the pending reminder for the key, creating it when absent.
func (s *ReminderService) ensurePending(ctx context.Context, eventID string, registrationID *string, offset entity.ReminderOffset, fireAt time.Time) (*entity.Reminder, error) {
	existing, err := s.reminderStorage.FindPending(ctx, eventID, registrationID, offset)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorz.NewStorageError("find pending reminder", err)
	}

	reminder := &entity.Reminder{
		EventID:        eventID,
		RegistrationID: registrationID,
		OffsetLabel:    offset,
		ScheduledFor:   fireAt,
		Status:         entity.ReminderStatusPending,
	}
	err = s.reminderStorage.Create(ctx, reminder)
	if err == nil {
		s.logger.Infof("Scheduled %s reminder (reminder_id=%s, event_id=%s, scheduled_for=%s)", offset, reminder.ID, eventID, fireAt.Format(time.RFC3339))
		return reminder, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, errorz.NewStorageError("create reminder", err)
	}

	// Lost the race against a concurrent insert.
	existing, err = s.reminderStorage.FindPending(ctx, eventID, registrationID, offset)
	if err != nil {
		return nil, errorz.NewStorageError("find pending reminder", err)
	}
	return existing, nil
}
