package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hopehouse/reminders/internal/domain/entity"
	"gorm.io/gorm"
)

type ReminderStorage struct {
	db *gorm.DB
}

func NewReminderStorage(db *gorm.DB) *ReminderStorage {
	return &ReminderStorage{
		db: db,
	}
}

// Create inserts a pending reminder. A concurrent insert of the same
// (event, registration, offset) fails with gorm.ErrDuplicatedKey when the
// connection was opened with TranslateError.
func (s *ReminderStorage) Create(ctx context.Context, reminder *entity.Reminder) error {
	reminder.ScheduledFor = reminder.ScheduledFor.UTC()
	return s.db.WithContext(ctx).Create(reminder).Error
}

// FindPending returns the pending reminder for the key, or gorm.ErrRecordNotFound.
func (s *ReminderStorage) FindPending(ctx context.Context, eventID string, registrationID *string, offset entity.ReminderOffset) (*entity.Reminder, error) {
	var reminder entity.Reminder
	query := s.db.WithContext(ctx).
		Where("event_id = ? AND offset_label = ? AND status = ?", eventID, offset, entity.ReminderStatusPending)
	if registrationID == nil {
		query = query.Where("registration_id IS NULL")
	} else {
		query = query.Where("registration_id = ?", *registrationID)
	}
	err := query.First(&reminder).Error
	return &reminder, err
}

// FindDue returns pending reminders scheduled at or before now, earliest first.
func (s *ReminderStorage) FindDue(ctx context.Context, now time.Time) ([]entity.Reminder, error) {
	var reminders []entity.Reminder
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", entity.ReminderStatusPending, now.UTC()).
		Order("scheduled_for ASC").
		Order("id ASC").
		Find(&reminders).Error
	return reminders, err
}

// Claim takes the lease on a pending reminder until the given instant.
// attempts is the attempt_count the caller read; the claim fails when the row
// is no longer pending, another lease is live, or another invocation has
// recorded an attempt since.
func (s *ReminderStorage) Claim(ctx context.Context, id, token string, attempts int, now, until time.Time) (bool, error) {
	now = now.UTC()
	res := s.db.WithContext(ctx).
		Model(&entity.Reminder{}).
		Where("id = ? AND status = ? AND attempt_count = ?", id, entity.ReminderStatusPending, attempts).
		Where("(claimed_until IS NULL OR claimed_until <= ?)", now).
		Updates(map[string]interface{}{
			"claim_token":   token,
			"claimed_until": until.UTC(),
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Complete applies a transition to a reminder still held under token and
// releases the lease. It reports false when the lease was lost.
func (s *ReminderStorage) Complete(ctx context.Context, id, token string, transition entity.ReminderTransition) (bool, error) {
	if err := transition.Validate(); err != nil {
		return false, fmt.Errorf("reminder %s: %w", id, err)
	}

	attemptAt := transition.LastAttemptAt.UTC()
	values := map[string]interface{}{
		"status":          transition.Status,
		"last_attempt_at": attemptAt,
		"last_error":      transition.LastError,
		"claim_token":     nil,
		"claimed_until":   nil,
		"updated_at":      attemptAt,
	}
	if transition.FailedAttempt {
		values["attempt_count"] = gorm.Expr("attempt_count + 1")
	}

	res := s.db.WithContext(ctx).
		Model(&entity.Reminder{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, entity.ReminderStatusPending, token).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Cancel moves one reminder held under token to cancelled.
func (s *ReminderStorage) Cancel(ctx context.Context, id, token string, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&entity.Reminder{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, entity.ReminderStatusPending, token).
		Updates(map[string]interface{}{
			"status":        entity.ReminderStatusCancelled,
			"claim_token":   nil,
			"claimed_until": nil,
			"updated_at":    now.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelPending cancels the pending reminders of an event. With a nil
// registrationID every pending row of the event is cancelled, broadcast ones included.
func (s *ReminderStorage) CancelPending(ctx context.Context, eventID string, registrationID *string, now time.Time) (int64, error) {
	query := s.db.WithContext(ctx).
		Model(&entity.Reminder{}).
		Where("event_id = ? AND status = ?", eventID, entity.ReminderStatusPending)
	if registrationID != nil {
		query = query.Where("registration_id = ?", *registrationID)
	}
	res := query.Updates(map[string]interface{}{
		"status":        entity.ReminderStatusCancelled,
		"claim_token":   nil,
		"claimed_until": nil,
		"updated_at":    now.UTC(),
	})
	return res.RowsAffected, res.Error
}

// Stats counts reminders per status. Statuses with no rows are reported as zero.
func (s *ReminderStorage) Stats(ctx context.Context) (map[entity.ReminderStatus]int64, error) {
	var rows []struct {
		Status entity.ReminderStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&entity.Reminder{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[entity.ReminderStatus]int64, len(entity.ReminderStatuses))
	for _, status := range entity.ReminderStatuses {
		stats[status] = 0
	}
	for _, row := range rows {
		stats[row.Status] = row.Count
	}
	return stats, nil
}
