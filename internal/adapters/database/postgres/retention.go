package postgres

import (
	"context"
	"time"

	"github.com/hopehouse/reminders/internal/domain/entity"
	"gorm.io/gorm"
)

type RetentionStorage struct {
	db *gorm.DB
}

func NewRetentionStorage(db *gorm.DB) *RetentionStorage {
	return &RetentionStorage{
		db: db,
	}
}

// DeleteTestimonialsBefore deletes every testimonial created strictly before cutoff.
func (s *RetentionStorage) DeleteTestimonialsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff.UTC()).
		Delete(&entity.Testimonial{})
	return res.RowsAffected, res.Error
}

// DeletePrayersBefore deletes prayer requests created strictly before cutoff
// that have been prayed for at least once, together with their logs.
func (s *RetentionStorage) DeletePrayersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		err := tx.Model(&entity.PrayerRequest{}).
			Where("created_at < ?", cutoff.UTC()).
			Where("EXISTS (SELECT 1 FROM prayer_logs WHERE prayer_logs.prayer_request_id = prayer_requests.id)").
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err = tx.Where("prayer_request_id IN ?", ids).Delete(&entity.PrayerLog{}).Error; err != nil {
			return err
		}

		res := tx.Where("id IN ?", ids).Delete(&entity.PrayerRequest{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}
