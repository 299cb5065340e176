package service

import (
	"context"
	"time"

	"github.com/hopehouse/reminders/internal/domain/common/errorz"
	"github.com/hopehouse/reminders/internal/domain/dto"
	"github.com/hopehouse/reminders/pkg/logger/types"
)

const (
	DefaultTestimonialAge = 14 * 24 * time.Hour
	DefaultPrayerAge      = 5 * 24 * time.Hour
)

type retentionStorage interface {
	DeleteTestimonialsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeletePrayersBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type CleanupService struct {
	retentionStorage retentionStorage

	testimonialAge time.Duration
	prayerAge      time.Duration

	now    func() time.Time
	logger *types.Logger
}

func NewCleanupService(logger *types.Logger, retentionStorage retentionStorage, testimonialAge, prayerAge time.Duration) *CleanupService {
	if testimonialAge <= 0 {
		testimonialAge = DefaultTestimonialAge
	}
	if prayerAge <= 0 {
		prayerAge = DefaultPrayerAge
	}
	return &CleanupService{
		retentionStorage: retentionStorage,
		testimonialAge:   testimonialAge,
		prayerAge:        prayerAge,
		now:              time.Now,
		logger:           logger,
	}
}

// CleanupOldContent deletes expired testimonials, then prayer requests that
// are past their age and were prayed for at least once.
//
// The two categories are not deleted atomically: if the prayer step fails the
// testimonials stay deleted and the error is returned.
func (s *CleanupService) CleanupOldContent(ctx context.Context) (dto.CleanupSummary, error) {
	var summary dto.CleanupSummary
	now := s.now().UTC()

	testimonials, err := s.retentionStorage.DeleteTestimonialsBefore(ctx, now.Add(-s.testimonialAge))
	if err != nil {
		return summary, errorz.NewStorageError("delete testimonials", err)
	}
	summary.DeletedTestimonials = testimonials

	prayers, err := s.retentionStorage.DeletePrayersBefore(ctx, now.Add(-s.prayerAge))
	if err != nil {
		return summary, errorz.NewStorageError("delete prayer requests", err)
	}
	summary.DeletedPrayers = prayers

	s.logger.Infof("Cleanup removed %d testimonials and %d prayer requests", testimonials, prayers)
	return summary, nil
}
