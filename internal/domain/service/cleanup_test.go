package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hopehouse/reminders/internal/domain/common/errorz"
	"github.com/hopehouse/reminders/internal/domain/dto"
	"github.com/hopehouse/reminders/pkg/logger"
)

type fakeRetention struct {
	testimonialCutoff time.Time
	prayerCutoff      time.Time
	calls             []string

	testimonials   int64
	prayers        int64
	errTestimonial error
	errPrayer      error
}

func (f *fakeRetention) DeleteTestimonialsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls = append(f.calls, "testimonials")
	f.testimonialCutoff = cutoff
	return f.testimonials, f.errTestimonial
}

func (f *fakeRetention) DeletePrayersBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls = append(f.calls, "prayers")
	f.prayerCutoff = cutoff
	return f.prayers, f.errPrayer
}

func newCleanupService(storage *fakeRetention) *CleanupService {
	s := NewCleanupService(logger.Nop("cleanup"), storage, 0, 0)
	s.now = func() time.Time { return now }
	return s
}

func TestCleanupOldContent(t *testing.T) {
	storage := &fakeRetention{testimonials: 3, prayers: 2}

	summary, err := newCleanupService(storage).CleanupOldContent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dto.CleanupSummary{DeletedTestimonials: 3, DeletedPrayers: 2}, summary)

	assert.Equal(t, []string{"testimonials", "prayers"}, storage.calls)
	assert.Equal(t, now.Add(-14*24*time.Hour), storage.testimonialCutoff)
	assert.Equal(t, now.Add(-5*24*time.Hour), storage.prayerCutoff)
}

func TestCleanupOldContentTestimonialError(t *testing.T) {
	storage := &fakeRetention{errTestimonial: errors.New("permission denied")}

	_, err := newCleanupService(storage).CleanupOldContent(context.Background())
	assert.True(t, errorz.IsStorage(err))
	assert.Equal(t, []string{"testimonials"}, storage.calls)
}

func TestCleanupOldContentPrayerErrorKeepsTestimonialCount(t *testing.T) {
	storage := &fakeRetention{testimonials: 4, errPrayer: errors.New("lock timeout")}

	summary, err := newCleanupService(storage).CleanupOldContent(context.Background())
	assert.True(t, errorz.IsStorage(err))
	assert.EqualValues(t, 4, summary.DeletedTestimonials)
	assert.Zero(t, summary.DeletedPrayers)
}

func TestCleanupCustomAges(t *testing.T) {
	storage := &fakeRetention{}
	s := NewCleanupService(logger.Nop("cleanup"), storage, 30*24*time.Hour, 7*24*time.Hour)
	s.now = func() time.Time { return now }

	_, err := s.CleanupOldContent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(-30*24*time.Hour), storage.testimonialCutoff)
	assert.Equal(t, now.Add(-7*24*time.Hour), storage.prayerCutoff)
}
