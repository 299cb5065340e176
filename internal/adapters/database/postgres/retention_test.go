package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hopehouse/reminders/internal/domain/entity"
)

func TestDeleteTestimonialsBefore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewRetentionStorage(db)

	cutoff := base.Add(-14 * 24 * time.Hour)
	testimonials := []entity.Testimonial{
		{Name: "exactly at cutoff", Content: "kept", CreatedAt: cutoff},
		{Name: "one second older", Content: "deleted", CreatedAt: cutoff.Add(-time.Second)},
		{Name: "recent", Content: "kept", CreatedAt: base.Add(-time.Hour)},
	}
	require.NoError(t, db.Create(&testimonials).Error)

	n, err := s.DeleteTestimonialsBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var names []string
	require.NoError(t, db.Model(&entity.Testimonial{}).Order("name").Pluck("name", &names).Error)
	assert.Equal(t, []string{"exactly at cutoff", "recent"}, names)
}

func TestDeletePrayersBefore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewRetentionStorage(db)

	cutoff := base.Add(-5 * 24 * time.Hour)
	prayedOld := entity.PrayerRequest{Name: "prayed old", Request: "r", CreatedAt: cutoff.Add(-time.Second)}
	unprayedOld := entity.PrayerRequest{Name: "unprayed old", Request: "r", CreatedAt: cutoff.Add(-48 * time.Hour)}
	prayedAtCutoff := entity.PrayerRequest{Name: "prayed at cutoff", Request: "r", CreatedAt: cutoff}
	prayedRecent := entity.PrayerRequest{Name: "prayed recent", Request: "r", CreatedAt: base}
	for _, p := range []*entity.PrayerRequest{&prayedOld, &unprayedOld, &prayedAtCutoff, &prayedRecent} {
		require.NoError(t, db.Create(p).Error)
	}
	logs := []entity.PrayerLog{
		{PrayerRequestID: prayedOld.ID},
		{PrayerRequestID: prayedOld.ID},
		{PrayerRequestID: prayedAtCutoff.ID},
		{PrayerRequestID: prayedRecent.ID},
	}
	require.NoError(t, db.Create(&logs).Error)

	n, err := s.DeletePrayersBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var names []string
	require.NoError(t, db.Model(&entity.PrayerRequest{}).Order("name").Pluck("name", &names).Error)
	assert.Equal(t, []string{"prayed at cutoff", "prayed recent", "unprayed old"}, names)

	var orphanLogs int64
	require.NoError(t, db.Model(&entity.PrayerLog{}).Where("prayer_request_id = ?", prayedOld.ID).Count(&orphanLogs).Error)
	assert.Zero(t, orphanLogs)

	var remainingLogs int64
	require.NoError(t, db.Model(&entity.PrayerLog{}).Count(&remainingLogs).Error)
	assert.EqualValues(t, 2, remainingLogs)

	n, err = s.DeletePrayersBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
}
