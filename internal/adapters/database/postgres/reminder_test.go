package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hopehouse/reminders/internal/domain/entity"
)

const (
	testEventID        = "6f1c7c36-8a53-4c5e-9f0e-2f7a4c1d9b10"
	testRegistrationID = "a3d2e1f0-1b2c-4d5e-8f90-123456789abc"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func loadReminder(t *testing.T, s *ReminderStorage, id string) entity.Reminder {
	t.Helper()
	var r entity.Reminder
	require.NoError(t, s.db.Where("id = ?", id).First(&r).Error)
	return r
}

func newReminder(offset entity.ReminderOffset, scheduledFor time.Time) *entity.Reminder {
	return &entity.Reminder{
		EventID:        testEventID,
		RegistrationID: ptr(testRegistrationID),
		OffsetLabel:    offset,
		ScheduledFor:   scheduledFor,
	}
}

func TestReminderStorageCreateAndFindPending(t *testing.T) {
	ctx := context.Background()
	s := NewReminderStorage(newTestDB(t))

	r := newReminder(entity.ReminderOffsetDay, base)
	require.NoError(t, s.Create(ctx, r))
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, entity.ReminderStatusPending, r.Status)

	found, err := s.FindPending(ctx, testEventID, ptr(testRegistrationID), entity.ReminderOffsetDay)
	require.NoError(t, err)
	assert.Equal(t, r.ID, found.ID)
	assert.True(t, base.Equal(found.ScheduledFor))

	_, err = s.FindPending(ctx, testEventID, ptr(testRegistrationID), entity.ReminderOffsetHour)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = s.FindPending(ctx, testEventID, nil, entity.ReminderOffsetDay)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReminderStorageRejectsDuplicatePending(t *testing.T) {
	ctx := context.Background()
	s := NewReminderStorage(newTestDB(t))

	require.NoError(t, s.Create(ctx, newReminder(entity.ReminderOffsetDay, base)))

	err := s.Create(ctx, newReminder(entity.ReminderOffsetDay, base))
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// A cancelled row no longer occupies the pending slot.
	n, err := s.CancelPending(ctx, testEventID, ptr(testRegistrationID), base)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, s.Create(ctx, newReminder(entity.ReminderOffsetDay, base)))
}

func TestReminderStorageFindDue(t *testing.T) {
	ctx := context.Background()
	s := NewReminderStorage(newTestDB(t))

	later := newReminder(entity.ReminderOffsetHour, base.Add(-time.Minute))
	earlier := newReminder(entity.ReminderOffsetDay, base.Add(-time.Hour))
	boundary := &entity.Reminder{EventID: testEventID, OffsetLabel: entity.ReminderOffsetDay, ScheduledFor: base}
	future := &entity.Reminder{EventID: testEventID, OffsetLabel: entity.ReminderOffsetHour, ScheduledFor: base.Add(time.Second)}
	for _, r := range []*entity.Reminder{later, earlier, boundary, future} {
		require.NoError(t, s.Create(ctx, r))
	}

	due, err := s.FindDue(ctx, base)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, earlier.ID, due[0].ID)
	assert.Equal(t, later.ID, due[1].ID)
	assert.Equal(t, boundary.ID, due[2].ID)
	assert.Nil(t, due[2].RegistrationID)
}

func TestReminderStorageClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewReminderStorage(newTestDB(t))

	r := newReminder(entity.ReminderOffsetDay, base)
	require.NoError(t, s.Create(ctx, r))

	ok, err := s.Claim(ctx, r.ID, "first", 0, base, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, r.ID, "second", 0, base.Add(time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "live lease must not be taken over")

	ok, err = s.Claim(ctx, r.ID, "second", 0, base.Add(2*time.Minute), base.Add(4*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "expired lease is reclaimable")

	ok, err = s.Complete(ctx, r.ID, "first", entity.ReminderTransition{
		Status:        entity.ReminderStatusSent,
		LastAttemptAt: base.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, ok, "stale token must not complete")

	ok, err = s.Complete(ctx, r.ID, "second", entity.ReminderTransition{
		Status:        entity.ReminderStatusSent,
		LastAttemptAt: base.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	stored := loadReminder(t, s, r.ID)
	assert.Equal(t, entity.ReminderStatusSent, stored.Status)
	assert.Nil(t, stored.ClaimToken)
	assert.Nil(t, stored.ClaimedUntil)
	require.NotNil(t, stored.LastAttemptAt)
	assert.True(t, base.Add(2*time.Minute).Equal(*stored.LastAttemptAt))

	ok, err = s.Claim(ctx, r.ID, "third", 0, base.Add(time.Hour), base.Add(time.Hour+time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "sent reminders cannot be claimed")
}

func TestReminderStorageConcurrentClaim(t *testing.T) {
	ctx := context.Background()
	s := NewReminderStorage(newTestDB(t))

	r := newReminder(entity.ReminderOffsetDay, base)
	require.NoError(t, s.Create(ctx, r))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for _, token := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			ok, err := s.Claim(ctx, r.ID, token, 0, base, base.Add(time.Minute))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(token)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestReminderStorageFailedAttemptReleasesLease(t *testing.T) {
	ctx := context.Background()
	s := NewReminderStorage(newTestDB(t))

	r := newReminder(entity.ReminderOffsetHour, base)
	require.NoError(t, s.Create(ctx, r))

	ok, err := s.Claim(ctx, r.ID, "tok", 0, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Complete(ctx, r.ID, "tok", entity.ReminderTransition{
		Status:        entity.ReminderStatusPending,
		FailedAttempt: true,
		LastAttemptAt: base,
		LastError:     ptr("dial tcp: i/o timeout"),
	})
	require.NoError(t, err)
	require.True(t, ok)

	stored := loadReminder(t, s, r.ID)
	assert.Equal(t, entity.ReminderStatusPending, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "dial tcp: i/o timeout", *stored.LastError)

	ok, err = s.Claim(ctx, r.ID, "stale", 0, base.Add(time.Second), base.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "a claim from before the failed attempt is stale")

	ok, err = s.Claim(ctx, r.ID, "next", 1, base.Add(time.Second), base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "released lease is immediately claimable")
}

func TestReminderStorageCancel(t *testing.T) {
	ctx := context.Background()
	s := NewReminderStorage(newTestDB(t))

	mine := newReminder(entity.ReminderOffsetDay, base)
	other := &entity.Reminder{EventID: testEventID, RegistrationID: ptr("9e8d7c6b-5a49-4837-a261-504f3e2d1c0b"), OffsetLabel: entity.ReminderOffsetDay, ScheduledFor: base}
	broadcast := &entity.Reminder{EventID: testEventID, OffsetLabel: entity.ReminderOffsetHour, ScheduledFor: base}
	for _, r := range []*entity.Reminder{mine, other, broadcast} {
		require.NoError(t, s.Create(ctx, r))
	}

	n, err := s.CancelPending(ctx, testEventID, ptr(testRegistrationID), base)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.CancelPending(ctx, testEventID, nil, base)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.CancelPending(ctx, testEventID, nil, base)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestReminderStorageCancelClaimed(t *testing.T) {
	ctx := context.Background()
	s := NewReminderStorage(newTestDB(t))

	r := newReminder(entity.ReminderOffsetDay, base)
	require.NoError(t, s.Create(ctx, r))

	ok, err := s.Cancel(ctx, r.ID, "tok", base)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Claim(ctx, r.ID, "tok", 0, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Cancel(ctx, r.ID, "tok", base)
	require.NoError(t, err)
	assert.True(t, ok)

	stored := loadReminder(t, s, r.ID)
	assert.Equal(t, entity.ReminderStatusCancelled, stored.Status)
}

func TestReminderStorageStats(t *testing.T) {
	ctx := context.Background()
	s := NewReminderStorage(newTestDB(t))

	require.NoError(t, s.Create(ctx, newReminder(entity.ReminderOffsetDay, base)))
	require.NoError(t, s.Create(ctx, newReminder(entity.ReminderOffsetHour, base)))
	_, err := s.CancelPending(ctx, testEventID, nil, base)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, newReminder(entity.ReminderOffsetDay, base)))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[entity.ReminderStatus]int64{
		entity.ReminderStatusPending:   1,
		entity.ReminderStatusSent:      0,
		entity.ReminderStatusFailed:    0,
		entity.ReminderStatusCancelled: 2,
	}, stats)
}

func TestReminderStorageFailedAttemptsAccumulate(t *testing.T) {
	ctx := context.Background()
	s := NewReminderStorage(newTestDB(t))

	r := newReminder(entity.ReminderOffsetDay, base)
	require.NoError(t, s.Create(ctx, r))

	for attempt := 0; attempt < 3; attempt++ {
		token := fmt.Sprintf("run-%d", attempt)
		ok, err := s.Claim(ctx, r.ID, token, attempt, base, base.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok, "attempt %d", attempt)

		ok, err = s.Complete(ctx, r.ID, token, entity.ReminderTransition{
			Status:        entity.ReminderStatusPending,
			FailedAttempt: true,
			LastAttemptAt: base,
			LastError:     ptr("smtp: 451 try again later"),
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	assert.Equal(t, 3, loadReminder(t, s, r.ID).AttemptCount)

	ok, err := s.Claim(ctx, r.ID, "last", 3, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Complete(ctx, r.ID, "last", entity.ReminderTransition{
		Status:        entity.ReminderStatusFailed,
		FailedAttempt: true,
		LastAttemptAt: base,
	})
	require.NoError(t, err)
	require.True(t, ok)

	stored := loadReminder(t, s, r.ID)
	assert.Equal(t, entity.ReminderStatusFailed, stored.Status)
	assert.Equal(t, 4, stored.AttemptCount)
}

func TestReminderStorageCompleteRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	s := NewReminderStorage(newTestDB(t))

	r := newReminder(entity.ReminderOffsetDay, base)
	require.NoError(t, s.Create(ctx, r))

	ok, err := s.Claim(ctx, r.ID, "tok", 0, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Complete(ctx, r.ID, "tok", entity.ReminderTransition{
		Status:        entity.ReminderStatusPending,
		LastAttemptAt: base,
	})
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
	assert.False(t, ok)

	stored := loadReminder(t, s, r.ID)
	assert.Equal(t, entity.ReminderStatusPending, stored.Status)
	require.NotNil(t, stored.ClaimToken, "rejected transition leaves the lease in place")
	assert.Equal(t, "tok", *stored.ClaimToken)
}
