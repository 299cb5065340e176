package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/hopehouse/reminders/internal/domain/common/errorz"
	"github.com/hopehouse/reminders/internal/domain/dto"
	"github.com/hopehouse/reminders/internal/domain/entity"
	"github.com/hopehouse/reminders/pkg/logger/types"
	"github.com/hopehouse/reminders/pkg/mailer"
)

const (
	DefaultMaxAttempts = 3
	DefaultSendTimeout = 20 * time.Second
	DefaultClaimLease  = 2 * time.Minute
)

type dispatchReminderStorage interface {
	FindDue(ctx context.Context, now time.Time) ([]entity.Reminder, error)
	Claim(ctx context.Context, id, token string, attempts int, now, until time.Time) (bool, error)
	Complete(ctx context.Context, id, token string, transition entity.ReminderTransition) (bool, error)
	Cancel(ctx context.Context, id, token string, now time.Time) (bool, error)
}

type dispatchRegistrationStorage interface {
	Get(ctx context.Context, id string) (*entity.Registration, error)
}

type DispatchOptions struct {
	MaxAttempts int
	SendTimeout time.Duration
	// ClaimLease must exceed SendTimeout.
	ClaimLease         time.Duration
	Limiter            *rate.Limiter
	BroadcastRecipient string
	Location           *time.Location
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
)

type DispatchService struct {
	reminderStorage     dispatchReminderStorage
	eventStorage        eventStorage
	registrationStorage dispatchRegistrationStorage
	mailer              mailer.Mailer
	content             *ContentBuilder

	maxAttempts        int
	sendTimeout        time.Duration
	claimLease         time.Duration
	limiter            *rate.Limiter
	broadcastRecipient string
	location           *time.Location

	now    func() time.Time
	logger *types.Logger
}

func NewDispatchService(
	logger *types.Logger,
	reminderStorage dispatchReminderStorage,
	eventStorage eventStorage,
	registrationStorage dispatchRegistrationStorage,
	mail mailer.Mailer,
	content *ContentBuilder,
	opts DispatchOptions,
) *DispatchService {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.ClaimLease <= opts.SendTimeout {
		opts.ClaimLease = opts.SendTimeout + DefaultClaimLease
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &DispatchService{
		reminderStorage:     reminderStorage,
		eventStorage:        eventStorage,
		registrationStorage: registrationStorage,
		mailer:              mail,
		content:             content,
		maxAttempts:         opts.MaxAttempts,
		sendTimeout:         opts.SendTimeout,
		claimLease:          opts.ClaimLease,
		limiter:             opts.Limiter,
		broadcastRecipient:  opts.BroadcastRecipient,
		location:            opts.Location,
		now:                 time.Now,
		logger:              logger,
	}
}

// ProcessReminders sends every due pending reminder once.
//
// Records are handled one at a time. When ctx is cancelled between records the
// partial summary is returned together with errorz.ErrInterrupted; any storage
// failure aborts the batch with a *errorz.StorageError.
func (s *DispatchService) ProcessReminders(ctx context.Context) (dto.DispatchSummary, error) {
	var summary dto.DispatchSummary

	due, err := s.reminderStorage.FindDue(ctx, s.now().UTC())
	if err != nil {
		return summary, errorz.NewStorageError("find due reminders", err)
	}
	s.logger.Debugf("Found %d due reminders", len(due))

	for i := range due {
		if errCtx := ctx.Err(); errCtx != nil {
			s.logger.Warnf("Dispatch interrupted after %d of %d reminders", i, len(due))
			return summary, fmt.Errorf("%w: %w", errorz.ErrInterrupted, errCtx)
		}

		result, errProcess := s.process(ctx, due[i])
		if errProcess != nil {
			return summary, errProcess
		}

		switch result {
		case outcomeSent:
			summary.Sent++
		case outcomeFailed:
			summary.Failed++
		case outcomeSkipped:
			summary.Skipped++
		}
	}

	return summary, nil
}

func (s *DispatchService) process(ctx context.Context, reminder entity.Reminder) (outcome, error) {
	now := s.now().UTC()
	token := uuid.NewString()

	claimed, err := s.reminderStorage.Claim(ctx, reminder.ID, token, reminder.AttemptCount, now, now.Add(s.claimLease))
	if err != nil {
		return outcomeSkipped, errorz.NewStorageError("claim reminder", err)
	}
	if !claimed {
		s.logger.Debugf("Reminder claimed or attempted by another run (reminder_id=%s)", reminder.ID)
		return outcomeSkipped, nil
	}

	event, err := s.eventStorage.Get(ctx, reminder.EventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.cancel(ctx, reminder, token, "event no longer exists")
		}
		return outcomeSkipped, errorz.NewStorageError("get event", err)
	}

	start, err := event.StartInstant(s.location)
	if err != nil {
		return s.cancel(ctx, reminder, token, err.Error())
	}
	if !start.After(now) {
		return s.cancel(ctx, reminder, token, "event has already started")
	}

	to, toName := s.broadcastRecipient, ""
	if !reminder.IsBroadcast() {
		registration, errGet := s.registrationStorage.Get(ctx, *reminder.RegistrationID)
		if errGet != nil {
			if errors.Is(errGet, gorm.ErrRecordNotFound) {
				return s.cancel(ctx, reminder, token, "registration no longer exists")
			}
			return outcomeSkipped, errorz.NewStorageError("get registration", errGet)
		}
		if registration.EventID != event.ID {
			return s.cancel(ctx, reminder, token, "registration moved to another event")
		}
		to, toName = registration.Email, registration.Name
	}
	if to == "" {
		return s.cancel(ctx, reminder, token, "no recipient address")
	}

	email, err := s.content.Build(reminder, *event, start, to, toName, now)
	if err != nil {
		return s.fail(ctx, reminder, token, now, err)
	}

	if s.limiter != nil {
		if err = s.limiter.Wait(ctx); err != nil {
			return outcomeSkipped, fmt.Errorf("%w: %w", errorz.ErrInterrupted, err)
		}
	}

	if err = s.send(ctx, reminder, email); err != nil {
		return s.fail(ctx, reminder, token, now, err)
	}

	ok, err := s.reminderStorage.Complete(context.WithoutCancel(ctx), reminder.ID, token, entity.ReminderTransition{
		Status:        entity.ReminderStatusSent,
		LastAttemptAt: now,
	})
	if err != nil {
		return outcomeSent, errorz.NewStorageError("complete reminder", err)
	}
	if !ok {
		s.logger.Errorf("Reminder sent but %v (reminder_id=%s)", errorz.ErrLeaseLost, reminder.ID)
	}

	s.logger.Infof("Sent %s reminder (reminder_id=%s, event_id=%s, to=%s)", reminder.OffsetLabel, reminder.ID, event.ID, to)
	return outcomeSent, nil
}

// send performs one delivery attempt bounded by the send timeout.
func (s *DispatchService) send(ctx context.Context, reminder entity.Reminder, email mailer.Email) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	if err := s.mailer.Send(sendCtx, email); err != nil {
		return &errorz.TransientDeliveryError{ReminderID: reminder.ID, Err: err}
	}
	return nil
}

// fail records a failed attempt. The reminder stays pending until it has
// failed more than maxAttempts times. The claim matched reminder.AttemptCount,
// so attempts is the count the storage increment produces.
func (s *DispatchService) fail(ctx context.Context, reminder entity.Reminder, token string, now time.Time, cause error) (outcome, error) {
	attempts := reminder.AttemptCount + 1
	status := entity.ReminderStatusPending
	if attempts > s.maxAttempts {
		status = entity.ReminderStatusFailed
	}
	message := cause.Error()

	ok, err := s.reminderStorage.Complete(context.WithoutCancel(ctx), reminder.ID, token, entity.ReminderTransition{
		Status:        status,
		FailedAttempt: true,
		LastAttemptAt: now,
		LastError:     &message,
	})
	if err != nil {
		return outcomeFailed, errorz.NewStorageError("record failed attempt", err)
	}
	if !ok {
		s.logger.Warnf("Failed attempt not recorded, %v (reminder_id=%s)", errorz.ErrLeaseLost, reminder.ID)
	}

	if status == entity.ReminderStatusFailed {
		s.logger.Errorf("Reminder failed permanently after %d attempts (reminder_id=%s): %v", attempts, reminder.ID, cause)
	} else {
		s.logger.Warnf("Reminder attempt %d failed (reminder_id=%s): %v", attempts, reminder.ID, cause)
	}
	return outcomeFailed, nil
}

func (s *DispatchService) cancel(ctx context.Context, reminder entity.Reminder, token, reason string) (outcome, error) {
	if _, err := s.reminderStorage.Cancel(context.WithoutCancel(ctx), reminder.ID, token, s.now()); err != nil {
		return outcomeSkipped, errorz.NewStorageError("cancel reminder", err)
	}
	s.logger.Infof("Cancelled reminder (reminder_id=%s, event_id=%s): %s", reminder.ID, reminder.EventID, reason)
	return outcomeSkipped, nil
}
