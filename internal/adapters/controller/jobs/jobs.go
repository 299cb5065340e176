package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hopehouse/reminders/internal/adapters/metrics"
	"github.com/hopehouse/reminders/internal/domain/common/errorz"
	"github.com/hopehouse/reminders/internal/domain/dto"
	"github.com/hopehouse/reminders/pkg/logger/types"
)

const (
	JobProcessReminders = "process-reminders"
	JobCleanup          = "cleanup"

	DefaultLockTTL = 10 * time.Minute
)

type reminderDispatcher interface {
	ProcessReminders(ctx context.Context) (dto.DispatchSummary, error)
}

type contentCleaner interface {
	CleanupOldContent(ctx context.Context) (dto.CleanupSummary, error)
}

type lockStorage interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, name, token string) (bool, error)
}

// Runner runs the batch jobs, one at a time per job across all instances
// when a lock storage is configured.
type Runner struct {
	dispatcher reminderDispatcher
	cleaner    contentCleaner
	locks      lockStorage
	lockTTL    time.Duration

	logger *types.Logger
}

// NewRunner creates a runner. locks may be nil, in which case concurrent runs
// rely on the per-reminder claims alone.
func NewRunner(logger *types.Logger, dispatcher reminderDispatcher, cleaner contentCleaner, locks lockStorage, lockTTL time.Duration) *Runner {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Runner{
		dispatcher: dispatcher,
		cleaner:    cleaner,
		locks:      locks,
		lockTTL:    lockTTL,
		logger:     logger,
	}
}

func (r *Runner) ProcessReminders(ctx context.Context) (dto.DispatchSummary, error) {
	var summary dto.DispatchSummary
	err := r.run(ctx, JobProcessReminders, func(ctx context.Context) error {
		var err error
		summary, err = r.dispatcher.ProcessReminders(ctx)

		metrics.RemindersProcessedTotal.WithLabelValues("sent").Add(float64(summary.Sent))
		metrics.RemindersProcessedTotal.WithLabelValues("failed").Add(float64(summary.Failed))
		metrics.RemindersProcessedTotal.WithLabelValues("skipped").Add(float64(summary.Skipped))
		if err == nil {
			r.logger.Infof("Processed reminders: sent=%d failed=%d skipped=%d", summary.Sent, summary.Failed, summary.Skipped)
		}
		return err
	})
	return summary, err
}

func (r *Runner) CleanupOldContent(ctx context.Context) (dto.CleanupSummary, error) {
	var summary dto.CleanupSummary
	err := r.run(ctx, JobCleanup, func(ctx context.Context) error {
		var err error
		summary, err = r.cleaner.CleanupOldContent(ctx)

		metrics.RetentionDeletedTotal.WithLabelValues("testimonials").Add(float64(summary.DeletedTestimonials))
		metrics.RetentionDeletedTotal.WithLabelValues("prayers").Add(float64(summary.DeletedPrayers))
		return err
	})
	return summary, err
}

func (r *Runner) run(ctx context.Context, job string, fn func(ctx context.Context) error) (err error) {
	start := time.Now()
	defer func() {
		metrics.JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
		metrics.JobRunsTotal.WithLabelValues(job, result(err)).Inc()
	}()

	if r.locks != nil {
		token, acquired, errLock := r.locks.Acquire(ctx, job, r.lockTTL)
		switch {
		case errLock != nil:
			// Claims still prevent double sends, so run without the lock.
			r.logger.Warnf("Running %s without lock: %v", job, errLock)
		case !acquired:
			r.logger.Infof("Skipping %s: %v", job, errorz.ErrJobInProgress)
			return errorz.ErrJobInProgress
		default:
			defer func() {
				if _, errRelease := r.locks.Release(context.WithoutCancel(ctx), job, token); errRelease != nil {
					r.logger.Warnf("Failed to release %s lock: %v", job, errRelease)
				}
			}()
		}
	}

	r.logger.Debugf("Running %s", job)
	if err = fn(ctx); err != nil {
		if errors.Is(err, errorz.ErrInterrupted) {
			r.logger.Warnf("Job %s interrupted: %v", job, err)
		} else {
			r.logger.Errorf("Job %s failed: %v", job, err)
		}
		return err
	}
	r.logger.Debugf("Finished %s in %s", job, time.Since(start))
	return nil
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errorz.ErrJobInProgress):
		return "busy"
	case errors.Is(err, errorz.ErrInterrupted):
		return "interrupted"
	default:
		return "error"
	}
}
