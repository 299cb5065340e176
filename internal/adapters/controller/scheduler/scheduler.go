package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hopehouse/reminders/internal/adapters/controller/jobs"
	"github.com/hopehouse/reminders/internal/domain/common/errorz"
	"github.com/hopehouse/reminders/internal/domain/dto"
	"github.com/hopehouse/reminders/pkg/logger/types"
)

const DefaultJobTimeout = 5 * time.Minute

type jobRunner interface {
	ProcessReminders(ctx context.Context) (dto.DispatchSummary, error)
	CleanupOldContent(ctx context.Context) (dto.CleanupSummary, error)
}

// Scheduler runs the batch jobs in-process for deployments without an external cron.
type Scheduler struct {
	cron       *cron.Cron
	runner     jobRunner
	jobTimeout time.Duration
	logger     *types.Logger
}

func New(runner jobRunner, logger *types.Logger, location *time.Location, jobTimeout time.Duration) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}
	cronLogger := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner:     runner,
		jobTimeout: jobTimeout,
		logger:     logger,
	}
}

// ScheduleReminders runs ProcessReminders on spec. An empty spec schedules nothing.
func (s *Scheduler) ScheduleReminders(spec string) error {
	return s.add(jobs.JobProcessReminders, spec, func(ctx context.Context) error {
		_, err := s.runner.ProcessReminders(ctx)
		return err
	})
}

// ScheduleCleanup runs CleanupOldContent on spec. An empty spec schedules nothing.
func (s *Scheduler) ScheduleCleanup(spec string) error {
	return s.add(jobs.JobCleanup, spec, func(ctx context.Context) error {
		_, err := s.runner.CleanupOldContent(ctx)
		return err
	})
}

func (s *Scheduler) add(job, spec string, fn func(ctx context.Context) error) error {
	if spec == "" {
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			if errors.Is(err, errorz.ErrJobInProgress) {
				s.logger.Infof("Scheduled %s skipped: %v", job, err)
				return
			}
			s.logger.Errorf("Scheduled %s failed: %v", job, err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q for %s: %w", spec, job, err)
	}
	s.logger.Infof("Scheduled %s (%s)", job, spec)
	return nil
}

// Jobs returns how many jobs are scheduled.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stopped before running jobs finished")
	}
}

type cronLogger struct {
	logger *types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
