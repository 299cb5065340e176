package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"
	"gorm.io/gorm"

	"github.com/hopehouse/reminders/internal/adapters/config"
	"github.com/hopehouse/reminders/internal/adapters/controller/http/handlers/cron"
	"github.com/hopehouse/reminders/internal/adapters/controller/http/handlers/health"
	"github.com/hopehouse/reminders/internal/adapters/controller/http/handlers/reminders"
	"github.com/hopehouse/reminders/internal/adapters/controller/http/setup"
	"github.com/hopehouse/reminders/internal/adapters/controller/jobs"
	"github.com/hopehouse/reminders/internal/adapters/controller/scheduler"
	"github.com/hopehouse/reminders/internal/adapters/database/postgres"
	"github.com/hopehouse/reminders/internal/adapters/database/redis"
	"github.com/hopehouse/reminders/internal/domain/service"
	"github.com/hopehouse/reminders/pkg/logger"
	"github.com/hopehouse/reminders/pkg/logger/types"
	"github.com/hopehouse/reminders/pkg/qrcode"
)

const shutdownTimeout = 30 * time.Second

type Server struct {
	Engine    *gin.Engine
	Scheduler *scheduler.Scheduler
	DB        *gorm.DB
	Redis     *redis.Client
	Settings  config.Settings
	Logger    *types.Logger
}

func New(cfg *config.Config) (*Server, error) {
	serverLogger, err := logger.Named("server")
	if err != nil {
		return nil, err
	}
	named := func(name string) *types.Logger {
		l, errNamed := logger.Named(name)
		if errNamed != nil {
			return serverLogger
		}
		return l
	}

	settings := cfg.Settings

	reminderStorage := postgres.NewReminderStorage(cfg.Database)
	eventStorage := postgres.NewEventStorage(cfg.Database)
	registrationStorage := postgres.NewRegistrationStorage(cfg.Database)
	retentionStorage := postgres.NewRetentionStorage(cfg.Database)

	var limiter *rate.Limiter
	if settings.Dispatch.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(settings.Dispatch.SendRate), settings.Dispatch.SendBurst)
	}

	content := service.NewContentBuilder(settings.Reminders.SiteName, settings.Reminders.SiteURL, settings.Location)
	if settings.Reminders.QRCode {
		qr := qrcode.Default
		qr.LogoPath = settings.Reminders.QRLogoPath
		content.WithQRCode(qr)
	}

	reminderService := service.NewReminderService(named("reminders"), settings.Location, reminderStorage, eventStorage, registrationStorage)
	dispatchService := service.NewDispatchService(
		named("dispatch"),
		reminderStorage,
		eventStorage,
		registrationStorage,
		cfg.Mailer,
		content,
		service.DispatchOptions{
			MaxAttempts:        settings.Dispatch.MaxAttempts,
			SendTimeout:        settings.Dispatch.SendTimeout,
			ClaimLease:         settings.Dispatch.ClaimLease,
			Limiter:            limiter,
			BroadcastRecipient: settings.Reminders.BroadcastRecipient,
			Location:           settings.Location,
		},
	)
	cleanupService := service.NewCleanupService(named("cleanup"), retentionStorage, settings.Cleanup.TestimonialAge, settings.Cleanup.PrayerAge)

	checks := map[string]health.Check{
		"database": func(ctx context.Context) error {
			sqlDB, errDB := cfg.Database.DB()
			if errDB != nil {
				return errDB
			}
			return sqlDB.PingContext(ctx)
		},
	}

	var runner *jobs.Runner
	if cfg.Redis != nil {
		runner = jobs.NewRunner(named("jobs"), dispatchService, cleanupService, cfg.Redis.Locks, settings.Dispatch.LockTTL)
		checks["redis"] = cfg.Redis.Ping
	} else {
		runner = jobs.NewRunner(named("jobs"), dispatchService, cleanupService, nil, settings.Dispatch.LockTTL)
	}

	httpLogger := named("http")
	engine := setup.Setup(setup.Handlers{
		Cron:      cron.New(runner, httpLogger),
		Reminders: reminders.New(reminderService, httpLogger),
		Health:    health.New(checks),
	}, settings.CronSecret, settings.Debug, httpLogger)

	sched := scheduler.New(runner, named("scheduler"), settings.Location, settings.Cron.JobTimeout)
	if err = sched.ScheduleReminders(settings.Cron.Reminders); err != nil {
		return nil, fmt.Errorf("invalid settings.cron.reminders: %w", err)
	}
	if err = sched.ScheduleCleanup(settings.Cron.Cleanup); err != nil {
		return nil, fmt.Errorf("invalid settings.cron.cleanup: %w", err)
	}

	return &Server{
		Engine:    engine,
		Scheduler: sched,
		DB:        cfg.Database,
		Redis:     cfg.Redis,
		Settings:  settings,
		Logger:    serverLogger,
	}, nil
}

// setupAlerts forwards log entries to the Telegram channel when enabled.
func (s *Server) setupAlerts() {
	if !s.Settings.Logging.LogToChannel {
		return
	}

	alertLogger, err := logger.Named("alert")
	if err != nil {
		s.Logger.Errorf("Failed to create alert logger: %v", err)
		return
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:   s.Settings.Logging.BotToken,
		Offline: true,
	})
	if err != nil {
		s.Logger.Errorf("Failed to create alert bot: %v", err)
		return
	}

	alertService := service.NewAlertService(bot, alertLogger)
	logger.SetLogHook(alertService.LogHook(
		s.Settings.Logging.ChannelID,
		zapcore.Level(s.Settings.Logging.ChannelLogLevel),
	))
}

// Start serves HTTP and runs the scheduler until SIGINT or SIGTERM.
func (s *Server) Start() error {
	s.setupAlerts()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Settings.HTTPPort),
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if s.Scheduler.Jobs() > 0 {
		s.Scheduler.Start()
		s.Logger.Infof("Scheduler started with %d jobs", s.Scheduler.Jobs())
	}

	var serveErr error
	select {
	case <-ctx.Done():
		s.Logger.Info("Shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.Scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.Logger.Errorf("HTTP server shutdown: %v", err)
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.Logger.Warnf("Failed to close redis: %v", err)
		}
	}
	if sqlDB, err := s.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.SetLogHook(nil)
	logger.Sync()

	return serveErr
}
