package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	postgresStorage "github.com/hopehouse/reminders/internal/adapters/database/postgres"
	redisStorage "github.com/hopehouse/reminders/internal/adapters/database/redis"
	"github.com/hopehouse/reminders/internal/domain/utils/location"
	"github.com/hopehouse/reminders/internal/domain/utils/validator"
	"github.com/hopehouse/reminders/pkg/logger"
	"github.com/hopehouse/reminders/pkg/mailer"
)

const (
	MailProviderSMTP     = "smtp"
	MailProviderSendGrid = "sendgrid"
)

type Config struct {
	Database *gorm.DB
	// Redis is nil when service.redis.host is empty.
	Redis    *redisStorage.Client
	Mailer   mailer.Mailer
	Settings Settings
}

type Settings struct {
	Debug      bool
	Location   *time.Location
	HTTPPort   int
	CronSecret string

	Dispatch  DispatchSettings
	Cleanup   CleanupSettings
	Cron      CronSettings
	Reminders ReminderSettings
	Logging   LoggingSettings
}

type DispatchSettings struct {
	MaxAttempts int
	SendTimeout time.Duration
	ClaimLease  time.Duration
	// SendRate is mails per second, 0 disables limiting.
	SendRate  float64
	SendBurst int
	LockTTL   time.Duration
}

type CleanupSettings struct {
	TestimonialAge time.Duration
	PrayerAge      time.Duration
}

type CronSettings struct {
	Reminders  string
	Cleanup    string
	JobTimeout time.Duration
}

type ReminderSettings struct {
	BroadcastRecipient string
	SiteName           string
	SiteURL            string
	QRCode             bool
	QRLogoPath         string
}

type LoggingSettings struct {
	LogToChannel    bool
	ChannelID       int64
	ChannelLogLevel int
	BotToken        string
}

func setDefaults() {
	viper.SetDefault("service.http.port", 8080)
	viper.SetDefault("service.database.port", 5432)
	viper.SetDefault("service.database.sslmode", "disable")
	viper.SetDefault("service.database.max-open-conns", 10)
	viper.SetDefault("service.redis.port", 6379)
	viper.SetDefault("service.mail.provider", MailProviderSMTP)
	viper.SetDefault("service.mail.smtp.port", 587)

	viper.SetDefault("settings.timezone", "UTC")
	viper.SetDefault("settings.dispatch.max-attempts", 3)
	viper.SetDefault("settings.dispatch.send-timeout", "20s")
	viper.SetDefault("settings.dispatch.claim-lease", "2m")
	viper.SetDefault("settings.dispatch.send-rate", 0)
	viper.SetDefault("settings.dispatch.send-burst", 1)
	viper.SetDefault("settings.dispatch.lock-ttl", "10m")
	viper.SetDefault("settings.cleanup.testimonial-age", "336h")
	viper.SetDefault("settings.cleanup.prayer-age", "120h")
	viper.SetDefault("settings.cron.job-timeout", "5m")
	viper.SetDefault("settings.logging.channel-log-level", 2)

	viper.SetDefault("reminders.site-name", "Hope House")
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath(".")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(err)
		}
		log.Println("config.yaml not found, using defaults and environment")
	}
}

// LoadSettings reads and checks the settings from viper.
func LoadSettings() (Settings, error) {
	loc, err := location.Load(viper.GetString("settings.timezone"))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid settings.timezone: %w", err)
	}

	s := Settings{
		Debug:      viper.GetBool("settings.debug"),
		Location:   loc,
		HTTPPort:   viper.GetInt("service.http.port"),
		CronSecret: viper.GetString("service.cron.secret"),
		Dispatch: DispatchSettings{
			MaxAttempts: viper.GetInt("settings.dispatch.max-attempts"),
			SendTimeout: viper.GetDuration("settings.dispatch.send-timeout"),
			ClaimLease:  viper.GetDuration("settings.dispatch.claim-lease"),
			SendRate:    viper.GetFloat64("settings.dispatch.send-rate"),
			SendBurst:   viper.GetInt("settings.dispatch.send-burst"),
			LockTTL:     viper.GetDuration("settings.dispatch.lock-ttl"),
		},
		Cleanup: CleanupSettings{
			TestimonialAge: viper.GetDuration("settings.cleanup.testimonial-age"),
			PrayerAge:      viper.GetDuration("settings.cleanup.prayer-age"),
		},
		Cron: CronSettings{
			Reminders:  viper.GetString("settings.cron.reminders"),
			Cleanup:    viper.GetString("settings.cron.cleanup"),
			JobTimeout: viper.GetDuration("settings.cron.job-timeout"),
		},
		Reminders: ReminderSettings{
			BroadcastRecipient: viper.GetString("reminders.broadcast-recipient"),
			SiteName:           viper.GetString("reminders.site-name"),
			SiteURL:            viper.GetString("reminders.site-url"),
			QRCode:             viper.GetBool("reminders.qr-code.enabled"),
			QRLogoPath:         viper.GetString("reminders.qr-code.logo-path"),
		},
		Logging: LoggingSettings{
			LogToChannel:    viper.GetBool("settings.logging.log-to-channel"),
			ChannelID:       viper.GetInt64("settings.logging.channel-id"),
			ChannelLogLevel: viper.GetInt("settings.logging.channel-log-level"),
			BotToken:        viper.GetString("bot.token"),
		},
	}

	switch {
	case s.Dispatch.MaxAttempts < 1:
		return Settings{}, errors.New("settings.dispatch.max-attempts must be at least 1")
	case s.Dispatch.SendTimeout <= 0:
		return Settings{}, errors.New("settings.dispatch.send-timeout must be positive")
	case s.Dispatch.ClaimLease <= s.Dispatch.SendTimeout:
		return Settings{}, errors.New("settings.dispatch.claim-lease must exceed send-timeout")
	case s.Dispatch.SendRate < 0:
		return Settings{}, errors.New("settings.dispatch.send-rate must not be negative")
	case s.Dispatch.SendRate > 0 && s.Dispatch.SendBurst < 1:
		return Settings{}, errors.New("settings.dispatch.send-burst must be at least 1")
	case s.Cleanup.TestimonialAge <= 0 || s.Cleanup.PrayerAge <= 0:
		return Settings{}, errors.New("settings.cleanup ages must be positive")
	case s.Reminders.QRCode && s.Reminders.SiteURL == "":
		return Settings{}, errors.New("reminders.qr-code.enabled needs reminders.site-url")
	case s.Logging.LogToChannel && (s.Logging.BotToken == "" || s.Logging.ChannelID == 0):
		return Settings{}, errors.New("settings.logging.log-to-channel needs bot.token and settings.logging.channel-id")
	}
	if s.Reminders.BroadcastRecipient != "" {
		if err = validator.Email(s.Reminders.BroadcastRecipient); err != nil {
			return Settings{}, fmt.Errorf("reminders.broadcast-recipient: %w", err)
		}
	}
	if s.CronSecret == "" {
		log.Println("service.cron.secret is empty, every API request will be rejected")
	}
	return s, nil
}

// NewMailer builds the mail transport selected by service.mail.provider.
func NewMailer() (mailer.Mailer, error) {
	from := mailer.Sender{
		Email: viper.GetString("service.mail.from.email"),
		Name:  viper.GetString("service.mail.from.name"),
	}
	if from.Email == "" {
		return nil, errors.New("service.mail.from.email is required")
	}

	switch provider := viper.GetString("service.mail.provider"); provider {
	case MailProviderSMTP:
		domain := viper.GetString("service.mail.domain")
		if domain == "" {
			domain = from.Email[strings.LastIndex(from.Email, "@")+1:]
		}
		return mailer.NewSMTPMailer(mailer.SMTPOptions{
			Host:     viper.GetString("service.mail.smtp.host"),
			Port:     viper.GetInt("service.mail.smtp.port"),
			Username: viper.GetString("service.mail.smtp.username"),
			Password: viper.GetString("service.mail.smtp.password"),
			SSL:      viper.GetBool("service.mail.smtp.ssl"),
			From:     from,
			Domain:   domain,
		}), nil
	case MailProviderSendGrid:
		apiKey := viper.GetString("service.mail.sendgrid.api-key")
		if apiKey == "" {
			return nil, errors.New("service.mail.sendgrid.api-key is required")
		}
		return mailer.NewSendGridMailer(apiKey, from), nil
	default:
		return nil, fmt.Errorf("unknown service.mail.provider %q", provider)
	}
}

// GormConfig returns the gorm settings shared by every connection.
func GormConfig(debug bool) *gorm.Config {
	level := gormLogger.Warn
	if debug {
		level = gormLogger.Info
	}
	return &gorm.Config{
		Logger: gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  level,
				IgnoreRecordNotFoundError: true,
				Colorful:                  debug,
			},
		),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func Get() *Config {
	initConfig()

	settings, err := LoadSettings()
	if err != nil {
		panic(err)
	}

	err = logger.Init(logger.Config{
		Debug:        settings.Debug,
		TimeLocation: settings.Location,
		LogToFile:    viper.GetBool("settings.logging.log-to-file"),
		LogsDir:      viper.GetString("settings.logging.logs-dir"),
		JSON:         viper.GetBool("settings.logging.json"),
	})
	if err != nil {
		panic(err)
	}

	dsn := fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%d sslmode=%s TimeZone=UTC",
		viper.GetString("service.database.user"),
		viper.GetString("service.database.password"),
		viper.GetString("service.database.name"),
		viper.GetString("service.database.host"),
		viper.GetInt("service.database.port"),
		viper.GetString("service.database.sslmode"),
	)

	database, err := gorm.Open(postgres.Open(dsn), GormConfig(settings.Debug))
	if err != nil {
		logger.Log.Panicf("Failed to connect to the database: %v", err)
	} else {
		logger.Log.Info("Successfully connected to the database")
	}

	sqlDB, err := database.DB()
	if err != nil {
		logger.Log.Panicf("Failed to get the database pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(viper.GetInt("service.database.max-open-conns"))

	if viper.GetBool("service.database.migrate-external") {
		if errMigrate := database.AutoMigrate(postgresStorage.ExternalMigrations...); errMigrate != nil {
			logger.Log.Panicf("Failed to migrate web application tables: %v", errMigrate)
		}
	}
	errMigrate := database.AutoMigrate(postgresStorage.Migrations...)
	if errMigrate != nil {
		logger.Log.Panicf("Failed to migrate database: %v", errMigrate)
	}

	var redisClient *redisStorage.Client
	if host := viper.GetString("service.redis.host"); host != "" {
		redisClient, err = redisStorage.New(context.Background(), redisStorage.Options{
			Host:     host,
			Port:     viper.GetInt("service.redis.port"),
			Password: viper.GetString("service.redis.password"),
			DB:       viper.GetInt("service.redis.db"),
		})
		if err != nil {
			logger.Log.Panicf("Failed to connect to redis: %v", err)
		}
		logger.Log.Info("Successfully connected to redis")
	} else {
		logger.Log.Info("service.redis.host is empty, job locks disabled")
	}

	mail, err := NewMailer()
	if err != nil {
		logger.Log.Panicf("Failed to configure mail: %v", err)
	}

	return &Config{
		Database: database,
		Redis:    redisClient,
		Mailer:   mail,
		Settings: settings,
	}
}
