package postgres

import "github.com/hopehouse/reminders/internal/domain/entity"

// Migrations is a list of all gorm migrations for the tables this service owns.
var Migrations = []interface{}{
	&entity.Reminder{},
}

// ExternalMigrations creates the web application's tables. Only used for
// local development databases and tests; in production they already exist.
var ExternalMigrations = []interface{}{
	&entity.Event{},
	&entity.Registration{},
	&entity.Testimonial{},
	&entity.PrayerRequest{},
	&entity.PrayerLog{},
}
